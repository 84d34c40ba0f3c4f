package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/J-Pabon/ouisync/pkg/crypto"
	"github.com/J-Pabon/ouisync/pkg/localstate"
	"github.com/J-Pabon/ouisync/pkg/sharetoken"
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage registered repositories",
}

var repoCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Generate a fresh write-access repository and register it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := rootCmd.PersistentFlags().GetString("data-dir")
		if dataDir == "" {
			return fmt.Errorf("--data-dir is required")
		}
		name := args[0]

		writeKey, err := crypto.GenerateWriteKey()
		if err != nil {
			return fmt.Errorf("generate write key: %w", err)
		}
		secrets := crypto.NewWriteAccess(writeKey)
		token := sharetoken.Encode(sharetoken.Token{Mode: crypto.ModeWrite, Secrets: secrets, SuggestedName: name})

		repositoryID, _ := secrets.RepositoryID()
		dbPath := filepath.Join(dataDir, repositoryID.String()+".db")

		store, err := localstate.Open(dataDir)
		if err != nil {
			return fmt.Errorf("open device store: %w", err)
		}
		defer store.Close()

		if err := store.RegisterRepository(name, dbPath, token); err != nil {
			return fmt.Errorf("register repository: %w", err)
		}

		fmt.Printf("✓ Created repository %q\n", name)
		fmt.Printf("  Repository ID: %s\n", repositoryID)
		fmt.Printf("  Share token (write access):\n    %s\n", token)
		return nil
	},
}

var repoAddCmd = &cobra.Command{
	Use:   "add NAME TOKEN",
	Short: "Register a repository from a share token produced elsewhere",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := rootCmd.PersistentFlags().GetString("data-dir")
		if dataDir == "" {
			return fmt.Errorf("--data-dir is required")
		}
		name, token := args[0], args[1]

		decoded, err := sharetoken.Decode(token)
		if err != nil {
			return fmt.Errorf("decode share token: %w", err)
		}
		repositoryID, ok := decoded.Secrets.RepositoryID()
		if !ok {
			return fmt.Errorf("share token grants no repository access")
		}
		dbPath := filepath.Join(dataDir, repositoryID.String()+".db")

		store, err := localstate.Open(dataDir)
		if err != nil {
			return fmt.Errorf("open device store: %w", err)
		}
		defer store.Close()

		if err := store.RegisterRepository(name, dbPath, token); err != nil {
			return fmt.Errorf("register repository: %w", err)
		}

		fmt.Printf("✓ Registered repository %q (%s access)\n", name, decoded.Mode)
		return nil
	},
}

var repoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered repositories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := rootCmd.PersistentFlags().GetString("data-dir")
		if dataDir == "" {
			return fmt.Errorf("--data-dir is required")
		}

		store, err := localstate.Open(dataDir)
		if err != nil {
			return fmt.Errorf("open device store: %w", err)
		}
		defer store.Close()

		repos, err := store.RegisteredRepositories()
		if err != nil {
			return fmt.Errorf("list repositories: %w", err)
		}
		if len(repos) == 0 {
			fmt.Println("No repositories registered.")
			return nil
		}
		for _, r := range repos {
			decoded, err := sharetoken.Decode(r.Token)
			mode := "unknown"
			if err == nil {
				mode = decoded.Mode.String()
			}
			fmt.Printf("%-20s %-8s %s\n", r.Name, mode, r.DBPath)
		}
		return nil
	},
}

var repoRemoveCmd = &cobra.Command{
	Use:   "remove NAME",
	Short: "Unregister a repository (leaves its database file in place)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := rootCmd.PersistentFlags().GetString("data-dir")
		if dataDir == "" {
			return fmt.Errorf("--data-dir is required")
		}

		store, err := localstate.Open(dataDir)
		if err != nil {
			return fmt.Errorf("open device store: %w", err)
		}
		defer store.Close()

		if err := store.UnregisterRepository(args[0]); err != nil {
			return fmt.Errorf("unregister repository: %w", err)
		}
		fmt.Printf("✓ Unregistered repository %q\n", args[0])
		return nil
	},
}

func init() {
	repoCmd.AddCommand(repoCreateCmd)
	repoCmd.AddCommand(repoAddCmd)
	repoCmd.AddCommand(repoListCmd)
	repoCmd.AddCommand(repoRemoveCmd)
}
