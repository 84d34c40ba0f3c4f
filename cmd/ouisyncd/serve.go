package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/J-Pabon/ouisync/pkg/config"
	"github.com/J-Pabon/ouisync/pkg/crypto"
	"github.com/J-Pabon/ouisync/pkg/dispatcher"
	"github.com/J-Pabon/ouisync/pkg/events"
	"github.com/J-Pabon/ouisync/pkg/localstate"
	"github.com/J-Pabon/ouisync/pkg/log"
	"github.com/J-Pabon/ouisync/pkg/missingparts"
	"github.com/J-Pabon/ouisync/pkg/protocol"
	"github.com/J-Pabon/ouisync/pkg/sharetoken"
	"github.com/J-Pabon/ouisync/pkg/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync daemon: bind listeners, dial configured peers, replicate every registered repository",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "Path to the YAML config file (required)")
	serveCmd.Flags().StringArray("peer", nil, "Address of a peer to dial (TCP, repeatable)")
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		return fmt.Errorf("--config is required")
	}
	peerAddrs, _ := cmd.Flags().GetStringArray("peer")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	devStore, err := localstate.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open device store: %w", err)
	}
	defer devStore.Close()

	deviceID, err := devStore.DeviceID()
	if err != nil {
		return fmt.Errorf("load device id: %w", err)
	}

	// The runtime identity authenticated over the wire by Handshake is
	// generated fresh every time the daemon starts; it is not the
	// per-device install id (deviceID) and is never persisted.
	local, err := crypto.GenerateWriteKey()
	if err != nil {
		return fmt.Errorf("generate runtime identity: %w", err)
	}

	logger := log.WithComponent("ouisyncd")
	logger.Info().Stringer("device", deviceID).Stringer("runtime", local.WriterID()).Msg("starting")

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	registry := protocol.NewRegistry(func(runtimeID crypto.WriterID, connected bool) {
		state := "left"
		if connected {
			state = "joined"
		}
		log.WithPeerID(runtimeID).Info().Msg("peer " + state)
	})
	disp := dispatcher.New(logger)
	defer disp.Close()

	connector := &protocol.Connector{
		Local:    local,
		Permit:   protocol.NewConnectionPermit(),
		Registry: registry,
		Disp:     disp,
		Broker:   broker,
		Log:      logger,
	}

	for _, endpoint := range cfg.Bind {
		endpoint := endpoint
		g.Go(func() error { return connector.AcceptLoop(ctx, endpoint) })
		logger.Info().Str("address", endpoint.Address).Str("proto", string(endpoint.Proto)).Msg("listening")
	}

	for _, address := range peerAddrs {
		endpoint := config.Endpoint{Proto: config.ProtoTCP, Family: config.FamilyV4, Address: address}
		g.Go(func() error { return connector.DialLoop(ctx, endpoint) })
		logger.Info().Str("address", address).Msg("dialing peer")
	}

	repos, err := devStore.RegisteredRepositories()
	if err != nil {
		return fmt.Errorf("list registered repositories: %w", err)
	}
	if len(repos) == 0 {
		logger.Warn().Msg("no repositories registered; run 'ouisyncd repo create' first")
	}

	for _, repo := range repos {
		repo := repo
		session, changed, err := openRepositorySession(cfg, repo, disp, broker)
		if err != nil {
			logger.Error().Err(err).Str("repository", repo.Name).Msg("skipping repository")
			continue
		}
		g.Go(func() error { return session.Run(ctx, changed) })
		logger.Info().Str("repository", repo.Name).Msg("replicating")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		logger.Info().Msg("shutting down")
	case <-ctx.Done():
	}
	cancel()

	stats := disp.Stats()
	logger.Info().Int64("bytes_sent", stats.BytesSent).Int64("bytes_received", stats.BytesReceived).Msg("connection traffic")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// openRepositorySession opens repo's database and wires a protocol.Session
// for it against channelForRepository, the logical dispatcher channel every
// peer uses for this repository. changed is returned unbuffered and never
// written to by this command: ouisyncd currently only replicates content a
// peer already holds, and has no local write path of its own.
func openRepositorySession(cfg config.Config, repo localstate.RegisteredRepository, disp *dispatcher.Dispatcher, broker *events.Broker) (*protocol.Session, <-chan struct{}, error) {
	decoded, err := sharetoken.Decode(repo.Token)
	if err != nil {
		return nil, nil, fmt.Errorf("decode share token: %w", err)
	}
	repositoryID, ok := decoded.Secrets.RepositoryID()
	if !ok {
		return nil, nil, fmt.Errorf("share token grants no repository access")
	}

	db, err := store.Open(cfg, repositoryID)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	tracker := missingparts.NewTracker[crypto.BlockID](missingparts.NullApprover[crypto.BlockID]{})
	channel := channelForRepository(repositoryID)
	stream := disp.Open(channel)

	sessionLog := log.WithRepositoryID(repositoryID)
	session := protocol.NewSession(db.DB(), stream, tracker, broker, repositoryID, sessionLog)

	changed := make(chan struct{})
	return session, changed, nil
}

func channelForRepository(id crypto.RepositoryID) dispatcher.MessageChannel {
	return dispatcher.MessageChannel(id)
}
