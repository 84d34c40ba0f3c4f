package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/J-Pabon/ouisync/pkg/errs"
)

// Proto is a bind endpoint's transport protocol.
type Proto string

const (
	ProtoQUIC Proto = "QUIC"
	ProtoTCP  Proto = "TCP"
)

// Family is a bind endpoint's IP family.
type Family string

const (
	FamilyV4 Family = "v4"
	FamilyV6 Family = "v6"
)

// Endpoint is one address the core listens on.
type Endpoint struct {
	Proto   Proto  `yaml:"proto"`
	Family  Family `yaml:"family"`
	Address string `yaml:"address"`
}

func (e Endpoint) Validate() error {
	switch e.Proto {
	case ProtoQUIC, ProtoTCP:
	default:
		return fmt.Errorf("config: bind endpoint %q: unknown proto %q: %w", e.Address, e.Proto, errs.Malformed)
	}
	switch e.Family {
	case FamilyV4, FamilyV6:
	default:
		return fmt.Errorf("config: bind endpoint %q: unknown family %q: %w", e.Address, e.Family, errs.Malformed)
	}
	if e.Address == "" {
		return fmt.Errorf("config: bind endpoint: address is required: %w", errs.Malformed)
	}
	return nil
}

// Mount names a virtual-filesystem mount point for an opened repository.
type Mount struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// Config is the replication core's top-level configuration.
type Config struct {
	// DataDir is where the local device store and per-repository databases
	// live, unless Temp is set.
	DataDir string `yaml:"data_dir"`

	// Temp, when set, backs every database with an in-memory SQLite
	// connection instead of a file under DataDir. Used by tests.
	Temp bool `yaml:"temp"`

	Mounts []Mount `yaml:"mount"`

	Bind []Endpoint `yaml:"bind"`

	EnableLocalDiscovery bool `yaml:"enable_local_discovery"`
	EnablePortForwarding bool `yaml:"enable_port_forwarding"`

	// EnableDHT and EnablePEX are single process-wide values; nothing in
	// this module overrides them per repository.
	EnableDHT bool `yaml:"enable_dht"`
	EnablePEX bool `yaml:"enable_pex"`
}

// Default returns a Config with no discovery enabled and an empty DataDir,
// suitable as a starting point for Load or for tests that set Temp.
func Default() Config {
	return Config{}
}

// Load reads and parses a YAML config file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, errs.Malformed)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that cfg is internally consistent.
func (c Config) Validate() error {
	if !c.Temp && c.DataDir == "" {
		return fmt.Errorf("config: data_dir is required unless temp is set: %w", errs.Malformed)
	}

	seen := make(map[string]struct{}, len(c.Mounts))
	for _, m := range c.Mounts {
		if m.Name == "" || m.Path == "" {
			return fmt.Errorf("config: mount entries require both name and path: %w", errs.Malformed)
		}
		if _, dup := seen[m.Name]; dup {
			return fmt.Errorf("config: duplicate mount name %q: %w", m.Name, errs.Malformed)
		}
		seen[m.Name] = struct{}{}
	}

	for _, e := range c.Bind {
		if err := e.Validate(); err != nil {
			return err
		}
	}

	return nil
}
