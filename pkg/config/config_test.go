package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/J-Pabon/ouisync/pkg/config"
)

func TestValidateRequiresDataDirUnlessTemp(t *testing.T) {
	cfg := config.Config{}
	assert.Error(t, cfg.Validate())

	cfg.Temp = true
	assert.NoError(t, cfg.Validate())

	cfg.Temp = false
	cfg.DataDir = "/var/lib/ouisync"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsDuplicateMountNames(t *testing.T) {
	cfg := config.Config{
		Temp: true,
		Mounts: []config.Mount{
			{Name: "docs", Path: "/mnt/docs"},
			{Name: "docs", Path: "/mnt/other"},
		},
	}
	assert.ErrorContains(t, cfg.Validate(), "duplicate mount")
}

func TestValidateRejectsBadBindEndpoint(t *testing.T) {
	cases := []struct {
		name string
		ep   config.Endpoint
	}{
		{"unknown proto", config.Endpoint{Proto: "SCTP", Family: config.FamilyV4, Address: "0.0.0.0:0"}},
		{"unknown family", config.Endpoint{Proto: config.ProtoTCP, Family: "v5", Address: "0.0.0.0:0"}},
		{"empty address", config.Endpoint{Proto: config.ProtoTCP, Family: config.FamilyV4}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Config{Temp: true, Bind: []config.Endpoint{tc.ep}}
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadParsesYAMLAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ouisync.yaml")

	contents := `
data_dir: /var/lib/ouisync
enable_local_discovery: true
enable_dht: true
bind:
  - proto: QUIC
    family: v4
    address: 0.0.0.0:20209
mount:
  - name: docs
    path: /mnt/docs
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/ouisync", cfg.DataDir)
	assert.True(t, cfg.EnableLocalDiscovery)
	assert.True(t, cfg.EnableDHT)
	require.Len(t, cfg.Bind, 1)
	assert.Equal(t, config.ProtoQUIC, cfg.Bind[0].Proto)
	require.Len(t, cfg.Mounts, 1)
	assert.Equal(t, "docs", cfg.Mounts[0].Name)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}
