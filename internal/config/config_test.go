package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SMSLEDGER_CONFIG", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 0.65, cfg.Engine.AcceptanceThreshold)
	require.Equal(t, 1.0, cfg.Engine.AmountTolerance)
	require.Equal(t, 10*time.Minute, cfg.Engine.TimeWindow)
	require.True(t, cfg.Engine.DebitWinsTies)
	require.Equal(t, "in", cfg.Rules.Set)
	require.Equal(t, 5000, cfg.Batch.MaxMessages)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[engine]
amount_tolerance = 2.5
time_window = "5m"
debit_wins_ties = false

[batch]
max_messages = 100
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("SMSLEDGER_CONFIG", path)
	t.Setenv("SMSLEDGER_SERVER_ADDR", "0.0.0.0:9000")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 2.5, cfg.Engine.AmountTolerance)
	require.Equal(t, 5*time.Minute, cfg.Engine.TimeWindow)
	require.False(t, cfg.Engine.DebitWinsTies)
	require.Equal(t, 100, cfg.Batch.MaxMessages)
	require.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	// untouched keys keep their defaults
	require.Equal(t, 0.65, cfg.Engine.AcceptanceThreshold)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	t.Setenv("SMSLEDGER_CONFIG", filepath.Join(t.TempDir(), "nope.toml"))
	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Engine.AcceptanceThreshold = 1.5
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Batch.MaxMessages = 0
	require.Error(t, cfg.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "config.toml")
	t.Setenv("SMSLEDGER_CONFIG", path)

	cfg := Default()
	cfg.Engine.TimeWindow = 90 * time.Second
	cfg.Server.Addr = "127.0.0.1:1234"
	require.NoError(t, Save(cfg))

	loaded, err := Load()
	require.NoError(t, err)
	require.Equal(t, 90*time.Second, loaded.Engine.TimeWindow)
	require.Equal(t, "127.0.0.1:1234", loaded.Server.Addr)
}

func TestLocationFallsBackToUTC(t *testing.T) {
	require.Equal(t, time.UTC, EngineConfig{Timezone: "Not/AZone"}.Location())
	require.Equal(t, time.UTC, EngineConfig{}.Location())
}
