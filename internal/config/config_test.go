package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gridd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 66.0, cfg.Grid.CellSize)
	assert.Equal(t, 100*time.Millisecond, cfg.Grid.RefreshInterval)
	assert.Equal(t, 200.0, cfg.Grid.MaxTrackedRadius)
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Port, cfg.Server.Port)
}

func TestLoad_YAMLOverlay(t *testing.T) {
	path := writeFile(t, `
grid:
  cell_size: 50
  refresh_interval: 250ms
server:
  port: 8081
world:
  tick_rate: 10
  maps:
    - id: 7
      name: Durotar
      min_x: 0
      min_y: 0
      max_x: 1000
      max_y: 800
      population:
        creatures: 10
        hostile_ratio: 0.5
bots:
  count: 3
  map_id: 7
log:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 50.0, cfg.Grid.CellSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Grid.RefreshInterval)
	assert.Equal(t, 200.0, cfg.Grid.MaxTrackedRadius, "untouched keys keep defaults")
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, 10, cfg.World.TickRate)
	require.Len(t, cfg.World.Maps, 1)
	assert.Equal(t, "Durotar", cfg.World.Maps[0].Name)
	assert.Equal(t, 10, cfg.World.Maps[0].Population.Creatures)
	assert.Equal(t, slog.LevelDebug, cfg.Log.SlogLevel())

	m, ok := cfg.BotMap()
	require.True(t, ok)
	assert.Equal(t, uint32(7), m.ID)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "server:\n  port: 8081\n")
	t.Setenv("PORT", "9090")
	t.Setenv("GRID_REFRESH_INTERVAL", "0s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("ADMIN_TOKEN", "s3cret")
	t.Setenv("LOG_LEVEL", "WARN")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Zero(t, cfg.Grid.RefreshInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "s3cret", cfg.Server.AdminToken)
	assert.Equal(t, slog.LevelWarn, cfg.Log.SlogLevel())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "grid: [not, a, map"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "grid:\n  cell_size: -1\n"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate_Rules(t *testing.T) {
	cases := map[string]func(*AppConfig){
		"zero radius":      func(c *AppConfig) { c.Grid.MaxTrackedRadius = 0 },
		"negative refresh": func(c *AppConfig) { c.Grid.RefreshInterval = -time.Second },
		"bad port":         func(c *AppConfig) { c.Server.Port = 70000 },
		"bad log level":    func(c *AppConfig) { c.Log.Level = "loud" },
		"inverted map":     func(c *AppConfig) { c.World.Maps[0].MaxX = c.World.Maps[0].MinX },
		"hostile ratio":    func(c *AppConfig) { c.World.Maps[0].Population.HostileRatio = 1.5 },
		"duplicate map":    func(c *AppConfig) { c.World.Maps = append(c.World.Maps, c.World.Maps[0]) },
		"unknown bot map":  func(c *AppConfig) { c.Bots.MapID = 99 },
		"bots without map": func(c *AppConfig) { c.World.Maps = nil },
		"password missing": func(c *AppConfig) { c.Observability.User = "admin" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}
