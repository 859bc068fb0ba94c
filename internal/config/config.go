// Package config provides centralized configuration management.
//
// Values are resolved in three layers: compiled defaults, an optional YAML
// file, then environment variables. The merged result is validated once
// before anything is started.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// GRID CONFIGURATION
// =============================================================================

// GridConfig holds the spatial cache settings shared by every map.
type GridConfig struct {
	CellSize         float64       `yaml:"cell_size" validate:"gt=0"`
	RefreshInterval  time.Duration `yaml:"refresh_interval" validate:"gte=0"`
	MaxTrackedRadius float64       `yaml:"max_tracked_radius" validate:"gt=0"`
}

// DefaultGrid returns the default grid configuration.
func DefaultGrid() GridConfig {
	return GridConfig{
		CellSize:         66,                     // world units; a typical sight radius spans ~3 cells
		RefreshInterval:  100 * time.Millisecond, // bots tolerate this much staleness
		MaxTrackedRadius: 200,
	}
}

func (c *GridConfig) applyEnv() {
	if v := getEnvFloat("GRID_CELL_SIZE", 0); v > 0 {
		c.CellSize = v
	}
	if v := getEnvDuration("GRID_REFRESH_INTERVAL", -1); v >= 0 {
		c.RefreshInterval = v
	}
	if v := getEnvFloat("GRID_MAX_RADIUS", 0); v > 0 {
		c.MaxTrackedRadius = v
	}
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int      `yaml:"port" validate:"gt=0,lte=65535"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AdminToken     string   `yaml:"admin_token"` // empty disables the check on mutating routes
	RateLimit      float64  `yaml:"rate_limit" validate:"gt=0"`
	RateBurst      int      `yaml:"rate_burst" validate:"gt=0"`
	MaxWSPerIP     int      `yaml:"max_ws_per_ip" validate:"gt=0"`
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:           3000,
		AllowedOrigins: []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		RateLimit:      20,
		RateBurst:      40,
		MaxWSPerIP:     5,
	}
}

func (c *ServerConfig) applyEnv() {
	if p := getEnvInt("PORT", 0); p > 0 {
		c.Port = p
	}
	if origins := getEnvList("ALLOWED_ORIGINS"); len(origins) > 0 {
		c.AllowedOrigins = origins
	}
	if tok := os.Getenv("ADMIN_TOKEN"); tok != "" {
		c.AdminToken = tok
	}
	if v := getEnvFloat("RATE_LIMIT", 0); v > 0 {
		c.RateLimit = v
	}
	if v := getEnvInt("RATE_BURST", 0); v > 0 {
		c.RateBurst = v
	}
}

// =============================================================================
// OBSERVABILITY CONFIGURATION
// =============================================================================

// ObservabilityConfig controls the debug server (pprof, /metrics, /health).
type ObservabilityConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr" validate:"required_if=Enabled true"`
	User     string `yaml:"user"`
	Password string `yaml:"password" validate:"required_with=User"`
}

// DefaultObservability returns the default observability configuration.
// The debug server binds to localhost only.
func DefaultObservability() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled: true,
		Addr:    "127.0.0.1:6060",
	}
}

func (c *ObservabilityConfig) applyEnv() {
	if os.Getenv("DEBUG_SERVER") == "false" {
		c.Enabled = false
	}
	if addr := os.Getenv("DEBUG_ADDR"); addr != "" {
		c.Addr = addr
	}
	if u := os.Getenv("DEBUG_USER"); u != "" {
		c.User = u
		c.Password = os.Getenv("DEBUG_PASSWORD")
	}
}

// =============================================================================
// WORLD CONFIGURATION
// =============================================================================

// PopulationConfig is the initial entity count of a map.
type PopulationConfig struct {
	Creatures    int     `yaml:"creatures" validate:"gte=0"`
	Players      int     `yaml:"players" validate:"gte=0"`
	Objects      int     `yaml:"objects" validate:"gte=0"`
	Triggers     int     `yaml:"triggers" validate:"gte=0"`
	Effects      int     `yaml:"effects" validate:"gte=0"`
	HostileRatio float64 `yaml:"hostile_ratio" validate:"gte=0,lte=1"`
}

// MapConfig describes one map region to load at startup.
type MapConfig struct {
	ID         uint32           `yaml:"id" validate:"gt=0"`
	Name       string           `yaml:"name" validate:"required"`
	MinX       float64          `yaml:"min_x"`
	MinY       float64          `yaml:"min_y"`
	MaxX       float64          `yaml:"max_x" validate:"gtfield=MinX"`
	MaxY       float64          `yaml:"max_y" validate:"gtfield=MinY"`
	Population PopulationConfig `yaml:"population"`
}

// WorldConfig holds simulation settings.
type WorldConfig struct {
	TickRate  int         `yaml:"tick_rate" validate:"gt=0,lte=1000"`
	Seed      int64       `yaml:"seed"` // 0 picks a time-based seed
	QueueSize int         `yaml:"queue_size" validate:"gt=0"`
	Maps      []MapConfig `yaml:"maps" validate:"dive"`
}

// DefaultWorld returns a single medium-sized map.
func DefaultWorld() WorldConfig {
	return WorldConfig{
		TickRate:  20,
		QueueSize: 4096,
		Maps: []MapConfig{
			{
				ID:   1,
				Name: "Elwynn",
				MinX: -2000, MinY: -2000,
				MaxX: 2000, MaxY: 2000,
				Population: PopulationConfig{
					Creatures:    2000,
					Players:      200,
					Objects:      500,
					Triggers:     50,
					Effects:      100,
					HostileRatio: 0.6,
				},
			},
		},
	}
}

func (c *WorldConfig) applyEnv() {
	if v := getEnvInt("TICK_RATE", 0); v > 0 {
		c.TickRate = v
	}
	if v := getEnvInt("WORLD_SEED", 0); v != 0 {
		c.Seed = int64(v)
	}
}

// =============================================================================
// BOT CONFIGURATION
// =============================================================================

// BotConfig controls the reader pool.
type BotConfig struct {
	Count            int     `yaml:"count" validate:"gte=0"`
	QueriesPerSecond float64 `yaml:"queries_per_second" validate:"gt=0"`
	SightRadius      float64 `yaml:"sight_radius" validate:"gt=0"`
	MapID            uint32  `yaml:"map_id"` // 0 selects the first configured map
}

// DefaultBots returns the default bot configuration.
func DefaultBots() BotConfig {
	return BotConfig{
		Count:            100,
		QueriesPerSecond: 10,
		SightRadius:      60,
	}
}

func (c *BotConfig) applyEnv() {
	if v := getEnvInt("BOT_COUNT", -1); v >= 0 {
		c.Count = v
	}
	if v := getEnvFloat("BOT_QPS", 0); v > 0 {
		c.QueriesPerSecond = v
	}
}

// =============================================================================
// LOG CONFIGURATION
// =============================================================================

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// DefaultLog returns the default log configuration.
func DefaultLog() LogConfig {
	return LogConfig{Level: "info", Format: "text"}
}

func (c *LogConfig) applyEnv() {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Format = strings.ToLower(v)
	}
}

// SlogLevel maps Level to a slog.Level. Unknown names map to Info.
func (c LogConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Grid          GridConfig          `yaml:"grid"`
	Server        ServerConfig        `yaml:"server"`
	Observability ObservabilityConfig `yaml:"observability"`
	World         WorldConfig         `yaml:"world"`
	Bots          BotConfig           `yaml:"bots"`
	Log           LogConfig           `yaml:"log"`
}

// Default returns the complete configuration without any overrides.
func Default() AppConfig {
	return AppConfig{
		Grid:          DefaultGrid(),
		Server:        DefaultServer(),
		Observability: DefaultObservability(),
		World:         DefaultWorld(),
		Bots:          DefaultBots(),
		Log:           DefaultLog(),
	}
}

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid configuration")

var validate = validator.New()

// Load resolves defaults, then the YAML file at path (skipped when path is
// empty), then environment variables, and validates the result.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *AppConfig) applyEnv() {
	c.Grid.applyEnv()
	c.Server.applyEnv()
	c.Observability.applyEnv()
	c.World.applyEnv()
	c.Bots.applyEnv()
	c.Log.applyEnv()
}

// Validate checks struct tags and the cross-section rules tags cannot express.
func (c AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	seen := make(map[uint32]bool, len(c.World.Maps))
	for _, m := range c.World.Maps {
		if seen[m.ID] {
			return fmt.Errorf("%w: duplicate map id %d", ErrInvalid, m.ID)
		}
		seen[m.ID] = true
	}
	if c.Bots.Count > 0 {
		if len(c.World.Maps) == 0 {
			return fmt.Errorf("%w: bots configured but no maps to run them on", ErrInvalid)
		}
		if c.Bots.MapID != 0 && !seen[c.Bots.MapID] {
			return fmt.Errorf("%w: bots reference unknown map %d", ErrInvalid, c.Bots.MapID)
		}
	}
	return nil
}

// BotMap returns the map the bots run on.
func (c AppConfig) BotMap() (MapConfig, bool) {
	for _, m := range c.World.Maps {
		if c.Bots.MapID == 0 || m.ID == c.Bots.MapID {
			return m, true
		}
	}
	return MapConfig{}, false
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
