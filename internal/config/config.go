// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for simulation and server settings.
//
// Values are resolved in three layers: the defaults in this file, an
// optional YAML file named by SIM_CONFIG, then environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// WORLD CONFIGURATION
// =============================================================================

// WorldConfig describes the simulated domain and its grid.
type WorldConfig struct {
	Width   float32 `yaml:"width"`
	Height  float32 `yaml:"height"`
	Rows    int     `yaml:"rows"`
	Columns int     `yaml:"columns"`
}

// DefaultWorld returns the default domain: 200x200 units in 50x50 cells.
func DefaultWorld() WorldConfig {
	return WorldConfig{
		Width:   200,
		Height:  200,
		Rows:    50,
		Columns: 50,
	}
}

// =============================================================================
// SIMULATION CONFIGURATION
// =============================================================================

// SimulationConfig holds solver and worker pool settings.
type SimulationConfig struct {
	Workers              int     `yaml:"workers"`
	MaxRadius            float32 `yaml:"max_radius"`
	MaxBounces           int     `yaml:"max_bounces"`
	BodyCollisions       bool    `yaml:"body_collisions"`
	MaxPlacementAttempts int     `yaml:"max_placement_attempts"`
	Seed                 int64   `yaml:"seed"`
	TickRate             int     `yaml:"tick_rate"`
	CountIntersections   bool    `yaml:"count_intersections"`
}

// DefaultSimulation returns the default simulation configuration.
func DefaultSimulation() SimulationConfig {
	return SimulationConfig{
		Workers:              4,
		MaxRadius:            1.5,
		MaxBounces:           1,
		BodyCollisions:       true,
		MaxPlacementAttempts: 100,
		TickRate:             60,
		CountIntersections:   true,
	}
}

// =============================================================================
// SPAWN CONFIGURATION
// =============================================================================

// SpawnConfig describes the initial population.
type SpawnConfig struct {
	Count     int     `yaml:"count"`
	MinRadius float32 `yaml:"min_radius"`
	MaxRadius float32 `yaml:"max_radius"`
	MinSpeed  float32 `yaml:"min_speed"`
	MaxSpeed  float32 `yaml:"max_speed"`
	Policy    string  `yaml:"policy"` // "random" or "sweep"
}

// DefaultSpawn returns the default population.
func DefaultSpawn() SpawnConfig {
	return SpawnConfig{
		Count:     2000,
		MinRadius: 0.5,
		MaxRadius: 1.5,
		MinSpeed:  5,
		MaxSpeed:  20,
		Policy:    "random",
	}
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	RateLimit      float64  `yaml:"rate_limit"` // requests per second per IP
	RateBurst      int      `yaml:"rate_burst"`
	SpawnRate      float64  `yaml:"spawn_rate"` // POST /api/spawn requests per second per IP
	SpawnBurst     int      `yaml:"spawn_burst"`
	MaxSpawn       int      `yaml:"max_spawn"` // cap on POST /api/spawn counts
	StreamHz       int      `yaml:"stream_hz"` // WebSocket snapshot rate
	FrameWidth     int      `yaml:"frame_width"`
	FrameHeight    int      `yaml:"frame_height"`
	AdminToken     string   `yaml:"admin_token"` // bearer token for POST /api/spawn, empty leaves it open
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:           3000,
		AllowedOrigins: []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		RateLimit:      20,
		RateBurst:      40,
		SpawnRate:      0.2,
		SpawnBurst:     2,
		MaxSpawn:       20000,
		StreamHz:       10,
		FrameWidth:     800,
		FrameHeight:    800,
	}
}

// =============================================================================
// OBSERVABILITY CONFIGURATION
// =============================================================================

// ObservabilityConfig holds the debug server and contact log settings.
type ObservabilityConfig struct {
	DebugAddr       string `yaml:"debug_addr"`
	DebugEnabled    bool   `yaml:"debug_enabled"`
	EventLogPath    string `yaml:"event_log_path"` // empty disables the contact log
	EventsPerSecond int    `yaml:"events_per_second"`
	DebugUser       string `yaml:"debug_user"` // optional basic auth on the debug server
	DebugPassword   string `yaml:"debug_password"`
}

// DefaultObservability returns the default observability configuration.
// The debug server binds to localhost only.
func DefaultObservability() ObservabilityConfig {
	return ObservabilityConfig{
		DebugAddr:       "127.0.0.1:6060",
		DebugEnabled:    true,
		EventLogPath:    "",
		EventsPerSecond: 10000,
	}
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	World         WorldConfig         `yaml:"world"`
	Simulation    SimulationConfig    `yaml:"simulation"`
	Spawn         SpawnConfig         `yaml:"spawn"`
	Server        ServerConfig        `yaml:"server"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// Default returns the complete default configuration.
func Default() AppConfig {
	return AppConfig{
		World:         DefaultWorld(),
		Simulation:    DefaultSimulation(),
		Spawn:         DefaultSpawn(),
		Server:        DefaultServer(),
		Observability: DefaultObservability(),
	}
}

// Load returns the complete configuration: defaults, then the YAML file
// named by SIM_CONFIG (if set), then environment overrides.
func Load() (AppConfig, error) {
	cfg := Default()
	if path := os.Getenv("SIM_CONFIG"); path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	ApplyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto cfg. Keys missing from the
// file keep their current values.
func LoadFile(path string, cfg *AppConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv applies environment variable overrides to cfg.
func ApplyEnv(cfg *AppConfig) {
	w := &cfg.World
	if v := getEnvFloat("WORLD_WIDTH", 0); v > 0 {
		w.Width = float32(v)
	}
	if v := getEnvFloat("WORLD_HEIGHT", 0); v > 0 {
		w.Height = float32(v)
	}
	if v := getEnvInt("GRID_ROWS", 0); v > 0 {
		w.Rows = v
	}
	if v := getEnvInt("GRID_COLUMNS", 0); v > 0 {
		w.Columns = v
	}

	s := &cfg.Simulation
	if v := getEnvInt("SIM_WORKERS", 0); v > 0 {
		s.Workers = v
	}
	if v := getEnvFloat("SIM_MAX_RADIUS", 0); v > 0 {
		s.MaxRadius = float32(v)
	}
	if v := getEnvInt("SIM_MAX_BOUNCES", 0); v > 0 {
		s.MaxBounces = v
	}
	if v := os.Getenv("SIM_BODY_COLLISIONS"); v != "" {
		s.BodyCollisions = v != "false"
	}
	if v := getEnvInt("SIM_PLACEMENT_ATTEMPTS", 0); v > 0 {
		s.MaxPlacementAttempts = v
	}
	if v := getEnvInt("SIM_SEED", 0); v != 0 {
		s.Seed = int64(v)
	}
	if v := getEnvInt("SIM_TICK_RATE", 0); v > 0 {
		s.TickRate = v
	}

	sp := &cfg.Spawn
	if v := getEnvInt("SPAWN_COUNT", -1); v >= 0 {
		sp.Count = v
	}
	if v := getEnvFloat("SPAWN_MIN_RADIUS", 0); v > 0 {
		sp.MinRadius = float32(v)
	}
	if v := getEnvFloat("SPAWN_MAX_RADIUS", 0); v > 0 {
		sp.MaxRadius = float32(v)
	}
	if v := getEnvFloat("SPAWN_MIN_SPEED", -1); v >= 0 {
		sp.MinSpeed = float32(v)
	}
	if v := getEnvFloat("SPAWN_MAX_SPEED", -1); v >= 0 {
		sp.MaxSpeed = float32(v)
	}
	if v := os.Getenv("SPAWN_POLICY"); v != "" {
		sp.Policy = v
	}

	srv := &cfg.Server
	if p := getEnvInt("PORT", 0); p > 0 {
		srv.Port = p
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		srv.AllowedOrigins = splitList(v)
	}
	if v := getEnvFloat("RATE_LIMIT", 0); v > 0 {
		srv.RateLimit = v
	}
	if v := getEnvInt("RATE_BURST", 0); v > 0 {
		srv.RateBurst = v
	}
	if v := getEnvInt("STREAM_HZ", 0); v > 0 {
		srv.StreamHz = v
	}
	if v := getEnvFloat("SPAWN_RATE_LIMIT", 0); v > 0 {
		srv.SpawnRate = v
	}
	if v := getEnvInt("SPAWN_RATE_BURST", 0); v > 0 {
		srv.SpawnBurst = v
	}
	if v := getEnvInt("MAX_SPAWN", 0); v > 0 {
		srv.MaxSpawn = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		srv.AdminToken = v
	}

	o := &cfg.Observability
	if v := os.Getenv("DEBUG_ADDR"); v != "" {
		o.DebugAddr = v
	}
	if os.Getenv("DISABLE_DEBUG_SERVER") == "true" {
		o.DebugEnabled = false
	}
	if v, ok := os.LookupEnv("EVENT_LOG_PATH"); ok {
		o.EventLogPath = v
	}
	if v := getEnvInt("EVENTS_PER_SECOND", 0); v > 0 {
		o.EventsPerSecond = v
	}
	if v := os.Getenv("DEBUG_USER"); v != "" {
		o.DebugUser = v
		o.DebugPassword = os.Getenv("DEBUG_PASSWORD")
	}
}

// Validate rejects configurations the simulation cannot start with.
// Undersized cells are not an error here; the simulation reports them.
func (c AppConfig) Validate() error {
	if c.World.Width <= 0 || c.World.Height <= 0 {
		return fmt.Errorf("world size must be positive, got %gx%g", c.World.Width, c.World.Height)
	}
	if c.World.Rows <= 0 || c.World.Columns <= 0 {
		return fmt.Errorf("grid must have at least one row and column, got %dx%d", c.World.Rows, c.World.Columns)
	}
	if c.Spawn.MinRadius <= 0 || c.Spawn.MaxRadius < c.Spawn.MinRadius {
		return fmt.Errorf("invalid spawn radius range [%g,%g]", c.Spawn.MinRadius, c.Spawn.MaxRadius)
	}
	if c.Spawn.MinSpeed < 0 || c.Spawn.MaxSpeed < c.Spawn.MinSpeed {
		return fmt.Errorf("invalid spawn speed range [%g,%g]", c.Spawn.MinSpeed, c.Spawn.MaxSpeed)
	}
	return nil
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

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
