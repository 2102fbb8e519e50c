// Package config loads minimap settings from YAML, then lets MINIMAP_*
// environment variables (optionally from a .env file) override them.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "MINIMAP_"

type (
	Config struct {
		Feed    Feed    `yaml:"feed" envPrefix:"FEED_"`
		Atlas   Atlas   `yaml:"atlas" envPrefix:"ATLAS_"`
		HTTP    HTTP    `yaml:"http" envPrefix:"HTTP_"`
		Logger  Logger  `yaml:"logger" envPrefix:"LOGGER_"`
		Data    Data    `yaml:"data" envPrefix:"DATA_"`
		Palette Palette `yaml:"palette" envPrefix:"PALETTE_"`
		Sim     Sim     `yaml:"sim" envPrefix:"SIM_"`
		Mirror  Mirror  `yaml:"mirror" envPrefix:"MIRROR_"`
	}

	Feed struct {
		URL        string `yaml:"url" env:"URL" validate:"omitempty,url"`
		ClientName string `yaml:"client_name" env:"CLIENT_NAME"`
	}

	Atlas struct {
		ViewRadius   int    `yaml:"view_radius" env:"VIEW_RADIUS"`
		SurfaceLimit int    `yaml:"surface_limit" env:"SURFACE_LIMIT"`
		FrameRate    int    `yaml:"frame_rate" env:"FRAME_RATE"`
		Clip         string `yaml:"clip" env:"CLIP" validate:"oneof=stencil scissor"`
	}

	HTTP struct {
		Addr         string        `yaml:"addr" env:"ADDR"`
		ReadTimeout  time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
		WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	}

	Logger struct {
		Level string `yaml:"level" env:"LEVEL" validate:"omitempty,oneof=debug info warn error"`
	}

	Data struct {
		Dir      string `yaml:"dir" env:"DIR"`
		EventLog bool   `yaml:"event_log" env:"EVENT_LOG"`
		Index    bool   `yaml:"index" env:"INDEX"`
		Snapshot bool   `yaml:"snapshot" env:"SNAPSHOT"`
	}

	// Mirror copies rotated event logs and snapshots to an S3 compatible
	// bucket. It is off unless Endpoint is set.
	Mirror struct {
		Endpoint  string `yaml:"endpoint" env:"ENDPOINT"`
		Bucket    string `yaml:"bucket" env:"BUCKET" validate:"required_with=Endpoint"`
		Region    string `yaml:"region" env:"REGION"`
		Prefix    string `yaml:"prefix" env:"PREFIX"`
		AccessKey string `yaml:"-" env:"ACCESS_KEY"`
		SecretKey string `yaml:"-" env:"SECRET_KEY"`
		Workers   int    `yaml:"workers" env:"WORKERS"`
		Queue     int    `yaml:"queue" env:"QUEUE"`
	}

	Palette struct {
		Path string `yaml:"path" env:"PATH"`
	}

	// Sim configures the synthetic feed.
	Sim struct {
		Addr        string  `yaml:"addr" env:"ADDR"`
		WorldID     string  `yaml:"world_id" env:"WORLD_ID" validate:"required"`
		Seed        int64   `yaml:"seed" env:"SEED"`
		SeaLevel    int     `yaml:"sea_level" env:"SEA_LEVEL"`
		Radius      int     `yaml:"radius" env:"RADIUS"`
		TickRateHz  int     `yaml:"tick_rate_hz" env:"TICK_RATE_HZ"`
		WalkSpeed   float64 `yaml:"walk_speed" env:"WALK_SPEED"`
		EditsPerSec float64 `yaml:"edits_per_sec" env:"EDITS_PER_SEC"`

		// Zero disables either limit.
		MaxSubscribers int     `yaml:"max_subscribers" env:"MAX_SUBSCRIBERS"`
		JoinsPerSec    float64 `yaml:"joins_per_sec" env:"JOINS_PER_SEC"`
	}
)

func Defaults() Config {
	return Config{
		Feed: Feed{
			URL:        "ws://127.0.0.1:8090/v1/feed",
			ClientName: "minimap",
		},
		Atlas: Atlas{
			ViewRadius:   5,
			SurfaceLimit: 4096,
			FrameRate:    30,
			Clip:         "stencil",
		},
		HTTP: HTTP{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Logger: Logger{Level: "info"},
		Data: Data{
			Dir:      "./data",
			EventLog: true,
			Index:    true,
			Snapshot: true,
		},
		Mirror: Mirror{
			Region:  "auto",
			Prefix:  "minimap",
			Workers: 1,
			Queue:   256,
		},
		Sim: Sim{
			Addr:        ":8090",
			WorldID:     "overworld",
			Seed:        1337,
			SeaLevel:    62,
			Radius:      8,
			TickRateHz:  20,
			WalkSpeed:   4.3,
			EditsPerSec: 2,
			JoinsPerSec: 5,
		},
	}
}

// Load reads path (if non-empty) over the defaults and applies environment
// overrides. A missing .env file is not an error.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf(".env: %w", err)
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate clamps numeric settings into range, fills empty names, then checks
// the rules that have no sensible clamp.
func (c *Config) Validate() error {
	c.Atlas.ViewRadius = clamp(c.Atlas.ViewRadius, 1, 32)
	if c.Atlas.SurfaceLimit < 0 {
		c.Atlas.SurfaceLimit = 0
	}
	c.Atlas.FrameRate = clamp(c.Atlas.FrameRate, 1, 240)
	if c.Atlas.Clip == "" {
		c.Atlas.Clip = "stencil"
	}
	c.Sim.Radius = clamp(c.Sim.Radius, 1, 32)
	c.Sim.TickRateHz = clamp(c.Sim.TickRateHz, 1, 100)
	c.Sim.SeaLevel = clamp(c.Sim.SeaLevel, 1, 254)
	if c.Sim.WalkSpeed < 0 {
		c.Sim.WalkSpeed = 0
	}
	if c.Sim.EditsPerSec < 0 {
		c.Sim.EditsPerSec = 0
	}
	if c.Sim.MaxSubscribers < 0 {
		c.Sim.MaxSubscribers = 0
	}
	if c.Sim.JoinsPerSec < 0 {
		c.Sim.JoinsPerSec = 0
	}
	c.Mirror.Workers = clamp(c.Mirror.Workers, 1, 16)
	c.Mirror.Queue = clamp(c.Mirror.Queue, 1, 65536)
	if c.Feed.ClientName == "" {
		c.Feed.ClientName = "minimap"
	}
	if c.Sim.WorldID == "" {
		c.Sim.WorldID = "overworld"
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
