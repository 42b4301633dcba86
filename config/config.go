// Package config loads the departure board configuration from a YAML file, a .env file and
// DEPARTURES_* environment variables, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jamespfennell/departures/board"
	"github.com/jamespfennell/departures/snapshot"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	RefreshIntervalMS    int               `yaml:"refreshIntervalMS" validate:"gt=0"`
	DebounceDelayMS      int               `yaml:"debounceDelayMS" validate:"gte=0"`
	MaxStops             int               `yaml:"maxStops" validate:"gt=0"`
	MaxArrivalsWindowMin int               `yaml:"maxArrivalsWindowMin" validate:"gt=0"`
	StaleAfterMin        int               `yaml:"staleAfterMin" validate:"gt=0"`
	RoutePairs           map[string]string `yaml:"routePairs" validate:"dive,keys,required,endkeys,required"`
	Directions           DirectionsConfig  `yaml:"directions"`
	Feeds                FeedsConfig       `yaml:"feeds"`
	// IANA name overriding the agency timezone.
	Timezone string       `yaml:"timezone" validate:"omitempty,timezone"`
	Stops    []string     `yaml:"stops" validate:"dive,required"`
	Server   ServerConfig `yaml:"server"`
}

type FeedsConfig struct {
	// URL or local path.
	StaticURL string `yaml:"staticURL" validate:"required"`
	// URL or local path.
	RealtimeURL    string `yaml:"realtimeURL" validate:"required"`
	RealtimeFormat string `yaml:"realtimeFormat" validate:"omitempty,oneof=protobuf proto pb json"`
	StaticTTLMin   int    `yaml:"staticTTLMin" validate:"gte=0"`
	TimeoutMS      int    `yaml:"timeoutMS" validate:"gte=0"`
}

type DirectionsConfig struct {
	DirectionalRoutes []string                `yaml:"directionalRoutes"`
	HeadsignPatterns  []HeadsignPatternConfig `yaml:"headsignPatterns" validate:"dive"`
}

type HeadsignPatternConfig struct {
	Pattern   string `yaml:"pattern" validate:"required"`
	Direction string `yaml:"direction" validate:"required,oneof=northbound southbound inbound outbound"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`
	// Origins allowed to call the API from a browser.
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

func Default() Config {
	return Config{
		RefreshIntervalMS:    15000,
		DebounceDelayMS:      1000,
		MaxStops:             board.DefaultMaxStops,
		MaxArrivalsWindowMin: board.DefaultMaxArrivalsWindow,
		StaleAfterMin:        int(board.DefaultStaleAfter / time.Minute),
		Feeds: FeedsConfig{
			RealtimeFormat: string(snapshot.FormatProtobuf),
			StaticTTLMin:   int(snapshot.DefaultStaticTTL / time.Minute),
			TimeoutMS:      30000,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
		},
	}
}

// Load reads the YAML file at path, if path is not empty, on top of the defaults, then applies the
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) Validate() error {
	return validator.New().Struct(cfg)
}

func (cfg *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, s := range []struct {
		key string
		dst *string
	}{
		{"DEPARTURES_STATIC_URL", &cfg.Feeds.StaticURL},
		{"DEPARTURES_REALTIME_URL", &cfg.Feeds.RealtimeURL},
		{"DEPARTURES_REALTIME_FORMAT", &cfg.Feeds.RealtimeFormat},
		{"DEPARTURES_TIMEZONE", &cfg.Timezone},
		{"DEPARTURES_ADDR", &cfg.Server.Addr},
	} {
		if v, ok := lookup(s.key); ok {
			*s.dst = strings.TrimSpace(v)
		}
	}
	for _, i := range []struct {
		key string
		dst *int
	}{
		{"DEPARTURES_REFRESH_INTERVAL_MS", &cfg.RefreshIntervalMS},
		{"DEPARTURES_MAX_STOPS", &cfg.MaxStops},
		{"DEPARTURES_MAX_ARRIVALS_WINDOW_MIN", &cfg.MaxArrivalsWindowMin},
	} {
		v, ok := lookup(i.key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s: %q", i.key, v)
		}
		*i.dst = n
	}
	if v, ok := lookup("DEPARTURES_STOPS"); ok {
		cfg.Stops = splitList(v)
	}
	if v, ok := lookup("DEPARTURES_ROUTE_PAIRS"); ok {
		pairs, err := parseRoutePairs(v)
		if err != nil {
			return fmt.Errorf("invalid DEPARTURES_ROUTE_PAIRS: %w", err)
		}
		cfg.RoutePairs = pairs
	}
	return nil
}

func splitList(s string) []string {
	var result []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			result = append(result, v)
		}
	}
	return result
}

// parseRoutePairs parses a list of the form "8A:8B,8B:8A".
func parseRoutePairs(s string) (map[string]string, error) {
	pairs := map[string]string{}
	for _, pair := range splitList(s) {
		route, paired, ok := strings.Cut(pair, ":")
		route, paired = strings.TrimSpace(route), strings.TrimSpace(paired)
		if !ok || route == "" || paired == "" {
			return nil, fmt.Errorf("%q is not of the form route:pairedRoute", pair)
		}
		pairs[route] = paired
	}
	return pairs, nil
}

func (cfg *Config) RefreshInterval() time.Duration {
	return time.Duration(cfg.RefreshIntervalMS) * time.Millisecond
}

func (cfg *Config) DebounceDelay() time.Duration {
	return time.Duration(cfg.DebounceDelayMS) * time.Millisecond
}

func (cfg *Config) StaticTTL() time.Duration {
	return time.Duration(cfg.Feeds.StaticTTLMin) * time.Minute
}

func (cfg *Config) Timeout() time.Duration {
	return time.Duration(cfg.Feeds.TimeoutMS) * time.Millisecond
}

// Location returns the configured timezone, or nil if the agency timezone should be used.
func (cfg *Config) Location() (*time.Location, error) {
	if cfg.Timezone == "" {
		return nil, nil
	}
	return time.LoadLocation(cfg.Timezone)
}

func (cfg *Config) RealtimeFormat() (snapshot.Format, error) {
	return snapshot.ParseFormat(cfg.Feeds.RealtimeFormat)
}

func (cfg *Config) BoardOptions() board.Options {
	opts := board.Options{
		MaxStops:          cfg.MaxStops,
		MaxArrivalsWindow: cfg.MaxArrivalsWindowMin,
		StaleAfter:        time.Duration(cfg.StaleAfterMin) * time.Minute,
		RoutePairs:        cfg.RoutePairs,
		Directions: board.DirectionRules{
			DirectionalRoutes: cfg.Directions.DirectionalRoutes,
		},
	}
	for _, p := range cfg.Directions.HeadsignPatterns {
		// Validated to be a known direction.
		d, _ := board.ParseDirection(p.Direction)
		opts.Directions.HeadsignPatterns = append(opts.Directions.HeadsignPatterns, board.HeadsignPattern{
			Pattern:   p.Pattern,
			Direction: d,
		})
	}
	return opts
}
