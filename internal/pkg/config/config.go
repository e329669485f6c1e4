package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/osmfj/MapComplete/internal/core/domain"
	"github.com/osmfj/MapComplete/internal/core/tags"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Overpass  OverpassConfig  `mapstructure:"overpass"`
	Layout    LayoutConfig    `mapstructure:"layout"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Warmer    WarmerConfig    `mapstructure:"warmer"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type OverpassConfig struct {
	URL     string `mapstructure:"url"`
	Timeout int    `mapstructure:"timeout"` // seconds, sent as [timeout:N]
}

// LayoutConfig is the theme: which layers to load and how far to widen queries.
type LayoutConfig struct {
	ID          string        `mapstructure:"id"`
	WidenFactor float64       `mapstructure:"widen_factor"`
	Layers      []LayerConfig `mapstructure:"layers"`
}

// LayerConfig is one layer. Tags is a filter expression such as
// "amenity=cafe|shop=coffee". MinZoom defaults to domain.DefaultMinZoom.
type LayerConfig struct {
	ID            string `mapstructure:"id"`
	Name          string `mapstructure:"name"`
	MinZoom       *int   `mapstructure:"minzoom"`
	Tags          string `mapstructure:"tags"`
	DoNotDownload bool   `mapstructure:"do_not_download"`
}

type RetryConfig struct {
	BaseSeconds int  `mapstructure:"base_seconds"`
	Immediate   bool `mapstructure:"immediate"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr        string `mapstructure:"addr"`
	SnapshotTTL int    `mapstructure:"snapshot_ttl"` // seconds
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// WarmerConfig lists the viewports the prefetch workflow walks through.
type WarmerConfig struct {
	APIURL    string         `mapstructure:"api_url"`
	Interval  int            `mapstructure:"interval"` // minutes between runs
	Viewports []WarmViewport `mapstructure:"viewports"`
}

type WarmViewport struct {
	Name   string  `mapstructure:"name"`
	Lat    float64 `mapstructure:"lat"`
	Lon    float64 `mapstructure:"lon"`
	Zoom   float64 `mapstructure:"zoom"`
	Width  int     `mapstructure:"width"`
	Height int     `mapstructure:"height"`
}

// Load reads configuration from .env, file and environment variables.
func Load(service string) (*Config, error) {
	cfg, _, err := load(service)
	return cfg, err
}

// LoadWatched is Load plus a watch on the config file. Whenever the file
// changes the layout section is re-read and passed to onLayout; a layout
// that fails to parse is passed as an error and should be ignored.
func LoadWatched(service string, onLayout func(domain.Layout, error)) (*Config, error) {
	cfg, v, err := load(service)
	if err != nil {
		return nil, err
	}
	if v.ConfigFileUsed() == "" {
		slog.Info("no config file, layout hot reload disabled")
		return cfg, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		var lc LayoutConfig
		if err := v.UnmarshalKey("layout", &lc); err != nil {
			onLayout(domain.Layout{}, fmt.Errorf("unmarshal layout: %w", err))
			return
		}
		onLayout(lc.Domain())
	})
	v.WatchConfig()
	return cfg, nil
}

func load(service string) (*Config, *viper.Viper, error) {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("overpass.url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("overpass.timeout", 180)
	v.SetDefault("layout.id", "cafes")
	v.SetDefault("layout.widen_factor", 0.05)
	v.SetDefault("layout.layers", []map[string]any{
		{"id": "cafes", "name": "Cafés", "minzoom": 12, "tags": "amenity=cafe"},
		{"id": "bakeries", "name": "Bakeries", "minzoom": 14, "tags": "shop=bakery"},
	})
	v.SetDefault("retry.base_seconds", 5)
	v.SetDefault("retry.immediate", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "mapsync")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "mapsync")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.snapshot_ttl", 3600)
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "mapsync-prefetch")
	v.SetDefault("warmer.api_url", "http://localhost:8080")
	v.SetDefault("warmer.interval", 60)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: MAPSYNC_OVERPASS_URL → overpass.url
	v.SetEnvPrefix("MAPSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	return &cfg, v, nil
}

// Domain converts the layout section into the loader's model, parsing every
// tag expression.
func (l LayoutConfig) Domain() (domain.Layout, error) {
	out := domain.Layout{ID: l.ID, WidenFactor: l.WidenFactor}
	for i, lc := range l.Layers {
		layer := domain.LayerSpec{
			ID:            lc.ID,
			Name:          lc.Name,
			MinZoom:       domain.DefaultMinZoom,
			DoNotDownload: lc.DoNotDownload,
		}
		if lc.MinZoom != nil {
			layer.MinZoom = *lc.MinZoom
		}
		if lc.Tags != "" {
			f, err := tags.Parse(lc.Tags)
			if err != nil {
				return domain.Layout{}, fmt.Errorf("layout.layers[%d] (%s): %w", i, lc.ID, err)
			}
			if !lc.DoNotDownload {
				if err := tags.Queryable(f); err != nil {
					return domain.Layout{}, fmt.Errorf("layout.layers[%d] (%s): %w", i, lc.ID, err)
				}
			}
			layer.Tags = f
		}
		out.Layers = append(out.Layers, layer)
	}
	return out, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Overpass.URL == "" {
		errs = append(errs, "overpass.url is required")
	}
	if c.Overpass.Timeout <= 0 {
		errs = append(errs, "overpass.timeout must be positive")
	}
	if c.Retry.BaseSeconds <= 0 {
		errs = append(errs, "retry.base_seconds must be positive")
	}
	if c.Layout.WidenFactor < 0 {
		errs = append(errs, fmt.Sprintf("layout.widen_factor must not be negative, got %g", c.Layout.WidenFactor))
	}
	seen := make(map[string]bool)
	for i, l := range c.Layout.Layers {
		if l.ID == "" {
			errs = append(errs, fmt.Sprintf("layout.layers[%d].id is required", i))
		} else if seen[l.ID] {
			errs = append(errs, fmt.Sprintf("layout.layers[%d].id %q is duplicated", i, l.ID))
		}
		seen[l.ID] = true
		if l.MinZoom != nil && (*l.MinZoom < 0 || *l.MinZoom > domain.MaxZoom) {
			errs = append(errs, fmt.Sprintf("layout.layers[%d].minzoom must be 0-%d, got %d", i, domain.MaxZoom, *l.MinZoom))
		}
		if l.Tags == "" && !l.DoNotDownload {
			errs = append(errs, fmt.Sprintf("layout.layers[%d].tags is required", i))
		}
	}
	if _, err := c.Layout.Domain(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
