package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Fetch error policies.
const (
	PolicyDegrade = "degrade"
	PolicyStrict  = "strict"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	// StaticDir is the absolute path to the directory served at /static/.
	// Set via STATIC_DIR (relative paths are resolved against the process working directory at startup).
	StaticDir          string
	CORSAllowedOrigins []string

	DBDriver        string
	DBDSN           string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogQueries      bool

	APIBaseURL       string
	APITimeout       time.Duration
	FetchErrorPolicy string
	DisplayLocation  *time.Location
	SnapshotInterval time.Duration

	Map     MapConfig
	Targets TargetConfig

	MQTTBroker     string
	MQTTPort       int
	MQTTClientID   string
	MQTTAlarmTopic string
}

type MapConfig struct {
	CenterLat   float64
	CenterLng   float64
	Zoom        int
	MarkerLat   float64
	MarkerLng   float64
	TileURL     string
	MaxZoom     int
	Attribution string
}

// TargetConfig holds the DOM element ids the page hands to the chart and map libraries.
type TargetConfig struct {
	FillChart     string
	VisitorsChart string
	DemoChart     string
	Map           string
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(envOr("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	staticDir := envOr("STATIC_DIR", "static")
	staticDir, err = filepath.Abs(staticDir)
	if err != nil {
		return Config{}, fmt.Errorf("STATIC_DIR %q: %w", staticDir, err)
	}

	cfg := Config{
		AppEnv:             appEnv,
		LogLevel:           level,
		HTTPAddr:           envOr("HTTP_ADDR", ":8080"),
		StaticDir:          staticDir,
		CORSAllowedOrigins: splitList(envOr("CORS_ALLOWED_ORIGINS", "*")),
		DBDriver:           envOr("DB_DRIVER", "sqlite3"),
		DBDSN:              strings.TrimSpace(os.Getenv("DB_DSN")),
		SQLitePath:         envOr("SQLITE_PATH", "../dev/sqlite/app.db"),
		APIBaseURL:         strings.TrimRight(envOr("API_BASE_URL", "http://localhost:3000/api"), "/"),
		FetchErrorPolicy:   strings.ToLower(envOr("FETCH_ERROR_POLICY", PolicyDegrade)),
		MQTTBroker:         strings.TrimSpace(os.Getenv("MQTT_BROKER")),
		MQTTClientID:       envOr("MQTT_CLIENT_ID", "bindash-server"),
		MQTTAlarmTopic:     envOr("MQTT_ALARM_TOPIC", "bins/alarms"),
		Map: MapConfig{
			TileURL:     envOr("MAP_TILE_URL", "https://tile.openstreetmap.org/{z}/{x}/{y}.png"),
			Attribution: envOr("MAP_ATTRIBUTION", `&copy; <a href="http://www.openstreetmap.org/copyright">OpenStreetMap</a>`),
		},
		Targets: TargetConfig{
			FillChart:     envOr("TARGET_FILL_CHART", "myChart"),
			VisitorsChart: envOr("TARGET_VISITORS_CHART", "canvas"),
			DemoChart:     envOr("TARGET_DEMO_CHART", "myDiv"),
			Map:           envOr("TARGET_MAP", "map"),
		},
	}

	switch cfg.DBDriver {
	case "sqlite3", "postgres":
	default:
		return Config{}, fmt.Errorf("invalid DB_DRIVER %q (allowed: sqlite3, postgres)", cfg.DBDriver)
	}
	if cfg.DBDriver == "postgres" && cfg.DBDSN == "" {
		return Config{}, fmt.Errorf("DB_DSN is required when DB_DRIVER=postgres")
	}

	switch cfg.FetchErrorPolicy {
	case PolicyDegrade, PolicyStrict:
	default:
		return Config{}, fmt.Errorf("invalid FETCH_ERROR_POLICY %q (allowed: degrade, strict)", cfg.FetchErrorPolicy)
	}

	u, err := url.Parse(cfg.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Config{}, fmt.Errorf("invalid API_BASE_URL %q (expected absolute URL)", cfg.APIBaseURL)
	}

	if cfg.MaxOpenConns, err = envInt("DB_MAX_OPEN_CONNS", 1); err != nil {
		return Config{}, err
	}
	if cfg.MaxIdleConns, err = envInt("DB_MAX_IDLE_CONNS", 1); err != nil {
		return Config{}, err
	}
	if cfg.ConnMaxLifetime, err = envDuration("DB_CONN_MAX_LIFETIME", 0); err != nil {
		return Config{}, err
	}
	if cfg.LogQueries, err = envBool("DB_LOG_QUERIES", false); err != nil {
		return Config{}, err
	}

	if cfg.APITimeout, err = envDuration("API_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.APITimeout <= 0 {
		return Config{}, fmt.Errorf("API_TIMEOUT must be positive, got %v", cfg.APITimeout)
	}
	if cfg.SnapshotInterval, err = envDuration("SNAPSHOT_INTERVAL", 0); err != nil {
		return Config{}, err
	}
	if cfg.SnapshotInterval < 0 {
		return Config{}, fmt.Errorf("SNAPSHOT_INTERVAL must not be negative, got %v", cfg.SnapshotInterval)
	}

	tz := envOr("DISPLAY_TZ", "Local")
	cfg.DisplayLocation, err = time.LoadLocation(tz)
	if err != nil {
		return Config{}, fmt.Errorf("invalid DISPLAY_TZ %q: %w", tz, err)
	}

	if cfg.MQTTPort, err = envInt("MQTT_PORT", 1883); err != nil {
		return Config{}, err
	}

	if cfg.Map.CenterLat, err = envFloat("MAP_CENTER_LAT", -37.8026719); err != nil {
		return Config{}, err
	}
	if cfg.Map.CenterLng, err = envFloat("MAP_CENTER_LNG", 144.9654493); err != nil {
		return Config{}, err
	}
	if cfg.Map.Zoom, err = envInt("MAP_ZOOM", 17); err != nil {
		return Config{}, err
	}
	if cfg.Map.MaxZoom, err = envInt("MAP_MAX_ZOOM", 19); err != nil {
		return Config{}, err
	}
	if cfg.Map.MarkerLat, err = envFloat("MAP_MARKER_LAT", -37.80249865799543); err != nil {
		return Config{}, err
	}
	if cfg.Map.MarkerLng, err = envFloat("MAP_MARKER_LNG", 144.9661350929003); err != nil {
		return Config{}, err
	}
	if cfg.Map.Zoom < 0 || cfg.Map.Zoom > cfg.Map.MaxZoom {
		return Config{}, fmt.Errorf("MAP_ZOOM %d out of range (0-%d)", cfg.Map.Zoom, cfg.Map.MaxZoom)
	}

	return cfg, nil
}

// MQTTEnabled reports whether an alarms broker is configured.
func (c Config) MQTTEnabled() bool {
	return c.MQTTBroker != ""
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return f, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return d, nil
}

func envBool(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
