package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"smartbus/internal/geo"
)

type Config struct {
	NATSURL            string
	SurfacePrefix      string
	LogSurfaceSubjects bool

	DatabaseURL   string // optional; static sources are used when empty
	SessionDBPath string
	MetricsAddr   string

	DirectionsURL    string
	DirectionsAPIKey string
	Origin           geo.Coordinate
	Destination      geo.Coordinate

	TrackInterval        time.Duration
	BusInterval          time.Duration
	LocationInterval     time.Duration
	LocationMinDistanceM float64
	LocationGranted      bool

	CarouselCount      int
	CarouselInterval   time.Duration
	CarouselResetDelay time.Duration
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.NATSURL = getenvDefault("NATS_URL", "nats://127.0.0.1:4222")
	cfg.SurfacePrefix = getenvDefault("SURFACE_SUBJECT_PREFIX", "smartbus.surface")
	cfg.LogSurfaceSubjects = boolEnv("LOG_SURFACE_SUBJECTS")

	// Database URL: prefer DATABASE_URL / PG_DSN, else build from PG* vars.
	// Left empty, the service falls back to built-in promo items and fleet.
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn == "" && os.Getenv("PGDATABASE") != "" {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		db := os.Getenv("PGDATABASE")
		sslmode := getenvDefault("PGSSLMODE", "disable")
		if pass != "" {
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
		} else {
			dsn = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
		}
	}
	cfg.DatabaseURL = dsn

	cfg.SessionDBPath = getenvDefault("SESSION_DB_PATH", "session.db")
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	cfg.DirectionsURL = getenvDefault("DIRECTIONS_URL", "https://maps.googleapis.com")
	cfg.DirectionsAPIKey = os.Getenv("DIRECTIONS_API_KEY")

	var err error
	// Wadala Church -> Mumbai Central by default
	if cfg.Origin, err = coordEnv("ORIGIN", geo.Coordinate{Lat: 19.0176147, Lng: 72.8561644}); err != nil {
		return nil, err
	}
	if cfg.Destination, err = coordEnv("DESTINATION", geo.Coordinate{Lat: 18.9637, Lng: 72.8258}); err != nil {
		return nil, err
	}

	if cfg.TrackInterval, err = msEnv("TRACK_INTERVAL_MS", 2500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.BusInterval, err = msEnv("BUS_BROADCAST_INTERVAL_MS", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.LocationInterval, err = msEnv("LOCATION_INTERVAL_MS", 3*time.Second); err != nil {
		return nil, err
	}

	cfg.LocationMinDistanceM = 1.0
	if v := os.Getenv("LOCATION_MIN_DISTANCE_M"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return nil, fmt.Errorf("invalid LOCATION_MIN_DISTANCE_M: %q", v)
		}
		cfg.LocationMinDistanceM = f
	}

	// LOCATION_PERMISSION=denied simulates a user refusing the prompt
	cfg.LocationGranted = !strings.EqualFold(strings.TrimSpace(os.Getenv("LOCATION_PERMISSION")), "denied")

	cfg.CarouselCount = 5
	if v := os.Getenv("CAROUSEL_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid CAROUSEL_COUNT: %q", v)
		}
		cfg.CarouselCount = n
	}
	if cfg.CarouselInterval, err = msEnv("CAROUSEL_INTERVAL_MS", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.CarouselResetDelay, err = msEnv("CAROUSEL_RESET_DELAY_MS", 600*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.CarouselResetDelay >= cfg.CarouselInterval {
		return nil, fmt.Errorf("CAROUSEL_RESET_DELAY_MS (%s) must be below CAROUSEL_INTERVAL_MS (%s)",
			cfg.CarouselResetDelay, cfg.CarouselInterval)
	}

	return cfg, nil
}

func msEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func coordEnv(key string, def geo.Coordinate) (geo.Coordinate, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	c, err := geo.ParseCoord(v)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("invalid %s: %v", key, err)
	}
	if !c.Valid() {
		return geo.Coordinate{}, fmt.Errorf("invalid %s: out of range", key)
	}
	return c, nil
}

func boolEnv(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	}
	return false
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
