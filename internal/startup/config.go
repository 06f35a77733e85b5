package startup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"gallery-index/internal/cache"
	"gallery-index/internal/logging"
)

// Remote backends
const (
	BackendGraph = "graph"
	BackendLocal = "local"
)

const defaultConfigFile = "config.yml"

// Config holds all application configuration
type Config struct {
	Port            string `yaml:"port"`
	MetricsPort     string `yaml:"metrics_port"`
	MetricsEnabled  bool   `yaml:"metrics_enabled"`
	DatabasePath    string `yaml:"database_path"`
	WebhookSecret   string `yaml:"webhook_secret"`
	VipsEnabled     bool   `yaml:"vips_enabled"`
	LogHealthChecks bool   `yaml:"log_health_checks"`

	Remote    RemoteConfig    `yaml:"remote"`
	Sync      SyncConfig      `yaml:"sync"`
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// ConfigFile is the YAML file that was read, empty when none was found.
	ConfigFile string `yaml:"-"`
}

// RemoteConfig selects and configures the remote photo store.
type RemoteConfig struct {
	Backend         string        `yaml:"backend"`
	TenantID        string        `yaml:"tenant_id"`
	ClientID        string        `yaml:"client_id"`
	ClientSecret    string        `yaml:"client_secret"`
	SiteID          string        `yaml:"site_id"`
	DriveID         string        `yaml:"drive_id"`
	GalleryFolderID string        `yaml:"gallery_folder_id"`
	LocalDir        string        `yaml:"local_dir"`
	Timeout         time.Duration `yaml:"timeout"`
}

// SyncConfig controls the background index sync.
type SyncConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Interval        time.Duration `yaml:"interval"`
	ExtractMetadata bool          `yaml:"extract_metadata"`
}

// CacheConfig holds per-kind TTLs and the janitor interval.
type CacheConfig struct {
	Galleries       time.Duration `yaml:"galleries"`
	GalleryImages   time.Duration `yaml:"gallery_images"`
	Search          time.Duration `yaml:"search"`
	Images          time.Duration `yaml:"images"`
	Metadata        time.Duration `yaml:"metadata"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	MaxEntries      int           `yaml:"max_entries"`
}

// TTLs converts the configured lifetimes into a cache policy.
func (c CacheConfig) TTLs() cache.TTLs {
	return cache.TTLs{
		Galleries:     c.Galleries,
		GalleryImages: c.GalleryImages,
		Search:        c.Search,
		Images:        c.Images,
		Metadata:      c.Metadata,
	}
}

// RateLimitConfig is the per-client request budget.
type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() Config {
	ttls := cache.DefaultTTLs()
	cacheDefaults := cache.DefaultConfig()

	return Config{
		Port:           "3001",
		MetricsPort:    "9090",
		MetricsEnabled: true,
		DatabasePath:   "./data/gallery.db",
		VipsEnabled:    true,
		Remote: RemoteConfig{
			Backend:         BackendGraph,
			GalleryFolderID: "root",
			Timeout:         30 * time.Second,
		},
		Sync: SyncConfig{
			Enabled:         true,
			Interval:        30 * time.Minute,
			ExtractMetadata: true,
		},
		Cache: CacheConfig{
			Galleries:       ttls.Galleries,
			GalleryImages:   ttls.GalleryImages,
			Search:          ttls.Search,
			Images:          ttls.Images,
			Metadata:        ttls.Metadata,
			CleanupInterval: cacheDefaults.CleanupInterval,
			MaxEntries:      cacheDefaults.MaxEntries,
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Requests: 100,
			Window:   60 * time.Second,
		},
	}
}

// LoadConfig loads configuration from the YAML file named by CONFIG_FILE
// (config.yml by default) and the environment, validates it and prepares
// the database directory.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	explicit := os.Getenv("CONFIG_FILE") != ""
	path := getEnv("CONFIG_FILE", defaultConfigFile)

	config, err := Load(path, explicit, os.Getenv)
	if err != nil {
		return nil, err
	}

	logConfig(config)

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY VALIDATION")
	logging.Info("------------------------------------------------------------")

	dbDir := filepath.Dir(config.DatabasePath)
	if err := ensureDirectory(dbDir, "database"); err != nil {
		return nil, fmt.Errorf("database directory error: %w", err)
	}
	if err := testWriteAccess(dbDir); err != nil {
		return nil, fmt.Errorf("database directory is not writable: %w", err)
	}
	logging.Info("  [OK] Database directory: %s (writable)", dbDir)

	if config.Remote.Backend == BackendLocal {
		info, err := os.Stat(config.Remote.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("gallery directory error: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("gallery path %s is not a directory", config.Remote.LocalDir)
		}
		logging.Info("  [OK] Gallery directory: %s", config.Remote.LocalDir)
	}

	return config, nil
}

// Load builds a Config from defaults, the YAML file at path and the
// environment read through getenv. A missing file is ignored unless
// required is set.
func Load(path string, required bool, getenv func(string) string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &config); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
			config.ConfigFile = path
		case errors.Is(err, os.ErrNotExist) && !required:
		default:
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	if err := applyEnv(&config, getenv); err != nil {
		return nil, err
	}

	config.Remote.Backend = strings.ToLower(strings.TrimSpace(config.Remote.Backend))
	if config.Remote.GalleryFolderID == "" {
		config.Remote.GalleryFolderID = "root"
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyEnv(c *Config, getenv func(string) string) error {
	env := envReader{getenv: getenv}

	env.str("PORT", &c.Port)
	env.str("METRICS_PORT", &c.MetricsPort)
	env.boolean("METRICS_ENABLED", &c.MetricsEnabled)
	env.str("DATABASE_PATH", &c.DatabasePath)
	env.str("WEBHOOK_SECRET", &c.WebhookSecret)
	env.boolean("VIPS_ENABLED", &c.VipsEnabled)
	env.boolean("LOG_HEALTH_CHECKS", &c.LogHealthChecks)

	env.str("REMOTE_BACKEND", &c.Remote.Backend)
	env.str("AZURE_TENANT_ID", &c.Remote.TenantID)
	env.str("AZURE_CLIENT_ID", &c.Remote.ClientID)
	env.str("AZURE_CLIENT_SECRET", &c.Remote.ClientSecret)
	env.str("SHAREPOINT_SITE_ID", &c.Remote.SiteID)
	env.str("SHAREPOINT_DRIVE_ID", &c.Remote.DriveID)
	env.str("SHAREPOINT_GALLERY_FOLDER_ID", &c.Remote.GalleryFolderID)
	env.str("LOCAL_GALLERY_DIR", &c.Remote.LocalDir)
	env.duration("REMOTE_TIMEOUT", &c.Remote.Timeout)

	env.boolean("SYNC_ENABLED", &c.Sync.Enabled)
	env.duration("SYNC_INTERVAL", &c.Sync.Interval)
	env.boolean("SYNC_EXTRACT_METADATA", &c.Sync.ExtractMetadata)

	env.duration("CACHE_TTL_GALLERIES", &c.Cache.Galleries)
	env.duration("CACHE_TTL_GALLERY_IMAGES", &c.Cache.GalleryImages)
	env.duration("CACHE_TTL_SEARCH", &c.Cache.Search)
	env.duration("CACHE_TTL_IMAGES", &c.Cache.Images)
	env.duration("CACHE_TTL_METADATA", &c.Cache.Metadata)
	env.duration("CACHE_CLEANUP_INTERVAL", &c.Cache.CleanupInterval)
	env.integer("CACHE_MAX_ENTRIES", &c.Cache.MaxEntries)

	env.boolean("RATE_LIMIT_ENABLED", &c.RateLimit.Enabled)
	env.integer("RATE_LIMIT_REQUESTS", &c.RateLimit.Requests)
	env.duration("RATE_LIMIT_WINDOW", &c.RateLimit.Window)

	return errors.Join(env.errs...)
}

// envReader overrides config fields from environment variables, collecting
// parse errors instead of stopping at the first one.
type envReader struct {
	getenv func(string) string
	errs   []error
}

func (e *envReader) lookup(key string) (string, bool) {
	v := strings.TrimSpace(e.getenv(key))
	return v, v != ""
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *envReader) boolean(key string, dst *bool) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid boolean for %s: %q", key, v))
		return
	}
	*dst = parsed
}

func (e *envReader) integer(key string, dst *int) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid integer for %s: %q", key, v))
		return
	}
	*dst = parsed
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	d, err := parseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid duration for %s: %q", key, v))
		return
	}
	*dst = d
}

// parseDuration accepts Go duration syntax ("90s", "1h30m") or a plain
// number of seconds.
func parseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// Validate checks that the configuration can start the service.
func (c *Config) Validate() error {
	var errs []error

	if err := validatePort(c.Port); err != nil {
		errs = append(errs, fmt.Errorf("port: %w", err))
	}
	if c.MetricsEnabled {
		if err := validatePort(c.MetricsPort); err != nil {
			errs = append(errs, fmt.Errorf("metrics port: %w", err))
		}
		if c.MetricsPort == c.Port {
			errs = append(errs, fmt.Errorf("metrics port must differ from port %s", c.Port))
		}
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database path is required"))
	}

	switch c.Remote.Backend {
	case BackendGraph:
		missing := missingKeys(map[string]string{
			"AZURE_TENANT_ID":     c.Remote.TenantID,
			"AZURE_CLIENT_ID":     c.Remote.ClientID,
			"AZURE_CLIENT_SECRET": c.Remote.ClientSecret,
			"SHAREPOINT_SITE_ID":  c.Remote.SiteID,
			"SHAREPOINT_DRIVE_ID": c.Remote.DriveID,
		})
		if len(missing) > 0 {
			errs = append(errs, fmt.Errorf("graph backend requires %s", strings.Join(missing, ", ")))
		}
	case BackendLocal:
		if c.Remote.LocalDir == "" {
			errs = append(errs, errors.New("local backend requires LOCAL_GALLERY_DIR"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown remote backend %q (want %s or %s)", c.Remote.Backend, BackendGraph, BackendLocal))
	}

	durations := []namedDuration{
		{"remote timeout", c.Remote.Timeout},
		{"cache galleries TTL", c.Cache.Galleries},
		{"cache gallery images TTL", c.Cache.GalleryImages},
		{"cache search TTL", c.Cache.Search},
		{"cache images TTL", c.Cache.Images},
		{"cache metadata TTL", c.Cache.Metadata},
		{"cache cleanup interval", c.Cache.CleanupInterval},
	}
	if c.Sync.Enabled {
		durations = append(durations, namedDuration{"sync interval", c.Sync.Interval})
	}
	if c.RateLimit.Enabled {
		durations = append(durations, namedDuration{"rate limit window", c.RateLimit.Window})
		if c.RateLimit.Requests <= 0 {
			errs = append(errs, fmt.Errorf("rate limit requests must be positive, got %d", c.RateLimit.Requests))
		}
	}
	for _, d := range durations {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", d.name, d.value))
		}
	}

	if c.Cache.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("cache max entries must not be negative, got %d", c.Cache.MaxEntries))
	}

	return errors.Join(errs...)
}

type namedDuration struct {
	name  string
	value time.Duration
}

func validatePort(port string) error {
	n, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("invalid port %q", port)
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("port %d out of range", n)
	}
	return nil
}

func missingKeys(values map[string]string) []string {
	var missing []string
	for key, v := range values {
		if v == "" {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return missing
}

func logConfig(c *Config) {
	if c.ConfigFile != "" {
		logging.Info("  Config file:      %s", c.ConfigFile)
	} else {
		logging.Info("  Config file:      none (environment only)")
	}
	logging.Info("  Port:             %s", c.Port)
	if c.MetricsEnabled {
		logging.Info("  Metrics port:     %s", c.MetricsPort)
	}
	logging.Info("  Metrics:          %s", enabledString(c.MetricsEnabled))
	logging.Info("  Database:         %s", c.DatabasePath)
	logging.Info("  Remote backend:   %s", c.Remote.Backend)
	switch c.Remote.Backend {
	case BackendGraph:
		logging.Info("    Site:           %s", c.Remote.SiteID)
		logging.Info("    Drive:          %s", c.Remote.DriveID)
		logging.Info("    Gallery folder: %s", c.Remote.GalleryFolderID)
		logging.Info("    Timeout:        %v", c.Remote.Timeout)
	case BackendLocal:
		logging.Info("    Directory:      %s", c.Remote.LocalDir)
	}
	logging.Info("  Sync:             %s", enabledString(c.Sync.Enabled))
	if c.Sync.Enabled {
		logging.Info("    Interval:       %v", c.Sync.Interval)
		logging.Info("    EXIF metadata:  %s", enabledString(c.Sync.ExtractMetadata))
	}
	logging.Info("  Cache TTLs:       galleries=%v images=%v search=%v bytes=%v metadata=%v",
		c.Cache.Galleries, c.Cache.GalleryImages, c.Cache.Search, c.Cache.Images, c.Cache.Metadata)
	logging.Info("  Rate limit:       %s", enabledString(c.RateLimit.Enabled))
	if c.RateLimit.Enabled {
		logging.Info("    Budget:         %d requests per %v", c.RateLimit.Requests, c.RateLimit.Window)
	}
	logging.Info("  libvips:          %s", enabledString(c.VipsEnabled))
	logging.Info("  Log level:        %s", logging.GetLevel())

	if c.WebhookSecret == "" {
		logging.Warn("  WEBHOOK_SECRET is not set, cache refresh requests will be rejected")
	}
}
