package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Area provider names accepted by search.area_provider.
const (
	ProviderNominatim = "nominatim"
	ProviderShapefile = "shapefile"
)

// PlacesKeyEnv is consulted when places.key is empty.
const PlacesKeyEnv = "GOOGLE_MAPS_API_KEY"

// Config holds the application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	DB        DBConfig        `yaml:"db"`
	Request   RequestConfig   `yaml:"request"`
	Nominatim NominatimConfig `yaml:"nominatim"`
	Places    PlacesConfig    `yaml:"places"`
	Shapefile ShapefileConfig `yaml:"shapefile"`
	Search    SearchConfig    `yaml:"search"`
	Quiz      QuizConfig      `yaml:"quiz"`
	Store     StoreConfig     `yaml:"store"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path string `yaml:"path"`
	// CacheTTL is the age after which cached provider responses are pruned.
	CacheTTL Duration `yaml:"cache_ttl"`
	// ImportDir is scanned at startup for quiz files to load into the database.
	ImportDir string `yaml:"import_dir"`
}

// RequestConfig holds outbound HTTP settings.
type RequestConfig struct {
	UserAgent string        `yaml:"user_agent"`
	Retries   int           `yaml:"retries"`
	Timeout   Duration      `yaml:"timeout"`
	Backoff   BackoffConfig `yaml:"backoff"`
	// RateLimits caps requests per second per provider.
	RateLimits map[string]float64 `yaml:"rate_limits"`
	// MemoryCache is the number of responses kept in memory in front of the database cache.
	MemoryCache int `yaml:"memory_cache"`
}

// BackoffConfig holds exponential backoff settings.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// NominatimConfig holds settings for the online area provider.
type NominatimConfig struct {
	Endpoint string `yaml:"endpoint"`
	Language string `yaml:"language"`
	Email    string `yaml:"email"`
	Limit    int    `yaml:"limit"`
}

// PlacesConfig holds settings for the autocomplete and geocoding provider.
type PlacesConfig struct {
	BaseURL  string `yaml:"base_url"`
	Key      string `yaml:"key"`
	Language string `yaml:"language"`
}

// ShapefileConfig holds settings for the offline area provider.
type ShapefileConfig struct {
	Path          string `yaml:"path"`
	NameField     string `yaml:"name_field"`
	LongNameField string `yaml:"long_name_field"`
	Limit         int    `yaml:"limit"`
}

// SearchConfig holds settings shared by the search engines.
type SearchConfig struct {
	AreaProvider       string   `yaml:"area_provider"`
	SampleAttempts     int      `yaml:"sample_attempts"`
	PointRadius        float64  `yaml:"point_radius"`
	Debounce           Duration `yaml:"debounce"`
	GeocodeConcurrency int      `yaml:"geocode_concurrency"`
}

// QuizConfig holds settings for taking quizzes.
type QuizConfig struct {
	// AnswerTolerance is how far a click may land from a Point and still count.
	AnswerTolerance Distance `yaml:"answer_tolerance"`
}

// StoreConfig holds feature store settings.
type StoreConfig struct {
	CascadeDelete bool `yaml:"cascade_delete"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address: "localhost:1921",
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
		},
		DB: DBConfig{
			Path:      "./data/geoquiz.db",
			CacheTTL:  Duration(30 * Day),
			ImportDir: "./data/quizzes",
		},
		Request: RequestConfig{
			Retries: 3,
			Timeout: Duration(30 * time.Second),
			Backoff: BackoffConfig{
				BaseDelay: Duration(1 * time.Second),
				MaxDelay:  Duration(60 * time.Second),
			},
			RateLimits: map[string]float64{
				"nominatim": 1,
			},
			MemoryCache: 500,
		},
		Nominatim: NominatimConfig{
			Endpoint: "https://nominatim.openstreetmap.org/search",
			Language: "en",
			Limit:    10,
		},
		Places: PlacesConfig{
			BaseURL:  "https://maps.googleapis.com",
			Language: "en",
		},
		Shapefile: ShapefileConfig{
			NameField: "NAME",
			Limit:     10,
		},
		Search: SearchConfig{
			AreaProvider:       ProviderNominatim,
			SampleAttempts:     100,
			PointRadius:        0.1,
			Debounce:           Duration(400 * time.Millisecond),
			GeocodeConcurrency: 4,
		},
		Quiz: QuizConfig{
			AnswerTolerance: Distance(25000),
		},
		Store: StoreConfig{
			CascadeDelete: false,
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// Values in an existing file override defaults; the file is not rewritten.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case os.IsNotExist(err):
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to save config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Secrets may live in the environment instead of the file.
	if cfg.Places.Key == "" {
		cfg.Places.Key = os.Getenv(PlacesKeyEnv)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings that would prevent startup.
func (c *Config) Validate() error {
	if !slices.Contains([]string{ProviderNominatim, ProviderShapefile}, c.Search.AreaProvider) {
		return fmt.Errorf("invalid search.area_provider %q: must be %q or %q", c.Search.AreaProvider, ProviderNominatim, ProviderShapefile)
	}
	if c.Search.AreaProvider == ProviderShapefile && c.Shapefile.Path == "" {
		return fmt.Errorf("search.area_provider is %q but shapefile.path is empty", ProviderShapefile)
	}
	if c.Search.SampleAttempts <= 0 {
		return fmt.Errorf("search.sample_attempts must be positive, got %d", c.Search.SampleAttempts)
	}
	if c.Search.PointRadius <= 0 || c.Search.PointRadius > 90 {
		return fmt.Errorf("search.point_radius must be in (0, 90], got %v", c.Search.PointRadius)
	}
	if c.Quiz.AnswerTolerance < 0 {
		return fmt.Errorf("quiz.answer_tolerance must not be negative")
	}
	return nil
}

var (
	reProvider = regexp.MustCompile(`(?m)^(\s+)area_provider:`)
	reCascade  = regexp.MustCompile(`(?m)^(\s+)cascade_delete:`)
	reKey      = regexp.MustCompile(`(?m)^(\s+)key:`)
)

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# GeoQuiz Configuration
# ---------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
#   Distance: m (meters), km (kilometers), nm (nautical miles), ft (feet)

`)
	data = append(header, data...)

	data = reProvider.ReplaceAll(data, []byte("${1}# Options: nominatim, shapefile\n${1}area_provider:"))
	data = reCascade.ReplaceAll(data, []byte("${1}# Also delete every descendant of a deleted feature\n${1}cascade_delete:"))
	data = reKey.ReplaceAll(data, []byte("${1}# Falls back to $"+PlacesKeyEnv+"\n${1}key:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return Save(path, DefaultConfig())
}
