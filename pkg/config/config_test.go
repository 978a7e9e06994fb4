package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		content   string // empty means no file
		env       string
		validate  func(*testing.T, *Config)
		checkFile func(*testing.T, string)
		wantErr   bool
	}{
		{
			name: "NewFile_Defaults",
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Search.SampleAttempts != 100 {
					t.Errorf("expected sample_attempts 100, got %d", cfg.Search.SampleAttempts)
				}
				if cfg.Search.Debounce.D() != 400*time.Millisecond {
					t.Errorf("expected debounce 400ms, got %v", cfg.Search.Debounce.D())
				}
				if cfg.Store.CascadeDelete {
					t.Error("cascade_delete should default to false")
				}
			},
			checkFile: func(t *testing.T, content string) {
				if !strings.Contains(content, "area_provider: nominatim") {
					t.Error("config file missing default area provider")
				}
				if !strings.Contains(content, "# Options: nominatim, shapefile") {
					t.Error("config file missing injected comment")
				}
			},
		},
		{
			name:    "ExistingFile_Override",
			content: "search:\n  sample_attempts: 20\n  debounce: 1s\nquiz:\n  answer_tolerance: 2km\nstore:\n  cascade_delete: true\n",
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Search.SampleAttempts != 20 {
					t.Errorf("expected 20, got %d", cfg.Search.SampleAttempts)
				}
				if cfg.Search.Debounce.D() != time.Second {
					t.Errorf("expected 1s, got %v", cfg.Search.Debounce.D())
				}
				if cfg.Quiz.AnswerTolerance.Meters() != 2000 {
					t.Errorf("expected 2000m, got %v", cfg.Quiz.AnswerTolerance)
				}
				if !cfg.Store.CascadeDelete {
					t.Error("expected cascade_delete true")
				}
				if cfg.Search.PointRadius != 0.1 {
					t.Errorf("unset values keep defaults, got point_radius %v", cfg.Search.PointRadius)
				}
				if cfg.Request.RateLimits["nominatim"] != 1 {
					t.Errorf("expected default nominatim rate limit, got %v", cfg.Request.RateLimits)
				}
			},
			checkFile: func(t *testing.T, content string) {
				if strings.Contains(content, "# GeoQuiz Configuration") {
					t.Error("existing config file must not be rewritten")
				}
			},
		},
		{
			name:    "Places_Env_Fallback",
			content: "places:\n  key: \"\"\n",
			env:     "env_secret_key",
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Places.Key != "env_secret_key" {
					t.Errorf("expected key from env, got %q", cfg.Places.Key)
				}
			},
			checkFile: func(t *testing.T, content string) {
				if strings.Contains(content, "env_secret_key") {
					t.Error("env secret must not be written to disk")
				}
			},
		},
		{
			name:    "Places_File_Wins",
			content: "places:\n  key: file_key\n",
			env:     "env_secret_key",
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Places.Key != "file_key" {
					t.Errorf("expected key from file, got %q", cfg.Places.Key)
				}
			},
		},
		{
			name:    "Invalid_Provider",
			content: "search:\n  area_provider: bing\n",
			wantErr: true,
		},
		{
			name:    "Shapefile_Without_Path",
			content: "search:\n  area_provider: shapefile\n",
			wantErr: true,
		},
		{
			name:    "Malformed_YAML",
			content: "search: [\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "configs", "geoquiz.yaml")
			t.Setenv(PlacesKeyEnv, tt.env)
			if tt.content != "" {
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					t.Fatal(err)
				}
				if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			}

			cfg, err := Load(path)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if tt.validate != nil {
				tt.validate(t, cfg)
			}
			if tt.checkFile != nil {
				content, err := os.ReadFile(path)
				if err != nil {
					t.Fatalf("failed to read config file: %v", err)
				}
				tt.checkFile(t, string(content))
			}
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geoquiz.yaml")
	cfg := DefaultConfig()
	cfg.Search.AreaProvider = ProviderShapefile
	cfg.Shapefile.Path = "data/countries.shp"
	cfg.Quiz.AnswerTolerance = Distance(1500)

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Search.AreaProvider != ProviderShapefile || loaded.Shapefile.Path != "data/countries.shp" {
		t.Errorf("unexpected search/shapefile config: %+v %+v", loaded.Search, loaded.Shapefile)
	}
	if loaded.Quiz.AnswerTolerance != 1500 {
		t.Errorf("expected 1500m, got %v", loaded.Quiz.AnswerTolerance)
	}
	if loaded.DB.CacheTTL.D() != 30*Day {
		t.Errorf("expected 30d cache ttl, got %v", loaded.DB.CacheTTL.D())
	}
}

func TestGenerateDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "geoquiz.yaml")
	if err := GenerateDefault(path); err != nil {
		t.Fatalf("GenerateDefault failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("server:\n  address: x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := GenerateDefault(path); err != nil {
		t.Fatalf("GenerateDefault failed: %v", err)
	}
	content, _ := os.ReadFile(path)
	if string(content) != "server:\n  address: x\n" {
		t.Error("GenerateDefault must not overwrite an existing file")
	}
}
