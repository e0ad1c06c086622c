// Package config loads the optional pysem.toml of a project.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/gobwas/glob"
)

// FileName is the config file looked up at the project root.
const FileName = "pysem.toml"

// Config is the decoded pysem.toml.
type Config struct {
	Project Project `toml:"project"`
	Dynamic Dynamic `toml:"dynamic"`
	Log     Log     `toml:"log"`
}

// Project configures module resolution and project-wide scans.
type Project struct {
	SourceRoots []string `toml:"source_roots"`
	PythonPath  []string `toml:"python_path"`
	Ignore      []string `toml:"ignore"`
}

// Dynamic configures traced runs.
type Dynamic struct {
	Python   string `toml:"python"`
	Database string `toml:"database"`
}

// Log configures the CLI's log handler.
type Log struct {
	Level string `toml:"level"`
}

// Default returns the configuration used when a project has no pysem.toml.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load decodes the file at path. Unknown keys are an error so typos do not
// pass silently.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(string(data))
}

// LoadProject loads FileName from the project root, or returns Default when
// there is none.
func LoadProject(root string) (*Config, error) {
	cfg, err := Load(filepath.Join(root, FileName))
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Parse decodes a pysem.toml document, applies defaults and validates it.
func Parse(data string) (*Config, error) {
	var cfg Config
	md, err := toml.Decode(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config: unknown key %q", undecoded[0].String())
	}

	applyDefaults(&cfg)

	if err := validateProject(&cfg); err != nil {
		return nil, err
	}
	if err := validateLog(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if len(cfg.Project.SourceRoots) == 0 {
		cfg.Project.SourceRoots = []string{"."}
	}
	if strings.TrimSpace(cfg.Dynamic.Python) == "" {
		cfg.Dynamic.Python = "python3"
	}
	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = "info"
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
}

func validateProject(cfg *Config) error {
	for i, root := range cfg.Project.SourceRoots {
		if strings.TrimSpace(root) == "" {
			return fmt.Errorf("config: project.source_roots[%d] must not be empty", i)
		}
		if filepath.IsAbs(root) {
			return fmt.Errorf("config: project.source_roots[%d] must be project-relative, got %q", i, root)
		}
	}
	for i, p := range cfg.Project.PythonPath {
		if !filepath.IsAbs(p) {
			return fmt.Errorf("config: project.python_path[%d] must be absolute, got %q", i, p)
		}
	}
	for i, pattern := range cfg.Project.Ignore {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			return fmt.Errorf("config: project.ignore[%d]: %w", i, err)
		}
	}
	return nil
}

func validateLog(cfg *Config) error {
	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	return nil
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown level %q", s)
	}
	return level, nil
}

// SourceRoots returns the source roots resolved against the project root.
func (c *Config) SourceRoots(root string) []string {
	roots := make([]string, len(c.Project.SourceRoots))
	for i, r := range c.Project.SourceRoots {
		roots[i] = filepath.Join(root, filepath.FromSlash(r))
	}
	return roots
}

// DatabasePath returns the call-record database path resolved against the
// project root, or ":memory:" when none is configured.
func (c *Config) DatabasePath(root string) string {
	db := strings.TrimSpace(c.Dynamic.Database)
	switch {
	case db == "" || db == ":memory:":
		return ":memory:"
	case filepath.IsAbs(db):
		return db
	default:
		return filepath.Join(root, filepath.FromSlash(db))
	}
}
