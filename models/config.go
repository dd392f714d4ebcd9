// Package models defines the data structures shared by the extraction pipeline.
package models

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata" // timezone names resolve without system zoneinfo

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDBName        = "linkmeta.db"
	DefaultAssetsDir     = "linkmeta-assets"
	DefaultTitleFormat   = "《%s》"
	DefaultScriptTimeout = 5 * time.Second
	DefaultUserAgent     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

//go:embed default_rules.yaml
var defaultRulesYAML []byte

// Config is the runtime configuration, built once at startup and passed to
// every pipeline invocation.
type Config struct {
	DBPath              string        `yaml:"db_path"`
	AssetsDir           string        `yaml:"assets_dir"`
	CacheDir            string        `yaml:"cache_dir"`
	CacheTTL            time.Duration `yaml:"cache_ttl"`
	FetchTimeout        time.Duration `yaml:"fetch_timeout"`
	MaxAssetBytes       int64         `yaml:"max_asset_bytes"`
	ScriptTimeout       time.Duration `yaml:"script_timeout"`
	UserAgent           string        `yaml:"user_agent"`
	TitleFormat         string        `yaml:"title_format"`
	// Timezone names the IANA zone for dates without an offset; UTC when empty.
	Timezone            string        `yaml:"timezone"`
	IncludeDefaultRules bool          `yaml:"include_default_rules"`
	Rules               []Rule        `yaml:"rules"`
	RuleFiles           []string      `yaml:"rule_files"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		DBPath:        DefaultDBName,
		AssetsDir:     DefaultAssetsDir,
		ScriptTimeout: DefaultScriptTimeout,
		UserAgent:     DefaultUserAgent,
		TitleFormat:   DefaultTitleFormat,
	}
}

// DefaultRules returns the built-in rule set: Douban Book first, then the
// generic catch-all.
func DefaultRules() ([]Rule, error) {
	var rules []Rule
	if err := yaml.Unmarshal(defaultRulesYAML, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse built-in rules: %w", err)
	}
	return rules, nil
}

// LoadConfig reads a YAML configuration file. A missing file yields the
// defaults. Rule files named by rule_files are resolved relative to the
// config file and appended after inline rules, in glob order.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	baseDir := "."

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
			baseDir = filepath.Dir(path)
		}
	}

	for _, pattern := range cfg.RuleFiles {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(baseDir, pattern)
		}
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid rule_files pattern %q: %w", pattern, err)
		}
		for _, match := range matches {
			rules, err := LoadRules(match)
			if err != nil {
				return nil, err
			}
			cfg.Rules = append(cfg.Rules, rules...)
		}
	}

	if len(cfg.Rules) == 0 || cfg.IncludeDefaultRules {
		defaults, err := DefaultRules()
		if err != nil {
			return nil, err
		}
		cfg.Rules = append(cfg.Rules, defaults...)
	}

	applyDefaults(cfg)
	return cfg, nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// LoadRules reads a rule array from a YAML or JSON file.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}
	var rules []Rule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse rule file %s: %w", path, err)
	}
	return rules, nil
}

func applyDefaults(cfg *Config) {
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBName
	}
	if cfg.AssetsDir == "" {
		cfg.AssetsDir = DefaultAssetsDir
	}
	if cfg.ScriptTimeout <= 0 {
		cfg.ScriptTimeout = DefaultScriptTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.TitleFormat == "" {
		cfg.TitleFormat = DefaultTitleFormat
	}
}
