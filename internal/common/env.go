package common

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dtnitsch/linkmeta/models"
	"github.com/dtnitsch/linkmeta/pkg/db"
	"github.com/urfave/cli/v2"
)

// Env is what an action needs: the loaded config, a logger and, once
// opened, the block store.
type Env struct {
	Config *models.Config
	Logger *slog.Logger
	DB     *db.DB

	closeLog func() error
}

// Setup loads the config named by --config and applies the --db and
// --assets-dir overrides.
func Setup(c *cli.Context) (*Env, error) {
	logger, closeLog := NewLogger(c)

	cfg, err := models.LoadConfig(c.String("config"))
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if v := c.String("db"); v != "" {
		cfg.DBPath = v
	}
	if v := c.String("assets-dir"); v != "" {
		cfg.AssetsDir = v
	}
	logger.Debug("config loaded", "path", c.String("config"), "rules", len(cfg.Rules))

	return &Env{Config: cfg, Logger: logger, closeLog: closeLog}, nil
}

// OpenDB opens the block store at the configured path.
func (e *Env) OpenDB() (*db.DB, error) {
	if e.DB != nil {
		return e.DB, nil
	}
	database, err := db.Open(e.Config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	e.DB = database
	return database, nil
}

func (e *Env) Close() {
	if e.DB != nil {
		if err := e.DB.Close(); err != nil {
			e.Logger.Warn("failed to close database", "error", err)
		}
	}
	_ = e.closeLog()
}

// PrintJSON writes v as indented JSON.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

// FilterProperties keeps the properties named in a comma-separated list, in
// their original order. A list naming nothing keeps everything.
func FilterProperties(props []models.Property, fieldsStr string) []models.Property {
	include := make(map[string]bool)
	for _, field := range strings.Split(fieldsStr, ",") {
		if field = strings.TrimSpace(field); field != "" {
			include[field] = true
		}
	}
	if len(include) == 0 {
		return props
	}

	filtered := make([]models.Property, 0, len(include))
	for _, p := range props {
		if include[p.Name] {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// Stdout is where actions print results; tests swap it.
var Stdout io.Writer = os.Stdout
