package common

import (
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the JSON logger every action uses. --quiet raises the
// level to error; --log-file also writes to a size-rotated file. The
// returned close func flushes the file and is safe to call when no file was
// opened.
func NewLogger(c *cli.Context) (*slog.Logger, func() error) {
	logLevel := slog.LevelInfo
	if c.Bool("quiet") {
		logLevel = slog.LevelError
	}
	if c.Bool("verbose") {
		logLevel = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	closer := func() error { return nil }
	if path := c.String("log-file"); path != "" {
		rotated := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		w = io.MultiWriter(os.Stderr, rotated)
		closer = rotated.Close
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel})), closer
}
