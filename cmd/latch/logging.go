package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	cli "github.com/urfave/cli/v2"
)

// Builds the process logger from the --log-level and --log-format flags.
func configLogger(cctx *cli.Context, w io.Writer) (*slog.Logger, error) {
	return newLogger(cctx.String("log-level"), cctx.String("log-format"), w)
}

func newLogger(levelName, format string, w io.Writer) (*slog.Logger, error) {
	var hopts slog.HandlerOptions
	switch strings.ToLower(levelName) {
	case "debug":
		hopts.Level = slog.LevelDebug
	case "", "info":
		hopts.Level = slog.LevelInfo
	case "warn":
		hopts.Level = slog.LevelWarn
	case "error":
		hopts.Level = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level: %#v", levelName)
	}
	hopts.AddSource = hopts.Level == slog.LevelDebug

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, &hopts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, &hopts)), nil
	default:
		return nil, fmt.Errorf("invalid log format: %#v", format)
	}
}
