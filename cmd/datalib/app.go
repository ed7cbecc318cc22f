package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/DHI/gwc-datalib/internal/server"
	"github.com/DHI/gwc-datalib/pkg/config"
	"github.com/DHI/gwc-datalib/pkg/datalib"
)

// app holds the global flags and the wiring shared by all commands.
type app struct {
	configPath string
	logLevel   string

	out    io.Writer
	errOut io.Writer

	// newClient builds the library client once the configuration is loaded.
	newClient func(cfg *config.Config) (*datalib.Client, error)
}

func newApp(out, errOut io.Writer) *app {
	return &app{
		out:    out,
		errOut: errOut,
		newClient: func(cfg *config.Config) (*datalib.Client, error) {
			return datalib.New(cfg, datalib.WithUserAgent("gwc-datalib/"+server.Version))
		},
	}
}

// client loads the configuration, installs the logger and builds the client.
func (a *app) client() (*datalib.Client, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if a.logLevel != "" {
		level = a.logLevel
	}
	logger, err := newLogger(a.errOut, level)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	return a.newClient(cfg)
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("%w: invalid log level %q", config.ErrConfiguration, level)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// printJSON writes v as indented JSON.
func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
