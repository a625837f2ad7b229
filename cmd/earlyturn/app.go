package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/tcxtools/earlyturn/internal/config"
	"github.com/tcxtools/earlyturn/internal/history"
	"github.com/tcxtools/earlyturn/internal/logging"
	"github.com/tcxtools/earlyturn/internal/notice"
)

var errNoInput = errors.New("no input files given")

// flagOverrides maps command line flags onto config keys.
var flagOverrides = []struct {
	flag string
	key  string
}{
	{"lookback", "lookbackDistance"},
	{"filter", "markerFilter"},
	{"suffix", "output.suffix"},
	{"indent", "output.indent"},
	{"log-level", "logLevel"},
	{"logs-dir", "logsDir"},
	{"history", "history.enabled"},
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      AppName,
		Usage:     "insert early turn notices into TCX course files",
		Version:   fmt.Sprintf("%s (built %s)", Version, BuildDate),
		ArgsUsage: "FILE...",
		Writer:    stdout,
		ErrWriter: stderr,

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config-dir",
				Usage: "directory holding " + config.FileName,
				Value: ".",
			},
			&cli.IntFlag{
				Name:    "lookback",
				Aliases: []string{"n"},
				Usage:   "number of trackpoints to step back from each course point",
			},
			&cli.StringFlag{
				Name:  "filter",
				Usage: `only add notices for markers matching this expression, e.g. 'pointType in ["Left","Right"]'`,
			},
			&cli.StringFlag{
				Name:  "suffix",
				Usage: "appended to the input name to form the output name",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "output file (single input only)",
			},
			&cli.StringFlag{
				Name:  "indent",
				Usage: "indentation of the written file; empty keeps the input layout",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "print what would be inserted without writing anything",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:  "logs-dir",
				Usage: "directory for the session log file",
			},
			&cli.BoolFlag{
				Name:  "history",
				Usage: "record runs in the history database",
			},
		},

		Action: transformAction,
		Commands: []*cli.Command{
			planCommand(),
			historyCommand(),
		},
	}
}

// env is what every command needs once config and logging are up.
type env struct {
	out    io.Writer
	logs   *logging.SlogManager
	logger *slog.Logger

	logFile   *os.File
	manager   *history.Manager
	influx    *history.InfluxSink
	recorders history.Recorders
}

// setup loads config, applies flag overrides and starts logging. With
// withHistory the enabled recorders are opened too.
func setup(c *cli.Context, withHistory bool) (*env, error) {
	cfgErr := config.Load(c.String("config-dir"))
	for _, o := range flagOverrides {
		if c.IsSet(o.flag) {
			config.Set(o.key, c.Value(o.flag))
		}
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	e := &env{out: c.App.Writer, logs: logging.NewSlogManager()}
	level := config.GetString("logLevel")

	var warnings []string
	var file io.Writer
	if dir := config.GetString("logsDir"); dir != "" {
		f, err := logging.OpenLogFile(dir, AppName, SessionStart)
		if err != nil {
			warnings = append(warnings, err.Error())
		} else {
			e.logFile = f
			file = f
		}
	}

	var graylog io.Writer
	if config.GetBool("graylog.enabled") {
		w, err := logging.ConnectGraylog(config.GetString("graylog.address"))
		if err != nil {
			warnings = append(warnings, err.Error())
		} else {
			graylog = w
		}
	}

	e.logs.Setup(file, level, graylog)
	e.logger = e.logs.Logger()

	if cfgErr != nil {
		e.logger.Warn("Failed to load config, using defaults!", "error", cfgErr)
	} else {
		e.logger.Debug("Loaded config", "dir", c.String("config-dir"))
	}
	for _, w := range warnings {
		e.logger.Warn("Logging output unavailable", "error", w)
	}
	if e.logFile != nil {
		e.logger.Info("Logging to file", "path", e.logFile.Name())
	}

	if withHistory {
		e.openHistory(c.App.ErrWriter, level)
	}
	return e, nil
}

// openHistory opens every enabled recorder. A recorder that cannot be
// opened is logged and left out.
func (e *env) openHistory(errWriter io.Writer, level string) {
	out := errWriter
	if e.logFile != nil {
		out = io.MultiWriter(errWriter, e.logFile)
	}
	zl := logging.NewZerolog(out, level, "history")

	if hc := config.GetHistoryConfig(); hc.Enabled {
		m, err := history.Open(hc, config.GetDBConfig(), zl)
		if err != nil {
			e.logger.Warn("Failed to open run history", "error", err)
		} else {
			e.manager = m
			e.recorders = append(e.recorders, m)
		}
	}

	if ic := config.GetInfluxConfig(); ic.Enabled {
		e.influx = history.NewInfluxSink(ic, zl)
		e.recorders = append(e.recorders, e.influx)
	}
}

// synthesizer builds a Synthesizer from the effective config.
func (e *env) synthesizer(input string) (*notice.Synthesizer, error) {
	nc := config.GetNoticeConfig()
	filter, err := notice.CompileFilter(nc.MarkerFilter)
	if err != nil {
		return nil, err
	}

	var opts []notice.Option
	if filter != nil {
		opts = append(opts, notice.WithFilter(filter))
	}
	return notice.New(nc.LookbackDistance, e.logger.With("file", input), opts...)
}

func (e *env) Close() {
	if e.manager != nil {
		if err := e.manager.Close(); err != nil {
			e.logger.Warn("Failed to close run history", "error", err)
		}
	}
	if e.influx != nil {
		e.influx.Close()
	}
	if err := e.logs.Close(); err != nil {
		e.logger.Warn("Failed to close graylog writer", "error", err)
	}
	if e.logFile != nil {
		_ = e.logFile.Close()
	}
}
