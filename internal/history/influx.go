package history

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_http "github.com/influxdata/influxdb-client-go/v2/api/http"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/tcxtools/earlyturn/internal/config"
)

// Measurement is the InfluxDB measurement written per run.
const Measurement = "earlyturn_run"

// InfluxSink writes one point per run to InfluxDB.
type InfluxSink struct {
	Client     influxdb2.Client
	Writer     influxdb2_api.WriteAPIBlocking
	BackupPath string
	Logger     zerolog.Logger

	// Retries is the number of extra attempts after a server error.
	// Client errors (4xx) are not retried.
	Retries       uint64
	RetryInterval time.Duration
}

// NewInfluxSink creates a sink for cfg's org and bucket. No connection is made
// until the first Record.
func NewInfluxSink(cfg config.InfluxConfig, log zerolog.Logger) *InfluxSink {
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, influxdb2.DefaultOptions())
	return &InfluxSink{
		Client:     client,
		Writer:     client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		BackupPath: cfg.BackupPath,
		Logger:     log,

		Retries:       uint64(max(cfg.Retries, 0)),
		RetryInterval: 500 * time.Millisecond,
	}
}

// RunPoint builds the point recorded for run.
func RunPoint(run *Run) *influxdb2_write.Point {
	ts := run.FinishedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	return influxdb2.NewPoint(Measurement,
		map[string]string{
			"input":   filepath.Base(run.InputPath),
			"dry_run": strconv.FormatBool(run.DryRun),
		},
		map[string]interface{}{
			"lookback":     run.Lookback,
			"samples":      run.Samples,
			"markers":      run.Markers,
			"inserted":     run.Inserted,
			"no_match":     run.NoMatch,
			"out_of_range": run.OutOfRange,
			"filtered":     run.Filtered,
			"duration_ms":  run.FinishedAt.Sub(run.StartedAt).Milliseconds(),
		},
		ts,
	)
}

// Record writes run's point. When the write fails and a backup path is set,
// the point is appended there as gzipped line protocol instead.
func (s *InfluxSink) Record(ctx context.Context, run *Run) error {
	point := RunPoint(run)

	err := s.write(ctx, point)
	if err == nil {
		s.Logger.Debug().Str("measurement", Measurement).Msg("Run point written")
		return nil
	}
	if s.BackupPath == "" {
		return fmt.Errorf("error sending data to InfluxDB: %w", err)
	}

	s.Logger.Warn().Err(err).Str("backupPath", s.BackupPath).
		Msg("InfluxDB write failed, writing to backup file")
	if berr := s.backup(point); berr != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", berr)
	}
	return nil
}

func (s *InfluxSink) write(ctx context.Context, point *influxdb2_write.Point) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.RetryInterval

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := s.Writer.WritePoint(ctx, point)
		if err == nil {
			return nil
		}

		var herr *influxdb2_http.Error
		if errors.As(err, &herr) && herr.StatusCode > 0 && herr.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		s.Logger.Debug().Err(err).Int("attempt", attempt).Msg("InfluxDB write failed")
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, s.Retries), ctx))
}

func (s *InfluxSink) backup(point *influxdb2_write.Point) error {
	file, err := os.OpenFile(s.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}

	// Each call appends a complete gzip member; readers see one stream.
	gz := gzip.NewWriter(file)
	lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if !strings.HasSuffix(lineProtocol, "\n") {
		lineProtocol += "\n"
	}
	if _, err := gz.Write([]byte(lineProtocol)); err != nil {
		file.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Close releases the client.
func (s *InfluxSink) Close() {
	s.Client.Close()
}
