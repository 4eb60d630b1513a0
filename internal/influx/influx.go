// Package influx journals records to InfluxDB as points, falling back to a
// gzipped line protocol file when the server cannot be reached.
package influx

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/OCAP2/tickbridge/internal/config"
	"github.com/OCAP2/tickbridge/pkg/core"
)

// Measurement is the measurement name of journal points.
const Measurement = "journal"

// Backend writes records through a non-blocking InfluxDB WriteAPI.
type Backend struct {
	cfg        config.InfluxConfig
	backupPath string
	logger     zerolog.Logger

	client       influxdb2.Client
	writer       influxdb2_api.WriteAPI
	backupFile   *os.File
	backupWriter *gzip.Writer
	errDone      chan struct{}

	mu      sync.Mutex
	isValid bool
}

// New creates an InfluxDB backend. backupPath is used when the server does
// not answer on Init; an empty backupPath makes that an error.
func New(cfg config.InfluxConfig, backupPath string, log zerolog.Logger) *Backend {
	return &Backend{cfg: cfg, backupPath: backupPath, logger: log}
}

// Init connects to InfluxDB, making sure the organization and bucket exist.
func (b *Backend) Init() error {
	b.client = influxdb2.NewClientWithOptions(
		b.cfg.URL(),
		b.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	running, err := b.client.Ping(ctx)
	if err != nil || !running {
		b.client.Close()
		b.client = nil
		return b.openBackup(err)
	}

	if err := b.setupOrganizationAndBucket(ctx); err != nil {
		b.client.Close()
		b.client = nil
		return err
	}

	b.writer = b.client.WriteAPI(b.cfg.Org, b.cfg.Bucket)
	b.errDone = make(chan struct{})
	go func(errorsCh <-chan error) {
		defer close(b.errDone)
		for writeErr := range errorsCh {
			b.logger.Error().Err(writeErr).Str("bucket", b.cfg.Bucket).Msg("Error sending data to InfluxDB")
		}
	}(b.writer.Errors())

	b.isValid = true
	b.logger.Info().Str("url", b.cfg.URL()).Msg("InfluxDB client initialized")
	return nil
}

func (b *Backend) openBackup(cause error) error {
	if b.backupPath == "" {
		if cause == nil {
			cause = errors.New("server not ready")
		}
		return fmt.Errorf("failed to reach InfluxDB at %s: %w", b.cfg.URL(), cause)
	}

	b.logger.Warn().Err(cause).Str("backupPath", b.backupPath).
		Msg("Failed to initialize InfluxDB client, writing to backup file")

	file, err := os.OpenFile(b.backupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	b.backupFile = file
	b.backupWriter = gzip.NewWriter(file)
	return nil
}

func (b *Backend) setupOrganizationAndBucket(ctx context.Context) error {
	orgs := b.client.OrganizationsAPI()
	org, err := orgs.FindOrganizationByName(ctx, b.cfg.Org)
	if err != nil {
		b.logger.Info().Str("org", b.cfg.Org).Msg("Organization not found, creating")
		org, err = orgs.CreateOrganizationWithName(ctx, b.cfg.Org)
		if err != nil {
			return fmt.Errorf("error creating organization %s: %w", b.cfg.Org, err)
		}
	}

	buckets := b.client.BucketsAPI()
	if _, err := buckets.FindBucketByName(ctx, b.cfg.Bucket); err == nil {
		return nil
	}

	b.logger.Info().Str("bucket", b.cfg.Bucket).Msg("Bucket not found, creating")
	rule := domain.RetentionRuleTypeExpire
	_, err = buckets.CreateBucketWithName(ctx, org, b.cfg.Bucket, domain.RetentionRule{
		Type:         &rule,
		EverySeconds: 60 * 60 * 24 * 90, // 90 days
	})
	if err != nil {
		return fmt.Errorf("error creating bucket %s: %w", b.cfg.Bucket, err)
	}
	return nil
}

// PointFromRecord builds a journal point. The record kind is a tag; the tick,
// id and raw payload are fields, plus one "payload_<key>" field for every
// scalar at the top level of a JSON object payload.
func PointFromRecord(r *core.Record) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement(Measurement).
		AddTag("kind", r.Kind).
		AddField("id", r.ID.String()).
		AddField("tick", r.Tick).
		AddField("payload", string(r.Payload)).
		SetTime(r.ReceivedAt)

	var fields map[string]any
	if err := json.Unmarshal(r.Payload, &fields); err != nil {
		return p
	}
	for k, v := range fields {
		switch v.(type) {
		case string, float64, bool:
			p.AddField("payload_"+k, v)
		}
	}
	return p
}

// Append writes one point. It never blocks on the network.
func (b *Backend) Append(r *core.Record) error {
	point := PointFromRecord(r)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isValid {
		b.writer.WritePoint(point)
		return nil
	}
	if b.backupWriter == nil {
		return errors.New("influxDB client not initialized and backup writer not available")
	}

	line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := b.backupWriter.Write([]byte(line)); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// Flush pushes buffered points to the server or the backup file.
func (b *Backend) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isValid {
		b.writer.Flush()
		return nil
	}
	if b.backupWriter != nil {
		return b.backupWriter.Flush()
	}
	return nil
}

// Close flushes and releases the client or the backup file.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isValid {
		b.isValid = false
		b.writer.Flush()
		b.client.Close()
		<-b.errDone
		return nil
	}

	if b.backupWriter == nil {
		return nil
	}
	var errs []error
	if err := b.backupWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("error closing backup writer: %w", err))
	}
	if err := b.backupFile.Close(); err != nil {
		errs = append(errs, fmt.Errorf("error closing backup file: %w", err))
	}
	b.backupWriter = nil
	b.backupFile = nil
	return errors.Join(errs...)
}
