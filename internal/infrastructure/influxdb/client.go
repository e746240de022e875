package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/lightmanager/lightmanager/internal/infrastructure/config"
)

// Write policy for a light manager.
//
// Channel changes arrive at human speed (a few per minute), so batches stay
// small and are flushed quickly to keep dashboards current. A controller
// that loses its server must not grow without bound, so the retry buffer
// is capped and old points are discarded first.
const (
	defaultBatchSize     = 20
	defaultFlushInterval = 2 // seconds

	retryBufferLimit = 1000 // points
	maxRetries       = 3
	retryInterval    = 5 * time.Second
	requestTimeout   = 10 * time.Second

	pingTimeout = 5 * time.Second

	// DeviceTag is added to every point written through a Sink.
	DeviceTag = "device"
)

// Sink is the telemetry writer for one controller. Every point it writes is
// tagged with the controller's device ID.
//
// Writes never block the caller; points are queued and sent in the
// background. All methods are safe for concurrent use, and a nil *Sink
// silently discards writes.
type Sink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	deviceID string

	closed  atomic.Bool
	mu      sync.Mutex
	onError func(err error)
	failed  atomic.Uint64
}

// writeOptions builds the client options for cfg and deviceID.
func writeOptions(cfg config.InfluxDBConfig, deviceID string) *influxdb2.Options {
	batch := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize) // #nosec G115 -- checked positive
	}
	flush := uint(defaultFlushInterval)
	if cfg.FlushInterval > 0 {
		flush = uint(cfg.FlushInterval) // #nosec G115 -- checked positive
	}

	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(flush * uint(time.Second/time.Millisecond)).
		SetRetryBufferLimit(retryBufferLimit).
		SetMaxRetries(maxRetries).
		SetRetryInterval(uint(retryInterval / time.Millisecond)).
		SetHTTPRequestTimeout(uint(requestTimeout / time.Second)).
		SetPrecision(time.Millisecond).
		AddDefaultTag(DeviceTag, deviceID)
}

// Connect opens a telemetry sink for deviceID.
//
// The server must answer a ping within ctx before the sink is returned;
// telemetry that is configured but unreachable at startup is a
// configuration error, not something to retry silently.
//
// Parameters:
//   - ctx: Bounds the startup ping
//   - cfg: influxdb section of config.yaml
//   - deviceID: Value of the device tag on every point
//
// Returns:
//   - *Sink: Ready for writes
//   - error: ErrDisabled, ErrNoDevice or ErrUnreachable
func Connect(ctx context.Context, cfg config.InfluxDBConfig, deviceID string) (*Sink, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if deviceID == "" {
		return nil, ErrNoDevice
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg, deviceID))

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(pingCtx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreachable, cfg.URL, err)
	}

	s := &Sink{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		deviceID: deviceID,
	}
	go s.forwardErrors(s.writeAPI.Errors())
	return s, nil
}

func ping(ctx context.Context, client influxdb2.Client) error {
	ok, err := client.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errServerUnhealthy
	}
	return nil
}

// forwardErrors drains the background writer's error channel until the
// client is closed.
func (s *Sink) forwardErrors(errs <-chan error) {
	for err := range errs {
		s.failed.Add(1)

		s.mu.Lock()
		cb := s.onError
		s.mu.Unlock()
		if cb != nil {
			cb(&WriteError{Err: err})
		}
	}
}

// SetOnError registers cb for background write failures. cb receives a
// *WriteError and runs on the sink's error goroutine.
func (s *Sink) SetOnError(cb func(err error)) {
	s.mu.Lock()
	s.onError = cb
	s.mu.Unlock()
}

// DeviceID returns the value of the device tag.
func (s *Sink) DeviceID() string {
	if s == nil {
		return ""
	}
	return s.deviceID
}

// FailedWrites returns how many background batch writes have failed.
func (s *Sink) FailedWrites() uint64 {
	if s == nil {
		return 0
	}
	return s.failed.Load()
}

// Open reports whether the sink still accepts writes.
func (s *Sink) Open() bool {
	return s != nil && !s.closed.Load()
}

// HealthCheck pings the server. It satisfies api.HealthChecker.
func (s *Sink) HealthCheck(ctx context.Context) error {
	if !s.Open() {
		return ErrClosed
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(pingCtx, s.client); err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	return nil
}

// Flush sends queued points now. No-op once closed.
func (s *Sink) Flush() {
	if s.Open() {
		s.writeAPI.Flush()
	}
}

// Close flushes queued points and releases the client. Safe to call more
// than once and on a nil sink.
func (s *Sink) Close() error {
	if s == nil || !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.writeAPI.Flush()
	s.client.Close()
	return nil
}
