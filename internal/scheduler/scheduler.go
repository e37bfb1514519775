package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lismorewater/flowmon/internal/db"
	"github.com/lismorewater/flowmon/internal/detect"
	"github.com/lismorewater/flowmon/internal/extract"
	"github.com/lismorewater/flowmon/internal/fetch"
	"github.com/lismorewater/flowmon/internal/health"
	"github.com/lismorewater/flowmon/internal/logging"
	"github.com/lismorewater/flowmon/internal/mq"
	"github.com/lismorewater/flowmon/internal/reading"
	"github.com/lismorewater/flowmon/internal/repository"
)

// Device is one polled device as the scheduler sees it.
type Device struct {
	ID       string
	Name     string
	Location string
	Endpoint string
	WaitFor  string
	Locators map[reading.Field]extract.Locator
}

// Store is the persistence surface the scheduler drives.
type Store interface {
	RegisterDevice(ctx context.Context, d *db.Device) error
	AppendMeasurement(ctx context.Context, m *db.Measurement) error
	LatestMeasurement(ctx context.Context, deviceID string) (*db.Measurement, error)
}

// Fetcher retrieves a device's page.
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request) (fetch.Document, error)
}

// Extractor turns a fetched document into a reading.
type Extractor interface {
	Extract(deviceID string, observedAt time.Time, doc fetch.Document, locators map[reading.Field]extract.Locator) reading.Reading
}

// Options holds the scheduler's timing and storage policy knobs.
type Options struct {
	Interval       time.Duration
	FetchRetries   int
	RetryDelay     time.Duration
	ReportInterval time.Duration
	Timezone       *time.Location
	StoreAll       bool
	SkipEmpty      bool
}

// Scheduler drives the fetch, extract, detect, persist cycle for every
// device. Each device gets its own goroutine and its own change detector;
// cycles for one device never overlap because the goroutine runs them
// sequentially, deferring a cycle that would start while the previous one
// still runs.
type Scheduler struct {
	devices   []Device
	store     Store
	fetcher   Fetcher
	extractor Extractor
	events    mq.EventPublisher
	tracker   *health.Tracker
	opts      Options
	logger    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler.
func NewScheduler(
	devices []Device,
	store Store,
	fetcher Fetcher,
	extractor Extractor,
	events mq.EventPublisher,
	tracker *health.Tracker,
	opts Options,
	logger *zap.Logger,
) *Scheduler {
	if opts.Timezone == nil {
		opts.Timezone = time.UTC
	}
	return &Scheduler{
		devices:   devices,
		store:     store,
		fetcher:   fetcher,
		extractor: extractor,
		events:    events,
		tracker:   tracker,
		opts:      opts,
		logger:    logger,
	}
}

// Start registers the devices, primes each detector from the newest stored
// measurement, and launches the polling goroutines.
func (s *Scheduler) Start(ctx context.Context) error {
	if len(s.devices) == 0 {
		return errors.New("no devices configured")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	for _, dev := range s.devices {
		record := &db.Device{
			ID:       dev.ID,
			Name:     dev.Name,
			Endpoint: dev.Endpoint,
		}
		if dev.Location != "" {
			loc := dev.Location
			record.Location = &loc
		}
		if err := s.store.RegisterDevice(ctx, record); err != nil {
			cancel()
			return fmt.Errorf("failed to register device %s: %w", dev.ID, err)
		}

		s.tracker.Register(dev.ID)
		detector := detect.NewDetector(s.opts.StoreAll, s.opts.SkipEmpty)

		latest, err := s.store.LatestMeasurement(ctx, dev.ID)
		if err != nil {
			cancel()
			return fmt.Errorf("failed to load latest measurement for %s: %w", dev.ID, err)
		}
		if latest != nil {
			detector.Prime(reading.Hash(latest.Reading()))
			s.tracker.SeedStored(dev.ID, latest.ObservedAt)
		}

		s.wg.Add(1)
		go s.runDevice(runCtx, dev, detector)
	}

	s.wg.Add(1)
	go s.reportLoop(runCtx)

	s.logger.Info("scheduler started",
		zap.Int("devices", len(s.devices)),
		zap.Duration("interval", s.opts.Interval),
	)
	return nil
}

// Stop cancels the polling goroutines and waits for them to finish their
// current cycle, bounded by the caller's context.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler did not stop in time: %w", ctx.Err())
	}
}

func (s *Scheduler) runDevice(ctx context.Context, dev Device, detector *detect.Detector) {
	defer s.wg.Done()

	logger := logging.WithDevice(s.logger, dev.ID)
	logger.Info("polling started", zap.String("endpoint", dev.Endpoint))

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.runCycle(ctx, dev, detector, logger)
	for {
		select {
		case <-ctx.Done():
			logger.Info("polling stopped")
			return
		case <-ticker.C:
			s.runCycle(ctx, dev, detector, logger)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context, dev Device, detector *detect.Detector, logger *zap.Logger) {
	observedAt := time.Now().In(s.opts.Timezone).Truncate(time.Second)

	doc, err := s.fetchWithRetry(ctx, dev)
	if err != nil {
		s.recordFailure(ctx, dev, err, logger)
		return
	}

	r := s.extractor.Extract(dev.ID, observedAt, doc, dev.Locators)
	if !r.FetchOK {
		s.recordFailure(ctx, dev, errors.New("document yielded no parseable content"), logger)
		return
	}

	shouldStore, fp := detector.ShouldStore(r)
	stored := false
	if shouldStore {
		m := db.FromReading(r)
		err := s.store.AppendMeasurement(ctx, m)
		switch {
		case errors.Is(err, repository.ErrDuplicateMeasurement):
			detector.Commit(fp)
			logger.Debug("measurement already stored", zap.Time("observed_at", observedAt))
		case err != nil:
			logger.Error("failed to store measurement", zap.Error(err))
			s.recordFailure(ctx, dev, err, logger)
			return
		default:
			detector.Commit(fp)
			stored = true
			logger.Info("measurement stored",
				zap.Time("observed_at", observedAt),
				zap.String("fingerprint", fp.String()),
			)
			s.publishStored(ctx, m, fp, logger)
		}
	} else {
		logger.Debug("reading unchanged, skipping store",
			zap.String("fingerprint", fp.String()),
		)
	}

	s.tracker.RecordSuccess(dev.ID, stored)
}

func (s *Scheduler) fetchWithRetry(ctx context.Context, dev Device) (fetch.Document, error) {
	req := fetch.Request{Endpoint: dev.Endpoint, WaitFor: dev.WaitFor}

	var lastErr error
	for attempt := 1; attempt <= s.opts.FetchRetries; attempt++ {
		doc, err := s.fetcher.Fetch(ctx, req)
		if err == nil {
			return doc, nil
		}
		lastErr = err

		if attempt < s.opts.FetchRetries {
			select {
			case <-ctx.Done():
				return fetch.Document{}, ctx.Err()
			case <-time.After(s.opts.RetryDelay):
			}
		}
	}
	return fetch.Document{}, fmt.Errorf("fetch failed after %d attempts: %w", s.opts.FetchRetries, lastErr)
}

func (s *Scheduler) recordFailure(ctx context.Context, dev Device, err error, logger *zap.Logger) {
	transitioned := s.tracker.RecordFailure(dev.ID)
	status := s.tracker.Status(dev.ID)

	logger.Warn("cycle failed",
		zap.Error(err),
		zap.Int("consecutive_failures", status.ConsecutiveFailures),
	)

	if transitioned {
		logger.Error("device unhealthy",
			zap.Int("consecutive_failures", status.ConsecutiveFailures),
		)
		event := mq.DeviceUnhealthyEvent{
			DeviceID:            dev.ID,
			ConsecutiveFailures: status.ConsecutiveFailures,
			LastError:           err.Error(),
		}
		if pubErr := s.events.PublishDeviceUnhealthy(ctx, event); pubErr != nil {
			logger.Error("failed to publish unhealthy event", zap.Error(pubErr))
		}
	}
}

func (s *Scheduler) publishStored(ctx context.Context, m *db.Measurement, fp reading.Fingerprint, logger *zap.Logger) {
	event := mq.MeasurementStoredEvent{
		DeviceID:    m.DeviceID,
		ObservedAt:  m.ObservedAt.Format(time.RFC3339),
		Fingerprint: fp.String(),
		DepthMM:     m.DepthMM,
		VelocityMPS: m.VelocityMPS,
		FlowLPS:     m.FlowLPS,
	}
	if err := s.events.PublishMeasurementStored(ctx, event); err != nil {
		logger.Error("failed to publish stored event", zap.Error(err))
	}
}

func (s *Scheduler) reportLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for id, status := range s.tracker.Snapshot() {
				s.logger.Info("health report",
					zap.String("device_id", id),
					zap.String("state", string(status.State)),
					zap.Int("consecutive_failures", status.ConsecutiveFailures),
					zap.Int64("cycles_run", status.CyclesRun),
					zap.Bool("data_stale", status.DataStale),
				)
			}
		}
	}
}
