package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	http_middleware "github.com/benmeehan/meterctl/internal/middlewares/http"
	"github.com/benmeehan/meterctl/internal/models"
	"github.com/benmeehan/meterctl/internal/utils"
)

// MeasurementFetcher loads the measurements of one smart meter.
type MeasurementFetcher interface {
	Measurements(ctx context.Context, smartMeterID string, from, to time.Time) (*models.MeasurementSeries, error)
}

// MeasurementLine is one line of poller output.
type MeasurementLine struct {
	SmartMeterID string              `json:"smartMeterId"`
	PolledAt     time.Time           `json:"polledAt"`
	Latest       *models.Measurement `json:"latest,omitempty"`
	Count        int                 `json:"count"`
	Error        string              `json:"error,omitempty"`
}

// MeasurementPollerService periodically fetches the latest measurements of a
// set of smart meters and writes one JSON line per meter.
type MeasurementPollerService struct {
	Fetcher  MeasurementFetcher
	MeterIDs []string
	Interval time.Duration
	Lookback time.Duration
	Workers  int
	Out      io.Writer
	Logger   zerolog.Logger

	// now is replaced in tests.
	now func() time.Time

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}
	outMu  sync.Mutex
}

// NewMeasurementPollerService initializes a new MeasurementPollerService.
func NewMeasurementPollerService(fetcher MeasurementFetcher, meterIDs []string, interval, lookback time.Duration,
	workers int, out io.Writer, logger zerolog.Logger) *MeasurementPollerService {

	if workers < 1 {
		workers = 1
	}
	return &MeasurementPollerService{
		Fetcher:  fetcher,
		MeterIDs: utils.Dedupe(meterIDs),
		Interval: interval,
		Lookback: lookback,
		Workers:  workers,
		Out:      out,
		Logger:   logger,
		now:      time.Now,
	}
}

// Start launches the polling loop in a separate goroutine. The first poll runs immediately.
func (p *MeasurementPollerService) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx != nil {
		p.Logger.Warn().Msg("MeasurementPollerService is already running")
		return errors.New("measurement poller is already running")
	}
	if len(p.MeterIDs) == 0 {
		return errors.New("measurement poller has no smart meters to poll")
	}
	if p.Interval <= 0 {
		return fmt.Errorf("invalid poll interval %s", p.Interval)
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.done = make(chan struct{})

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(p.done)
		p.runPollLoop(p.ctx)
	}()

	p.Logger.Info().Strs("smart_meters", p.MeterIDs).Dur("interval", p.Interval).Msg("MeasurementPollerService started successfully")
	return nil
}

// Stop gracefully stops the poller.
func (p *MeasurementPollerService) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx == nil {
		p.Logger.Warn().Msg("MeasurementPollerService is not running")
		return errors.New("measurement poller is not running")
	}

	p.cancel()
	p.wg.Wait()

	p.ctx = nil
	p.cancel = nil

	p.Logger.Info().Msg("MeasurementPollerService stopped successfully")
	return nil
}

// Done is closed when the polling loop exits, including when the session ended.
func (p *MeasurementPollerService) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

func (p *MeasurementPollerService) runPollLoop(ctx context.Context) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		if ended := p.PollOnce(ctx); ended {
			p.Logger.Warn().Msg("Session ended, MeasurementPollerService stopping")
			return
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			p.Logger.Info().Msg("MeasurementPollerService stopping gracefully")
			return
		}
	}
}

// PollOnce fetches every meter concurrently and writes the results in meter
// order. It reports whether the session ended during the poll.
func (p *MeasurementPollerService) PollOnce(ctx context.Context) bool {
	polledAt := p.now().UTC()
	var from time.Time
	if p.Lookback > 0 {
		from = polledAt.Add(-p.Lookback)
	}

	type result struct {
		line MeasurementLine
		err  error
	}

	results := utils.Map(ctx, p.Workers, p.MeterIDs, func(ctx context.Context, id string) result {
		line := MeasurementLine{SmartMeterID: id, PolledAt: polledAt}
		series, err := p.Fetcher.Measurements(ctx, id, from, polledAt)
		if err != nil {
			line.Error = err.Error()
			return result{line: line, err: err}
		}
		line.Count = len(series.Measurements)
		if n := len(series.Measurements); n > 0 {
			latest := series.Measurements[n-1]
			line.Latest = &latest
		}
		return result{line: line}
	})

	sessionEnded := false
	for i, res := range results {
		if res.line.SmartMeterID == "" {
			// Not polled because ctx was cancelled.
			continue
		}
		if res.err != nil {
			if http_middleware.IsSessionEnded(res.err) {
				sessionEnded = true
			}
			p.Logger.Error().Err(res.err).Str("smart_meter_id", p.MeterIDs[i]).Msg("Failed to poll measurements")
		}
		p.writeLine(res.line)
	}
	return sessionEnded
}

func (p *MeasurementPollerService) writeLine(line MeasurementLine) {
	payload, err := json.Marshal(line)
	if err != nil {
		p.Logger.Error().Err(err).Msg("Failed to serialize measurement line")
		return
	}

	p.outMu.Lock()
	defer p.outMu.Unlock()
	if _, err := p.Out.Write(append(payload, '\n')); err != nil {
		p.Logger.Error().Err(err).Msg("Failed to write measurement line")
	}
}
