package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	http_middleware "github.com/benmeehan/meterctl/internal/middlewares/http"
	"github.com/benmeehan/meterctl/internal/models"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	err   map[string]error
}

func (f *fakeFetcher) Measurements(_ context.Context, id string, from, to time.Time) (*models.MeasurementSeries, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[id]++
	if err := f.err[id]; err != nil {
		return nil, err
	}
	return &models.MeasurementSeries{
		SmartMeterID: id,
		Measurements: []models.Measurement{
			{Timestamp: from, Value: 1},
			{Timestamp: to, Value: 2, Unit: "kWh"},
		},
	}, nil
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func readLines(t *testing.T, s string) []MeasurementLine {
	t.Helper()
	var lines []MeasurementLine
	for _, raw := range strings.Split(strings.TrimSpace(s), "\n") {
		if raw == "" {
			continue
		}
		var line MeasurementLine
		require.NoError(t, json.Unmarshal([]byte(raw), &line))
		lines = append(lines, line)
	}
	return lines
}

func TestMeasurementPollerService_PollOnce(t *testing.T) {
	fetcher := &fakeFetcher{err: map[string]error{"m2": errors.New("boom")}}
	out := &syncBuffer{}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	p := NewMeasurementPollerService(fetcher, []string{"m1", "m2", "m3", "m1"}, time.Minute, time.Hour, 2, out, zerolog.Nop())
	p.now = func() time.Time { return now }

	ended := p.PollOnce(context.Background())
	assert.False(t, ended)

	lines := readLines(t, out.String())
	require.Len(t, lines, 3, "duplicates are polled once")
	assert.Equal(t, []string{"m1", "m2", "m3"}, []string{lines[0].SmartMeterID, lines[1].SmartMeterID, lines[2].SmartMeterID})

	assert.Equal(t, 2, lines[0].Count)
	require.NotNil(t, lines[0].Latest)
	assert.Equal(t, 2.0, lines[0].Latest.Value)
	assert.True(t, lines[0].Latest.Timestamp.Equal(now))
	assert.Equal(t, "boom", lines[1].Error)
	assert.Nil(t, lines[1].Latest)
}

func TestMeasurementPollerService_SessionEndStopsLoop(t *testing.T) {
	fetcher := &fakeFetcher{err: map[string]error{"m1": http_middleware.ErrAuthenticationExpired}}
	p := NewMeasurementPollerService(fetcher, []string{"m1"}, 10*time.Millisecond, 0, 1, &syncBuffer{}, zerolog.Nop())

	require.NoError(t, p.Start())
	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after the session ended")
	}
	assert.Equal(t, 1, fetcher.calls["m1"])
	assert.NoError(t, p.Stop())
}

func TestMeasurementPollerService_StartStop(t *testing.T) {
	fetcher := &fakeFetcher{}
	out := &syncBuffer{}
	p := NewMeasurementPollerService(fetcher, []string{"m1"}, 10*time.Millisecond, time.Minute, 1, out, zerolog.Nop())

	require.NoError(t, p.Start())
	err := p.Start()
	require.Error(t, err)
	assert.Equal(t, "measurement poller is already running", err.Error())

	assert.Eventually(t, func() bool { return len(readLines(t, out.String())) >= 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, p.Stop())
	err = p.Stop()
	require.Error(t, err)
	assert.Equal(t, "measurement poller is not running", err.Error())
}

func TestMeasurementPollerService_StartValidation(t *testing.T) {
	p := NewMeasurementPollerService(&fakeFetcher{}, nil, time.Second, 0, 1, &syncBuffer{}, zerolog.Nop())
	assert.Error(t, p.Start())

	p = NewMeasurementPollerService(&fakeFetcher{}, []string{"m1"}, 0, 0, 1, &syncBuffer{}, zerolog.Nop())
	assert.Error(t, p.Start())
}
