package accrual

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mmeshcher/invest-ledger/internal/model"
)

type triggerResponse struct {
	summary    *Summary
	code       int
	retryAfter time.Duration
	err        error
}

type scriptedTrigger struct {
	responses []triggerResponse
	calls     int
}

func (s *scriptedTrigger) Trigger(context.Context) (*Summary, int, time.Duration, error) {
	r := s.responses[min(s.calls, len(s.responses)-1)]
	s.calls++
	return r.summary, r.code, r.retryAfter, r.err
}

func newTestJob(t *scriptedTrigger, attempts int) (*Job, *[]time.Duration, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.InfoLevel)
	j := NewJob(t, zap.New(core), attempts)
	var waits []time.Duration
	j.wait = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return j, &waits, logs
}

func TestJobRunSuccess(t *testing.T) {
	tr := &scriptedTrigger{responses: []triggerResponse{{summary: &Summary{Processed: 3}, code: http.StatusOK}}}
	j, waits, logs := newTestJob(tr, 3)

	require.NoError(t, j.Run(context.Background()))
	assert.Equal(t, 1, tr.calls)
	assert.Empty(t, *waits)
	assert.Equal(t, 1, logs.FilterMessage("roi batch completed").Len())
}

func TestJobRunRetriesWhenBusy(t *testing.T) {
	tr := &scriptedTrigger{responses: []triggerResponse{
		{code: http.StatusTooManyRequests, retryAfter: 5 * time.Second},
		{code: http.StatusTooManyRequests},
		{summary: &Summary{Processed: 1}, code: http.StatusOK},
	}}
	j, waits, _ := newTestJob(tr, 3)

	require.NoError(t, j.Run(context.Background()))
	assert.Equal(t, 3, tr.calls)
	assert.Equal(t, []time.Duration{5 * time.Second, defaultRetryAfter}, *waits)
}

func TestJobRunGivesUpWhenBusy(t *testing.T) {
	tr := &scriptedTrigger{responses: []triggerResponse{{code: http.StatusTooManyRequests, retryAfter: time.Second}}}
	j, _, _ := newTestJob(tr, 2)

	err := j.Run(context.Background())
	assert.ErrorIs(t, err, model.ErrBusy)
	assert.Equal(t, 2, tr.calls)
}

func TestJobRunContinuesPartialBatch(t *testing.T) {
	tr := &scriptedTrigger{responses: []triggerResponse{
		{summary: &Summary{Processed: 100, Partial: true}, code: http.StatusOK},
		{summary: &Summary{Processed: 20}, code: http.StatusOK},
	}}
	j, waits, _ := newTestJob(tr, 5)

	require.NoError(t, j.Run(context.Background()))
	assert.Equal(t, 2, tr.calls)
	assert.Empty(t, *waits)
}

func TestJobRunStopsOnError(t *testing.T) {
	boom := errors.New("roi trigger rejected")
	tr := &scriptedTrigger{responses: []triggerResponse{{code: http.StatusUnauthorized, err: boom}}}
	j, _, logs := newTestJob(tr, 3)

	assert.ErrorIs(t, j.Run(context.Background()), boom)
	assert.Equal(t, 1, tr.calls)
	assert.Equal(t, 1, logs.FilterMessage("roi trigger failed").Len())
}

func TestJobRunHonoursCancel(t *testing.T) {
	tr := &scriptedTrigger{responses: []triggerResponse{{code: http.StatusTooManyRequests, retryAfter: time.Hour}}}
	j := NewJob(tr, zap.NewNop(), 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, j.Run(ctx), context.Canceled)
	assert.Equal(t, 1, tr.calls)
}
