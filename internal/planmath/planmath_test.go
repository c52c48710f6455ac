package planmath

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/invest-ledger/internal/model"
)

type fixedSource float64

func (f fixedSource) Float64() float64 { return float64(f) }

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestFeeAndNet(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		rate   string
		fee    string
		net    string
	}{
		{name: "ten percent", amount: "200", rate: "0.10", fee: "20", net: "180"},
		{name: "five percent", amount: "200", rate: "0.05", fee: "10", net: "190"},
		{name: "fractional", amount: "33.33", rate: "0.1", fee: "3.333", net: "29.997"},
		{name: "zero rate", amount: "50", rate: "0", fee: "0", net: "50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee, err := Fee(d(tt.amount), d(tt.rate))
			require.NoError(t, err)
			net, err := NetAfterFee(d(tt.amount), d(tt.rate))
			require.NoError(t, err)

			assert.True(t, fee.Equal(d(tt.fee)), "fee = %s, want %s", fee, tt.fee)
			assert.True(t, net.Equal(d(tt.net)), "net = %s, want %s", net, tt.net)
			assert.True(t, net.Add(fee).Equal(d(tt.amount)), "net + fee must equal amount")
		})
	}
}

func TestFeeRejectsInvalidInput(t *testing.T) {
	_, err := Fee(d("-1"), d("0.1"))
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	_, err = Fee(d("1"), d("1.5"))
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestFromFloatRejectsNonFinite(t *testing.T) {
	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := FromFloat(f)
		assert.ErrorIs(t, err, model.ErrInvalidArgument)
	}
}

func TestLockExpired(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	ok, err := LockExpired(created, 24, created.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = LockExpired(created, 24, created.Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = LockExpired(created, 0, created)
	require.NoError(t, err)
	assert.True(t, ok)

	remaining, err := LockRemaining(created, 24, created.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 23*time.Hour, remaining)

	_, err = LockExpired(created, -1, created)
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestSampleROI(t *testing.T) {
	pct, err := SampleROI(fixedSource(0.5), d("1"), d("3"))
	require.NoError(t, err)
	assert.True(t, pct.Equal(d("2")), "pct = %s", pct)

	pct, err = SampleROI(fixedSource(0), d("1"), d("3"))
	require.NoError(t, err)
	assert.True(t, pct.Equal(d("1")))

	pct, err = SampleROI(fixedSource(0.9999999999), d("1"), d("3"))
	require.NoError(t, err)
	assert.True(t, pct.LessThanOrEqual(d("3")))

	pct, err = SampleROI(fixedSource(0.7), d("1"), d("1"))
	require.NoError(t, err)
	assert.True(t, pct.Equal(d("1")))

	_, err = SampleROI(fixedSource(0.5), d("3"), d("1"))
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	_, err = SampleROI(fixedSource(math.NaN()), d("1"), d("3"))
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestROIAmount(t *testing.T) {
	amount, err := ROIAmount(d("500"), d("1"))
	require.NoError(t, err)
	assert.True(t, amount.Equal(d("5")))

	amount, err = ROIAmount(d("1234.56"), d("0.75"))
	require.NoError(t, err)
	assert.True(t, amount.Equal(d("9.2592")), "amount = %s", amount)

	_, err = ROIAmount(d("-1"), d("1"))
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestDueForAccrual(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	at := func(ago time.Duration) *time.Time {
		v := now.Add(-ago)
		return &v
	}

	tests := []struct {
		name string
		freq model.Frequency
		last *time.Time
		want bool
	}{
		{name: "daily 23h", freq: model.FrequencyDaily, last: at(23 * time.Hour), want: false},
		{name: "daily 24h", freq: model.FrequencyDaily, last: at(24 * time.Hour), want: true},
		{name: "weekly 167h", freq: model.FrequencyWeekly, last: at(167 * time.Hour), want: false},
		{name: "weekly 168h", freq: model.FrequencyWeekly, last: at(168 * time.Hour), want: true},
		{name: "never run daily", freq: model.FrequencyDaily, last: nil, want: true},
		{name: "never run weekly", freq: model.FrequencyWeekly, last: nil, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DueForAccrual(tt.freq, tt.last, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := DueForAccrual("monthly", nil, now)
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestNextRunAt(t *testing.T) {
	from := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	next, err := NextRunAt(model.FrequencyDaily, from)
	require.NoError(t, err)
	assert.Equal(t, from.Add(24*time.Hour), next)

	next, err = NextRunAt(model.FrequencyWeekly, from)
	require.NoError(t, err)
	assert.Equal(t, from.AddDate(0, 0, 7), next)
}
