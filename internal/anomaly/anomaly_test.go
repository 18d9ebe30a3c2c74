package anomaly

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logsvc/internal/store"
)

type fakeStore struct {
	calls     int
	previous  *store.WindowStats
	current   *store.WindowStats
}

func (f *fakeStore) WindowStatsInRange(ctx context.Context, service string, since, until time.Time) (*store.WindowStats, error) {
	f.calls++
	if f.calls == 1 {
		return f.current, nil
	}
	return f.previous, nil
}

func TestDetect_ErrorRateSpikeHighSeverity(t *testing.T) {
	fs := &fakeStore{
		current:  &store.WindowStats{Total: 100, Errors: 30, ErrorTypes: map[string]int{"TimeoutError": 30}},
		previous: &store.WindowStats{Total: 100, Errors: 10, ErrorTypes: map[string]int{"TimeoutError": 10}},
	}
	d := New(fs)

	findings, err := d.Detect(context.Background(), "api", 24)
	require.NoError(t, err)
	require.NotEmpty(t, findings)
	assert.Equal(t, "error_rate_spike", findings[0].Type)
	assert.Equal(t, SeverityHigh, findings[0].Severity)
}

func TestDetect_ErrorRateSpikeMediumSeverity(t *testing.T) {
	fs := &fakeStore{
		current:  &store.WindowStats{Total: 100, Errors: 16, ErrorTypes: map[string]int{}},
		previous: &store.WindowStats{Total: 100, Errors: 10, ErrorTypes: map[string]int{}},
	}
	d := New(fs)

	findings, err := d.Detect(context.Background(), "api", 24)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, SeverityMedium, findings[0].Severity)
}

func TestDetect_NoSpikeWhenBelowThreshold(t *testing.T) {
	fs := &fakeStore{
		current:  &store.WindowStats{Total: 100, Errors: 12, ErrorTypes: map[string]int{}},
		previous: &store.WindowStats{Total: 100, Errors: 10, ErrorTypes: map[string]int{}},
	}
	d := New(fs)

	findings, err := d.Detect(context.Background(), "api", 24)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestDetect_NoSpikeWhenFewCurrentErrors(t *testing.T) {
	fs := &fakeStore{
		current:  &store.WindowStats{Total: 100, Errors: 3, ErrorTypes: map[string]int{}},
		previous: &store.WindowStats{Total: 1000, Errors: 1, ErrorTypes: map[string]int{}},
	}
	d := New(fs)

	findings, err := d.Detect(context.Background(), "api", 24)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestDetect_LatencySpike(t *testing.T) {
	fs := &fakeStore{
		current:  &store.WindowStats{Total: 10, AvgLatency: 500, ErrorTypes: map[string]int{}},
		previous: &store.WindowStats{Total: 10, AvgLatency: 200, ErrorTypes: map[string]int{}},
	}
	d := New(fs)

	findings, err := d.Detect(context.Background(), "api", 24)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "latency_spike", findings[0].Type)
}

func TestDetect_NewErrorTypesCappedAtFive(t *testing.T) {
	fs := &fakeStore{
		current: &store.WindowStats{Total: 10, ErrorTypes: map[string]int{
			"A": 1, "B": 1, "C": 1, "D": 1, "E": 1, "F": 1,
		}},
		previous: &store.WindowStats{Total: 10, ErrorTypes: map[string]int{}},
	}
	d := New(fs)

	findings, err := d.Detect(context.Background(), "api", 24)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "new_error_types", findings[0].Type)
	assert.Len(t, findings[0].ErrorTypes, 6)
	assert.Contains(t, findings[0].Message, "[A B C D E]")
	assert.NotContains(t, findings[0].Message, "F")
}

func TestDetect_RejectsNonPositiveWindow(t *testing.T) {
	d := New(&fakeStore{current: &store.WindowStats{}, previous: &store.WindowStats{}})
	_, err := d.Detect(context.Background(), "api", 0)
	require.Error(t, err)
}
