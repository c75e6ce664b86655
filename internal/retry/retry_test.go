package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"diagram-go/internal/diagram"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries:  maxRetries,
		BackoffBase: time.Millisecond,
		BackoffMax:  5 * time.Millisecond,
		Jitter:      0,
	}
}

func TestDefaultPolicy(t *testing.T) {
	policy := DefaultPolicy()

	if policy.MaxRetries != 2 {
		t.Errorf("expected MaxRetries=2, got %d", policy.MaxRetries)
	}
	if policy.BackoffBase != 250*time.Millisecond {
		t.Errorf("expected BackoffBase=250ms, got %v", policy.BackoffBase)
	}
	if policy.Jitter != 0.2 {
		t.Errorf("expected Jitter=0.2, got %v", policy.Jitter)
	}
}

func TestPolicy_calculateBackoff(t *testing.T) {
	policy := Policy{
		BackoffBase: time.Second,
		BackoffMax:  30 * time.Second,
		Jitter:      0, // No jitter for predictable tests
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second}, // capped
		{10, 30 * time.Second},
	}

	for _, tc := range tests {
		got := policy.calculateBackoff(tc.attempt)
		if got != tc.expected {
			t.Errorf("calculateBackoff(%d) = %v, want %v", tc.attempt, got, tc.expected)
		}
	}
}

func TestPolicy_calculateBackoffWithJitter(t *testing.T) {
	policy := Policy{
		BackoffBase: time.Second,
		BackoffMax:  30 * time.Second,
		Jitter:      0.2,
	}

	for i := 0; i < 100; i++ {
		got := policy.calculateBackoff(0)
		if got < 800*time.Millisecond || got > 1200*time.Millisecond {
			t.Fatalf("backoff %v outside jitter range", got)
		}
	}
}

func TestDo_SucceedsAfterTransportErrors(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), "plantuml", fastPolicy(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return diagram.Transport("plantuml", errors.New("connection reset"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
}

func TestDo_RenderErrorIsFinal(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), "plantuml", fastPolicy(3), func(ctx context.Context) error {
		calls++
		return diagram.Render("plantuml", "Syntax Error?")
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, diagram.KindRender, diagram.KindOf(err))
}

func TestDo_MaxRetriesKeepsKind(t *testing.T) {
	_, err := Do(context.Background(), "plantuml", fastPolicy(2), func(ctx context.Context) error {
		return diagram.Transport("plantuml", errors.New("connection refused"))
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.Equal(t, diagram.KindTransport, diagram.KindOf(err))
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{MaxRetries: 5, BackoffBase: time.Hour, BackoffMax: time.Hour}

	result, err := Do(ctx, "plantuml", policy, func(ctx context.Context) error {
		cancel()
		return diagram.Transport("plantuml", errors.New("connection refused"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, result.Attempts)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotEqual(t, diagram.KindTimeout, diagram.KindOf(err))
}

func TestDo_DeadlineDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	policy := Policy{MaxRetries: 5, BackoffBase: time.Hour, BackoffMax: time.Hour}

	result, err := Do(ctx, "plantuml", policy, func(ctx context.Context) error {
		return diagram.Transport("plantuml", errors.New("connection refused"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, result.Attempts)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, diagram.KindTimeout, diagram.KindOf(err))
}
