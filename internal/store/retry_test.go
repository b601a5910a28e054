package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsWithoutRetryOnNilError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestRetryDoesNotRetryNonTransientErrors(t *testing.T) {
	calls := 0
	want := &NotFound{Kind: "identity", ID: "x"}
	err := Retry(context.Background(), func(ctx context.Context) error {
		calls++
		return want
	})
	require.ErrorIs(t, err, want)
	require.Equal(t, 1, calls)
}

func TestRetryRetriesTransientUntilSuccess(t *testing.T) {
	orig := Backoff
	Backoff = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	defer func() { Backoff = orig }()

	calls := 0
	err := Retry(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &Transient{Op: "test", Err: errors.New("deadlock")}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestRetryGivesUpAfterExhaustingBackoff(t *testing.T) {
	orig := Backoff
	Backoff = []time.Duration{time.Millisecond, time.Millisecond}
	defer func() { Backoff = orig }()

	calls := 0
	err := Retry(context.Background(), func(ctx context.Context) error {
		calls++
		return &Transient{Op: "test", Err: errors.New("still failing")}
	})
	require.Error(t, err)
	require.Equal(t, len(Backoff)+1, calls)
}

func TestRetryStopsOnContextCancellation(t *testing.T) {
	orig := Backoff
	Backoff = []time.Duration{time.Hour}
	defer func() { Backoff = orig }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, func(ctx context.Context) error {
		calls++
		return &Transient{Op: "test", Err: errors.New("boom")}
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}
