package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryTransient_RetriesOnce(t *testing.T) {
	calls := 0
	err := RetryTransient(context.Background(), time.Millisecond, func() error {
		calls++
		if calls == 1 {
			return &ProviderError{Vendor: "test", Kind: KindTransient}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryTransient_GivesUpAfterSecondFailure(t *testing.T) {
	calls := 0
	transient := &ProviderError{Vendor: "test", Kind: KindTransient}
	err := RetryTransient(context.Background(), time.Millisecond, func() error {
		calls++
		return transient
	})
	assert.Equal(t, transient, err)
	assert.Equal(t, 2, calls)
}

func TestRetryTransient_DoesNotRetryOtherKinds(t *testing.T) {
	for _, kind := range []ErrorKind{KindAuth, KindRateLimited, KindFatal} {
		t.Run(string(kind), func(t *testing.T) {
			calls := 0
			err := RetryTransient(context.Background(), time.Millisecond, func() error {
				calls++
				return &ProviderError{Vendor: "test", Kind: kind}
			})
			require.Error(t, err)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestRetryTransient_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := RetryTransient(ctx, time.Minute, func() error {
		calls++
		return &ProviderError{Vendor: "test", Kind: KindTransient}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestKindFromStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{http.StatusUnauthorized, KindAuth},
		{http.StatusForbidden, KindAuth},
		{http.StatusTooManyRequests, KindRateLimited},
		{http.StatusRequestTimeout, KindTransient},
		{http.StatusInternalServerError, KindTransient},
		{http.StatusServiceUnavailable, KindTransient},
		{http.StatusBadRequest, KindFatal},
		{http.StatusNotFound, KindFatal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindFromStatus(tt.status), "status %d", tt.status)
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := &ProviderError{Vendor: "openai", Kind: KindTransient, Message: "request failed", Cause: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "openai")
}
