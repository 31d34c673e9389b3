package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmsrc/pkg/contract"
)

func TestErrorSentinels(t *testing.T) {
	cases := map[int]error{
		401: contract.ErrUnauthorized,
		403: contract.ErrUnauthorized,
		429: contract.ErrRateLimited,
		400: contract.ErrInvalidInput,
		404: contract.ErrInvalidInput,
	}
	for status, want := range cases {
		assert.ErrorIs(t, Error{Provider: "x", Status: status}, want, "status %d", status)
	}
	e := Error{Provider: "openai", Status: 503, Msg: "overloaded"}
	assert.Nil(t, errors.Unwrap(e))
	var ne net.Error
	require.True(t, errors.As(fmt.Errorf("wrap: %w", e), &ne))
	assert.True(t, ne.Temporary())
	assert.Equal(t, "openai upstream 503: overloaded", e.Error())
}

func TestRetryable(t *testing.T) {
	ctx := context.Background()
	assert.True(t, Retryable(ctx, Error{Status: 500}))
	assert.True(t, Retryable(ctx, Error{Status: 408}))
	assert.True(t, Retryable(ctx, Error{Status: 429}))
	assert.True(t, Retryable(ctx, contract.ErrRateLimited))
	assert.True(t, Retryable(ctx, &net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.False(t, Retryable(ctx, Error{Status: 401}))
	assert.False(t, Retryable(ctx, contract.ErrResponseInvalid))
	assert.False(t, Retryable(ctx, context.DeadlineExceeded))

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	assert.False(t, Retryable(cctx, Error{Status: 500}))
}

func TestPolicyDo(t *testing.T) {
	p := Policy{MaxRetries: 2, Base: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Error{Provider: "x", Status: 502}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = p.Do(context.Background(), func(context.Context) error {
		calls++
		return Error{Provider: "x", Status: 500}
	})
	assert.Equal(t, 3, calls)
	var ue Error
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, 500, ue.Status)

	calls = 0
	err = p.Do(context.Background(), func(context.Context) error {
		calls++
		return Error{Provider: "x", Status: 401}
	})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, contract.ErrUnauthorized)
}

func TestNewPolicy(t *testing.T) {
	zero := 0
	p := NewPolicy(&zero, 20)
	assert.Equal(t, 0, p.MaxRetries)
	assert.Equal(t, 20*time.Millisecond, p.Base)
	d := NewPolicy(nil, 0)
	assert.Equal(t, DefaultPolicy(), d)
}
