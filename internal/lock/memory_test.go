package lock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryLocker_ExclusiveUntilReleased(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	ok, err := l.Acquire(ctx, "payment_callback:ws_1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.Acquire(ctx, "payment_callback:ws_1")
	require.NoError(t, err)
	require.False(t, ok, "second acquire on a held key must fail")

	ok, err = l.Acquire(ctx, "payment_callback:ws_2")
	require.NoError(t, err)
	require.True(t, ok, "different keys are independent")

	l.Release(ctx, "payment_callback:ws_1")
	ok, err = l.Acquire(ctx, "payment_callback:ws_1")
	require.NoError(t, err)
	require.True(t, ok)
}
