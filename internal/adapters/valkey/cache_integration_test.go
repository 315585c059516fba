//go:build integration

package valkey_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/pklocator/internal/adapters/valkey"
)

func TestCache_SetGetDelete(t *testing.T) {
	addr := os.Getenv("PKLOCATOR_TEST_VALKEY")
	if addr == "" {
		t.Skip("PKLOCATOR_TEST_VALKEY not set")
	}
	c, err := valkey.New(addr)
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))
	require.NoError(t, c.Set(ctx, "pk:line:test", []byte(`[{"pk":1,"lat":2,"lon":3}]`), 60))

	got, err := c.Get(ctx, "pk:line:test")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"pk":1,"lat":2,"lon":3}]`, string(got))

	require.NoError(t, c.Delete(ctx, "pk:line:test"))
	_, err = c.Get(ctx, "pk:line:test")
	assert.True(t, errors.Is(err, valkey.ErrMiss))
}
