package feature_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/remindkit/pkg/feature"
)

func TestMemoryProvider(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	p, err := feature.NewMemoryProvider(&feature.Flag{Name: "beta", Enabled: true, Description: "beta users"})
	require.NoError(t, err)

	on, err := p.IsEnabled(ctx, "beta")
	require.NoError(t, err)
	assert.True(t, on)

	_, err = p.IsEnabled(ctx, "missing")
	require.ErrorIs(t, err, feature.ErrFlagNotFound)

	require.NoError(t, p.SetFlag(ctx, feature.Flag{Name: "beta", Enabled: false}))
	f, err := p.GetFlag(ctx, "beta")
	require.NoError(t, err)
	assert.False(t, f.Enabled)
	assert.Equal(t, "beta users", f.Description)

	require.ErrorIs(t, p.SetFlag(ctx, feature.Flag{}), feature.ErrInvalidFlag)

	require.NoError(t, p.SetFlag(ctx, feature.Flag{Name: "alpha"}))
	list, err := p.ListFlags(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name)

	require.NoError(t, p.DeleteFlag(ctx, "alpha"))
	require.ErrorIs(t, p.DeleteFlag(ctx, "alpha"), feature.ErrFlagNotFound)
}

func TestEnvProvider(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	base, err := feature.NewMemoryProvider(&feature.Flag{Name: "multi_channel_notifications", Enabled: true})
	require.NoError(t, err)

	tests := []struct {
		name    string
		env     map[string]string
		want    bool
		wantErr error
	}{
		{name: "no override", env: map[string]string{}, want: true},
		{name: "off", env: map[string]string{"FEATURE_FLAG_MULTI_CHANNEL_NOTIFICATIONS": "off"}, want: false},
		{name: "garbage is false", env: map[string]string{"FEATURE_FLAG_MULTI_CHANNEL_NOTIFICATIONS": "maybe"}, want: false},
		{name: "yes", env: map[string]string{"FEATURE_FLAG_MULTI_CHANNEL_NOTIFICATIONS": " YES "}, want: true},
		{name: "1", env: map[string]string{"FEATURE_FLAG_MULTI_CHANNEL_NOTIFICATIONS": "1"}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := feature.NewEnvProvider(base, feature.WithEnvLookup(tt.env))
			got, err := p.IsEnabled(ctx, "multi_channel_notifications")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("env only", func(t *testing.T) {
		t.Parallel()
		p := feature.NewEnvProvider(nil, feature.WithEnvLookup(map[string]string{"FEATURE_FLAG_X": "on"}))
		got, err := p.IsEnabled(ctx, "x")
		require.NoError(t, err)
		assert.True(t, got)

		_, err = p.IsEnabled(ctx, "y")
		require.ErrorIs(t, err, feature.ErrFlagNotFound)
	})
}

type countingProvider struct {
	calls atomic.Int32
	value bool
	err   error
}

func (c *countingProvider) IsEnabled(context.Context, string) (bool, error) {
	c.calls.Add(1)
	return c.value, c.err
}

func TestCachedProvider(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("caches until ttl", func(t *testing.T) {
		t.Parallel()
		next := &countingProvider{value: true}
		now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		c := feature.NewCachedProvider(next, 30*time.Second).WithClock(func() time.Time { return now })

		for range 3 {
			on, err := c.IsEnabled(ctx, "f")
			require.NoError(t, err)
			assert.True(t, on)
		}
		assert.Equal(t, int32(1), next.calls.Load())

		now = now.Add(31 * time.Second)
		_, _ = c.IsEnabled(ctx, "f")
		assert.Equal(t, int32(2), next.calls.Load())

		c.Invalidate("f")
		_, _ = c.IsEnabled(ctx, "f")
		assert.Equal(t, int32(3), next.calls.Load())
	})

	t.Run("caches not found", func(t *testing.T) {
		t.Parallel()
		next := &countingProvider{err: feature.ErrFlagNotFound}
		c := feature.NewCachedProvider(next, time.Minute)

		_, err := c.IsEnabled(ctx, "f")
		require.ErrorIs(t, err, feature.ErrFlagNotFound)
		_, err = c.IsEnabled(ctx, "f")
		require.ErrorIs(t, err, feature.ErrFlagNotFound)
		assert.Equal(t, int32(1), next.calls.Load())
	})

	t.Run("does not cache other errors", func(t *testing.T) {
		t.Parallel()
		next := &countingProvider{err: errors.New("db down")}
		c := feature.NewCachedProvider(next, time.Minute)

		_, err := c.IsEnabled(ctx, "f")
		require.Error(t, err)
		_, err = c.IsEnabled(ctx, "f")
		require.Error(t, err)
		assert.Equal(t, int32(2), next.calls.Load())

		c.Invalidate()
	})
}

func TestDecodeAndSeed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	flags, err := feature.Decode(strings.NewReader(`
flags:
  - name: multi_channel_notifications
    enabled: false
    description: fan out
  - name: other
    enabled: true
`))
	require.NoError(t, err)
	require.Len(t, flags, 2)

	store, err := feature.NewMemoryProvider()
	require.NoError(t, err)
	require.NoError(t, feature.Seed(ctx, store, flags))

	on, err := store.IsEnabled(ctx, "multi_channel_notifications")
	require.NoError(t, err)
	assert.False(t, on)

	_, err = feature.Decode(strings.NewReader("flags:\n  - enabled: true\n"))
	require.ErrorIs(t, err, feature.ErrLoadFile)

	_, err = feature.LoadFile("testdata/does-not-exist.yaml")
	require.ErrorIs(t, err, feature.ErrLoadFile)

	empty, err := feature.Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDescribe(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store, err := feature.NewMemoryProvider(&feature.Flag{Name: "stored", Enabled: true})
	require.NoError(t, err)
	env := feature.NewEnvProvider(store, feature.WithEnvLookup(map[string]string{
		"FEATURE_FLAG_STORED":   "false",
		"FEATURE_FLAG_ENV_ONLY": "true",
		"UNRELATED":             "1",
	}))

	got, err := feature.Describe(ctx, store, env)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "stored", got[0].Name)
	assert.True(t, got[0].Enabled)
	assert.False(t, got[0].Effective)
	require.NotNil(t, got[0].Override)

	assert.Equal(t, "env_only", got[1].Name)
	assert.True(t, got[1].Effective)
}
