package local_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/agentrt/errs"
	"github.com/agentrt/agentrt/eventstream/store/local"
)

func TestPutGetRoundTrip(t *testing.T) {
	s, err := local.New(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "sess-1/events/000000000000", []byte(`{"id":0}`)))

	got, err := s.Get(ctx, "sess-1/events/000000000000")
	require.NoError(t, err)
	assert.Equal(t, `{"id":0}`, string(got))
}

func TestGetMissingKeyReturnsNotFound(t *testing.T) {
	s, err := local.New(t.TempDir())
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "sess-1/events/no-such-key")
	_, ok := errs.AsNotFound(err)
	assert.True(t, ok)
}

func TestListReturnsOnlyMatchingPrefix(t *testing.T) {
	s, err := local.New(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "sess-1/events/000000000000", []byte("a")))
	require.NoError(t, s.Put(ctx, "sess-1/events/000000000001", []byte("b")))
	require.NoError(t, s.Put(ctx, "sess-1/cursors/sub-a", []byte(`{"last_id":0}`)))
	require.NoError(t, s.Put(ctx, "sess-2/events/000000000000", []byte("c")))

	keys, err := s.List(ctx, "sess-1/events/")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestPutOverwrites(t *testing.T) {
	s, err := local.New(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "k", []byte("first")))
	require.NoError(t, s.Put(ctx, "k", []byte("second")))

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}
