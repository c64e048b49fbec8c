package rediskv_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalplane/agentmem/store"
	"github.com/vitalplane/agentmem/store/rediskv"
)

func newTestClient(t *testing.T) (*rediskv.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := rediskv.New(rediskv.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestGetSet(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)

	require.NoError(t, client.Set(ctx, "k1", "v1", 0))
	val, err := client.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "v1", val)
}

func TestGetMissingKey(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)

	_, err := client.Get(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrKeyNotFound)
}

func TestSetWithTTL(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)

	require.NoError(t, client.Set(ctx, "k1", "v1", time.Minute))
	assert.Greater(t, mr.TTL("k1"), time.Duration(0))

	mr.FastForward(2 * time.Minute)
	_, err := client.Get(ctx, "k1")
	assert.ErrorIs(t, err, store.ErrKeyNotFound)
}

func TestHashOps(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)

	require.NoError(t, client.HSet(ctx, "h1", map[string]any{
		"name":  "pattern",
		"count": 1,
	}))

	n, err := client.HIncrBy(ctx, "h1", "count", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	fields, err := client.HGetAll(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "pattern", fields["name"])
	assert.Equal(t, "3", fields["count"])
}

func TestHGetAllMissingKeyReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)

	fields, err := client.HGetAll(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestListOps(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)

	require.NoError(t, client.LPush(ctx, "l1", "a"))
	require.NoError(t, client.LPush(ctx, "l1", "b"))
	require.NoError(t, client.LPush(ctx, "l1", "c"))

	// LPush prepends, so newest first.
	items, err := client.LRange(ctx, "l1", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, items)

	require.NoError(t, client.LTrim(ctx, "l1", 0, 1))
	items, err = client.LRange(ctx, "l1", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, items)
}

func TestSortedSetOps(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)

	require.NoError(t, client.ZAdd(ctx, "z1", 1.0, "one"))
	require.NoError(t, client.ZAdd(ctx, "z1", 2.5, "two"))
	require.NoError(t, client.ZAdd(ctx, "z1", 9.0, "nine"))

	members, err := client.ZRangeByScore(ctx, "z1", 1.5, 5.0)
	require.NoError(t, err)
	assert.Equal(t, []string{"two"}, members)
}

func TestScan(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)

	require.NoError(t, client.Set(ctx, "procedural:u1:aaa", "1", 0))
	require.NoError(t, client.Set(ctx, "procedural:u1:bbb", "1", 0))
	require.NoError(t, client.Set(ctx, "procedural:u2:ccc", "1", 0))

	keys, err := client.Scan(ctx, "procedural:u1:*")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	assert.Contains(t, keys, "procedural:u1:aaa")
	assert.Contains(t, keys, "procedural:u1:bbb")
}

func TestExpire(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)

	require.NoError(t, client.Set(ctx, "k1", "v1", 0))
	require.NoError(t, client.Expire(ctx, "k1", time.Second))

	mr.FastForward(2 * time.Second)
	_, err := client.Get(ctx, "k1")
	assert.ErrorIs(t, err, store.ErrKeyNotFound)
}

func TestDel(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)

	require.NoError(t, client.Set(ctx, "k1", "v1", 0))
	require.NoError(t, client.Set(ctx, "k2", "v2", 0))

	n, err := client.Del(ctx, "k1", "k2", "k3")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestPing(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)

	require.NoError(t, client.Ping(ctx))
	mr.Close()
	assert.Error(t, client.Ping(ctx))
}
