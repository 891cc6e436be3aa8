package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringify(t *testing.T) {
	cases := []struct {
		in   interface{}
		want string
	}{
		{"abc", "abc"},
		{[]byte("raw"), "raw"},
		{42, "42"},
		{int64(1700000000000), "1700000000000"},
		{int32(-3), "-3"},
		{72.5, "72.5"},
		{float32(1.5), "1.5"},
		{true, "true"},
		{map[string]int{"a": 1}, `{"a":1}`},
	}
	for _, c := range cases {
		got, err := stringify(c.in)
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
	}
}

func TestStringify_Unencodable(t *testing.T) {
	_, err := stringify(make(chan int))
	assert.Error(t, err)
}

func TestStreamGroupRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	_, err := PublishJSONToStream(ctx, client, "s", map[string]string{"path": "users/u1/healthData/r1"})
	require.NoError(t, err)

	// group created after the entry still sees it
	require.NoError(t, CreateConsumerGroup(ctx, client, "s", "g"))
	require.NoError(t, CreateConsumerGroup(ctx, client, "s", "g"))

	msgs, err := ReadFromStream(ctx, client, "s", "g", "c1", 10, 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "s", msgs[0].Stream)
	assert.JSONEq(t, `{"path":"users/u1/healthData/r1"}`, msgs[0].Values["data"].(string))

	again, err := ReadPending(ctx, client, "s", "g", "c1", "0", 10)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, msgs[0].ID, again[0].ID)

	require.NoError(t, Ack(ctx, client, "s", "g", msgs[0].ID))
	again, err = ReadPending(ctx, client, "s", "g", "c1", "0", 10)
	require.NoError(t, err)
	assert.Empty(t, again)
	pending, err := client.XPending(ctx, "s", "g").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)

	msgs, err = ReadFromStream(ctx, client, "s", "g", "c1", 10, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
