package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransport(t *testing.T) *InMemory {
	t.Helper()
	tr, err := NewInMemory()
	require.NoError(t, err)
	t.Cleanup(tr.Close)
	return tr
}

func TestAppendAndRange(t *testing.T) {
	tr := newTestTransport(t)
	ctx := context.Background()

	id, err := tr.Append(ctx, "persona:requests", map[string]string{"corrId": "abc"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs, err := tr.Range(ctx, "persona:requests", "-", "+")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "abc", msgs[0].Fields["corrId"])
}

func TestCreateGroupIsIdempotent(t *testing.T) {
	tr := newTestTransport(t)
	ctx := context.Background()

	require.NoError(t, tr.CreateGroup(ctx, "s", "g", "$"))
	require.NoError(t, tr.CreateGroup(ctx, "s", "g", "$"))
}

func TestReadGroupDeliversAtMostOnce(t *testing.T) {
	tr := newTestTransport(t)
	ctx := context.Background()

	require.NoError(t, tr.CreateGroup(ctx, "s", "g", "0"))
	_, err := tr.Append(ctx, "s", map[string]string{"corrId": "one"})
	require.NoError(t, err)

	msgs, err := tr.ReadGroup(ctx, "s", "g", "consumer-a", 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	msgs2, err := tr.ReadGroup(ctx, "s", "g", "consumer-b", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs2, "message already delivered to consumer-a must not be redelivered to consumer-b")
}

func TestAckMarksProcessed(t *testing.T) {
	tr := newTestTransport(t)
	ctx := context.Background()

	require.NoError(t, tr.CreateGroup(ctx, "s", "g", "0"))
	id, err := tr.Append(ctx, "s", map[string]string{"corrId": "one"})
	require.NoError(t, err)

	msgs, err := tr.ReadGroup(ctx, "s", "g", "consumer-a", 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	require.NoError(t, tr.Ack(ctx, "s", "g", id))
}
