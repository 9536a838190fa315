package realtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestHubDeliversToTableSubscribers(t *testing.T) {
	h := NewHub(4, nil)
	defer h.Close()

	visitors, err := h.Subscribe(TableVisitors)
	require.NoError(t, err)
	other, err := h.Subscribe("settings")
	require.NoError(t, err)

	require.NoError(t, h.Publish(context.Background(), ChangeEvent{Type: EventInsert, Table: TableVisitors, IDs: []int64{1}}))

	ev := <-visitors.Events()
	assert.Equal(t, EventInsert, ev.Type)
	assert.Equal(t, []int64{1}, ev.IDs)
	assert.Len(t, other.Events(), 0)
}

func TestHubResyncReachesEveryone(t *testing.T) {
	h := NewHub(4, nil)
	defer h.Close()
	a, _ := h.Subscribe(TableVisitors)
	b, _ := h.Subscribe("settings")

	require.NoError(t, h.Publish(context.Background(), ChangeEvent{Type: EventResync}))
	assert.Equal(t, EventResync, (<-a.Events()).Type)
	assert.Equal(t, EventResync, (<-b.Events()).Type)
}

func TestHubNeverBlocksOnFullSubscriber(t *testing.T) {
	h := NewHub(1, nil)
	defer h.Close()
	sub, _ := h.Subscribe(TableVisitors)

	for i := 0; i < 5; i++ {
		require.NoError(t, h.Publish(context.Background(), ChangeEvent{Type: EventUpdate, Table: TableVisitors}))
	}
	require.Len(t, sub.Events(), 1)
	// the queued update was traded for a resync, then four more were lost
	assert.Equal(t, uint64(5), h.Dropped())
	ev := <-sub.Events()
	assert.Equal(t, EventResync, ev.Type)
	assert.Equal(t, TableVisitors, ev.Table)
}

func TestHubQueuesSingleResyncAfterOverflow(t *testing.T) {
	h := NewHub(2, nil)
	defer h.Close()
	sub, _ := h.Subscribe(TableVisitors)
	ctx := context.Background()

	require.NoError(t, h.Publish(ctx, ChangeEvent{Type: EventUpdate, Table: TableVisitors, IDs: []int64{1}}))
	require.NoError(t, h.Publish(ctx, ChangeEvent{Type: EventUpdate, Table: TableVisitors, IDs: []int64{2}}))
	require.NoError(t, h.Publish(ctx, ChangeEvent{Type: EventInsert, Table: TableVisitors, IDs: []int64{7}}))
	require.NoError(t, h.Publish(ctx, ChangeEvent{Type: EventInsert, Table: TableVisitors, IDs: []int64{8}}))

	var got []ChangeEvent
	for len(sub.Events()) > 0 {
		got = append(got, <-sub.Events())
	}
	require.Len(t, got, 2)
	assert.Equal(t, []int64{2}, got[0].IDs)
	assert.Equal(t, EventResync, got[1].Type)
	assert.Equal(t, uint64(3), h.Dropped())

	// once drained the subscriber receives normally again
	require.NoError(t, h.Publish(ctx, ChangeEvent{Type: EventInsert, Table: TableVisitors, IDs: []int64{9}}))
	ev := <-sub.Events()
	assert.Equal(t, EventInsert, ev.Type)
	assert.Equal(t, []int64{9}, ev.IDs)
}

func TestUnsubscribeClosesChannelOnce(t *testing.T) {
	h := NewHub(1, nil)
	sub, _ := h.Subscribe(TableVisitors)
	h.Unsubscribe(sub)
	h.Unsubscribe(sub)

	_, open := <-sub.Events()
	assert.False(t, open)
	assert.Equal(t, 0, h.Len())

	require.NoError(t, h.Close())
	_, err := h.Subscribe(TableVisitors)
	assert.ErrorIs(t, err, ErrHubClosed)
	assert.ErrorIs(t, h.Publish(context.Background(), ChangeEvent{}), ErrHubClosed)
}

func TestEventCodecMatchesTriggerPayload(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"INSERT","table":"visitors","ids":[12]}`))
	require.NoError(t, err)
	assert.Equal(t, ChangeEvent{Type: EventInsert, Table: TableVisitors, IDs: []int64{12}}, ev)

	data, err := EncodeEvent(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"INSERT","table":"visitors","ids":[12]}`, string(data))
}
