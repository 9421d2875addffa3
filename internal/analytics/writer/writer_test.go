package writer

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/farmlink-backend/internal/analytics/types"
)

type insertCall struct {
	table    string
	rowCount int
}

type fakeInserter struct {
	responses []error
	calls     []insertCall
}

func (f *fakeInserter) InsertRows(_ context.Context, table string, rows []any) error {
	idx := len(f.calls)
	f.calls = append(f.calls, insertCall{table: table, rowCount: len(rows)})
	if idx < len(f.responses) {
		return f.responses[idx]
	}
	return nil
}

func newTestWriter(t *testing.T, batchSize int) (*BigQueryWriter, *fakeInserter) {
	t.Helper()
	fake := &fakeInserter{}
	w, err := New(fake, Config{
		OrderEventsTable: "order_events",
		BatchSize:        batchSize,
		RetryPolicy:      RetryPolicy{InitialBackoff: time.Millisecond, MaximumBackoff: time.Millisecond},
	})
	require.NoError(t, err)
	return w, fake
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, Config{OrderEventsTable: "order_events"})
	assert.Error(t, err)
	_, err = New(&fakeInserter{}, Config{OrderEventsTable: " "})
	assert.Error(t, err)

	w, err := New(&fakeInserter{}, Config{OrderEventsTable: "order_events"})
	require.NoError(t, err)
	assert.Equal(t, defaultMaxAttempts, w.retry.MaxAttempts)
	assert.Equal(t, defaultMaximumBackoff, w.retry.MaximumBackoff)
}

func TestRetriesTransientErrors(t *testing.T) {
	w, fake := newTestWriter(t, 1)
	fake.responses = []error{&googleapi.Error{Code: http.StatusServiceUnavailable}, nil}

	require.NoError(t, w.InsertOrderEvent(context.Background(), types.OrderEventRow{EventID: "1"}))
	require.Len(t, fake.calls, 2)
	assert.Equal(t, "order_events", fake.calls[1].table)
	assert.Zero(t, w.Buffered())
}

func TestStopsAfterMaxAttempts(t *testing.T) {
	w, fake := newTestWriter(t, 1)
	unavailable := &googleapi.Error{Code: http.StatusServiceUnavailable}
	fake.responses = []error{unavailable, unavailable, unavailable, unavailable}

	err := w.InsertOrderEvent(context.Background(), types.OrderEventRow{EventID: "1"})
	require.Error(t, err)
	assert.Len(t, fake.calls, defaultMaxAttempts)
	assert.Equal(t, 1, w.Buffered())
}

func TestPermanentErrorIsNotRetried(t *testing.T) {
	w, fake := newTestWriter(t, 1)
	fake.responses = []error{&googleapi.Error{Code: http.StatusBadRequest}}

	require.Error(t, w.InsertOrderEvent(context.Background(), types.OrderEventRow{EventID: "1"}))
	assert.Len(t, fake.calls, 1)
}

func TestBatchesUntilFull(t *testing.T) {
	w, fake := newTestWriter(t, 2)

	require.NoError(t, w.InsertOrderEvent(context.Background(), types.OrderEventRow{EventID: "1"}))
	assert.Empty(t, fake.calls)
	require.NoError(t, w.InsertOrderEvent(context.Background(), types.OrderEventRow{EventID: "2"}))
	require.Len(t, fake.calls, 1)
	assert.Equal(t, 2, fake.calls[0].rowCount)
}

func TestFlushDrainsPartialBatch(t *testing.T) {
	w, fake := newTestWriter(t, 10)
	require.NoError(t, w.InsertOrderEvent(context.Background(), types.OrderEventRow{EventID: "1"}))
	require.NoError(t, w.Flush(context.Background()))
	assert.Len(t, fake.calls, 1)
	assert.Zero(t, w.Buffered())

	require.NoError(t, w.Flush(context.Background()))
	assert.Len(t, fake.calls, 1)
}

func TestEncodeJSON(t *testing.T) {
	nj, err := EncodeJSON(map[string]any{"foo": "bar"})
	require.NoError(t, err)
	assert.True(t, nj.Valid)
	assert.JSONEq(t, `{"foo":"bar"}`, nj.JSONVal)

	nj, err = EncodeJSON(nil)
	require.NoError(t, err)
	assert.False(t, nj.Valid)

	nj, err = EncodeJSON(json.RawMessage(`{"foo":"baz"}`))
	require.NoError(t, err)
	assert.Equal(t, `{"foo":"baz"}`, nj.JSONVal)

	nj, err = EncodeJSON([]byte{})
	require.NoError(t, err)
	assert.False(t, nj.Valid)
}
