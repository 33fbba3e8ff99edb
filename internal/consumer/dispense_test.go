package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hray3182/DoseLine/internal/apperror"
	"github.com/hray3182/DoseLine/internal/models"
)

type fakeCreator struct {
	mu    sync.Mutex
	calls []string
	err   error
	known map[string]bool
}

func (f *fakeCreator) AutoCreateReminder(_ context.Context, prescriptionID string) (*models.Reminder, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, prescriptionID)
	if f.err != nil {
		return nil, false, f.err
	}
	if f.known[prescriptionID] {
		return nil, false, nil
	}
	if f.known == nil {
		f.known = make(map[string]bool)
	}
	f.known[prescriptionID] = true
	return &models.Reminder{ReminderID: "r-" + prescriptionID, PrescriptionID: prescriptionID}, true, nil
}

func (f *fakeCreator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeReader hands out queued messages then blocks until ctx is done
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func message(offset int64, value string) kafka.Message {
	return kafka.Message{Offset: offset, Value: []byte(value)}
}

func TestHandleMessage(t *testing.T) {
	tests := []struct {
		name       string
		value      string
		err        error
		wantCommit bool
		wantCalls  int
	}{
		{"created", `{"event_id":"e-1","prescription_id":"rx-1","patient_id":"p-1"}`, nil, true, 1},
		{"undecodable", `not json`, nil, true, 0},
		{"missing prescription", `{"event_id":"e-2","prescription_id":"  "}`, nil, true, 0},
		{"rejected prescription", `{"prescription_id":"rx-9"}`, apperror.NotFound("prescription", "rx-9"), true, 1},
		{"not dispensed", `{"prescription_id":"rx-2"}`, apperror.InvalidState("prescription has not been dispensed"), true, 1},
		{"database down", `{"prescription_id":"rx-1"}`, errors.New("connection refused"), false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creator := &fakeCreator{err: tt.err}
			c := NewDispenseConsumer(&fakeReader{}, creator, zap.NewNop())

			got := c.handleMessage(context.Background(), message(1, tt.value))
			assert.Equal(t, tt.wantCommit, got)
			assert.Equal(t, tt.wantCalls, creator.callCount())
		})
	}
}

func TestHandleMessage_RedeliveryIsNoOp(t *testing.T) {
	creator := &fakeCreator{}
	c := NewDispenseConsumer(&fakeReader{}, creator, zap.NewNop())
	value := `{"event_id":"e-1","prescription_id":"rx-1"}`

	assert.True(t, c.handleMessage(context.Background(), message(1, value)))
	assert.True(t, c.handleMessage(context.Background(), message(1, value)))
	assert.Equal(t, []string{"rx-1", "rx-1"}, creator.calls)
}

func TestRun_CommitsHandledMessages(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		message(10, `{"prescription_id":"rx-1"}`),
		message(11, `garbage`),
		message(12, `{"prescription_id":"rx-3"}`),
	}}
	creator := &fakeCreator{}
	c := NewDispenseConsumer(reader, creator, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(reader.commits()) == 3
	}, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.Equal(t, []int64{10, 11, 12}, reader.commits())
	assert.Equal(t, 2, creator.callCount())

	require.NoError(t, c.Close())
	assert.True(t, reader.closed)
}

func TestRun_LeavesFailedMessageUncommitted(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		message(20, `{"prescription_id":"rx-1"}`),
	}}
	creator := &fakeCreator{err: errors.New("connection refused")}
	c := NewDispenseConsumer(reader, creator, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		return creator.callCount() == 1
	}, time.Second, 10*time.Millisecond)
	cancel()
	<-done

	assert.Empty(t, reader.commits())
}
