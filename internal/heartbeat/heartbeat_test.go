package heartbeat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu sync.Mutex

	heartbeatCalls int
	heartbeatErr   error

	staleIDs []int64
	staleErr error

	cancelled []int64
	cancelErr error
}

func (f *fakeStore) Heartbeat(_ context.Context, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.heartbeatCalls++

	return f.heartbeatErr
}

func (f *fakeStore) StaleHeartbeatDeployments(_ context.Context, _ time.Duration) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.staleIDs, f.staleErr
}

func (f *fakeStore) CancelByID(_ context.Context, id int64, note *string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancelErr != nil {
		return 0, f.cancelErr
	}

	f.cancelled = append(f.cancelled, id)

	_ = note

	return 1, nil
}

func (f *fakeStore) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.heartbeatCalls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWriter_StopsCleanly(t *testing.T) {
	store := &fakeStore{}
	w := NewWriter(store, 42, testLogger())

	w.Start()
	w.Stop()

	assert.Equal(t, 0, store.calls(), "stopped before first tick, no heartbeat should have fired")
}

func TestWriter_StopIsIdempotent(t *testing.T) {
	store := &fakeStore{}
	w := NewWriter(store, 42, testLogger())

	w.Start()
	w.Stop()

	require.NotPanics(t, func() {
		w.Stop()
	})
}

func TestSweep_CancelsStaleDeployments(t *testing.T) {
	store := &fakeStore{staleIDs: []int64{101, 102}}

	err := Sweep(context.Background(), store, 999, testLogger())
	require.NoError(t, err)

	assert.Equal(t, []int64{101, 102}, store.cancelled)
}

func TestSweep_NoStaleDeployments(t *testing.T) {
	store := &fakeStore{}

	err := Sweep(context.Background(), store, 999, testLogger())
	require.NoError(t, err)

	assert.Empty(t, store.cancelled)
}

func TestSweep_PropagatesFetchError(t *testing.T) {
	wantErr := errors.New("connection reset")
	store := &fakeStore{staleErr: wantErr}

	err := Sweep(context.Background(), store, 999, testLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
}

func TestSweep_PropagatesCancelError(t *testing.T) {
	wantErr := errors.New("row locked")
	store := &fakeStore{staleIDs: []int64{101}, cancelErr: wantErr}

	err := Sweep(context.Background(), store, 999, testLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
}
