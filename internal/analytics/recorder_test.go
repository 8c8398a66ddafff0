package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tempizhere/redirector/internal/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type stubClickStore struct {
	mu     sync.Mutex
	events []*models.ClickEvent
	err    error
	panics bool
	block  chan struct{}
	ctxErr error
}

func (s *stubClickStore) InsertClick(ctx context.Context, ev *models.ClickEvent) error {
	if s.block != nil {
		<-s.block
	}
	if s.panics {
		panic("store exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctxErr = ctx.Err()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *stubClickStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestRecorder_Record(t *testing.T) {
	store := &stubClickStore{}
	recorder := NewRecorder(store, "secret")
	mappingID := uuid.New()

	err := recorder.Record(context.Background(), mappingID, models.RequestMeta{UserAgent: "iPad"})
	require.NoError(t, err)
	require.Equal(t, 1, store.count())
	assert.Equal(t, models.DeviceTablet, store.events[0].DeviceClass)

	store.err = errors.New("store unavailable")
	assert.Error(t, recorder.Record(context.Background(), mappingID, models.RequestMeta{}))
}

func TestDispatcher_Dispatch(t *testing.T) {
	store := &stubClickStore{}
	dispatcher := NewDispatcher(NewRecorder(store, "secret"), time.Second, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	dispatcher.Dispatch(ctx, uuid.New(), models.RequestMeta{UserAgent: "curl/8.0"})
	// Отмена запроса после отправки ответа не прерывает запись
	cancel()
	dispatcher.Wait()

	assert.Equal(t, 1, store.count())
	assert.NoError(t, store.ctxErr)
}

func TestDispatcher_CancelledBeforeDispatch(t *testing.T) {
	store := &stubClickStore{}
	dispatcher := NewDispatcher(NewRecorder(store, "secret"), time.Second, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dispatcher.Dispatch(ctx, uuid.New(), models.RequestMeta{})
	dispatcher.Wait()

	assert.Equal(t, 0, store.count())
}

func TestDispatcher_FailuresAreSwallowed(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)

	t.Run("Store error", func(t *testing.T) {
		store := &stubClickStore{err: errors.New("store unavailable")}
		dispatcher := NewDispatcher(NewRecorder(store, "secret"), time.Second, logger)

		assert.NotPanics(t, func() {
			dispatcher.Dispatch(context.Background(), uuid.New(), models.RequestMeta{})
			dispatcher.Wait()
		})
	})

	t.Run("Store panic", func(t *testing.T) {
		store := &stubClickStore{panics: true}
		dispatcher := NewDispatcher(NewRecorder(store, "secret"), time.Second, logger)

		assert.NotPanics(t, func() {
			dispatcher.Dispatch(context.Background(), uuid.New(), models.RequestMeta{})
			dispatcher.Wait()
		})
	})

	assert.Equal(t, 1, logs.FilterMessage("Failed to record click").Len())
	assert.Equal(t, 1, logs.FilterMessage("Click recording panicked").Len())
}

func TestDispatcher_Shutdown(t *testing.T) {
	store := &stubClickStore{block: make(chan struct{})}
	dispatcher := NewDispatcher(NewRecorder(store, "secret"), time.Second, zap.NewNop())

	dispatcher.Dispatch(context.Background(), uuid.New(), models.RequestMeta{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, dispatcher.Shutdown(ctx), context.DeadlineExceeded)

	close(store.block)
	assert.NoError(t, dispatcher.Shutdown(context.Background()))
	assert.Equal(t, 1, store.count())
}

func TestNewDispatcher_DefaultTimeout(t *testing.T) {
	dispatcher := NewDispatcher(NewRecorder(&stubClickStore{}, "secret"), 0, zap.NewNop())
	assert.Equal(t, DefaultTimeout, dispatcher.timeout)
}
