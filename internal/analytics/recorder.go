package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tempizhere/redirector/internal/models"
	"go.uber.org/zap"
)

// DefaultTimeout ограничивает время записи одного перехода
const DefaultTimeout = 5 * time.Second

// ClickStore сохраняет события переходов
type ClickStore interface {
	InsertClick(ctx context.Context, ev *models.ClickEvent) error
}

// Recorder строит и сохраняет события переходов
type Recorder struct {
	store  ClickStore
	secret string
	now    func() time.Time
}

// NewRecorder создаёт Recorder
func NewRecorder(store ClickStore, secret string) *Recorder {
	return &Recorder{
		store:  store,
		secret: secret,
		now:    time.Now,
	}
}

// Record синхронно сохраняет переход по ссылке mappingID
func (r *Recorder) Record(ctx context.Context, mappingID uuid.UUID, meta models.RequestMeta) error {
	ev := BuildEvent(mappingID, meta, r.now(), r.secret)
	if err := r.store.InsertClick(ctx, ev); err != nil {
		return fmt.Errorf("record click: %w", err)
	}
	return nil
}

// Dispatcher запускает запись переходов в фоне
type Dispatcher struct {
	recorder *Recorder
	timeout  time.Duration
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// NewDispatcher создаёт Dispatcher
func NewDispatcher(recorder *Recorder, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		recorder: recorder,
		timeout:  timeout,
		logger:   logger,
	}
}

// Dispatch записывает переход в отдельной горутине и сразу возвращает управление.
// Если ctx уже отменён, запрос прерван до ответа и переход не записывается.
func (d *Dispatcher) Dispatch(ctx context.Context, mappingID uuid.UUID, meta models.RequestMeta) {
	if ctx.Err() != nil {
		d.logger.Debug("Request cancelled, click dropped", zap.String("mapping_id", mappingID.String()))
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				d.logger.Warn("Click recording panicked", zap.Any("panic", rec), zap.String("mapping_id", mappingID.String()))
			}
		}()

		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		if err := d.recorder.Record(recordCtx, mappingID, meta); err != nil {
			d.logger.Warn("Failed to record click", zap.String("mapping_id", mappingID.String()), zap.Error(err))
		}
	}()
}

// Wait ожидает завершения всех запущенных записей
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Shutdown ожидает завершения записей не дольше, чем живёт ctx
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
