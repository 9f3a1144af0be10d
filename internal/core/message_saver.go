package core

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Conversly/whatsapp-concierge/internal/utils"
)

// MessageSaver batches message records and writes them in the background.
type MessageSaver struct {
	store         MessageStore
	ch            chan MessageRecord
	batchSize     int
	flushInterval time.Duration
	stopCh        chan struct{}
	stoppedCh     chan struct{}
	stopOnce      sync.Once
}

const (
	defaultMsgBatchSize    = 100
	defaultFlushInterval   = 500 * time.Millisecond
	defaultChannelCapacity = 10000
)

// NewMessageSaver starts a saver goroutine. Call Stop to drain it.
func NewMessageSaver(store MessageStore, batchSize int) *MessageSaver {
	return newMessageSaver(store, batchSize, defaultFlushInterval, defaultChannelCapacity)
}

func newMessageSaver(store MessageStore, batchSize int, flushInterval time.Duration, capacity int) *MessageSaver {
	if batchSize <= 0 {
		batchSize = defaultMsgBatchSize
	}
	w := &MessageSaver{
		store:         store,
		ch:            make(chan MessageRecord, capacity),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *MessageSaver) run() {
	defer close(w.stoppedCh)
	batch := make([]MessageRecord, 0, w.batchSize)
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.store.BatchInsertMessages(ctx, batch); err != nil {
			utils.Zlog.Error("Failed to batch insert messages", zap.Error(err), zap.Int("count", len(batch)))
			// Best-effort: retry once
			if err2 := w.store.BatchInsertMessages(ctx, batch); err2 != nil {
				utils.Zlog.Error("Retry failed for batch insert messages", zap.Error(err2), zap.Int("count", len(batch)))
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case rec := <-w.ch:
			batch = append(batch, rec)
			if len(batch) >= w.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-w.stopCh:
			// Drain channel
			for {
				select {
				case rec := <-w.ch:
					batch = append(batch, rec)
					if len(batch) >= w.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// Enqueue hands a record to the saver. When the queue is full the record is
// written directly in its own goroutine.
func (w *MessageSaver) Enqueue(rec MessageRecord) {
	select {
	case w.ch <- rec:
	default:
		go func(r MessageRecord) {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := w.store.BatchInsertMessages(ctx, []MessageRecord{r}); err != nil {
				utils.Zlog.Error("Direct message insert failed", zap.Error(err))
			}
		}(rec)
	}
}

// Stop flushes pending records and waits for the saver goroutine to exit.
func (w *MessageSaver) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.stoppedCh
}
