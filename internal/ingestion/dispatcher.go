package ingestion

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/pkg/utils"
	"go.uber.org/zap"
)

// ShardDispatcher fans incoming events out to a fixed set of ordered workers.
// Events sharing a shard key are executed by the same worker in submission
// order; events on different keys run concurrently.
type ShardDispatcher struct {
	shards   []chan func()
	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopOnce sync.Once
	stopped  bool
}

// NewShardDispatcher creates a dispatcher with the given number of shard
// workers, each with a bounded task queue, and starts the workers.
func NewShardDispatcher(shardCount, queueSize int) *ShardDispatcher {
	if shardCount <= 0 {
		shardCount = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}

	d := &ShardDispatcher{
		shards: make([]chan func(), shardCount),
	}

	for i := 0; i < shardCount; i++ {
		ch := make(chan func(), queueSize)
		d.shards[i] = ch
		d.wg.Add(1)
		shard := i
		go d.runWorker(shard, ch)
	}

	return d
}

func (d *ShardDispatcher) runWorker(shard int, ch chan func()) {
	defer d.wg.Done()
	label := fmt.Sprintf("%d", shard)
	for task := range ch {
		observer.SetIngestShardQueueDepth(label, len(ch))
		func() {
			defer utils.RecoverWithLog(context.Background(), fmt.Sprintf("ingest shard %d task", shard))
			task()
		}()
	}
	observer.SetIngestShardQueueDepth(label, 0)
}

// shardFor maps a key onto a shard index with FNV-1a.
func (d *ShardDispatcher) shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(d.shards)))
}

// Submit enqueues a task on the shard owning key. It blocks while the shard
// queue is full, which back-pressures the consumer's fetch loop. Submitting
// after Stop drops the task.
func (d *ShardDispatcher) Submit(key string, task func()) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		if logger.Log != nil {
			logger.Log.Warn("Dropping task submitted after dispatcher stop", zap.String("key", key))
		}
		return
	}
	d.shards[d.shardFor(key)] <- task
}

// Stop closes all shard queues and waits for in-flight tasks to drain.
func (d *ShardDispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.stopped = true
		d.mu.Unlock()
		for _, ch := range d.shards {
			close(ch)
		}
	})
	d.wg.Wait()
}
