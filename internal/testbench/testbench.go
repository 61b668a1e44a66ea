package testbench

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/i5heu/GoBlockingQueue/internal/queue"
)

// Config is only about concurrency: how many producers, how many consumers.
type Config struct {
	NumProducers int
	NumConsumers int
}

// RunTimedTest spawns producers and consumers against a blocking queue and
// measures how many messages actually pass through it in the given window.
//
// Blocking queues need a different shutdown protocol than try-dequeue ones:
// a consumer parked in Pop on a drained queue would never come back. So once
// the window expires and every producer has exited, one stop sentinel per
// consumer is pushed through the queue itself. FIFO order guarantees the
// sentinels come out after all real traffic, and each consumer quits on the
// first sentinel it sees, so every produced message is consumed exactly once.
// The caller supplies the sentinel value and the predicate that recognizes
// it; isStop must never match a generated message.
//
// Returns the totals and the elapsed wall time including the drain.
func RunTimedTest[T any, Q queue.QueueValidationInterface[T]](
	q Q,
	cfg Config,
	testDuration time.Duration,
	valueGenerator func(int) T,
	stop T,
	isStop func(T) bool,
) (producedCount int64, consumedCount int64, elapsed time.Duration) {

	ctx, cancel := context.WithTimeout(context.Background(), testDuration)
	defer cancel()

	var totalProduced int64
	var totalConsumed int64

	start := time.Now()

	var msgIndex int64

	var prodWg sync.WaitGroup
	prodWg.Add(cfg.NumProducers)
	for i := 0; i < cfg.NumProducers; i++ {
		go func() {
			defer prodWg.Done()
			// A producer parked in Push when the window closes is fine:
			// consumers keep draining until the sentinels, so the final Push
			// completes and the loop exits on the next check.
			for ctx.Err() == nil {
				idx := atomic.AddInt64(&msgIndex, 1) - 1
				q.Push(valueGenerator(int(idx)))
				atomic.AddInt64(&totalProduced, 1)
			}
		}()
	}

	var consWg sync.WaitGroup
	consWg.Add(cfg.NumConsumers)
	for i := 0; i < cfg.NumConsumers; i++ {
		go func() {
			defer consWg.Done()
			for {
				val := q.Pop()
				if isStop(val) {
					return
				}
				atomic.AddInt64(&totalConsumed, 1)
			}
		}()
	}

	<-ctx.Done()
	prodWg.Wait()

	// All real traffic is in the queue or already consumed; the sentinels
	// land behind it.
	for i := 0; i < cfg.NumConsumers; i++ {
		q.Push(stop)
	}
	consWg.Wait()

	elapsed = time.Since(start)
	producedCount = atomic.LoadInt64(&totalProduced)
	consumedCount = atomic.LoadInt64(&totalConsumed)
	return producedCount, consumedCount, elapsed
}
