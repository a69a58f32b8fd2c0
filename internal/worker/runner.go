package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"mailvetter/internal/orchestrator"
	"mailvetter/internal/queue"
	"mailvetter/internal/store"
)

// Start launches a pool of worker goroutines and blocks until every goroutine
// has exited. The caller signals shutdown by cancelling ctx. orch is the
// shared pipeline every goroutine routes tasks through.
func Start(ctx context.Context, concurrency int, orch *orchestrator.Orchestrator) {
	log.Printf("👷 Starting Worker Pool with %d concurrent routines...", concurrency)

	var wg sync.WaitGroup

	for i := 1; i <= concurrency; i++ {
		wg.Add(1)

		go func(workerID int) {
			defer wg.Done()

			for {
				// BLPop with a short timeout instead of 0 (block forever).
				//
				// Using a non-zero timeout means the call returns periodically
				// even on an idle queue, giving us a natural checkpoint to test
				// ctx.Err() and exit the loop cleanly on shutdown.
				result, err := queue.Client.BLPop(ctx, 2*time.Second, queue.QueueName).Result()
				if err != nil {
					// Context cancelled or deadline exceeded — this is the clean
					// shutdown path. Exit the goroutine immediately.
					if ctx.Err() != nil {
						log.Printf("[Worker %d] 🛑 Shutdown signal received, exiting.", workerID)
						return
					}

					// redis.Nil means BLPop timed out with no work available.
					// Completely normal — loop and wait again.
					if errors.Is(err, queue.ErrNil) {
						continue
					}

					// Any other error (network blip, Redis restart, etc.).
					log.Printf("[Worker %d] ⚠️  BLPop error: %v — backing off 1s", workerID, err)
					select {
					case <-time.After(1 * time.Second):
					case <-ctx.Done():
						log.Printf("[Worker %d] 🛑 Shutdown during backoff, exiting.", workerID)
						return
					}
					continue
				}

				// BLPop returns a two-element slice: [queueName, payload].
				rawJSON := result[1]
				var task queue.Task
				if err := json.Unmarshal([]byte(rawJSON), &task); err != nil {
					log.Printf("[Worker %d] ❌ Malformed task (skipping): %s — %v", workerID, rawJSON, err)
					continue
				}

				processTask(ctx, workerID, task, orch)
			}
		}(i)
	}

	// Block until every goroutine has returned. When ctx is cancelled, all
	// workers exit their loops (after finishing any in-flight job), wg reaches
	// zero, and this call returns.
	wg.Wait()
	log.Println("👷 All workers exited. Pool shut down.")
}

// processTask runs a single verification job in its own function so that
// defer statements (cancel, tx.Rollback) have a well-defined scope that ends
// when the task is complete, not at the end of the outer goroutine loop.
func processTask(ctx context.Context, workerID int, task queue.Task, orch *orchestrator.Orchestrator) {
	// Each job gets its own deadline. If a particular domain causes a probe
	// to hang (e.g. a firewall silently dropping TCP to port 25), this
	// ceiling ensures the worker slot is recycled within a bounded time.
	valCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	res := orch.Verify(valCtx, task.CustomerID, task.Email)

	resultJSON, err := json.Marshal(res)
	if err != nil {
		log.Printf("[Worker %d] ❌ Failed to marshal result for %s: %v", workerID, task.Email, err)
		return
	}

	// Use the parent ctx (not valCtx) for the DB transaction. The
	// verification timeout should not also cut off our ability to persist
	// the result.
	tx, err := store.DB.Begin(ctx)
	if err != nil {
		log.Printf("[Worker %d] ❌ DB transaction error for %s: %v", workerID, task.Email, err)
		return
	}
	// Rollback is a no-op if Commit succeeds, so it is always safe to defer.
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO results (job_id, email, score, data)
		VALUES ($1, $2, $3, $4)
	`, task.JobID, task.Email, res.Confidence, resultJSON)
	if err != nil {
		log.Printf("[Worker %d] ❌ Failed to insert result for %s: %v", workerID, task.Email, err)
		return
	}

	_, err = tx.Exec(ctx, `
		UPDATE jobs
		SET processed_count = processed_count + 1,
		    status = CASE WHEN processed_count + 1 >= total_count THEN 'completed' ELSE status END,
		    completed_at = CASE WHEN processed_count + 1 >= total_count THEN NOW() ELSE completed_at END
		WHERE id = $1
	`, task.JobID)
	if err != nil {
		log.Printf("[Worker %d] ❌ Failed to update job progress for %s: %v", workerID, task.Email, err)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		log.Printf("[Worker %d] ❌ Failed to commit for %s: %v", workerID, task.Email, err)
		return
	}

	fmt.Printf("[Worker %d] ✅ Processed: %s (status: %s, confidence: %d)\n", workerID, task.Email, res.Status, res.Confidence)
}
