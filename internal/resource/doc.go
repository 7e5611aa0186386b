// Package resource implements the resource controller that bounds
// high-frequency analysis and cache loading.
//
// The controller manages four resources:
//
//   - Workers: slots for parallel analysis scans (weighted semaphore)
//   - Memory: bytes pinned by locally loaded exclusion sets
//   - IO: read throughput of row sources (token bucket)
//   - Rows: rows scanned per second across all workers (token bucket)
//
// # Worker Slots
//
// AcquireWorkers blocks for one slot and opportunistically takes more, so a
// busy process still makes progress with fewer workers:
//
//	n, err := rc.AcquireWorkers(ctx, 8)
//	if err != nil {
//	    return err
//	}
//	defer rc.ReleaseWorkers(n)
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully; they become no-ops.
package resource
