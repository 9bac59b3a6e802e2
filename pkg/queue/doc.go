// Package queue implements a persistent job queue with priority ordering,
// delayed visibility, bounded retries and stalled-job recovery.
//
// Three pieces cooperate through small storage interfaces:
//
//   - Enqueuer serializes payloads and creates jobs. Enqueueing is fail-fast:
//     when the caller's context carries no deadline a short one is applied,
//     so a slow or unreachable backend surfaces as an error instead of
//     blocking the producer.
//   - Worker claims jobs from one or more named queues with a bounded pool
//     of concurrent handlers, recovers from handler panics, and applies
//     exponential backoff between retry attempts.
//   - Storage implementations persist jobs: MemoryStorage for tests and
//     single-process setups, RedisStorage for production.
//
// Ordering is priority first, then enqueue order. Lower priority values are
// more urgent, so PriorityHigh jobs always claim before PriorityNormal ones
// regardless of age. A claimed job holds a lock for a fixed window; if the
// worker dies the lock expires and the job becomes claimable again without
// consuming a retry attempt. Completed and failed jobs are retained up to a
// per-status cap for inspection and pruned beyond it.
package queue
