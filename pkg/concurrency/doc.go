/*
Package concurrency provides goroutine pool primitives.

Features:
  - WorkerPool: fixed-size goroutine pool used by the supervisor to
    provision input/output/dead-letter topics in parallel at startup
*/
package concurrency
