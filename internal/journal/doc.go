// Package journal persists session lifecycle events to PostgreSQL.
//
// Writer subscribes to every event channel of a session dispatcher. Event
// handlers only enqueue a row; batching and inserts happen on the writer's
// own goroutines so a slow database never blocks a state transition. When
// the queue is full new rows are dropped and counted.
package journal
