// Package actions stores pending and failed actions in SQLite. Pending rows
// are ordered by an autoincrement sequence that is never reused, so replay
// order always matches enqueue order.
package actions
