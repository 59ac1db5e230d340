// Package archive persists realtime channel events to PostgreSQL.
//
// The writer subscribes to the message bus and batches derived-state
// events (node status, device metrics, alerts) into a single
// network_events table. Inserts are append-only; the table is the
// dashboard's replay log, not its live state.
package archive
