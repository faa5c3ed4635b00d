// Package writer persists aggregate records to the durable log.
//
// Sinks:
//   - FileSink: one text file per ticker in the legacy line format
//   - PostgresSink: the aggregates table
//
// The JournalWriter consumes store mutations queued by the router, applies
// them to a Sink in order and retries failed writes with backoff. A write
// that still fails is logged and counted as dropped; the simulation never
// stops because the log is unavailable.
package writer
