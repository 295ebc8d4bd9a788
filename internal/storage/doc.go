// Package storage is the durable record store: users, attached accounts,
// destinations, message drafts and the append-only action log.
//
// Two SQL backends share one implementation:
//   - "sqlite": pure-Go modernc driver, single writer connection
//   - "postgres": lib/pq
//
// Every logical write runs in one transaction, together with the audit
// entry that describes it.
package storage
