// Package store provides the durable, deduplicating history table shared by
// every machine that syncs against this host.
//
// The store is an append-only event log modeled as a set: each entry is keyed
// by the triple (when, cmd, extra), duplicate submissions collapse to one row,
// and rows are never updated or deleted. Rowid order preserves insertion
// order, which breaks ties between entries sharing a timestamp stably across
// repeated reads.
//
// SQLite is the backing medium; its transaction and locking machinery is the
// isolation boundary between concurrent sync sessions. One session's ingest
// is atomic as a whole — another session reading concurrently sees either
// none of the batch or all of it.
package store
