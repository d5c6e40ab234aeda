// Package storage persists arbor pages.
//
// # Overview
//
// A PageStore turns pages into records and hands them to a Backend:
//
//   - FileBackend appends records to pages.arb after a 4 KiB header
//     region holding two alternating header slots
//   - BadgerBackend keeps records in a badger database, written in one
//     batch per commit ahead of the head key
//
// Each record is framed as
//
//	flags u8 | crc32 u32 | payload
//
// where the payload is page.Encode output, optionally zstd compressed.
//
// # Commit Protocol
//
// Writers call Persist on the new uber page reference. Persist writes
// every dirty page bottom-up and skips references that already carry a
// storage key, so unchanged subtrees are shared with older revisions.
// CommitHead then makes the records durable and publishes the new uber
// page key. A crash before CommitHead leaves the previous head in place;
// the orphaned records are never referenced.
//
// # Caching
//
// Decoded pages are kept in an LRUCache. Concurrent loads of the same key
// are collapsed with singleflight. Cached pages are shared between
// readers and must never be mutated.
package storage
