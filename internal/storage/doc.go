// Package storage persists pulled ledger rounds.
//
// LedgerStore keeps receivers, senders and the checkpoint that covers
// them in an embedded Badger database. Each round is committed in a
// single transaction, so a restarted pull resumes from a checkpoint that
// matches the stored records exactly.
//
// Key layout:
//
//	m/checkpoint    SCALE checkpoint
//	m/receivers     u64 BE receiver count
//	m/senders       u64 BE sender count
//	m/rounds        u64 BE committed rounds
//	r/<seq u64 BE>  SCALE receiver
//	s/<seq u64 BE>  SCALE sender
//
// Storage snapshots of extracted key groups live in the snapshot
// subpackage.
package storage
