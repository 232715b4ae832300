// Package snapshot writes extracted storage groups to checksummed files.
//
// One file holds one key group at one block:
//
//	<group>-<yyyymmddhhmmss>-<seq>.snap
//	[magic:8 "LEDGSNAP"]
//	[HeaderLen:4][HeaderJSON:HeaderLen]
//	[DataLen:4][Data:DataLen]   (SCALE Vec<(Vec<u8>, Option<Vec<u8>>)>, or encrypted bytes)
//	[checksum:32 SHA-256 of all bytes above]
//
// The header carries the CIDv1 of the plaintext data block, so two
// snapshots of the same state have the same CID regardless of
// encryption. Groups can also be exported as JSON arrays of 0x-hex
// values.
package snapshot
