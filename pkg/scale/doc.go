// Package scale implements the SCALE binary encoding used by Substrate chains.
//
// The encoding is positional and carries no type information:
//
//   - Fixed-width integers: little-endian (u8, u64)
//   - bool: one byte, 0x00 or 0x01
//   - Fixed-size byte arrays: stored verbatim
//   - Option<T>: presence byte (0x00 None, 0x01 Some) followed by T
//   - Vec<T>, String: compact length prefix followed by the elements
//   - Tuples and structs: field encodings concatenated in declared order
//
// Compact integers use the two low bits of the first byte as a mode tag:
//
//	0b00  single byte,  value < 2^6
//	0b01  two bytes,    value < 2^14
//	0b10  four bytes,   value < 2^30
//	0b11  big integer,  header (n-4)<<2|0b11 then n little-endian bytes
//
// Decoding is strict. Truncated input, trailing bytes after a single value,
// out-of-range tags and non-minimal compact encodings are all rejected, so a
// decoded value always re-encodes to exactly the bytes it came from.
package scale
