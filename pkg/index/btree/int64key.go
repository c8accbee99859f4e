package btree

import "encoding/binary"

// Int64Key is the concrete KeyCodec/Comparator instantiation for int64
// index keys — the common case of indexing on a numeric primary key.
type Int64Key struct{}

// Size implements storage.KeyCodec[int64].
func (Int64Key) Size() int { return 8 }

// Encode implements storage.KeyCodec[int64].
func (Int64Key) Encode(k int64, buf []byte) {
	binary.LittleEndian.PutUint64(buf, uint64(k))
}

// Decode implements storage.KeyCodec[int64].
func (Int64Key) Decode(buf []byte) int64 {
	return int64(binary.LittleEndian.Uint64(buf))
}

// CompareInt64 is the storage.Comparator[int64] for Int64Key.
func CompareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
