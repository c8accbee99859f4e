package storage

// Comparator gives a total order over keys of type K: negative if a < b,
// zero if a == b, positive if a > b. This is spec.md §4.3's "total-order
// comparator" template parameter, expressed as a Go generic function value
// instead of a C++ template argument.
type Comparator[K any] func(a, b K) int

// KeyCodec converts a fixed-width key type to and from the byte slots a
// B+Tree page stores on disk. Spec.md §9's design note on template-
// parameterized pages calls for "keys are fixed-width byte arrays with an
// associated comparator" — KeyCodec.Size is that fixed width.
type KeyCodec[K any] interface {
	// Size is the fixed number of bytes Encode writes and Decode reads.
	Size() int
	// Encode writes k into the first Size() bytes of buf.
	Encode(k K, buf []byte)
	// Decode reads a key from the first Size() bytes of buf.
	Decode(buf []byte) K
}
