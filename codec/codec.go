// Package codec converts typed values to the opaque bytes access strategies
// store in regions. See access.Typed.
package codec

// Codec encodes/decodes values V to []byte for storage.
// Decode must accept any output of Encode; it may reject anything else.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
