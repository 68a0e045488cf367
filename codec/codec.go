// Package codec serializes region envelopes (or any value) to the bytes a
// provider stores. Every codec must round-trip the envelope shape: maps of
// scalar values, identifier maps, lists of identifier maps and timestamps.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
