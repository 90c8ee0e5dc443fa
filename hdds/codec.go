// Copyright 2024 The hdds Authors.

package hdds

// Codec serializes and deserializes application samples of type T. IDL
// code generation is out of core scope (spec.md §1 Non-goals); callers
// supply their own Codec, typically backed by a generated or hand-written
// CDR encoder over internal/cdr, or any other wire format they choose —
// the core only ever handles the resulting bytes.
type Codec[T any] interface {
	Marshal(v T) ([]byte, error)
	Unmarshal(data []byte) (T, error)
}
