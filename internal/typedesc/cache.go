package typedesc

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// StructuralHash is a content-addressed cache key for a TypeObject: two
// TypeObjects with the same StructuralHash are structurally identical, so
// an assignability decision computed for one can be reused for the other.
// Distinct from TypeID, which hashes the type's name, not its shape.
type StructuralHash [blake2b.Size256]byte

// Hash computes the StructuralHash of a TypeObject by folding its
// extensibility and field layout into a blake2b-256 digest.
func Hash(obj *TypeObject) StructuralHash {
	h, _ := blake2b.New256(nil)
	var scratch [4]byte

	binary.BigEndian.PutUint32(scratch[:], uint32(obj.Extensibility))
	h.Write(scratch[:])

	for _, f := range obj.Fields {
		h.Write([]byte(f.Name))
		h.Write([]byte{byte(f.Kind)})
		binary.BigEndian.PutUint32(scratch[:], uint32(f.Offset))
		h.Write(scratch[:])
		binary.BigEndian.PutUint32(scratch[:], f.MemberID)
		h.Write(scratch[:])
		if f.IsKey {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
		if f.Optional {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
		if f.Element != nil {
			elemHash := Hash(f.Element.TypeObject)
			h.Write(elemHash[:])
		}
	}

	var out StructuralHash
	copy(out[:], h.Sum(nil))
	return out
}

// AssignabilityCache memoizes Assignable decisions keyed by the pair of
// StructuralHashes involved, avoiding repeated field-by-field walks for
// topics shared by many matched endpoints of the same type.
type AssignabilityCache struct {
	entries map[[2]StructuralHash]bool
}

// NewAssignabilityCache returns an empty cache.
func NewAssignabilityCache() *AssignabilityCache {
	return &AssignabilityCache{entries: make(map[[2]StructuralHash]bool)}
}

// Assignable returns Assignable(writer, reader), computing and memoizing it
// on first use for this (writer, reader) structural shape pair.
func (c *AssignabilityCache) Assignable(writer, reader *TypeObject) bool {
	key := [2]StructuralHash{Hash(writer), Hash(reader)}
	if v, ok := c.entries[key]; ok {
		return v
	}
	v := Assignable(writer, reader)
	c.entries[key] = v
	return v
}
