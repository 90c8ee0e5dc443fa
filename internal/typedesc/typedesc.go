// Package typedesc describes the wire layout of a sample type and decides
// whether a writer's type is compatible with a reader's (spec.md "Type
// system"): either their 32-bit FNV-1a type ids match, or their XTypes
// TypeObjects satisfy assignability, or (legacy fallback) their fully
// qualified names match.
//
// Grounded on spec.md directly; there is no teacher analog for a structural
// type system. The FNV-1a type id uses stdlib hash/fnv exactly as the spec
// mandates; the TypeObject structural cache key uses blake2b (SPEC_FULL.md
// §2), a distinct concern from the name-based type id.
package typedesc

import (
	"hash/fnv"
)

// WireKind identifies the primitive or aggregate wire representation of one
// field, matching the CDR primitive set plus the aggregate kinds XTypes
// needs for assignability.
type WireKind byte

const (
	KindBool WireKind = iota
	KindU8
	KindI16
	KindU16
	KindI32
	KindU32
	KindI64
	KindU64
	KindF32
	KindF64
	KindString
	KindStruct
	KindSequence
	KindArray
)

// Field describes one member of a type's layout: its wire position,
// representation, and (for a key field) whether it participates in
// instance identity.
type Field struct {
	Name      string
	Offset    int
	Kind      WireKind
	Alignment int
	IsKey     bool
	// Element is set for KindSequence/KindArray members: the descriptor of
	// the contained type.
	Element *TypeDescriptor
	// MemberID is the XTypes member id used by mutable-extensibility
	// assignability (EMHEADER member id, not the CDR field offset).
	MemberID uint32
	Optional bool
}

// Extensibility controls how XTypes assignability treats mismatched field
// sets between a writer's and a reader's TypeObject (spec.md "Type system").
type Extensibility int

const (
	// Final types must match exactly: same fields, same order.
	Final Extensibility = iota
	// Appendable types may have writer fields trailing past the reader's
	// known set; those extra fields are ignored by the reader.
	Appendable
	// Mutable types are matched member-by-member by MemberID; unknown
	// members are skipped, missing non-optional members fail assignability.
	Mutable
)

// TypeObject is the optional structural description used for XTypes
// assignability when two participants don't share an identical type id
// (spec.md "Type system").
type TypeObject struct {
	Extensibility Extensibility
	Fields        []Field
}

// TypeDescriptor is the full description of one sample type: identity (name
// plus type id), wire layout, and optional structural TypeObject.
type TypeDescriptor struct {
	Name           string
	TypeID         uint32
	Fields         []Field
	IsVariableSize bool
	TypeObject     *TypeObject
}

// NewTypeDescriptor computes TypeID from name and returns a descriptor ready
// for registration in a Participant's type cache.
func NewTypeDescriptor(name string, fields []Field, variableSize bool, obj *TypeObject) *TypeDescriptor {
	return &TypeDescriptor{
		Name:           name,
		TypeID:         TypeID(name),
		Fields:         fields,
		IsVariableSize: variableSize,
		TypeObject:     obj,
	}
}

// TypeID computes the 32-bit FNV-1a hash of a type's fully qualified name,
// the type id spec.md's "Type system" mandates.
func TypeID(name string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(name))
	return h.Sum32()
}

// Compatible reports whether a sample published under writerType can be
// delivered to a reader expecting readerType, per spec.md's three-way rule:
// matching type ids, XTypes assignability, or (legacy) matching names.
func Compatible(writerType, readerType *TypeDescriptor) bool {
	if writerType == nil || readerType == nil {
		return false
	}
	if writerType.TypeID == readerType.TypeID {
		return true
	}
	if writerType.TypeObject != nil && readerType.TypeObject != nil {
		if Assignable(writerType.TypeObject, readerType.TypeObject) {
			return true
		}
	}
	return writerType.Name == readerType.Name
}

// Assignable reports whether a sample of the writer's TypeObject shape can
// be assigned to a reader expecting the reader's TypeObject shape, applying
// the writer's extensibility rule (spec.md "Type system"):
//
//   - final: field sets and order must match exactly.
//   - appendable: the writer may carry extra trailing fields past the
//     reader's known set; those are dropped on read.
//   - mutable: fields are matched by MemberID; a reader member absent from
//     the writer is only tolerated if marked Optional.
func Assignable(writer, reader *TypeObject) bool {
	switch writer.Extensibility {
	case Mutable:
		return mutableAssignable(writer, reader)
	case Appendable:
		return appendableAssignable(writer, reader)
	default:
		return finalAssignable(writer, reader)
	}
}

func finalAssignable(writer, reader *TypeObject) bool {
	if len(writer.Fields) != len(reader.Fields) {
		return false
	}
	for i := range writer.Fields {
		if !fieldsCompatible(writer.Fields[i], reader.Fields[i]) {
			return false
		}
	}
	return true
}

func appendableAssignable(writer, reader *TypeObject) bool {
	if len(writer.Fields) < len(reader.Fields) {
		return false
	}
	for i := range reader.Fields {
		if !fieldsCompatible(writer.Fields[i], reader.Fields[i]) {
			return false
		}
	}
	return true
}

func mutableAssignable(writer, reader *TypeObject) bool {
	byID := make(map[uint32]Field, len(writer.Fields))
	for _, f := range writer.Fields {
		byID[f.MemberID] = f
	}
	for _, rf := range reader.Fields {
		wf, ok := byID[rf.MemberID]
		if !ok {
			if rf.Optional {
				continue
			}
			return false
		}
		if wf.Kind != rf.Kind {
			return false
		}
	}
	return true
}

func fieldsCompatible(a, b Field) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a.Kind == KindSequence || a.Kind == KindArray {
		if a.Element == nil || b.Element == nil {
			return a.Element == b.Element
		}
		return Compatible(a.Element, b.Element)
	}
	return true
}
