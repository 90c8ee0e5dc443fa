// Copyright 2024 The hdds Authors.

package hdds

// Topic names a data stream by name and payload type (spec.md §4.8). It
// carries no QoS of its own; QoS is supplied separately to
// CreateWriter/CreateReader so the same Topic can back endpoints with
// different profiles.
type Topic struct {
	Name     string
	TypeName string
}

// NewTopic returns a Topic descriptor. typeName identifies the wire type
// for SEDP's type-compatibility matching rule; it need not be a Go type
// name, just stable and shared between matching writers and readers.
func NewTopic(name, typeName string) Topic {
	return Topic{Name: name, TypeName: typeName}
}
