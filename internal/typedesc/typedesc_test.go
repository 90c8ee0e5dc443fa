package typedesc

import "testing"

func TestTypeIDIsStableAndNameSensitive(t *testing.T) {
	a := TypeID("hdds::example::Point")
	b := TypeID("hdds::example::Point")
	if a != b {
		t.Fatal("TypeID must be deterministic for the same name")
	}
	c := TypeID("hdds::example::Point2")
	if a == c {
		t.Fatal("TypeID should differ for different names")
	}
}

func TestCompatibleMatchesOnTypeID(t *testing.T) {
	w := NewTypeDescriptor("hdds::example::Point", nil, false, nil)
	r := NewTypeDescriptor("hdds::example::Point", nil, false, nil)
	if !Compatible(w, r) {
		t.Fatal("identical type names/ids should be compatible")
	}
}

func TestCompatibleLegacyNameFallback(t *testing.T) {
	w := &TypeDescriptor{Name: "hdds::example::Point", TypeID: 1}
	r := &TypeDescriptor{Name: "hdds::example::Point", TypeID: 2}
	if !Compatible(w, r) {
		t.Fatal("matching names should fall back to compatible even with differing ids")
	}
}

func TestFinalAssignabilityRequiresExactFieldSet(t *testing.T) {
	w := &TypeObject{Extensibility: Final, Fields: []Field{
		{Name: "x", Kind: KindF64}, {Name: "y", Kind: KindF64},
	}}
	r := &TypeObject{Extensibility: Final, Fields: []Field{
		{Name: "x", Kind: KindF64}, {Name: "y", Kind: KindF64},
	}}
	if !Assignable(w, r) {
		t.Fatal("identical final shapes should be assignable")
	}

	rMissing := &TypeObject{Extensibility: Final, Fields: []Field{
		{Name: "x", Kind: KindF64},
	}}
	if Assignable(w, rMissing) {
		t.Fatal("final extensibility must reject a field-count mismatch")
	}
}

func TestAppendableAllowsExtraTrailingWriterFields(t *testing.T) {
	w := &TypeObject{Extensibility: Appendable, Fields: []Field{
		{Name: "x", Kind: KindF64}, {Name: "y", Kind: KindF64}, {Name: "z", Kind: KindF64},
	}}
	r := &TypeObject{Extensibility: Appendable, Fields: []Field{
		{Name: "x", Kind: KindF64}, {Name: "y", Kind: KindF64},
	}}
	if !Assignable(w, r) {
		t.Fatal("appendable writer should be assignable to a reader missing trailing fields")
	}

	rWantsMore := &TypeObject{Extensibility: Appendable, Fields: []Field{
		{Name: "x", Kind: KindF64}, {Name: "y", Kind: KindF64}, {Name: "q", Kind: KindF64},
	}}
	if Assignable(w, rWantsMore) {
		t.Fatal("reader requiring more fields than writer provides must not be assignable")
	}
}

func TestMutableAssignabilityByMemberID(t *testing.T) {
	w := &TypeObject{Extensibility: Mutable, Fields: []Field{
		{Name: "x", Kind: KindF64, MemberID: 1},
		{Name: "y", Kind: KindF64, MemberID: 2},
	}}
	r := &TypeObject{Extensibility: Mutable, Fields: []Field{
		{Name: "x", Kind: KindF64, MemberID: 1},
		{Name: "w", Kind: KindF64, MemberID: 3, Optional: true},
	}}
	if !Assignable(w, r) {
		t.Fatal("mutable assignability should tolerate an optional reader member the writer lacks")
	}

	rRequired := &TypeObject{Extensibility: Mutable, Fields: []Field{
		{Name: "x", Kind: KindF64, MemberID: 1},
		{Name: "w", Kind: KindF64, MemberID: 3, Optional: false},
	}}
	if Assignable(w, rRequired) {
		t.Fatal("mutable assignability must reject a missing required reader member")
	}
}

func TestStructuralHashStableAndShapeSensitive(t *testing.T) {
	a := &TypeObject{Extensibility: Final, Fields: []Field{{Name: "x", Kind: KindF64}}}
	b := &TypeObject{Extensibility: Final, Fields: []Field{{Name: "x", Kind: KindF64}}}
	if Hash(a) != Hash(b) {
		t.Fatal("structurally identical TypeObjects must hash equal")
	}

	c := &TypeObject{Extensibility: Final, Fields: []Field{{Name: "x", Kind: KindF32}}}
	if Hash(a) == Hash(c) {
		t.Fatal("differing field kind must change the structural hash")
	}
}

func TestAssignabilityCacheMemoizes(t *testing.T) {
	cache := NewAssignabilityCache()
	w := &TypeObject{Extensibility: Final, Fields: []Field{{Name: "x", Kind: KindF64}}}
	r := &TypeObject{Extensibility: Final, Fields: []Field{{Name: "x", Kind: KindF64}}}

	first := cache.Assignable(w, r)
	second := cache.Assignable(w, r)
	if first != second || !first {
		t.Fatal("cached assignability decision should be stable and correct")
	}
	if len(cache.entries) != 1 {
		t.Fatalf("expected exactly one cache entry, got %d", len(cache.entries))
	}
}
