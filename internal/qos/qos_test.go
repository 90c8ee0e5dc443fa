package qos

import "testing"

func TestDefaultPolicyIsCompatibleWithItself(t *testing.T) {
	d := Default()
	ok, bad := Compatible(d, d)
	if !ok {
		t.Fatalf("default policy should be reflexively compatible, got incompatibilities: %v", bad)
	}
}

func TestReliabilityIncompatibility(t *testing.T) {
	writer := Default()
	reader := Default()
	reader.Reliability = Reliable

	ok, bad := Compatible(writer, reader)
	if ok {
		t.Fatal("expected incompatible: reader requires Reliable, writer offers BestEffort")
	}
	if len(bad) != 1 || bad[0].Policy != "RELIABILITY" {
		t.Fatalf("bad = %v, want exactly one RELIABILITY incompatibility", bad)
	}
}

func TestDurabilityOrdering(t *testing.T) {
	writer := Default()
	writer.Durability = Volatile
	reader := Default()
	reader.Durability = TransientLocal

	ok, _ := Compatible(writer, reader)
	if ok {
		t.Fatal("Volatile writer should not satisfy a TransientLocal reader")
	}

	writer.Durability = Transient
	ok, _ = Compatible(writer, reader)
	if !ok {
		t.Fatal("a stronger writer durability should satisfy a weaker reader requirement")
	}
}

func TestDeadlineIncompatibility(t *testing.T) {
	writer := Default()
	writer.Deadline = Infinite
	reader := Default()
	reader.Deadline = 1

	ok, bad := Compatible(writer, reader)
	if ok {
		t.Fatal("writer with no deadline should not satisfy a reader requiring one")
	}
	found := false
	for _, b := range bad {
		if b.Policy == "DEADLINE" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a DEADLINE incompatibility, got %v", bad)
	}
}

func TestPartitionWildcardMatch(t *testing.T) {
	writer := Default()
	writer.Partition = []string{"sensors/*"}
	reader := Default()
	reader.Partition = []string{"sensors/lidar"}

	ok, bad := Compatible(writer, reader)
	if !ok {
		t.Fatalf("expected wildcard partition match, got incompatibilities: %v", bad)
	}
}

func TestPartitionNoIntersectionIncompatible(t *testing.T) {
	writer := Default()
	writer.Partition = []string{"a"}
	reader := Default()
	reader.Partition = []string{"b"}

	ok, _ := Compatible(writer, reader)
	if ok {
		t.Fatal("disjoint partitions should be incompatible")
	}
}

func TestEmptyPartitionsAreCompatible(t *testing.T) {
	writer := Default()
	reader := Default()
	ok, _ := Compatible(writer, reader)
	if !ok {
		t.Fatal("no partitions on either side should be compatible")
	}
}

func TestEffectiveHistoryDepth(t *testing.T) {
	p := Default()
	if got := p.EffectiveHistoryDepth(); got != 1 {
		t.Fatalf("default EffectiveHistoryDepth = %d, want 1", got)
	}
	p.History = KeepAll
	if got := p.EffectiveHistoryDepth(); got != -1 {
		t.Fatalf("KeepAll EffectiveHistoryDepth = %d, want -1", got)
	}
}
