package qos

import "fmt"

// Incompatibility names one policy dimension where a writer and reader
// profile fail the "at least as strong as" ordering (spec.md §4.9).
type Incompatibility struct {
	Policy string
	Reason string
}

func (i Incompatibility) String() string {
	return fmt.Sprintf("%s: %s", i.Policy, i.Reason)
}

// Compatible reports whether a writer offering `writer` and a reader
// requesting `reader` may match, and if not, every incompatible policy
// dimension (spec.md §4.9: "mismatch is surfaced... the endpoints do NOT
// match"; the full matrix is reported, not just the first failure, so the
// discovery engine can log every OFFERED/REQUESTED_INCOMPATIBLE_QOS
// status at once).
func Compatible(writer, reader Policy) (bool, []Incompatibility) {
	var bad []Incompatibility

	if reader.Reliability == Reliable && writer.Reliability != Reliable {
		bad = append(bad, Incompatibility{"RELIABILITY", "reader requires Reliable, writer offers BestEffort"})
	}

	if !durabilityAtLeast(writer.Durability, reader.Durability) {
		bad = append(bad, Incompatibility{"DURABILITY", fmt.Sprintf("reader requires %v, writer offers %v", reader.Durability, writer.Durability)})
	}

	if reader.Deadline != Infinite && (writer.Deadline == Infinite || writer.Deadline > reader.Deadline) {
		bad = append(bad, Incompatibility{"DEADLINE", "writer's deadline is looser than reader requires"})
	}

	if reader.Liveliness.Lease != Infinite {
		if writer.Liveliness.Lease == Infinite || writer.Liveliness.Lease > reader.Liveliness.Lease {
			bad = append(bad, Incompatibility{"LIVELINESS", "writer's lease is longer than reader requires"})
		}
		if !livelinessKindAtLeast(writer.Liveliness.Kind, reader.Liveliness.Kind) {
			bad = append(bad, Incompatibility{"LIVELINESS", "writer's liveliness kind is weaker than reader requires"})
		}
	}

	if reader.Ownership.Kind != writer.Ownership.Kind {
		bad = append(bad, Incompatibility{"OWNERSHIP", "writer and reader ownership kinds differ"})
	}

	if reader.Presentation.Scope != writer.Presentation.Scope {
		bad = append(bad, Incompatibility{"PRESENTATION", "writer and reader presentation scopes differ"})
	}
	if reader.Presentation.Coherent && !writer.Presentation.Coherent {
		bad = append(bad, Incompatibility{"PRESENTATION", "reader requires coherent access, writer does not offer it"})
	}
	if reader.Presentation.Ordered && !writer.Presentation.Ordered {
		bad = append(bad, Incompatibility{"PRESENTATION", "reader requires ordered access, writer does not offer it"})
	}

	if reader.DestinationOrder == BySourceTimestamp && writer.DestinationOrder != BySourceTimestamp {
		bad = append(bad, Incompatibility{"DESTINATION_ORDER", "reader requires BySourceTimestamp, writer offers ByReceptionTimestamp"})
	}

	if !partitionsIntersect(writer.Partition, reader.Partition) {
		bad = append(bad, Incompatibility{"PARTITION", "writer and reader partitions do not intersect"})
	}

	return len(bad) == 0, bad
}

// durabilityAtLeast reports whether w is at least as strong as r along
// Volatile < TransientLocal < Transient < Persistent.
func durabilityAtLeast(w, r DurabilityKind) bool {
	return w >= r
}

// livelinessKindAtLeast reports whether w is at least as strong as r along
// Automatic < ManualByParticipant < ManualByTopic (Automatic is the
// weakest obligation on the writer, since the middleware asserts it, but
// the OMG ordering used for compatibility is: a writer that asserts
// liveliness manually per-topic satisfies a reader that only requires
// per-participant or automatic assertion, and so on).
func livelinessKindAtLeast(w, r LivelinessKind) bool {
	rank := func(k LivelinessKind) int {
		switch k {
		case ManualByTopic:
			return 2
		case ManualByParticipant:
			return 1
		default:
			return 0
		}
	}
	return rank(w) >= rank(r)
}

func partitionsIntersect(writer, reader []string) bool {
	if len(writer) == 0 && len(reader) == 0 {
		return true
	}
	for _, w := range writer {
		for _, r := range reader {
			if partitionMatch(w, r) {
				return true
			}
		}
	}
	return false
}

// partitionMatch implements PARTITION's glob-style `*`/`?` wildcard match
// (spec.md §4.9).
func partitionMatch(pattern, name string) bool {
	return globMatch([]rune(pattern), []rune(name))
}

func globMatch(pattern, name []rune) bool {
	if len(pattern) == 0 {
		return len(name) == 0
	}
	switch pattern[0] {
	case '*':
		if globMatch(pattern[1:], name) {
			return true
		}
		return len(name) > 0 && globMatch(pattern, name[1:])
	case '?':
		return len(name) > 0 && globMatch(pattern[1:], name[1:])
	default:
		return len(name) > 0 && pattern[0] == name[0] && globMatch(pattern[1:], name[1:])
	}
}
