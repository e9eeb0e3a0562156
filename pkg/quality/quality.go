// Package quality defines the lifecycle tiers of archived waveform files.
//
// Every file carries exactly one quality tag. Tags are grouped into tiers
// that are totally ordered: Raw < Pruned < Removed. A file may only move to
// a later tier, or sideways into one of the Removed states (quarantine,
// purge); it never regresses.
package quality

import "fmt"

// Quality is a lifecycle tag of an archived file.
type Quality string

const (
	// Raw marks unclassified raw data.
	Raw Quality = "R"

	// Merged marks unclassified data merged from several raw sources.
	Merged Quality = "M"

	// Daily marks raw daily files as written by the acquisition system.
	Daily Quality = "D"

	// Pruned marks quality-controlled files produced by the prune step.
	Pruned Quality = "Q"

	// Quarantined marks files moved out of the archive for inspection.
	Quarantined Quality = "quarantined"

	// Purged marks files removed from the temporary archive.
	Purged Quality = "purged"
)

// Tier groups qualities into ordered lifecycle stages.
type Tier int

const (
	TierRaw Tier = iota
	TierPruned
	TierRemoved
)

// String returns the tier name.
func (t Tier) String() string {
	switch t {
	case TierRaw:
		return "raw"
	case TierPruned:
		return "pruned"
	case TierRemoved:
		return "removed"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// ordered lists every known quality in lifecycle order.
var ordered = []Quality{Raw, Merged, Daily, Pruned, Quarantined, Purged}

var tiers = map[Quality]Tier{
	Raw:         TierRaw,
	Merged:      TierRaw,
	Daily:       TierRaw,
	Pruned:      TierPruned,
	Quarantined: TierRemoved,
	Purged:      TierRemoved,
}

// All returns every known quality in lifecycle order.
func All() []Quality {
	out := make([]Quality, len(ordered))
	copy(out, ordered)
	return out
}

// IsKnown reports whether tag names a known quality.
func IsKnown(tag string) bool {
	_, ok := tiers[Quality(tag)]
	return ok
}

// Parse converts tag into a Quality.
func Parse(tag string) (Quality, error) {
	if !IsKnown(tag) {
		return "", fmt.Errorf("unknown quality %q", tag)
	}
	return Quality(tag), nil
}

// Tier returns the lifecycle tier of q. Unknown qualities sort first.
func (q Quality) Tier() Tier {
	return tiers[q]
}

// IsFileTag reports whether q can appear in an archive file name.
func (q Quality) IsFileTag() bool {
	return IsKnown(string(q)) && tiers[q] != TierRemoved
}

// Removed reports whether q is a terminal removal state.
func (q Quality) Removed() bool {
	return IsKnown(string(q)) && tiers[q] == TierRemoved
}

// Rank returns the position of q in the lifecycle order, or -1.
func (q Quality) Rank() int {
	for i, o := range ordered {
		if o == q {
			return i
		}
	}
	return -1
}

// Compare orders a and b by tier. It returns -1, 0 or +1.
func Compare(a, b Quality) int {
	ta, tb := a.Tier(), b.Tier()
	switch {
	case ta < tb:
		return -1
	case ta > tb:
		return 1
	default:
		return 0
	}
}

// CanTransition reports whether a file may move from one quality to another.
func CanTransition(from, to Quality) bool {
	if !IsKnown(string(from)) || !IsKnown(string(to)) {
		return false
	}
	if from == to {
		return true
	}
	if from.Removed() {
		return false
	}
	if to.Removed() {
		return true
	}
	return to.Tier() > from.Tier()
}
