package models

import (
	"fmt"
	"regexp"
	"strconv"
)

// RID addresses a single record as cluster:position.
type RID struct {
	Cluster  int
	Position int64
}

// TransientRID is the placeholder carried by records that were never stored.
var TransientRID = RID{Cluster: -1, Position: -1}

var ridPattern = regexp.MustCompile(`^#?(-?\d+):(-?\d+)$`)

// ParseRID accepts "#13:0" or "13:0".
func ParseRID(s string) (RID, error) {
	m := ridPattern.FindStringSubmatch(s)
	if m == nil {
		return RID{}, fmt.Errorf("%w: %q", ErrInvalidRID, s)
	}
	cluster, err := strconv.Atoi(m[1])
	if err != nil {
		return RID{}, fmt.Errorf("%w: %q", ErrInvalidRID, s)
	}
	position, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return RID{}, fmt.Errorf("%w: %q", ErrInvalidRID, s)
	}
	return RID{Cluster: cluster, Position: position}, nil
}

// MustParseRID panics on malformed input. Intended for tests and constants.
func MustParseRID(s string) RID {
	rid, err := ParseRID(s)
	if err != nil {
		panic(err)
	}
	return rid
}

// LooksLikeRID reports whether s has RID syntax.
func LooksLikeRID(s string) bool {
	return ridPattern.MatchString(s)
}

func (r RID) String() string {
	return fmt.Sprintf("#%d:%d", r.Cluster, r.Position)
}

// Bare renders the RID without the leading hash, as used in REST paths.
func (r RID) Bare() string {
	return fmt.Sprintf("%d:%d", r.Cluster, r.Position)
}

// IsTransient reports whether the RID points at an unsaved record.
func (r RID) IsTransient() bool {
	return r.Position < 0 || r.Cluster < 0
}
