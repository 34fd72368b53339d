package quota

import (
	"encoding/json"
	"strconv"
)

// Limit is the maximum number of notes a plan may own. The zero value is
// Unlimited.
type Limit struct {
	n       int
	bounded bool
}

// Unlimited returns a limit that admits any count.
func Unlimited() Limit { return Limit{} }

// Bounded returns a limit of n. Negative n is treated as zero.
func Bounded(n int) Limit {
	if n < 0 {
		n = 0
	}
	return Limit{n: n, bounded: true}
}

// Max returns the bound and true, or 0 and false when unlimited.
func (l Limit) Max() (int, bool) { return l.n, l.bounded }

// Allows reports whether one more resource may be created when current exist.
func (l Limit) Allows(current int) bool {
	return !l.bounded || current < l.n
}

func (l Limit) String() string {
	if !l.bounded {
		return "unlimited"
	}
	return strconv.Itoa(l.n)
}

// MarshalJSON renders Unlimited as null and Bounded(n) as n.
func (l Limit) MarshalJSON() ([]byte, error) {
	if !l.bounded {
		return []byte("null"), nil
	}
	return json.Marshal(l.n)
}
