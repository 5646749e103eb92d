package outage

import "time"

// Kind identifies one rung of the reminder ladder: how long before an
// outage's start the reminder fires.
type Kind string

const (
	Kind3Days  Kind = "3d"
	Kind1Day   Kind = "1d"
	Kind3Hours Kind = "3h"
	Kind10Min  Kind = "10m"
	Kind5Min   Kind = "5m"
	KindStart  Kind = "start"
)

// ladderTable is the closed set of reminder kinds, ordered by lead time
// descending. KindStart fires at the outage start itself.
var ladderTable = []struct {
	Kind Kind
	Lead time.Duration
}{
	{Kind3Days, 72 * time.Hour},
	{Kind1Day, 24 * time.Hour},
	{Kind3Hours, 3 * time.Hour},
	{Kind10Min, 10 * time.Minute},
	{Kind5Min, 5 * time.Minute},
	{KindStart, 0},
}

// Kinds returns every reminder kind in ladder order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(ladderTable))
	for _, e := range ladderTable {
		out = append(out, e.Kind)
	}
	return out
}

// Lead reports the lead time for a kind. ok is false for unknown kinds.
func Lead(k Kind) (time.Duration, bool) {
	for _, e := range ladderTable {
		if e.Kind == k {
			return e.Lead, true
		}
	}
	return 0, false
}

// Valid reports whether k is a member of the closed kind set.
func (k Kind) Valid() bool {
	_, ok := Lead(k)
	return ok
}
