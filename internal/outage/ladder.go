package outage

// LadderEntry is one (kind, fire time) pair produced for an outage.
type LadderEntry struct {
	Kind   Kind
	SendAt int64
}

// Ladder maps an outage's start time to the reminders that should be
// scheduled for it. Both arguments are UTC epoch seconds.
//
// A rung is emitted only when its fire time is strictly in the future;
// lead times that have already passed are skipped for good, there is no
// backfill. An outage starting within 5 minutes therefore yields at
// most the "start" reminder, and one created after its start yields
// nothing. Entries come out ordered by SendAt ascending.
func Ladder(startsAt, now int64) []LadderEntry {
	out := make([]LadderEntry, 0, len(ladderTable))
	for _, e := range ladderTable {
		sendAt := startsAt - int64(e.Lead.Seconds())
		if sendAt <= now {
			continue
		}
		out = append(out, LadderEntry{Kind: e.Kind, SendAt: sendAt})
	}
	return out
}
