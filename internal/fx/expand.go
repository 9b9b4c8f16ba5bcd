package fx

import "fxledger/internal/core"

// ExpandedSeries holds one rate per calendar day from the first raw
// observation through max(last observation, today). Days without a
// publication carry the most recent earlier rate.
type ExpandedSeries struct {
	start core.Date
	rates []float64
}

// Expand densifies raw into a daily series ending no earlier than today.
// It walks the days and the observations together once, so it runs in
// time linear in the covered span. An empty raw series yields an empty
// expansion.
func Expand(raw *RawSeries, today core.Date) *ExpandedSeries {
	first, last, ok := raw.Bounds()
	if !ok {
		return &ExpandedSeries{}
	}
	end := last
	if today.After(end) {
		end = today
	}

	days := end.DaysSince(first) + 1
	rates := make([]float64, days)
	obs := raw.obs
	j := 0
	current := obs[0].Rate
	for i := range rates {
		day := first.AddDays(i)
		if j < len(obs) && obs[j].Date == day {
			current = obs[j].Rate
			j++
		}
		rates[i] = current
	}
	return &ExpandedSeries{start: first, rates: rates}
}

// Len returns the number of days covered.
func (e *ExpandedSeries) Len() int { return len(e.rates) }

// Bounds returns the first and last covered day.
func (e *ExpandedSeries) Bounds() (first, last core.Date, ok bool) {
	if len(e.rates) == 0 {
		return core.Date{}, core.Date{}, false
	}
	return e.start, e.start.AddDays(len(e.rates) - 1), true
}

// Lookup returns the rate on day. ok is false outside the covered span.
func (e *ExpandedSeries) Lookup(day core.Date) (rate float64, ok bool) {
	if len(e.rates) == 0 {
		return 0, false
	}
	i := day.DaysSince(e.start)
	if i < 0 || i >= len(e.rates) {
		return 0, false
	}
	return e.rates[i], true
}
