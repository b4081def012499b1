package rating

import (
	"math"
	"time"

	"golang.org/x/sync/errgroup"
)

// Score weights, summed in this order
const (
	weightVisits     = 20.0
	weightPageviews  = 20.0
	weightEngagement = 30.0
	weightTime       = 20.0
	weightBounce     = 10.0
)

// Segment thresholds, inclusive lower bounds
const (
	thresholdChampion  = 80.0
	thresholdLoyal     = 60.0
	thresholdPotential = 40.0
	thresholdAtRisk    = 20.0
)

// VisitorEvents is the arrival-ordered slice of events of one visitor
type VisitorEvents struct {
	VisitorID []byte
	Events    []SessionEvent
}

// Engine turns session events into rated profiles
type Engine struct {
	Workers int
}

func NewEngine(workers int) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{Workers: workers}
}

// Run validates every event, aggregates per visitor and scores the
// population. Profiles come back in first-appearance order of visitors.
func (e *Engine) Run(events []SessionEvent) ([]*UserProfile, error) {
	for i := range events {
		if err := ValidateEvent(&events[i]); err != nil {
			return nil, err
		}
	}

	groups := Group(events)
	profiles := make([]*UserProfile, len(groups))

	workers := e.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(groups) {
		workers = len(groups)
	}

	if workers <= 1 {
		for i, g := range groups {
			profiles[i] = aggregate(g)
		}
	} else {
		var eg errgroup.Group
		shard := (len(groups) + workers - 1) / workers
		for start := 0; start < len(groups); start += shard {
			end := start + shard
			if end > len(groups) {
				end = len(groups)
			}
			lo, hi := start, end
			eg.Go(func() error {
				for i := lo; i < hi; i++ {
					profiles[i] = aggregate(groups[i])
				}
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}

	ScoreAll(profiles)
	return profiles, nil
}

// Group partitions events by visitor, keeping the order in which each
// visitor first appears and the arrival order inside each group.
func Group(events []SessionEvent) []VisitorEvents {
	index := make(map[string]int)
	var groups []VisitorEvents

	for _, ev := range events {
		key := string(ev.VisitorID)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, VisitorEvents{VisitorID: ev.VisitorID})
		}
		groups[i].Events = append(groups[i].Events, ev)
	}
	return groups
}

// Aggregate reduces one visitor's events to a profile with every count,
// favorite and derived ratio filled in. Rating and segment are left for
// ScoreAll since they depend on the whole population.
func Aggregate(g VisitorEvents) (*UserProfile, error) {
	if len(g.Events) == 0 {
		return nil, &EventError{Visitor: VisitorHex(g.VisitorID), Field: "events", Reason: "is empty"}
	}
	for i := range g.Events {
		if err := ValidateEvent(&g.Events[i]); err != nil {
			return nil, err
		}
	}
	return aggregate(g), nil
}

// aggregate counts bounced and engaged sessions as distinct visits with at
// least one flagged event, not as flagged events, so neither exceeds
// total_visits.
func aggregate(g VisitorEvents) *UserProfile {
	p := &UserProfile{
		VisitorID: g.VisitorID,
		Visitor:   VisitorHex(g.VisitorID),
	}

	visits := make(map[int64]struct{})
	bounced := make(map[int64]struct{})
	engaged := make(map[int64]struct{})
	features := newTally()
	domains := newTally()

	var cityAt, countryAt time.Time

	for i, ev := range g.Events {
		visits[ev.VisitID] = struct{}{}
		if ev.FullURL != nil {
			p.TotalPageviews++
		}
		p.TotalTimeSpent += ev.TimeSpent
		if i == 0 || ev.VisitTotalActions > p.MaxActionsPerVisit {
			p.MaxActionsPerVisit = ev.VisitTotalActions
		}
		if ev.IsBounce {
			bounced[ev.VisitID] = struct{}{}
		}
		if ev.HasEngagement {
			engaged[ev.VisitID] = struct{}{}
		}
		features.add(ev.Feature)
		domains.add(ev.Domain)

		if ev.LocationCity != nil && (p.LocationCity == nil || ev.ServerTime.Before(cityAt)) {
			p.LocationCity, cityAt = ev.LocationCity, ev.ServerTime
		}
		if ev.LocationCountry != nil && (p.LocationCountry == nil || ev.ServerTime.Before(countryAt)) {
			p.LocationCountry, countryAt = ev.LocationCountry, ev.ServerTime
		}

		if i == 0 || ev.ServerTime.Before(p.FirstVisit) {
			p.FirstVisit = ev.ServerTime
		}
		if i == 0 || ev.ServerTime.After(p.LastVisit) {
			p.LastVisit = ev.ServerTime
		}
	}

	p.TotalVisits = int64(len(visits))
	p.BouncedSessions = int64(len(bounced))
	p.EngagedSessions = int64(len(engaged))
	p.FavoriteFeature = features.mode()
	p.FavoriteDomain = domains.mode()

	visitsF := float64(p.TotalVisits)
	p.AvgPageviewsPerVisit = Round2(divide(float64(p.TotalPageviews), visitsF))
	p.AvgTimePerVisit = Round2(divide(p.TotalTimeSpent, visitsF))
	p.BounceRate = Round2(divide(float64(p.BouncedSessions), visitsF) * 100)
	p.EngagementRate = Round2(divide(float64(p.EngagedSessions), visitsF) * 100)
	p.DaysActive = int64(p.LastVisit.Sub(p.FirstVisit) / (24 * time.Hour))

	return p
}

// ScoreAll normalizes visits, pageviews and average time across the
// population, then sets every profile's rating and segment.
func ScoreAll(profiles []*UserProfile) {
	visits := make([]float64, len(profiles))
	pageviews := make([]float64, len(profiles))
	avgTime := make([]float64, len(profiles))
	for i, p := range profiles {
		visits[i] = float64(p.TotalVisits)
		pageviews[i] = float64(p.TotalPageviews)
		avgTime[i] = float64(p.AvgTimePerVisit)
	}

	normVisits := Normalize(visits)
	normPageviews := Normalize(pageviews)
	normTime := Normalize(avgTime)

	for i, p := range profiles {
		p.UserRating = Score(normVisits[i], normPageviews[i], normTime[i], p.EngagementRate, p.BounceRate)
		p.UserSegment = Classify(p.UserRating)
	}
}

// Normalize min-max scales values into [0, 1]. A constant column maps to
// 0.5 everywhere; NaN entries are ignored for the bounds and stay NaN.
func Normalize(values []float64) []float64 {
	out := make([]float64, len(values))
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	for i, v := range values {
		switch {
		case math.IsNaN(v):
			out[i] = math.NaN()
		case hi == lo:
			out[i] = 0.5
		default:
			out[i] = (v - lo) / (hi - lo)
		}
	}
	return out
}

// Score combines the normalized columns and the two rates into a 0-100
// rating rounded to two decimals. An undefined rate yields an undefined
// rating.
func Score(normVisits, normPageviews, normAvgTime float64, engagementRate, bounceRate Ratio) Ratio {
	total := normVisits * weightVisits
	total += normPageviews * weightPageviews
	total += float64(engagementRate) / 100 * weightEngagement
	total += normAvgTime * weightTime
	total += (1 - float64(bounceRate)/100) * weightBounce
	return Round2(total)
}

// Classify maps a rating onto its segment
func Classify(rating Ratio) Segment {
	r := float64(rating)
	switch {
	case r >= thresholdChampion:
		return SegmentChampion
	case r >= thresholdLoyal:
		return SegmentLoyal
	case r >= thresholdPotential:
		return SegmentPotential
	case r >= thresholdAtRisk:
		return SegmentAtRisk
	default:
		return SegmentLost
	}
}

// Round2 rounds half to even at two decimals
func Round2(v float64) Ratio {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Ratio(v)
	}
	return Ratio(math.RoundToEven(v*100) / 100)
}

func divide(num, den float64) float64 {
	if den == 0 {
		return math.NaN()
	}
	return num / den
}

// tally counts non-null values and remembers first-seen order for ties
type tally struct {
	counts map[string]int
	order  []string
}

func newTally() *tally {
	return &tally{counts: make(map[string]int)}
}

func (t *tally) add(v *string) {
	if v == nil {
		return
	}
	if _, ok := t.counts[*v]; !ok {
		t.order = append(t.order, *v)
	}
	t.counts[*v]++
}

func (t *tally) mode() *string {
	if len(t.order) == 0 {
		return nil
	}
	best := t.order[0]
	for _, v := range t.order[1:] {
		if t.counts[v] > t.counts[best] {
			best = v
		}
	}
	return &best
}
