package rating

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
)

// SampleSize is how many profiles the console report previews
const SampleSize = 10

// Summarize builds the segment distribution (sorted by segment name, empty
// segments omitted) and the topN highest rated visitors. Profiles with an
// undefined rating never make the top list; ties keep input order.
func Summarize(profiles []*UserProfile, topN int) *RunSummary {
	summary := &RunSummary{Profiles: len(profiles)}

	counts := make(map[Segment]int)
	for _, p := range profiles {
		counts[p.UserSegment]++
	}
	for segment, count := range counts {
		summary.Segments = append(summary.Segments, SegmentCount{Segment: segment, Count: count})
	}
	sort.Slice(summary.Segments, func(i, j int) bool {
		return summary.Segments[i].Segment < summary.Segments[j].Segment
	})

	rated := make([]*UserProfile, 0, len(profiles))
	for _, p := range profiles {
		if !p.UserRating.IsUndefined() {
			rated = append(rated, p)
		}
	}
	sort.SliceStable(rated, func(i, j int) bool {
		return rated[i].UserRating > rated[j].UserRating
	})
	if topN >= 0 && len(rated) > topN {
		rated = rated[:topN]
	}

	summary.Top = make([]TopUser, 0, len(rated))
	for _, p := range rated {
		summary.Top = append(summary.Top, TopUser{
			Visitor:     p.Visitor,
			UserRating:  p.UserRating,
			UserSegment: p.UserSegment,
			TotalVisits: p.TotalVisits,
		})
	}

	return summary
}

// WriteReport prints the post-run console report
func WriteReport(w io.Writer, summary *RunSummary, sample []*UserProfile) error {
	if len(sample) > SampleSize {
		sample = sample[:SampleSize]
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Calculated metrics for %d users from %d events\n", summary.Profiles, summary.Events)

	fmt.Fprintln(tw, "\nUser Rating Distribution:")
	fmt.Fprintln(tw, "user_segment\tcount")
	for _, c := range summary.Segments {
		fmt.Fprintf(tw, "%s\t%d\n", c.Segment, c.Count)
	}

	fmt.Fprintln(tw, "\nSample data:")
	fmt.Fprintln(tw, "idvisitor\ttotal_visits\ttotal_pageviews\tavg_time_per_visit\tbounce_rate\tengagement_rate\tdays_active\tuser_rating\tuser_segment")
	for _, p := range sample {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
			p.Visitor, p.TotalVisits, p.TotalPageviews, p.AvgTimePerVisit,
			p.BounceRate, p.EngagementRate, p.DaysActive, p.UserRating, p.UserSegment)
	}

	fmt.Fprintf(tw, "\nTop %d Users by Rating:\n", len(summary.Top))
	fmt.Fprintln(tw, "idvisitor\tuser_rating\tuser_segment\ttotal_visits")
	for _, u := range summary.Top {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", u.Visitor, u.UserRating, u.UserSegment, u.TotalVisits)
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	table := summary.TargetTable
	_, err := fmt.Fprintf(w, `
Done! User rating table ready for Superset

Next steps:
1. Go to Superset -> Data -> Datasets
2. Add '%s' as a new dataset
3. Create charts:
   - Pie Chart: User segment distribution
   - Table: Top users by rating
   - Scatter: Rating vs Total Visits
   - Bar Chart: Avg rating by location/feature
`, table)
	return err
}
