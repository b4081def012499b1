package rating

import (
	"bytes"
	"strings"
	"testing"
)

func TestSummarize(t *testing.T) {
	profiles := []*UserProfile{
		{Visitor: "01", UserRating: 55, UserSegment: SegmentPotential, TotalVisits: 3},
		{Visitor: "02", UserRating: 85, UserSegment: SegmentChampion, TotalVisits: 9},
		{Visitor: "03", UserRating: Undefined(), UserSegment: SegmentLost, TotalVisits: 1},
		{Visitor: "04", UserRating: 55, UserSegment: SegmentPotential, TotalVisits: 2},
		{Visitor: "05", UserRating: 21, UserSegment: SegmentAtRisk, TotalVisits: 1},
	}

	summary := Summarize(profiles, 3)

	if summary.Profiles != 5 {
		t.Errorf("Expected 5 profiles, got %d", summary.Profiles)
	}

	wantSegments := []SegmentCount{
		{SegmentAtRisk, 1},
		{SegmentChampion, 1},
		{SegmentLost, 1},
		{SegmentPotential, 2},
	}
	if len(summary.Segments) != len(wantSegments) {
		t.Fatalf("Expected %d segments, got %+v", len(wantSegments), summary.Segments)
	}
	for i, want := range wantSegments {
		if summary.Segments[i] != want {
			t.Errorf("Segment %d: expected %+v, got %+v", i, want, summary.Segments[i])
		}
	}

	wantTop := []string{"02", "01", "04"}
	if len(summary.Top) != len(wantTop) {
		t.Fatalf("Expected %d top users, got %d", len(wantTop), len(summary.Top))
	}
	for i, visitor := range wantTop {
		if summary.Top[i].Visitor != visitor {
			t.Errorf("Top %d: expected %s, got %s", i, visitor, summary.Top[i].Visitor)
		}
	}
}

func TestSummarizeSkipsUndefinedRatings(t *testing.T) {
	profiles := []*UserProfile{
		{Visitor: "01", UserRating: Undefined(), UserSegment: SegmentLost},
	}
	summary := Summarize(profiles, 10)
	if len(summary.Top) != 0 {
		t.Errorf("Expected no top users, got %+v", summary.Top)
	}
}

func TestWriteReport(t *testing.T) {
	profiles, err := NewEngine(1).Run(scenarioEvents())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	summary := Summarize(profiles, 10)
	summary.TargetTable = "user_rating_profile"
	summary.Events = 5

	var buf bytes.Buffer
	if err := WriteReport(&buf, summary, profiles); err != nil {
		t.Fatalf("WriteReport() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"Calculated metrics for 2 users from 5 events",
		"User Rating Distribution:",
		"Champion",
		"Top 2 Users by Rating:",
		VisitorHex([]byte("A")),
		"Add 'user_rating_profile' as a new dataset",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected report to contain %q\n%s", want, out)
		}
	}
}
