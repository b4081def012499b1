package rating

import (
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/kmassidik/engagement/internal/common/config"
)

// Column widths of the rating table
const (
	maxFeatureLen = 128
	maxDomainLen  = 128
	maxCityLen    = 64
	maxCountryLen = 8
	maxSegmentLen = 20
)

// ValidateEvent rejects rows that would silently corrupt a profile
func ValidateEvent(ev *SessionEvent) error {
	if ev == nil {
		return fmt.Errorf("event is nil")
	}

	visitor := VisitorHex(ev.VisitorID)
	if len(ev.VisitorID) == 0 {
		return &EventError{Visitor: "<empty>", Field: "idvisitor", Reason: "is empty"}
	}
	if ev.VisitID < 0 {
		return &EventError{Visitor: visitor, Field: "idvisit", Reason: "is negative"}
	}
	if ev.ServerTime.IsZero() {
		return &EventError{Visitor: visitor, Field: "server_time", Reason: "is NULL"}
	}
	if math.IsNaN(ev.TimeSpent) || math.IsInf(ev.TimeSpent, 0) {
		return &EventError{Visitor: visitor, Field: "time_spent_ref_action", Reason: "is not finite"}
	}
	if ev.TimeSpent < 0 {
		return &EventError{Visitor: visitor, Field: "time_spent_ref_action", Reason: "is negative"}
	}
	if ev.VisitTotalActions < 0 {
		return &EventError{Visitor: visitor, Field: "visit_total_actions", Reason: "is negative"}
	}
	if ev.PageviewPosition < 0 {
		return &EventError{Visitor: visitor, Field: "pageview_position", Reason: "is negative"}
	}

	return nil
}

// ValidateProfile checks a profile fits the rating table before it is written
func ValidateProfile(p *UserProfile) error {
	if p == nil {
		return fmt.Errorf("profile is nil")
	}
	if len(p.VisitorID) == 0 {
		return fmt.Errorf("profile has no visitor id")
	}
	if p.TotalVisits < 1 {
		return fmt.Errorf("visitor %s: total_visits must be at least 1", p.Visitor)
	}
	if p.BouncedSessions > p.TotalVisits || p.EngagedSessions > p.TotalVisits {
		return fmt.Errorf("visitor %s: session counts exceed total_visits", p.Visitor)
	}

	for _, col := range []struct {
		name  string
		value *string
		max   int
	}{
		{"favorite_feature", p.FavoriteFeature, maxFeatureLen},
		{"favorite_domain", p.FavoriteDomain, maxDomainLen},
		{"location_city", p.LocationCity, maxCityLen},
		{"location_country", p.LocationCountry, maxCountryLen},
	} {
		if col.value != nil && utf8.RuneCountInString(*col.value) > col.max {
			return fmt.Errorf("visitor %s: %s longer than %d characters", p.Visitor, col.name, col.max)
		}
	}
	if len(p.UserSegment) > maxSegmentLen {
		return fmt.Errorf("visitor %s: user_segment longer than %d characters", p.Visitor, maxSegmentLen)
	}

	return nil
}

// ValidateTableName only accepts plain SQL identifiers
func ValidateTableName(name string) error {
	if name == "" {
		return fmt.Errorf("table name is required")
	}
	if !config.IsIdentifier(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}
