package rating

import (
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// SessionEvent is one pageview/action row of the source table
type SessionEvent struct {
	VisitorID         []byte     `json:"idvisitor"`
	VisitID           int64      `json:"idvisit"`
	FullURL           *string    `json:"full_url,omitempty"`
	Feature           *string    `json:"feature,omitempty"`
	Domain            *string    `json:"domain,omitempty"`
	ServerTime        time.Time  `json:"server_time"`
	VisitDate         *time.Time `json:"visit_date,omitempty"`
	PageviewPosition  int64      `json:"pageview_position"`
	TimeSpent         float64    `json:"time_spent_ref_action"`
	VisitTotalActions int64      `json:"visit_total_actions"`
	LocationCountry   *string    `json:"location_country,omitempty"`
	LocationCity      *string    `json:"location_city,omitempty"`
	IsBounce          bool       `json:"is_bounce"`
	HasEngagement     bool       `json:"has_engagement"`
}

// UserProfile is one row of the rating table, one per distinct visitor
type UserProfile struct {
	VisitorID            []byte    `json:"-"`
	Visitor              string    `json:"idvisitor"`
	TotalVisits          int64     `json:"total_visits"`
	TotalPageviews       int64     `json:"total_pageviews"`
	TotalTimeSpent       float64   `json:"total_time_spent"`
	MaxActionsPerVisit   int64     `json:"max_actions_per_visit"`
	BouncedSessions      int64     `json:"bounced_sessions"`
	EngagedSessions      int64     `json:"engaged_sessions"`
	FavoriteFeature      *string   `json:"favorite_feature"`
	FavoriteDomain       *string   `json:"favorite_domain"`
	LocationCity         *string   `json:"location_city"`
	LocationCountry      *string   `json:"location_country"`
	FirstVisit           time.Time `json:"first_visit"`
	LastVisit            time.Time `json:"last_visit"`
	AvgPageviewsPerVisit Ratio     `json:"avg_pageviews_per_visit"`
	AvgTimePerVisit      Ratio     `json:"avg_time_per_visit"`
	BounceRate           Ratio     `json:"bounce_rate"`
	EngagementRate       Ratio     `json:"engagement_rate"`
	DaysActive           int64     `json:"days_active"`
	UserRating           Ratio     `json:"user_rating"`
	UserSegment          Segment   `json:"user_segment"`
}

// VisitorHex renders an opaque visitor id the way dashboards show it
func VisitorHex(id []byte) string {
	return hex.EncodeToString(id)
}

// ParseVisitorHex is the inverse of VisitorHex
func ParseVisitorHex(s string) ([]byte, error) {
	id, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: must be hex: %v", ErrInvalidVisitor, err)
	}
	if len(id) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidVisitor)
	}
	return id, nil
}

// Ratio is a derived float column. NaN means "undefined" and is stored as
// SQL NULL and rendered as JSON null, never as zero.
type Ratio float64

// Undefined is the Ratio for a guarded division by zero
func Undefined() Ratio {
	return Ratio(math.NaN())
}

func (r Ratio) IsUndefined() bool {
	return math.IsNaN(float64(r))
}

// Ptr returns nil for undefined values
func (r Ratio) Ptr() *float64 {
	if r.IsUndefined() {
		return nil
	}
	f := float64(r)
	return &f
}

func (r Ratio) String() string {
	if r.IsUndefined() {
		return "NULL"
	}
	return strconv.FormatFloat(float64(r), 'f', 2, 64)
}

func (r Ratio) MarshalJSON() ([]byte, error) {
	if r.IsUndefined() || math.IsInf(float64(r), 0) {
		return []byte("null"), nil
	}
	return json.Marshal(float64(r))
}

func (r *Ratio) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = Undefined()
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*r = Ratio(f)
	return nil
}

// Value implements driver.Valuer
func (r Ratio) Value() (driver.Value, error) {
	if r.IsUndefined() {
		return nil, nil
	}
	return float64(r), nil
}

// Scan implements sql.Scanner
func (r *Ratio) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*r = Undefined()
	case float64:
		*r = Ratio(v)
	case int64:
		*r = Ratio(v)
	case []byte:
		f, err := strconv.ParseFloat(string(v), 64)
		if err != nil {
			return fmt.Errorf("ratio: %w", err)
		}
		*r = Ratio(f)
	default:
		return fmt.Errorf("ratio: unsupported type %T", src)
	}
	return nil
}

type Segment string

const (
	SegmentChampion  Segment = "Champion"
	SegmentLoyal     Segment = "Loyal"
	SegmentPotential Segment = "Potential"
	SegmentAtRisk    Segment = "At Risk"
	SegmentLost      Segment = "Lost"
)

// Segments lists every segment from best to worst
var Segments = []Segment{SegmentChampion, SegmentLoyal, SegmentPotential, SegmentAtRisk, SegmentLost}

// SegmentCount is one line of the distribution report
type SegmentCount struct {
	Segment Segment `json:"segment"`
	Count   int     `json:"count"`
}

// TopUser is one line of the top-N report
type TopUser struct {
	Visitor     string  `json:"idvisitor"`
	UserRating  Ratio   `json:"user_rating"`
	UserSegment Segment `json:"user_segment"`
	TotalVisits int64   `json:"total_visits"`
}

// RunSummary is what a run reports, caches and publishes
type RunSummary struct {
	RunID       string         `json:"run_id"`
	TargetTable string         `json:"target_table"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	Events      int            `json:"events"`
	Profiles    int            `json:"profiles"`
	Segments    []SegmentCount `json:"segments"`
	Top         []TopUser      `json:"top"`
}

// RunResult carries the full output of a run to the CLI
type RunResult struct {
	Summary  *RunSummary
	Profiles []*UserProfile
}

// RunRequest asks a worker to recompute the rating table
type RunRequest struct {
	RunID       string    `json:"run_id"`
	RequestedBy string    `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// RunCompletedEvent is published after the table has been replaced
type RunCompletedEvent struct {
	EventID string      `json:"event_id"`
	Summary *RunSummary `json:"summary"`
}

var (
	ErrMalformedEvent = errors.New("malformed session event")
	ErrRunInProgress  = errors.New("rating run already in progress")
	ErrNotFound       = errors.New("profile not found")
	ErrNoSummary      = errors.New("no rating run recorded yet")
	ErrInvalidVisitor = errors.New("invalid visitor id")
)

// EventError identifies the visitor and column of a rejected source row
type EventError struct {
	Visitor string
	Field   string
	Reason  string
}

func (e *EventError) Error() string {
	return fmt.Sprintf("malformed session event for visitor %s: %s %s", e.Visitor, e.Field, e.Reason)
}

func (e *EventError) Is(target error) bool {
	return target == ErrMalformedEvent
}
