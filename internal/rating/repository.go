package rating

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kmassidik/engagement/internal/common/db"
	"github.com/lib/pq"
)

// Source yields the session events of one run, ordered by visitor then time
type Source interface {
	FetchEvents(ctx context.Context) ([]SessionEvent, error)
}

// Sink replaces the whole rating table with a new set of profiles
type Sink interface {
	ReplaceProfiles(ctx context.Context, profiles []*UserProfile) error
}

// ProfileReader serves the rating table written by the last run
type ProfileReader interface {
	GetProfile(ctx context.Context, visitorID []byte) (*UserProfile, error)
	TopProfiles(ctx context.Context, limit int) ([]*UserProfile, error)
	SegmentCounts(ctx context.Context) ([]SegmentCount, error)
}

var sourceColumns = []string{
	"idvisitor", "idvisit", "full_url", "feature", "domain", "server_time", "visit_date",
	"pageview_position", "time_spent_ref_action", "visit_total_actions",
	"location_country", "location_city", "is_bounce", "has_engagement",
}

var profileColumns = []string{
	"idvisitor", "total_visits", "total_pageviews", "total_time_spent", "max_actions_per_visit",
	"bounced_sessions", "engaged_sessions", "favorite_feature", "favorite_domain",
	"location_city", "location_country", "first_visit", "last_visit",
	"avg_pageviews_per_visit", "avg_time_per_visit", "bounce_rate", "engagement_rate",
	"days_active", "user_rating", "user_segment",
}

const createProfileTableSQL = `
	CREATE TABLE %s (
		id SERIAL PRIMARY KEY,
		idvisitor BYTEA NOT NULL,
		total_visits INTEGER,
		total_pageviews INTEGER,
		total_time_spent FLOAT,
		max_actions_per_visit INTEGER,
		bounced_sessions INTEGER,
		engaged_sessions INTEGER,
		favorite_feature VARCHAR(128),
		favorite_domain VARCHAR(128),
		location_city VARCHAR(64),
		location_country VARCHAR(8),
		first_visit TIMESTAMP,
		last_visit TIMESTAMP,
		avg_pageviews_per_visit FLOAT,
		avg_time_per_visit FLOAT,
		bounce_rate FLOAT,
		engagement_rate FLOAT,
		days_active INTEGER,
		user_rating FLOAT,
		user_segment VARCHAR(20)
	)
`

type PostgresSource struct {
	db    *sql.DB
	table string
}

func NewPostgresSource(db *sql.DB, table string) *PostgresSource {
	return &PostgresSource{db: db, table: table}
}

// FetchEvents reads the whole source table ordered by visitor and time.
// NULL counters, visit ids and timestamps are rejected here with the
// visitor they belong to.
func (s *PostgresSource) FetchEvents(ctx context.Context) ([]SessionEvent, error) {
	if err := ValidateTableName(s.table); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY idvisitor, server_time",
		strings.Join(sourceColumns, ", "), pq.QuoteIdentifier(s.table))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query session events: %w", err)
	}
	defer rows.Close()

	var events []SessionEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session events: %w", err)
	}

	return events, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (SessionEvent, error) {
	var (
		ev                         SessionEvent
		visitID, position, actions sql.NullInt64
		fullURL, feature, domain   sql.NullString
		country, city              sql.NullString
		serverTime, visitDate      sql.NullTime
		timeSpent                  sql.NullFloat64
		isBounce, hasEngagement    sql.NullBool
	)

	err := row.Scan(
		&ev.VisitorID, &visitID, &fullURL, &feature, &domain, &serverTime, &visitDate,
		&position, &timeSpent, &actions, &country, &city, &isBounce, &hasEngagement,
	)
	if err != nil {
		return ev, fmt.Errorf("failed to scan session event: %w", err)
	}

	visitor := VisitorHex(ev.VisitorID)
	switch {
	case !visitID.Valid:
		return ev, &EventError{Visitor: visitor, Field: "idvisit", Reason: "is NULL"}
	case !serverTime.Valid:
		return ev, &EventError{Visitor: visitor, Field: "server_time", Reason: "is NULL"}
	case !timeSpent.Valid:
		return ev, &EventError{Visitor: visitor, Field: "time_spent_ref_action", Reason: "is NULL"}
	case !actions.Valid:
		return ev, &EventError{Visitor: visitor, Field: "visit_total_actions", Reason: "is NULL"}
	}

	ev.VisitID = visitID.Int64
	ev.FullURL = nullString(fullURL)
	ev.Feature = nullString(feature)
	ev.Domain = nullString(domain)
	ev.ServerTime = serverTime.Time
	if visitDate.Valid {
		t := visitDate.Time
		ev.VisitDate = &t
	}
	ev.PageviewPosition = position.Int64
	ev.TimeSpent = timeSpent.Float64
	ev.VisitTotalActions = actions.Int64
	ev.LocationCountry = nullString(country)
	ev.LocationCity = nullString(city)
	ev.IsBounce = isBounce.Valid && isBounce.Bool
	ev.HasEngagement = hasEngagement.Valid && hasEngagement.Bool

	return ev, ValidateEvent(&ev)
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

type PostgresSink struct {
	db    *db.DB
	table string
}

func NewPostgresSink(database *db.DB, table string) *PostgresSink {
	return &PostgresSink{db: database, table: table}
}

// ReplaceProfiles drops and recreates the rating table and bulk-copies the
// profiles into it inside one transaction. Readers see either the old
// table or the complete new one.
func (s *PostgresSink) ReplaceProfiles(ctx context.Context, profiles []*UserProfile) error {
	if err := ValidateTableName(s.table); err != nil {
		return err
	}
	for _, p := range profiles {
		if err := ValidateProfile(p); err != nil {
			return err
		}
	}

	return s.db.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		table := pq.QuoteIdentifier(s.table)

		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("failed to drop %s: %w", s.table, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(createProfileTableSQL, table)); err != nil {
			return fmt.Errorf("failed to create %s: %w", s.table, err)
		}

		stmt, err := tx.PrepareContext(ctx, pq.CopyIn(s.table, profileColumns...))
		if err != nil {
			return fmt.Errorf("failed to prepare copy into %s: %w", s.table, err)
		}
		defer stmt.Close()

		for _, p := range profiles {
			if _, err := stmt.ExecContext(ctx, profileValues(p)...); err != nil {
				return fmt.Errorf("failed to copy visitor %s: %w", p.Visitor, err)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			return fmt.Errorf("failed to flush copy into %s: %w", s.table, err)
		}

		return nil
	})
}

func profileValues(p *UserProfile) []interface{} {
	return []interface{}{
		p.VisitorID,
		p.TotalVisits,
		p.TotalPageviews,
		p.TotalTimeSpent,
		p.MaxActionsPerVisit,
		p.BouncedSessions,
		p.EngagedSessions,
		p.FavoriteFeature,
		p.FavoriteDomain,
		p.LocationCity,
		p.LocationCountry,
		p.FirstVisit,
		p.LastVisit,
		p.AvgPageviewsPerVisit,
		p.AvgTimePerVisit,
		p.BounceRate,
		p.EngagementRate,
		p.DaysActive,
		p.UserRating,
		string(p.UserSegment),
	}
}

type postgresReader struct {
	db    *sql.DB
	table string
}

func NewProfileReader(db *sql.DB, table string) ProfileReader {
	return &postgresReader{db: db, table: table}
}

func (r *postgresReader) selectProfiles() string {
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(profileColumns, ", "), pq.QuoteIdentifier(r.table))
}

// GetProfile looks a visitor up by its raw id
func (r *postgresReader) GetProfile(ctx context.Context, visitorID []byte) (*UserProfile, error) {
	query := r.selectProfiles() + " WHERE idvisitor = $1 LIMIT 1"

	p, err := scanProfile(r.db.QueryRowContext(ctx, query, visitorID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// TopProfiles returns the highest rated visitors, table order on ties
func (r *postgresReader) TopProfiles(ctx context.Context, limit int) ([]*UserProfile, error) {
	query := r.selectProfiles() + " ORDER BY user_rating DESC NULLS LAST, id ASC LIMIT $1"

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*UserProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// SegmentCounts returns the visitor count per segment ordered by segment name
func (r *postgresReader) SegmentCounts(ctx context.Context) ([]SegmentCount, error) {
	query := fmt.Sprintf(
		"SELECT user_segment, COUNT(*) FROM %s GROUP BY user_segment ORDER BY user_segment",
		pq.QuoteIdentifier(r.table),
	)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count segments: %w", err)
	}
	defer rows.Close()

	var counts []SegmentCount
	for rows.Next() {
		var c SegmentCount
		var segment sql.NullString
		if err := rows.Scan(&segment, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan segment count: %w", err)
		}
		c.Segment = Segment(segment.String)
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func scanProfile(row rowScanner) (*UserProfile, error) {
	var (
		p                             UserProfile
		visits, pageviews, maxActions sql.NullInt64
		bounced, engaged, daysActive  sql.NullInt64
		timeSpent                     sql.NullFloat64
		firstVisit, lastVisit         sql.NullTime
		segment                       sql.NullString
	)

	err := row.Scan(
		&p.VisitorID, &visits, &pageviews, &timeSpent, &maxActions,
		&bounced, &engaged, &p.FavoriteFeature, &p.FavoriteDomain,
		&p.LocationCity, &p.LocationCountry, &firstVisit, &lastVisit,
		&p.AvgPageviewsPerVisit, &p.AvgTimePerVisit, &p.BounceRate, &p.EngagementRate,
		&daysActive, &p.UserRating, &segment,
	)
	if err != nil {
		return nil, err
	}

	p.Visitor = VisitorHex(p.VisitorID)
	p.TotalVisits = visits.Int64
	p.TotalPageviews = pageviews.Int64
	p.TotalTimeSpent = timeSpent.Float64
	p.MaxActionsPerVisit = maxActions.Int64
	p.BouncedSessions = bounced.Int64
	p.EngagedSessions = engaged.Int64
	p.FirstVisit = asUTC(firstVisit)
	p.LastVisit = asUTC(lastVisit)
	p.DaysActive = daysActive.Int64
	p.UserSegment = Segment(segment.String)

	return &p, nil
}

func asUTC(nt sql.NullTime) time.Time {
	if !nt.Valid {
		return time.Time{}
	}
	return nt.Time.UTC()
}
