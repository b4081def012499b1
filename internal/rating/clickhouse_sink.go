package rating

import (
	"context"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const createClickHouseProfileTableSQL = `
	CREATE TABLE IF NOT EXISTS %s (
		idvisitor String,
		total_visits Int64,
		total_pageviews Int64,
		total_time_spent Float64,
		max_actions_per_visit Int64,
		bounced_sessions Int64,
		engaged_sessions Int64,
		favorite_feature Nullable(String),
		favorite_domain Nullable(String),
		location_city Nullable(String),
		location_country Nullable(String),
		first_visit DateTime64(3, 'UTC'),
		last_visit DateTime64(3, 'UTC'),
		avg_pageviews_per_visit Nullable(Float64),
		avg_time_per_visit Nullable(Float64),
		bounce_rate Nullable(Float64),
		engagement_rate Nullable(Float64),
		days_active Int64,
		user_rating Nullable(Float64),
		user_segment LowCardinality(String)
	) ENGINE = MergeTree
	ORDER BY idvisitor
`

// ClickHouseSink mirrors the rating table into ClickHouse for dashboards
// that query the columnar store. Visitor ids are stored hex encoded.
type ClickHouseSink struct {
	conn  driver.Conn
	table string
}

func NewClickHouseSink(conn driver.Conn, table string) *ClickHouseSink {
	return &ClickHouseSink{conn: conn, table: table}
}

// ReplaceProfiles loads the profiles into a staging table and swaps it
// with the live one, so readers see the old rows or the new rows and never
// an empty or missing table. A failed load leaves the live table untouched.
func (s *ClickHouseSink) ReplaceProfiles(ctx context.Context, profiles []*UserProfile) error {
	if err := ValidateTableName(s.table); err != nil {
		return err
	}
	staging := s.table + "_new"

	if err := s.conn.Exec(ctx, "DROP TABLE IF EXISTS "+staging); err != nil {
		return fmt.Errorf("failed to drop clickhouse table %s: %w", staging, err)
	}
	if err := s.conn.Exec(ctx, fmt.Sprintf(createClickHouseProfileTableSQL, staging)); err != nil {
		return fmt.Errorf("failed to create clickhouse table %s: %w", staging, err)
	}

	if err := s.load(ctx, staging, profiles); err != nil {
		if dropErr := s.conn.Exec(context.Background(), "DROP TABLE IF EXISTS "+staging); dropErr != nil {
			return fmt.Errorf("%w (and failed to drop %s: %v)", err, staging, dropErr)
		}
		return err
	}

	if err := s.conn.Exec(ctx, fmt.Sprintf(createClickHouseProfileTableSQL, s.table)); err != nil {
		return fmt.Errorf("failed to create clickhouse table %s: %w", s.table, err)
	}
	if err := s.conn.Exec(ctx, fmt.Sprintf("EXCHANGE TABLES %s AND %s", staging, s.table)); err != nil {
		return fmt.Errorf("failed to swap clickhouse table %s: %w", s.table, err)
	}
	// staging now holds the previous rows
	if err := s.conn.Exec(ctx, "DROP TABLE IF EXISTS "+staging); err != nil {
		return fmt.Errorf("failed to drop previous clickhouse rows of %s: %w", s.table, err)
	}
	return nil
}

func (s *ClickHouseSink) load(ctx context.Context, table string, profiles []*UserProfile) error {
	if len(profiles) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s (%s)", table, strings.Join(profileColumns, ", ")))
	if err != nil {
		return fmt.Errorf("failed to prepare clickhouse batch: %w", err)
	}

	for _, p := range profiles {
		err := batch.Append(
			p.Visitor,
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
			p.AvgPageviewsPerVisit.Ptr(),
			p.AvgTimePerVisit.Ptr(),
			p.BounceRate.Ptr(),
			p.EngagementRate.Ptr(),
			p.DaysActive,
			p.UserRating.Ptr(),
			string(p.UserSegment),
		)
		if err != nil {
			batch.Abort()
			return fmt.Errorf("failed to append visitor %s to clickhouse batch: %w", p.Visitor, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send clickhouse batch: %w", err)
	}
	return nil
}
