package rating

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/joho/godotenv"
	"github.com/kmassidik/engagement/internal/common/config"
	"github.com/kmassidik/engagement/internal/common/db"
	"github.com/kmassidik/engagement/internal/common/logger"
)

const (
	testSourceTable = "rating_test_sessions"
	testTargetTable = "rating_test_profiles"
)

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	godotenv.Load("../../.env")
	cfg, err := config.Load("rating-test")
	if err != nil {
		t.Skipf("Cannot load config: %v", err)
	}
	if name := os.Getenv("TEST_DB_NAME"); name != "" {
		cfg.Database.DBName = name
	} else {
		cfg.Database.DBName = "engagement_test"
	}

	database, err := db.Connect(cfg.Database, logger.Nop())
	if err != nil {
		t.Skipf("Cannot connect to database: %v", err)
	}
	t.Cleanup(func() {
		database.Exec("DROP TABLE IF EXISTS " + testSourceTable)
		database.Exec("DROP TABLE IF EXISTS " + testTargetTable)
		database.Close()
	})
	return database
}

func seedSessions(t *testing.T, database *db.DB) {
	t.Helper()
	schema := `
	DROP TABLE IF EXISTS rating_test_sessions;
	CREATE TABLE rating_test_sessions (
		idvisitor BYTEA,
		idvisit BIGINT,
		full_url TEXT,
		feature TEXT,
		domain TEXT,
		server_time TIMESTAMP,
		visit_date DATE,
		pageview_position INTEGER,
		time_spent_ref_action INTEGER,
		visit_total_actions INTEGER,
		location_country TEXT,
		location_city TEXT,
		is_bounce BOOLEAN,
		has_engagement BOOLEAN
	);
	INSERT INTO rating_test_sessions VALUES
		('\x41', 1, 'https://app/a', 'search', 'app', '2024-03-01 09:00:00', '2024-03-01', 1, 10, 1, 'fr', 'Paris', true, false),
		('\x41', 2, 'https://app/b', 'search', 'app', '2024-03-02 11:00:00', '2024-03-02', 1, 20, 2, 'fr', 'Paris', false, true),
		('\x41', 2, 'https://app/c', 'cart', 'app', '2024-03-03 11:00:00', '2024-03-02', 2, 30, 2, NULL, NULL, false, NULL),
		('\x42', 3, 'https://app/a', NULL, NULL, '2024-03-01 10:00:00', '2024-03-01', 1, 5, 1, NULL, 'Oslo', false, false),
		('\x42', 3, NULL, NULL, NULL, '2024-03-01 11:00:00', '2024-03-01', NULL, 0, 1, 'no', NULL, false, false);
	`
	if _, err := database.Exec(schema); err != nil {
		t.Fatalf("Failed to seed sessions: %v", err)
	}
}

func TestPostgresRoundTrip(t *testing.T) {
	database := setupTestDB(t)
	seedSessions(t, database)
	ctx := context.Background()

	events, err := NewPostgresSource(database.DB, testSourceTable).FetchEvents(ctx)
	if err != nil {
		t.Fatalf("FetchEvents() error = %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("Expected 5 events, got %d", len(events))
	}
	if events[4].FullURL != nil || events[4].PageviewPosition != 0 {
		t.Errorf("Expected NULL url and position to scan as nil/0, got %+v", events[4])
	}

	profiles, err := NewEngine(1).Run(events)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	sink := NewPostgresSink(database, testTargetTable)
	if err := sink.ReplaceProfiles(ctx, profiles); err != nil {
		t.Fatalf("ReplaceProfiles() error = %v", err)
	}
	// A second replace must not duplicate rows
	if err := sink.ReplaceProfiles(ctx, profiles); err != nil {
		t.Fatalf("ReplaceProfiles() second run error = %v", err)
	}

	reader := NewProfileReader(database.DB, testTargetTable)

	a, err := reader.GetProfile(ctx, []byte("A"))
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	if a.TotalVisits != 2 || a.TotalPageviews != 3 || a.BounceRate != 50 || a.UserSegment != SegmentChampion {
		t.Errorf("Unexpected stored profile: %+v", a)
	}
	if a.FavoriteFeature == nil || *a.FavoriteFeature != "search" {
		t.Errorf("Expected favorite feature search, got %v", a.FavoriteFeature)
	}

	b, err := reader.GetProfile(ctx, []byte("B"))
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	if b.FavoriteFeature != nil || b.LocationCity == nil || *b.LocationCity != "Oslo" {
		t.Errorf("Unexpected nullable columns for B: %+v", b)
	}

	if _, err := reader.GetProfile(ctx, []byte("Z")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	top, err := reader.TopProfiles(ctx, 1)
	if err != nil {
		t.Fatalf("TopProfiles() error = %v", err)
	}
	if len(top) != 1 || string(top[0].VisitorID) != "A" {
		t.Errorf("Expected A on top, got %+v", top)
	}

	counts, err := reader.SegmentCounts(ctx)
	if err != nil {
		t.Fatalf("SegmentCounts() error = %v", err)
	}
	total := 0
	for _, c := range counts {
		total += c.Count
	}
	if total != 2 {
		t.Errorf("Expected 2 stored profiles after two replaces, got %d", total)
	}
}

func TestPostgresSourceRejectsNullCounters(t *testing.T) {
	database := setupTestDB(t)
	seedSessions(t, database)

	if _, err := database.Exec(`UPDATE rating_test_sessions SET time_spent_ref_action = NULL WHERE idvisit = 3`); err != nil {
		t.Fatalf("Failed to update sessions: %v", err)
	}

	_, err := NewPostgresSource(database.DB, testSourceTable).FetchEvents(context.Background())
	var evErr *EventError
	if !errors.As(err, &evErr) {
		t.Fatalf("Expected *EventError, got %v", err)
	}
	if evErr.Visitor != VisitorHex([]byte("B")) || evErr.Field != "time_spent_ref_action" {
		t.Errorf("Unexpected error detail: %+v", evErr)
	}
}

func TestPostgresSinkRejectsBadTable(t *testing.T) {
	sink := NewPostgresSink(nil, "profiles; DROP TABLE users")
	if err := sink.ReplaceProfiles(context.Background(), nil); err == nil {
		t.Error("Expected invalid table name to be rejected")
	}
}
