package rating

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kmassidik/engagement/internal/common/config"
	"github.com/kmassidik/engagement/internal/common/kafka"
	"github.com/kmassidik/engagement/internal/common/logger"
	"github.com/kmassidik/engagement/internal/common/metrics"
	"github.com/kmassidik/engagement/internal/common/redis"
)

const (
	runLockKey      = "rating:run"
	summaryCacheKey = "rating:summary:last"
	processedRunKey = "rating:processed:"
	profileCacheKey = "rating:profile:"
	processedRunTTL = 7 * 24 * time.Hour
)

type Service interface {
	// Runs
	Run(ctx context.Context, req *RunRequest) (*RunResult, error)
	RequestRun(ctx context.Context, requestedBy string) (*RunRequest, *RunSummary, error)
	ProcessKafkaEvent(ctx context.Context, value []byte) error

	// Reads
	LastSummary(ctx context.Context) (*RunSummary, error)
	GetProfile(ctx context.Context, visitor string) (*UserProfile, error)
	TopProfiles(ctx context.Context, limit int) ([]*UserProfile, error)
	Ready(ctx context.Context) error
}

// HealthChecker is satisfied by *db.DB
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Dependencies wires a Service. Redis, Publisher, Mirrors and DB are
// optional; Source and Sink are required for runs, Reader for reads.
type Dependencies struct {
	Source    Source
	Sink      Sink
	Mirrors   []Sink
	Reader    ProfileReader
	Engine    *Engine
	Redis     *redis.Client
	Publisher kafka.Publisher
	DB        HealthChecker
	Logger    *logger.Logger
}

type service struct {
	cfg  config.RatingConfig
	deps Dependencies
	log  *logger.Logger

	mu   sync.RWMutex
	last *RunSummary
}

func NewService(cfg config.RatingConfig, deps Dependencies) Service {
	if deps.Engine == nil {
		deps.Engine = NewEngine(cfg.Workers)
	}
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &service{cfg: cfg, deps: deps, log: log}
}

// NewRunRequest stamps a fresh run id
func NewRunRequest(requestedBy string) *RunRequest {
	return &RunRequest{
		RunID:       uuid.NewString(),
		RequestedBy: requestedBy,
		RequestedAt: time.Now().UTC(),
	}
}

// Run recomputes the whole rating table: fetch, rate, replace, summarize.
// Only one run executes at a time when Redis is configured.
func (s *service) Run(ctx context.Context, req *RunRequest) (*RunResult, error) {
	if req == nil {
		req = NewRunRequest("")
	}
	log := s.log.With("run_id", req.RunID)
	start := time.Now()

	result, err := s.run(ctx, req, log)
	switch {
	case errors.Is(err, ErrRunInProgress):
		metrics.RatingRuns.WithLabelValues("skipped").Inc()
		return nil, err
	case err != nil:
		metrics.RatingRuns.WithLabelValues("failure").Inc()
		log.Errorf("Rating run failed: %v", err)
		return nil, err
	}

	metrics.RatingRuns.WithLabelValues("success").Inc()
	metrics.RatingRunDuration.Observe(time.Since(start).Seconds())
	return result, nil
}

func (s *service) run(ctx context.Context, req *RunRequest, log *logger.Logger) (*RunResult, error) {
	if s.deps.Source == nil || s.deps.Sink == nil {
		return nil, fmt.Errorf("rating service has no source or sink configured")
	}

	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}

	if s.deps.Redis != nil {
		locked, err := s.deps.Redis.AcquireLock(ctx, runLockKey, req.RunID, s.cfg.LockTTL)
		if err != nil {
			return nil, err
		}
		if !locked {
			return nil, ErrRunInProgress
		}
		defer func() {
			released, err := s.deps.Redis.ReleaseLock(context.Background(), runLockKey, req.RunID)
			switch {
			case err != nil:
				log.Warnf("Failed to release run lock: %v", err)
			case !released:
				log.Warn("Run lock expired before the run finished")
			}
		}()
	}

	// A run never outlives its lock
	if s.cfg.LockTTL > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.LockTTL)
		defer cancel()
	}

	startedAt := time.Now().UTC()
	log.Infof("Loading user session data from %s", s.cfg.SourceTable)

	events, err := s.deps.Source.FetchEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch session events: %w", err)
	}
	metrics.EventsRead.Add(float64(len(events)))
	log.Infof("Loaded %d rows", len(events))

	profiles, err := s.deps.Engine.Run(events)
	if err != nil {
		return nil, fmt.Errorf("failed to rate visitors: %w", err)
	}
	log.Infof("Calculated metrics for %d users", len(profiles))

	if err := s.deps.Sink.ReplaceProfiles(ctx, profiles); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", s.cfg.TargetTable, err)
	}
	log.Infof("Inserted %d rows into '%s'", len(profiles), s.cfg.TargetTable)

	summary := Summarize(profiles, s.cfg.TopN)
	summary.RunID = req.RunID
	summary.TargetTable = s.cfg.TargetTable
	summary.StartedAt = startedAt
	summary.FinishedAt = time.Now().UTC()
	summary.Events = len(events)

	// The table is committed; the summary describes it even if a mirror fails
	s.recordSummary(ctx, summary, log)
	s.publishCompleted(ctx, summary, log)

	for _, mirror := range s.deps.Mirrors {
		if err := mirror.ReplaceProfiles(ctx, profiles); err != nil {
			return nil, fmt.Errorf("%s was replaced but its mirror was not: %w", s.cfg.TargetTable, err)
		}
	}

	return &RunResult{Summary: summary, Profiles: profiles}, nil
}

// recordSummary keeps the summary for the read API. Cache failures are
// logged only; the table itself is already committed.
func (s *service) recordSummary(ctx context.Context, summary *RunSummary, log *logger.Logger) {
	s.mu.Lock()
	s.last = summary
	s.mu.Unlock()

	metrics.ProfilesWritten.Set(float64(summary.Profiles))
	for _, segment := range Segments {
		metrics.SegmentSize.WithLabelValues(string(segment)).Set(0)
	}
	for _, c := range summary.Segments {
		metrics.SegmentSize.WithLabelValues(string(c.Segment)).Set(float64(c.Count))
	}

	if s.deps.Redis == nil {
		return
	}
	if err := s.deps.Redis.SetJSON(ctx, summaryCacheKey, summary, s.cfg.CacheTTL); err != nil {
		log.Warnf("Failed to cache run summary: %v", err)
	}
	if err := s.deps.Redis.Set(ctx, processedRunKey+summary.RunID, summary.FinishedAt.Format(time.RFC3339), processedRunTTL).Err(); err != nil {
		log.Warnf("Failed to mark run processed: %v", err)
	}
	if err := s.deps.Redis.InvalidatePrefix(ctx, profileCacheKey); err != nil {
		log.Warnf("Failed to invalidate profile cache: %v", err)
	}
}

func (s *service) publishCompleted(ctx context.Context, summary *RunSummary, log *logger.Logger) {
	if s.deps.Publisher == nil || s.cfg.CompletedTopic == "" {
		return
	}
	event := &RunCompletedEvent{
		EventID: uuid.NewString(),
		Summary: summary,
	}
	if err := s.deps.Publisher.PublishEvent(ctx, s.cfg.CompletedTopic, summary.RunID, event); err != nil {
		log.Warnf("Failed to publish %s: %v", s.cfg.CompletedTopic, err)
	}
}

// RequestRun queues a run on Kafka when a publisher is configured and
// otherwise runs it inline, returning its summary.
func (s *service) RequestRun(ctx context.Context, requestedBy string) (*RunRequest, *RunSummary, error) {
	req := NewRunRequest(requestedBy)

	if s.deps.Publisher != nil && s.cfg.RequestTopic != "" {
		if err := s.deps.Publisher.PublishEvent(ctx, s.cfg.RequestTopic, req.RunID, req); err != nil {
			return nil, nil, fmt.Errorf("failed to queue rating run: %w", err)
		}
		s.log.Infof("Queued rating run %s for %s", req.RunID, requestedBy)
		return req, nil, nil
	}

	result, err := s.Run(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	return req, result.Summary, nil
}

// ProcessKafkaEvent handles one rating.requested message. Redelivered
// requests and requests that race a running job are skipped.
func (s *service) ProcessKafkaEvent(ctx context.Context, value []byte) error {
	var req RunRequest
	if err := kafka.UnmarshalEvent(value, &req); err != nil {
		return err
	}
	if req.RunID == "" {
		return fmt.Errorf("rating request has no run_id")
	}

	processed, err := s.isRunProcessed(ctx, req.RunID)
	if err != nil {
		return fmt.Errorf("failed to check run status: %w", err)
	}
	if processed {
		s.log.Infof("Rating run %s already processed, skipping", req.RunID)
		return nil
	}

	if _, err := s.Run(ctx, &req); err != nil {
		if errors.Is(err, ErrRunInProgress) {
			s.log.Infof("Rating run %s skipped: %v", req.RunID, err)
			return nil
		}
		return err
	}
	return nil
}

func (s *service) isRunProcessed(ctx context.Context, runID string) (bool, error) {
	if s.deps.Redis == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.last != nil && s.last.RunID == runID, nil
	}
	n, err := s.deps.Redis.Exists(ctx, processedRunKey+runID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// LastSummary returns the newest run summary: Redis first, then this
// process, then a summary rebuilt from the table without run metadata.
func (s *service) LastSummary(ctx context.Context) (*RunSummary, error) {
	if s.deps.Redis != nil {
		var cached RunSummary
		err := s.deps.Redis.GetJSON(ctx, summaryCacheKey, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, redis.ErrCacheMiss) {
			s.log.Warnf("Failed to read cached summary: %v", err)
		}
	}

	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()
	if last != nil {
		return last, nil
	}

	if s.deps.Reader == nil {
		return nil, ErrNoSummary
	}
	segments, err := s.deps.Reader.SegmentCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSummary, err)
	}
	if len(segments) == 0 {
		return nil, ErrNoSummary
	}
	top, err := s.deps.Reader.TopProfiles(ctx, s.cfg.TopN)
	if err != nil {
		return nil, fmt.Errorf("failed to load top profiles: %w", err)
	}

	summary := &RunSummary{TargetTable: s.cfg.TargetTable, Segments: segments, Top: make([]TopUser, 0, len(top))}
	for _, c := range segments {
		summary.Profiles += c.Count
	}
	for _, p := range top {
		summary.Top = append(summary.Top, TopUser{
			Visitor:     p.Visitor,
			UserRating:  p.UserRating,
			UserSegment: p.UserSegment,
			TotalVisits: p.TotalVisits,
		})
	}
	return summary, nil
}

// GetProfile looks up one visitor by hex id, caching hits in Redis
func (s *service) GetProfile(ctx context.Context, visitor string) (*UserProfile, error) {
	id, err := ParseVisitorHex(visitor)
	if err != nil {
		return nil, err
	}
	if s.deps.Reader == nil {
		return nil, ErrNotFound
	}

	key := profileCacheKey + VisitorHex(id)
	if s.deps.Redis != nil {
		var cached UserProfile
		if err := s.deps.Redis.GetJSON(ctx, key, &cached); err == nil {
			cached.VisitorID = id
			return &cached, nil
		}
	}

	profile, err := s.deps.Reader.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.deps.Redis != nil {
		if err := s.deps.Redis.SetJSON(ctx, key, profile, s.cfg.CacheTTL); err != nil {
			s.log.Warnf("Failed to cache profile %s: %v", profile.Visitor, err)
		}
	}
	return profile, nil
}

func (s *service) TopProfiles(ctx context.Context, limit int) ([]*UserProfile, error) {
	if s.deps.Reader == nil {
		return nil, ErrNoSummary
	}
	return s.deps.Reader.TopProfiles(ctx, limit)
}

// Ready reports whether the database and Redis are reachable
func (s *service) Ready(ctx context.Context) error {
	if s.deps.DB != nil {
		if err := s.deps.DB.Health(ctx); err != nil {
			return fmt.Errorf("database unavailable: %w", err)
		}
	}
	if s.deps.Redis != nil {
		if err := s.deps.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis unavailable: %w", err)
		}
	}
	return nil
}
