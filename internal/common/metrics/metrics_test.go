package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorsRegistered(t *testing.T) {
	RatingRuns.WithLabelValues("success").Inc()
	SegmentSize.WithLabelValues("Champion").Set(3)

	if got := testutil.ToFloat64(SegmentSize.WithLabelValues("Champion")); got != 3 {
		t.Errorf("Expected segment gauge 3, got %v", got)
	}

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{"engagement_rating_runs_total", "engagement_segment_visitors"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("Expected %s in metrics output", name)
		}
	}
}
