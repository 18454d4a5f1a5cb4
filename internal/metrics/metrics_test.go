package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if readerRequestsTotal == nil || readerCacheEventsTotal == nil ||
		readerFetchDurationSeconds == nil || readerBrowserLaunchesTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveResolve(t *testing.T) {
	before := testutil.ToFloat64(readerRequestsCounter("direct", "ok"))
	ObserveResolve("direct", "ok")
	if got := testutil.ToFloat64(readerRequestsCounter("direct", "ok")); got != before+1 {
		t.Errorf("Expected reader_requests_total to grow by 1, got %f -> %f", before, got)
	}
}

func TestObserveCacheEvent(t *testing.T) {
	Init()
	before := testutil.ToFloat64(readerCacheEventsTotal.WithLabelValues("hit"))
	ObserveCacheEvent("hit")
	ObserveCacheEvent("hit")
	if got := testutil.ToFloat64(readerCacheEventsTotal.WithLabelValues("hit")); got != before+2 {
		t.Errorf("Expected cache hit counter to grow by 2, got %f -> %f", before, got)
	}
}

func TestObserveFetchAndLaunches(t *testing.T) {
	ObserveFetch("rendered", 250*time.Millisecond)
	if val := testutil.CollectAndCount(readerFetchDurationSeconds); val <= 0 {
		t.Errorf("Expected reader_fetch_duration_seconds to be observed, got %d", val)
	}

	before := testutil.ToFloat64(readerBrowserLaunchesTotal)
	IncBrowserLaunches()
	if got := testutil.ToFloat64(readerBrowserLaunchesTotal); got != before+1 {
		t.Errorf("Expected reader_browser_launches_total to grow by 1, got %f -> %f", before, got)
	}
}

func readerRequestsCounter(engine, outcome string) prometheus.Counter {
	Init()
	return readerRequestsTotal.WithLabelValues(engine, outcome)
}
