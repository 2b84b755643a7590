package telemetry

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRecordComputesSuccessFlag(t *testing.T) {
	log := NewLog(10)

	log.Record("GET", "/orders", 200, nil, 120*time.Millisecond)
	log.Record("GET", "/orders", 500, nil, 80*time.Millisecond)
	log.Record("POST", "/orders/1/printed", 0, errors.New("connection refused"), 30*time.Millisecond)

	entries := log.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if !entries[0].Success {
		t.Fatalf("expected 200 call to be a success")
	}
	if entries[1].Success {
		t.Fatalf("expected 500 call to be a failure")
	}
	if entries[2].Success || entries[2].Error == "" {
		t.Fatalf("expected transport error entry to be a failure with message")
	}
}

func TestRingEvictsOldestFirst(t *testing.T) {
	log := NewLog(3)

	for i := 0; i < 5; i++ {
		log.Record("GET", fmt.Sprintf("/orders?cycle=%d", i), 200, nil, time.Millisecond)
	}

	entries := log.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected capacity 3, got %d entries", len(entries))
	}
	if entries[0].Endpoint != "/orders?cycle=2" {
		t.Fatalf("expected oldest surviving entry to be cycle 2, got %s", entries[0].Endpoint)
	}
	if entries[2].Endpoint != "/orders?cycle=4" {
		t.Fatalf("expected newest entry to be cycle 4, got %s", entries[2].Endpoint)
	}
}

func TestStatsDerivedOnDemand(t *testing.T) {
	log := NewLog(10)

	log.Record("GET", "/orders", 200, nil, 100*time.Millisecond)
	log.Record("GET", "/orders", 200, nil, 300*time.Millisecond)
	log.Record("GET", "/orders", 401, nil, 200*time.Millisecond)

	stats := log.Stats()
	if stats.Total != 3 || stats.Success != 2 || stats.Failure != 1 {
		t.Fatalf("unexpected counters: %+v", stats)
	}
	if stats.SuccessRate < 0.66 || stats.SuccessRate > 0.67 {
		t.Fatalf("unexpected success rate: %f", stats.SuccessRate)
	}
	if stats.AvgDurationMS != 200 {
		t.Fatalf("expected mean latency 200ms, got %f", stats.AvgDurationMS)
	}

	log.Record("GET", "/orders", 200, nil, 200*time.Millisecond)
	if got := log.Stats().Total; got != 4 {
		t.Fatalf("stats must be recomputed after new records, got total %d", got)
	}
}

func TestEmptyLogStats(t *testing.T) {
	stats := NewLog(5).Stats()
	if stats.Total != 0 || stats.SuccessRate != 0 || stats.AvgDurationMS != 0 {
		t.Fatalf("expected zeroed stats on empty log, got %+v", stats)
	}
}
