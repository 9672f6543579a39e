// Reelpick - Adaptive Movie Night Recommendation Engine
// Copyright 2026 J. Marsh (reelpick)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelpick/reelpick

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveStoreOpRecordsDuration(t *testing.T) {
	before := testutil.CollectAndCount(StoreOpDuration)

	ObserveStoreOp("save", "session", 25*time.Millisecond)
	ObserveStoreOp("save", "session", 40*time.Millisecond)
	ObserveStoreOp("load", "weights", time.Second)

	after := testutil.CollectAndCount(StoreOpDuration)
	if after-before != 2 {
		t.Errorf("got %d new label series, want 2", after-before)
	}
}

func TestMetricsLint(t *testing.T) {
	problems, err := testutil.GatherAndLint(prometheus.DefaultGatherer)
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, p := range problems {
		t.Errorf("metric %s: %s", p.Metric, p.Text)
	}
}
