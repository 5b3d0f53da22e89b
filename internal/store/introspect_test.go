// ABOUTME: Integration tests for the introspection surface: stats, listing, replay.
// ABOUTME: Uses testutil.NewTestDB; each test runs in its own container (t.Parallel).
package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/teacurran/village-homepage-sub012/internal/job"
	"github.com/teacurran/village-homepage-sub012/internal/store"
	"github.com/teacurran/village-homepage-sub012/internal/testutil"
)

func TestQueueStats(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		mustEnqueue(t, s, ctx, store.EnqueueJobParams{})
	}
	mustEnqueue(t, s, ctx, store.EnqueueJobParams{Queue: job.QueueBulk, JobType: "RANK_RECALC"})

	// Move one job to processing and one to completed.
	first := mustClaim(t, s, ctx, "worker-1", time.Minute)
	second := mustClaim(t, s, ctx, "worker-1", time.Minute)
	if first == nil || second == nil {
		t.Fatal("claims came back empty")
	}
	if err := s.CompleteJob(ctx, first.ID); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}

	stats, err := s.QueueStats(ctx)
	if err != nil {
		t.Fatalf("QueueStats: %v", err)
	}

	byQueue := make(map[job.Queue]store.QueueStat, len(stats))
	for _, st := range stats {
		byQueue[st.Queue] = st
	}

	def, ok := byQueue[job.QueueDefault]
	if !ok {
		t.Fatal("no stats row for default queue")
	}
	if def.Pending != 2 || def.Processing != 1 || def.Completed != 1 || def.Failed != 0 {
		t.Errorf("default stats = %+v, want 2 pending / 1 processing / 1 completed / 0 failed", def)
	}
	if def.OldestPending == nil {
		t.Error("default queue has pending jobs but no oldest-pending timestamp")
	}

	bulk, ok := byQueue[job.QueueBulk]
	if !ok {
		t.Fatal("no stats row for bulk queue")
	}
	if bulk.Pending != 1 {
		t.Errorf("bulk pending = %d, want 1", bulk.Pending)
	}
}

func TestListJobs_FiltersAndKeyset(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	var defaultIDs []int64
	for i := 0; i < 3; i++ {
		defaultIDs = append(defaultIDs, mustEnqueue(t, s, ctx, store.EnqueueJobParams{}))
	}
	screenshotID := mustEnqueue(t, s, ctx, store.EnqueueJobParams{
		Queue:   job.QueueScreenshot,
		JobType: "SCREENSHOT_CAPTURE",
	})

	// Queue filter.
	screenshot := job.QueueScreenshot
	rows, err := s.ListJobs(ctx, store.ListJobsParams{Queue: &screenshot, Limit: 10})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != screenshotID {
		t.Errorf("screenshot filter returned %d rows, want the one screenshot job", len(rows))
	}

	// Job type filter.
	feedType := "RSS_FEED_REFRESH"
	rows, err = s.ListJobs(ctx, store.ListJobsParams{JobType: &feedType, Limit: 10})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("type filter returned %d rows, want 3", len(rows))
	}

	// Newest-first ordering with keyset pagination.
	rows, err = s.ListJobs(ctx, store.ListJobsParams{Limit: 2})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != screenshotID {
		t.Fatalf("first page = %d rows starting at %d, want 2 rows starting at %d",
			len(rows), rows[0].ID, screenshotID)
	}
	rows, err = s.ListJobs(ctx, store.ListJobsParams{AfterID: rows[1].ID, Limit: 10})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != defaultIDs[1] {
		t.Errorf("second page = %d rows, want the 2 oldest jobs", len(rows))
	}

	// Status filter after a claim.
	if j := mustClaim(t, s, ctx, "worker-1", time.Minute); j == nil {
		t.Fatal("claim: no job")
	}
	processing := job.StatusProcessing
	rows, err = s.ListJobs(ctx, store.ListJobsParams{Status: &processing, Limit: 10})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("processing filter returned %d rows, want 1", len(rows))
	}
}

func TestReplayJob_ResetsFailedJob(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	id := mustEnqueue(t, s, ctx, store.EnqueueJobParams{})
	if j := mustClaim(t, s, ctx, "worker-1", time.Minute); j == nil {
		t.Fatal("claim: no job")
	}
	if err := s.FailJob(ctx, id, "boom"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	if err := s.ReplayJob(ctx, id); err != nil {
		t.Fatalf("ReplayJob: %v", err)
	}

	j := mustGetJob(t, s, ctx, id)
	if j.Status != job.StatusPending {
		t.Errorf("status = %s, want pending", j.Status)
	}
	if j.Attempts != 0 {
		t.Errorf("attempts = %d, want 0 after replay", j.Attempts)
	}
	if j.FailedAt != nil || j.LastError != nil {
		t.Error("terminal bookkeeping not cleared by replay")
	}

	// Replayed jobs are claimable again.
	if j := mustClaim(t, s, ctx, "worker-2", time.Minute); j == nil || j.ID != id {
		t.Error("replayed job not claimable")
	}
}

func TestReplayJob_IgnoresNonFailedJobs(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	id := mustEnqueue(t, s, ctx, store.EnqueueJobParams{})
	if err := s.ReplayJob(ctx, id); err != nil {
		t.Fatalf("ReplayJob: %v", err)
	}
	j := mustGetJob(t, s, ctx, id)
	if j.Status != job.StatusPending || j.Attempts != 0 {
		t.Errorf("pending job mutated by replay: %+v", j)
	}
}
