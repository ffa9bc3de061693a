package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/providers"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/providers/brightdata"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/queue"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/store"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/pkg/models"
)

func TestBrightDataWorkerHappyPath(t *testing.T) {
	msg := testShardMessage(providers.BrightData, 2)

	st := progressStore(1)
	var updated []*models.TrackingResult
	st.UpdateTrackingResultFunc = func(ctx context.Context, r *models.TrackingResult) error {
		updated = append(updated, r)
		return nil
	}

	scraper := &fakeScraper{
		snapshotID: "snap-1",
		results: []brightdata.Result{
			{PromptID: msg.Prompts[0].PromptID.String(), AnswerText: "Acme answer one."},
			{Prompt: msg.Prompts[1].Text, AnswerText: "Answer two."},
		},
	}
	rec := &recordingNotifier{}
	vols := &fakeVolumes{}

	w := NewBrightDataWorker(st, testBatches(st), testMailer(rec), scraper, vols,
		testLLMFactory, "gpt-test", slog.Default())

	if err := w.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(scraper.triggered) != 1 || len(scraper.triggered[0]) != 2 {
		t.Fatalf("triggered = %+v", scraper.triggered)
	}
	if len(updated) != 2 {
		t.Fatalf("updated %d rows, want 2", len(updated))
	}
	for _, r := range updated {
		if r.Status != models.ResultStatusFulfilled {
			t.Errorf("status = %q", r.Status)
		}
		if r.Source != providers.BrightData {
			t.Errorf("source = %q", r.Source)
		}
		if r.ExternalTaskID == nil || *r.ExternalTaskID != "snap-1" {
			t.Errorf("task id = %v", r.ExternalTaskID)
		}
	}
	// Brand matched in result one only.
	if updated[0].IsPresent == nil || !*updated[0].IsPresent {
		t.Error("first result should have brand present")
	}
	if updated[1].IsPresent == nil || *updated[1].IsPresent {
		t.Error("second result should not have brand present")
	}

	kinds := rec.kinds()
	if len(kinds) != 1 || kinds[0] != "succeeded" {
		t.Errorf("emails = %v", kinds)
	}
	if len(vols.queried) != 1 {
		t.Errorf("volume lookups = %d, want 1", len(vols.queried))
	}
}

func TestBrightDataWorkerDropsForeignService(t *testing.T) {
	st := progressStore(1)
	scraper := &fakeScraper{}
	w := NewBrightDataWorker(st, testBatches(st), testMailer(&recordingNotifier{}),
		scraper, nil, testLLMFactory, "gpt-test", slog.Default())

	msg := testShardMessage(providers.DataForSEO, 1)
	if err := w.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(scraper.triggered) != 0 {
		t.Error("scraper called for foreign service")
	}
}

func TestBrightDataWorkerTransientWaitIsRetryable(t *testing.T) {
	st := progressStore(1)
	scraper := &fakeScraper{snapshotID: "snap-1", waitErr: &providers.StatusError{Code: 503, Body: "overloaded"}}
	w := NewBrightDataWorker(st, testBatches(st), testMailer(&recordingNotifier{}),
		scraper, nil, testLLMFactory, "gpt-test", slog.Default())

	err := w.Handle(context.Background(), testShardMessage(providers.BrightData, 1))
	if !errors.Is(err, queue.ErrRetryable) {
		t.Errorf("err = %v, want ErrRetryable", err)
	}
}

func TestBrightDataWorkerUpstreamFailureFailsShard(t *testing.T) {
	msg := testShardMessage(providers.BrightData, 2)

	st := progressStore(1)
	var failedShards []int
	st.MarkShardResultsFailedFunc = func(ctx context.Context, jobBatchID uuid.UUID, batchNumber int, reason string) error {
		failedShards = append(failedShards, batchNumber)
		if reason != "UpstreamFailed" {
			t.Errorf("reason = %q", reason)
		}
		return nil
	}
	var terminal string
	st.UpdateJobBatchStatusFunc = func(ctx context.Context, id uuid.UUID, status string, opts ...store.BatchUpdateOption) error {
		terminal = status
		return nil
	}

	scraper := &fakeScraper{snapshotID: "snap-1", waitErr: providers.ErrUpstreamFailed}
	rec := &recordingNotifier{}
	w := NewBrightDataWorker(st, testBatches(st), testMailer(rec), scraper, nil,
		testLLMFactory, "gpt-test", slog.Default())

	if err := w.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(failedShards) != 1 {
		t.Errorf("MarkShardResultsFailed calls = %d, want 1", len(failedShards))
	}
	if terminal != models.BatchStatusFailed {
		t.Errorf("terminal status = %q, want failed", terminal)
	}
	kinds := rec.kinds()
	if len(kinds) != 1 || kinds[0] != "failed" {
		t.Errorf("emails = %v", kinds)
	}
}

func TestBrightDataWorkerUnmatchedPromptFails(t *testing.T) {
	msg := testShardMessage(providers.BrightData, 2)

	st := progressStore(1)
	var failedIDs []uuid.UUID
	st.MarkResultFailedFunc = func(ctx context.Context, id uuid.UUID, reason string) (string, error) {
		failedIDs = append(failedIDs, id)
		if reason != "NoResponse" {
			t.Errorf("reason = %q", reason)
		}
		return models.ResultStatusFailed, nil
	}

	scraper := &fakeScraper{
		snapshotID: "snap-1",
		results: []brightdata.Result{
			{PromptID: msg.Prompts[0].PromptID.String(), AnswerText: "only one answer"},
		},
	}
	w := NewBrightDataWorker(st, testBatches(st), testMailer(&recordingNotifier{}),
		scraper, nil, testLLMFactory, "gpt-test", slog.Default())

	if err := w.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(failedIDs) != 1 || failedIDs[0] != msg.Prompts[1].TrackingID {
		t.Errorf("failed ids = %v", failedIDs)
	}
}

func TestBrightDataWorkerNightlyInserts(t *testing.T) {
	msg := testShardMessage(providers.BrightData, 1)
	msg.Nightly = true
	msg.JobBatchID = nil
	msg.Email = ""

	st := progressStore(1)
	var inserted []*models.TrackingResult
	st.InsertTrackingResultFunc = func(ctx context.Context, r *models.TrackingResult) error {
		inserted = append(inserted, r)
		return nil
	}
	st.UpdateTrackingResultFunc = func(ctx context.Context, r *models.TrackingResult) error {
		t.Error("nightly shard must insert, not update")
		return nil
	}

	scraper := &fakeScraper{
		snapshotID: "snap-1",
		results:    []brightdata.Result{{Prompt: msg.Prompts[0].Text, AnswerText: "answer"}},
	}
	rec := &recordingNotifier{}
	w := NewBrightDataWorker(st, testBatches(st), testMailer(rec), scraper, nil,
		testLLMFactory, "gpt-test", slog.Default())

	if err := w.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(inserted) != 1 {
		t.Fatalf("inserted %d rows, want 1", len(inserted))
	}
	if inserted[0].Source != providers.BrightData+"-nightly" {
		t.Errorf("source = %q", inserted[0].Source)
	}
	if inserted[0].JobBatchID != nil {
		t.Error("nightly row has a job batch")
	}
	if len(rec.kinds()) != 0 {
		t.Errorf("nightly sent emails: %v", rec.kinds())
	}
}

func TestStampVolumes(t *testing.T) {
	now := time.Now()
	rows := []*models.TrackingResult{{}, nil, {}}
	volumes := []*models.VolumeData{
		{CurrentVolume: 100, MonthlyTrends: []models.MonthlyTrend{{Year: 2026, Month: 7, Volume: 100}}},
		nil,
		nil,
	}

	stampVolumes(rows, volumes, 2840, now)

	if rows[0].AISearchVolume == nil || *rows[0].AISearchVolume != 100 {
		t.Errorf("volume = %v", rows[0].AISearchVolume)
	}
	if rows[0].AIVolumeLocation == nil || *rows[0].AIVolumeLocation != 2840 {
		t.Errorf("location = %v", rows[0].AIVolumeLocation)
	}
	if rows[2].AISearchVolume != nil {
		t.Error("row without volume data got stamped")
	}
}
