package app_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"demandForecastApp/internal/app"
	"demandForecastApp/internal/domain/model"
)

type recordingBroadcaster struct {
	mu      sync.Mutex
	reports []*model.RunReport
}

func (b *recordingBroadcaster) BroadcastRun(r *model.RunReport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reports = append(b.reports, r)
}

func (b *recordingBroadcaster) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.reports)
}

func newTestPipeline() *app.Pipeline {
	return app.NewPipeline(&stubRollup{}, &scriptedForecasts{}, newNotices(&recordingNotifier{}, model.PlausibilityBand{}),
		[]model.Region{model.RegionWest}, model.ForecastableMetrics, zap.NewNop())
}

func TestScheduler_RunOnceBroadcasts(t *testing.T) {
	b := &recordingBroadcaster{}
	s := app.NewScheduler(newTestPipeline(), 0, b, zap.NewNop())

	if s.Last() != nil {
		t.Fatal("expected no report before the first run")
	}
	report, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.Stage() != model.StageDone {
		t.Errorf("expected done, got %s", report.Stage())
	}
	if s.Last() != report {
		t.Error("last report not recorded")
	}
	if b.count() != 1 {
		t.Errorf("expected 1 broadcast, got %d", b.count())
	}
}

func TestScheduler_RunForeverTicks(t *testing.T) {
	b := &recordingBroadcaster{}
	s := app.NewScheduler(newTestPipeline(), 10*time.Millisecond, b, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := s.RunForever(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.count() < 2 {
		t.Errorf("expected several periodic runs, got %d", b.count())
	}
}

func TestScheduler_DisabledInterval(t *testing.T) {
	b := &recordingBroadcaster{}
	s := app.NewScheduler(newTestPipeline(), 0, b, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_ = s.RunForever(ctx)
	if b.count() != 0 {
		t.Errorf("a zero interval must not run, got %d runs", b.count())
	}
}
