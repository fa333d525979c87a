// Package exam orchestrates exam assembly and answering: the generation
// session fans blueprint entries out to the question generator and
// assembles the result in blueprint order; the runner owns the live
// session's answers and grading state.
package exam

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/examforge/internal/generator"
	"github.com/pavelanni/examforge/internal/model"
	"github.com/pavelanni/examforge/internal/planner"
)

// DefaultWorkers bounds concurrent generation and grading calls.
const DefaultWorkers = 5

// SnapshotStore persists generation progress so the host can resume a
// display after unmount/remount. Implementations must tolerate frequent
// saves.
type SnapshotStore interface {
	SaveSnapshot(p model.GenerationProgress) error
	LoadSnapshot() (*model.GenerationProgress, error)
}

// Session drives one exam generation at a time: planning, bounded
// parallel question generation, ordered assembly. Starting a new run
// cancels any run still in flight (cancel-and-replace), so a stale run's
// late results are dropped, never applied.
type Session struct {
	planner   *planner.Planner
	generator *generator.Generator
	snapshots SnapshotStore
	workers   int

	mu       sync.Mutex
	cancel   context.CancelFunc
	progress model.GenerationProgress
}

// Option configures a Session.
type Option func(*Session)

// WithWorkers sets the generation worker pool size.
func WithWorkers(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.workers = n
		}
	}
}

// NewSession creates a generation session. snapshots may be nil when the
// host does not persist progress.
func NewSession(p *planner.Planner, g *generator.Generator, snapshots SnapshotStore, opts ...Option) *Session {
	s := &Session{
		planner:   p,
		generator: g,
		snapshots: snapshots,
		workers:   DefaultWorkers,
		progress:  model.GenerationProgress{Phase: model.PhaseIdle},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Progress returns the latest published progress value.
func (s *Session) Progress() model.GenerationProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// Resume restores a persisted snapshot, if any, as the current progress
// without re-issuing any completion calls.
func (s *Session) Resume() (model.GenerationProgress, bool) {
	if s.snapshots == nil {
		return s.Progress(), false
	}
	snap, err := s.snapshots.LoadSnapshot()
	if err != nil {
		slog.Warn("load snapshot", "error", err)
		return s.Progress(), false
	}
	if snap == nil {
		return s.Progress(), false
	}
	s.mu.Lock()
	s.progress = *snap
	s.mu.Unlock()
	return *snap, true
}

// Reset returns an errored or finished session to idle.
func (s *Session) Reset() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
	s.publish(model.GenerationProgress{Phase: model.PhaseIdle})
}

// Generate plans and generates a whole exam. It returns immediately with
// a channel of progress values; the terminal value has phase done and
// carries the assembled exam, or phase error. The channel is buffered for
// the full run and closed when the run ends, so slow consumers never
// stall generation.
func (s *Session) Generate(ctx context.Context, cfg model.ExamConfig) <-chan model.GenerationProgress {
	s.mu.Lock()
	if s.cancel != nil {
		// Regenerate while a run is in flight: cancel-and-replace.
		s.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	// Room for planning, every per-question update, and the terminal value.
	updates := make(chan model.GenerationProgress, cfg.QuestionCount+4)
	go func() {
		defer close(updates)
		s.run(runCtx, cfg, updates)
	}()
	return updates
}

func (s *Session) run(ctx context.Context, cfg model.ExamConfig, updates chan<- model.GenerationProgress) {
	emit := func(p model.GenerationProgress) {
		if ctx.Err() != nil {
			// A replaced run must not overwrite the successor's state.
			return
		}
		s.publish(p)
		updates <- p
	}

	emit(model.GenerationProgress{Phase: model.PhasePlanning, Progress: 5})

	bps, err := s.planner.Plan(ctx, cfg)
	if err != nil {
		slog.Error("planning failed", "topic", cfg.Topic, "error", err)
		emit(model.GenerationProgress{Phase: model.PhaseError, Err: err.Error()})
		return
	}
	planner.CheckScoreSum(bps, cfg.TotalScore)

	total := len(bps)
	emit(model.GenerationProgress{Phase: model.PhaseGenerating, Progress: 10, Total: total})

	// Fan out one generation per blueprint through a bounded pool.
	// Results land in a slice indexed by blueprint position so the
	// assembled exam is ordered by index, never by completion order.
	questions := make([]model.ExamQuestion, total)
	var done int
	var doneMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, bp := range bps {
		g.Go(func() error {
			q := s.generator.Generate(gctx, bp, cfg)
			doneMu.Lock()
			questions[bp.Index] = q
			done++
			completed := done
			doneMu.Unlock()

			emit(model.GenerationProgress{
				Phase:     model.PhaseGenerating,
				Progress:  10 + completed*90/total,
				Completed: completed,
				Total:     total,
			})
			return nil
		})
	}
	_ = g.Wait() // generation never errors; Wait only joins the pool

	if ctx.Err() != nil {
		slog.Info("generation run cancelled", "topic", cfg.Topic)
		return
	}

	now := time.Now()
	exam := &model.ExamSession{
		ID:        uuid.NewString(),
		Config:    cfg,
		CreatedAt: now,
		UpdatedAt: now,
		Status:    model.StatusReady,
		Questions: questions,
	}
	emit(model.GenerationProgress{
		Phase:         model.PhaseDone,
		Progress:      100,
		Completed:     total,
		Total:         total,
		GeneratedExam: exam,
	})
}

// publish records progress and saves the snapshot. Saving on every change
// is the contract: partial progress is only observable through snapshots.
func (s *Session) publish(p model.GenerationProgress) {
	s.mu.Lock()
	s.progress = p
	s.mu.Unlock()
	if s.snapshots != nil {
		if err := s.snapshots.SaveSnapshot(p); err != nil {
			slog.Warn("save snapshot", "phase", p.Phase, "error", err)
		}
	}
}
