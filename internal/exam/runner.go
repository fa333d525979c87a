package exam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/examforge/internal/grading"
	"github.com/pavelanni/examforge/internal/model"
)

var (
	// ErrQuestionGraded rejects writes to a question whose grade is final.
	ErrQuestionGraded = errors.New("question already graded")
	// ErrNotAnswered rejects grading a question with no answer.
	ErrNotAnswered = errors.New("question not answered")
	// ErrSubmitted rejects a second batch submission.
	ErrSubmitted = errors.New("exam already submitted")
)

// Runner owns one exam session's answering and grading lifecycle. All
// mutation goes through the runner under its lock; grading calls run
// outside the lock and their results are applied as a single batch, so a
// reader never observes a half-applied submission.
type Runner struct {
	mu      sync.Mutex
	session *model.ExamSession
	engine  *grading.Engine
	workers int
}

// NewRunner wraps an assembled session for answering and grading.
func NewRunner(session *model.ExamSession, engine *grading.Engine, workers int) *Runner {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Runner{session: session, engine: engine, workers: workers}
}

// Session returns a copy of the current session state.
func (r *Runner) Session() model.ExamSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := *r.session
	s.Questions = make([]model.ExamQuestion, len(r.session.Questions))
	copy(s.Questions, r.session.Questions)
	return s
}

// SetAnswer records the user's answer for the question at index. The
// first answer moves a ready exam to in_progress. Answers to a graded
// question are rejected: a grade is final.
func (r *Runner) SetAnswer(index int, ans model.Answer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, err := r.questionAt(index)
	if err != nil {
		return err
	}
	if q.IsGraded {
		return fmt.Errorf("question %d: %w", index, ErrQuestionGraded)
	}
	a := ans
	q.UserAnswer = &a
	r.session.CurrentQuestionIndex = index
	if r.session.Status == model.StatusReady {
		r.session.Status = model.StatusInProgress
	}
	r.session.UpdatedAt = time.Now()
	return nil
}

// GradeOne grades a single answered question. A second call for the same
// question is rejected rather than repeated, so a grade never changes
// once written.
func (r *Runner) GradeOne(ctx context.Context, index int) (grading.Result, error) {
	r.mu.Lock()
	q, err := r.questionAt(index)
	if err != nil {
		r.mu.Unlock()
		return grading.Result{}, err
	}
	if q.IsGraded {
		r.mu.Unlock()
		return grading.Result{}, fmt.Errorf("question %d: %w", index, ErrQuestionGraded)
	}
	if !q.Answered() {
		r.mu.Unlock()
		return grading.Result{}, fmt.Errorf("question %d: %w", index, ErrNotAnswered)
	}
	snapshot := *q
	r.mu.Unlock()

	res, err := r.engine.Grade(ctx, snapshot)
	if err != nil {
		return grading.Result{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	q, qerr := r.questionAt(index)
	if qerr != nil {
		return grading.Result{}, qerr
	}
	if q.IsGraded {
		// Raced with a concurrent submission; the first grade stands.
		return grading.Result{}, fmt.Errorf("question %d: %w", index, ErrQuestionGraded)
	}
	r.applyGrade(q, res)
	r.session.UpdatedAt = time.Now()
	return res, nil
}

// SubmitAll grades every answered, ungraded question concurrently and
// applies the successful grades as one batch. Unanswered questions are
// skipped, not failed. A grading call error leaves that question
// ungraded and is reported, while its siblings' grades still land. The
// session moves to submitted exactly once.
func (r *Runner) SubmitAll(ctx context.Context) (model.ExamSession, error) {
	r.mu.Lock()
	if r.session.Status == model.StatusSubmitted || r.session.Status == model.StatusGraded {
		r.mu.Unlock()
		return model.ExamSession{}, ErrSubmitted
	}
	type job struct {
		index int
		q     model.ExamQuestion
	}
	var jobs []job
	for i := range r.session.Questions {
		q := &r.session.Questions[i]
		if q.IsGraded || !q.Answered() {
			continue
		}
		jobs = append(jobs, job{index: i, q: *q})
	}
	r.mu.Unlock()

	type graded struct {
		index int
		res   grading.Result
	}
	results := make([]*graded, len(jobs))
	var callErrs []error
	var errMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, j := range jobs {
		g.Go(func() error {
			res, err := r.engine.Grade(gctx, j.q)
			if err != nil {
				slog.Warn("grading call failed", "question", j.q.ID, "error", err)
				errMu.Lock()
				callErrs = append(callErrs, err)
				errMu.Unlock()
				return nil
			}
			results[i] = &graded{index: j.index, res: res}
			return nil
		})
	}
	_ = g.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, gr := range results {
		if gr == nil {
			continue
		}
		q := &r.session.Questions[gr.index]
		if q.IsGraded {
			continue
		}
		r.applyGrade(q, gr.res)
	}
	r.session.Status = model.StatusSubmitted
	r.session.UpdatedAt = time.Now()

	out := *r.session
	out.Questions = make([]model.ExamQuestion, len(r.session.Questions))
	copy(out.Questions, r.session.Questions)
	return out, errors.Join(callErrs...)
}

func (r *Runner) applyGrade(q *model.ExamQuestion, res grading.Result) {
	score := res.Score
	q.ObtainedScore = &score
	q.Feedback = res.Feedback
	q.IsGraded = true
}

func (r *Runner) questionAt(index int) (*model.ExamQuestion, error) {
	if index < 0 || index >= len(r.session.Questions) {
		return nil, fmt.Errorf("question index %d out of range [0,%d)", index, len(r.session.Questions))
	}
	return &r.session.Questions[index], nil
}
