// Package handler exposes the generation and exam lifecycle as a JSON
// HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examforge/internal/exam"
	"github.com/pavelanni/examforge/internal/grading"
	"github.com/pavelanni/examforge/internal/model"
	"github.com/pavelanni/examforge/internal/store"
)

// Handler holds shared dependencies for HTTP handlers. One generation
// session serves the whole process; runners are created per exam as
// exams are opened for answering.
type Handler struct {
	store      *store.Store
	generation *exam.Session
	engine     *grading.Engine
	workers    int

	mu      sync.Mutex
	runners map[string]*exam.Runner
}

// New creates a new Handler.
func New(s *store.Store, generation *exam.Session, engine *grading.Engine, workers int) *Handler {
	return &Handler{
		store:      s,
		generation: generation,
		engine:     engine,
		workers:    workers,
		runners:    make(map[string]*exam.Runner),
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/generate", h.handleGenerate)
	r.Get("/api/generate/progress", h.handleProgress)
	r.Post("/api/generate/reset", h.handleReset)
	r.Get("/api/exams", h.handleListExams)
	r.Get("/api/exams/export", h.handleExport)
	r.Get("/api/exams/{sessionID}", h.handleGetExam)
	r.Post("/api/exams/{sessionID}/answers/{index}", h.handleSetAnswer)
	r.Post("/api/exams/{sessionID}/questions/{index}/grade", h.handleGradeOne)
	r.Post("/api/exams/{sessionID}/submit", h.handleSubmit)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// handleGenerate starts (or replaces) a generation run and returns
// immediately; progress is polled via handleProgress. The terminal exam
// is persisted as it lands.
func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var cfg model.ExamConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if cfg.Topic == "" || cfg.QuestionCount <= 0 || cfg.TotalScore <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "topic, question_count and total_score are required",
		})
		return
	}

	// The run must outlive this request.
	updates := h.generation.Generate(context.WithoutCancel(r.Context()), cfg)
	go h.persistWhenDone(updates)

	writeJSON(w, http.StatusAccepted, h.generation.Progress())
}

// persistWhenDone drains a generation run and saves the assembled exam.
func (h *Handler) persistWhenDone(updates <-chan model.GenerationProgress) {
	for p := range updates {
		if p.Phase == model.PhaseDone && p.GeneratedExam != nil {
			if err := h.store.SaveSession(p.GeneratedExam); err != nil {
				slog.Error("persist generated exam", "session", p.GeneratedExam.ID, "error", err)
			}
		}
	}
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.generation.Progress())
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	h.generation.Reset()
	if err := h.store.ClearSnapshot(); err != nil {
		slog.Warn("clear snapshot", "error", err)
	}
	writeJSON(w, http.StatusOK, h.generation.Progress())
}

func (h *Handler) handleListExams(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if sessions == nil {
		sessions = []model.ExamSession{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	results, err := h.store.ExportAllSessions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if results == nil {
		results = []model.ExamResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handler) handleGetExam(w http.ResponseWriter, r *http.Request) {
	runner, err := h.runnerFor(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	sess := runner.Session()
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleSetAnswer(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var body struct {
		Answer model.Answer `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	runner, err := h.runnerFor(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	if err := runner.SetAnswer(index, body.Answer); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	h.save(runner)
	writeJSON(w, http.StatusOK, runner.Session())
}

func (h *Handler) handleGradeOne(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	runner, err := h.runnerFor(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeLookupError(w, err)
		return
	}

	res, err := runner.GradeOne(r.Context(), index)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	h.save(runner)
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	runner, err := h.runnerFor(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeLookupError(w, err)
		return
	}

	sess, err := runner.SubmitAll(r.Context())
	if errors.Is(err, exam.ErrSubmitted) {
		writeError(w, http.StatusConflict, err)
		return
	}
	h.save(runner)

	resp := map[string]any{
		"session":        sess,
		"obtained_score": sess.TotalObtained(),
		"max_score":      sess.MaxScore(),
	}
	if err != nil {
		// Partial grading: some rubric calls failed, the rest landed.
		resp["grading_errors"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// runnerFor returns the live runner for a session, loading it from the
// store on first touch.
func (h *Handler) runnerFor(sessionID string) (*exam.Runner, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.runners[sessionID]; ok {
		return r, nil
	}
	sess, err := h.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	r := exam.NewRunner(sess, h.engine, h.workers)
	h.runners[sessionID] = r
	return r, nil
}

func (h *Handler) save(r *exam.Runner) {
	sess := r.Session()
	if err := h.store.SaveSession(&sess); err != nil {
		slog.Error("persist exam session", "session", sess.ID, "error", err)
	}
}

func (h *Handler) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, exam.ErrQuestionGraded), errors.Is(err, exam.ErrSubmitted):
		return http.StatusConflict
	case errors.Is(err, exam.ErrNotAnswered):
		return http.StatusBadRequest
	default:
		var callErr *grading.GradeCallError
		if errors.As(err, &callErr) {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	}
}
