package exam

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/pavelanni/examforge/internal/generator"
	"github.com/pavelanni/examforge/internal/i18n"
	"github.com/pavelanni/examforge/internal/llm"
	"github.com/pavelanni/examforge/internal/model"
	"github.com/pavelanni/examforge/internal/planner"
)

func TestMain(m *testing.M) {
	if err := i18n.Init("en"); err != nil {
		panic(err)
	}
	m.Run()
}

// planJSON builds a valid blueprint response with n fill_in questions of
// score each, knowledge points kp-0..kp-(n-1).
func planJSON(n int, score float64) string {
	var sb strings.Builder
	sb.WriteString(`{"blueprint": [`)
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, `{"index": %d, "type": "fill_in", "difficulty": "medium", "score": %g, "knowledge_point": "kp-%d"}`, i, score, i)
	}
	sb.WriteString(`]}`)
	return sb.String()
}

func questionJSON(kp string) string {
	return fmt.Sprintf(`{"content": "question about %s", "correct_answer": "answer-%s", "grading_criteria": "exact"}`, kp, kp)
}

// examCompleter routes planning and question calls: the plan call gets the
// canned blueprint, question calls get a per-knowledge-point response or
// hook.
type examCompleter struct {
	plan     string
	planErr  error
	perKP    map[string]func() (string, error)
	mu       sync.Mutex
	planHits int
}

func (e *examCompleter) Complete(_ context.Context, prompt, system string) (string, error) {
	if strings.Contains(system, "exam designer") {
		e.mu.Lock()
		e.planHits++
		e.mu.Unlock()
		return e.plan, e.planErr
	}
	for kp, fn := range e.perKP {
		if strings.Contains(prompt, "KNOWLEDGE POINT: "+kp+"\n") {
			return fn()
		}
	}
	return "", fmt.Errorf("no scripted response for prompt %q", prompt)
}

func canned(kp string) func() (string, error) {
	return func() (string, error) { return questionJSON(kp), nil }
}

func newTestSession(c llm.Completer, snapshots SnapshotStore, opts ...Option) *Session {
	return NewSession(planner.New(c), generator.New(c, generator.WithPause(0)), snapshots, opts...)
}

func collect(updates <-chan model.GenerationProgress) []model.GenerationProgress {
	var all []model.GenerationProgress
	for p := range updates {
		all = append(all, p)
	}
	return all
}

func TestGenerateAssemblesInBlueprintOrder(t *testing.T) {
	// kp-0 is held until kp-2 has resolved, so completion order is the
	// reverse of blueprint order. Assembly must still follow the index.
	released := make(chan struct{})
	c := &examCompleter{
		plan: planJSON(3, 10),
		perKP: map[string]func() (string, error){
			"kp-0": func() (string, error) {
				<-released
				return questionJSON("kp-0"), nil
			},
			"kp-1": canned("kp-1"),
			"kp-2": func() (string, error) {
				defer close(released)
				return questionJSON("kp-2"), nil
			},
		},
	}
	s := newTestSession(c, nil, WithWorkers(3))

	cfg := model.ExamConfig{Topic: "Go", Title: "Go Basics", QuestionCount: 3, TotalScore: 30}
	all := collect(s.Generate(context.Background(), cfg))

	final := all[len(all)-1]
	if final.Phase != model.PhaseDone || final.GeneratedExam == nil {
		t.Fatalf("final progress = %+v", final)
	}
	exam := final.GeneratedExam
	if exam.Status != model.StatusReady {
		t.Errorf("status = %q, want ready", exam.Status)
	}
	for i, q := range exam.Questions {
		want := fmt.Sprintf("kp-%d", i)
		if !strings.Contains(q.Content, want) {
			t.Errorf("question %d content = %q, want %s", i, q.Content, want)
		}
	}
}

func TestGenerateProgressSequence(t *testing.T) {
	c := &examCompleter{
		plan: planJSON(2, 5),
		perKP: map[string]func() (string, error){
			"kp-0": canned("kp-0"),
			"kp-1": canned("kp-1"),
		},
	}
	s := newTestSession(c, nil)

	cfg := model.ExamConfig{Topic: "Go", QuestionCount: 2, TotalScore: 10}
	all := collect(s.Generate(context.Background(), cfg))

	if len(all) < 4 {
		t.Fatalf("got %d progress updates, want at least 4: %+v", len(all), all)
	}
	if all[0].Phase != model.PhasePlanning || all[0].Progress != 5 {
		t.Errorf("first update = %+v, want planning at 5", all[0])
	}
	if all[1].Phase != model.PhaseGenerating || all[1].Progress != 10 || all[1].Total != 2 {
		t.Errorf("second update = %+v, want generating at 10 with total 2", all[1])
	}
	prev := all[1].Progress
	for _, p := range all[2 : len(all)-1] {
		if p.Phase != model.PhaseGenerating {
			t.Errorf("mid-run phase = %q", p.Phase)
		}
		if p.Progress < prev {
			t.Errorf("progress went backwards: %d after %d", p.Progress, prev)
		}
		prev = p.Progress
	}
	last := all[len(all)-1]
	if last.Phase != model.PhaseDone || last.Progress != 100 || last.Completed != 2 {
		t.Errorf("final update = %+v", last)
	}
}

func TestGenerateToleratesOneFailingQuestion(t *testing.T) {
	c := &examCompleter{
		plan: planJSON(2, 5),
		perKP: map[string]func() (string, error){
			"kp-0": canned("kp-0"),
			"kp-1": func() (string, error) { return "", errors.New("model overloaded") },
		},
	}
	s := newTestSession(c, nil)

	cfg := model.ExamConfig{Topic: "Go", QuestionCount: 2, TotalScore: 10}
	all := collect(s.Generate(context.Background(), cfg))

	final := all[len(all)-1]
	if final.Phase != model.PhaseDone {
		t.Fatalf("final phase = %q, want done despite one failing question", final.Phase)
	}
	qs := final.GeneratedExam.Questions
	if strings.HasPrefix(qs[0].ID, "err-") {
		t.Errorf("healthy sibling got a placeholder: %+v", qs[0])
	}
	if qs[1].ID != "err-1" {
		t.Errorf("failed question ID = %q, want err-1", qs[1].ID)
	}
	if qs[1].Score != 5 {
		t.Errorf("placeholder lost blueprint score: %g", qs[1].Score)
	}
}

func TestGeneratePlanFailure(t *testing.T) {
	c := &examCompleter{planErr: errors.New("connection refused")}
	s := newTestSession(c, nil)

	all := collect(s.Generate(context.Background(), model.ExamConfig{Topic: "Go", QuestionCount: 2}))

	final := all[len(all)-1]
	if final.Phase != model.PhaseError {
		t.Fatalf("final phase = %q, want error", final.Phase)
	}
	if !strings.Contains(final.Err, "planning failed") {
		t.Errorf("error = %q, want a planning failure", final.Err)
	}
	if got := s.Progress(); got.Phase != model.PhaseError {
		t.Errorf("stored progress phase = %q, want error", got.Phase)
	}
}

// memorySnapshots records every save and serves the latest for Resume.
type memorySnapshots struct {
	mu    sync.Mutex
	saves []model.GenerationProgress
}

func (m *memorySnapshots) SaveSnapshot(p model.GenerationProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, p)
	return nil
}

func (m *memorySnapshots) LoadSnapshot() (*model.GenerationProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saves) == 0 {
		return nil, nil
	}
	p := m.saves[len(m.saves)-1]
	return &p, nil
}

func TestSnapshotAndResume(t *testing.T) {
	c := &examCompleter{
		plan:  planJSON(1, 10),
		perKP: map[string]func() (string, error){"kp-0": canned("kp-0")},
	}
	snaps := &memorySnapshots{}
	s := newTestSession(c, snaps)

	collect(s.Generate(context.Background(), model.ExamConfig{Topic: "Go", QuestionCount: 1, TotalScore: 10}))

	snaps.mu.Lock()
	n := len(snaps.saves)
	snaps.mu.Unlock()
	if n < 3 {
		t.Fatalf("saved %d snapshots, want one per progress change", n)
	}

	// A fresh session resumes from the persisted terminal snapshot without
	// issuing any completion calls.
	reborn := newTestSession(c, snaps)
	hits := c.planHits
	got, ok := reborn.Resume()
	if !ok {
		t.Fatal("Resume found no snapshot")
	}
	if got.Phase != model.PhaseDone || got.GeneratedExam == nil {
		t.Errorf("resumed progress = %+v", got)
	}
	if c.planHits != hits {
		t.Error("Resume must not issue completion calls")
	}
}

func TestRegenerateCancelsAndReplaces(t *testing.T) {
	// The first run's only question blocks until the test releases it
	// after starting the second run. Its late result must be dropped.
	block := make(chan struct{})
	c := llm.CompleterFunc(func(_ context.Context, prompt, system string) (string, error) {
		if strings.Contains(system, "exam designer") {
			return planJSON(1, 10), nil
		}
		if strings.Contains(prompt, `topic "old"`) {
			<-block
		}
		return questionJSON("kp-0"), nil
	})
	s := newTestSession(c, nil)
	firstUpdates := s.Generate(context.Background(), model.ExamConfig{Topic: "old", QuestionCount: 1, TotalScore: 10})

	// Wait for the first run to reach the generating phase before
	// replacing it.
	<-firstUpdates
	<-firstUpdates

	secondUpdates := s.Generate(context.Background(), model.ExamConfig{Topic: "new", QuestionCount: 1, TotalScore: 10})

	close(block)
	collect(firstUpdates)
	all := collect(secondUpdates)

	final := all[len(all)-1]
	if final.Phase != model.PhaseDone {
		t.Fatalf("second run final phase = %q", final.Phase)
	}
	if final.GeneratedExam.Config.Topic != "new" {
		t.Errorf("exam topic = %q, want the replacing run's config", final.GeneratedExam.Config.Topic)
	}
	if got := s.Progress(); got.Phase != model.PhaseDone || got.GeneratedExam.Config.Topic != "new" {
		t.Errorf("stored progress = %+v, want the second run's terminal state", got)
	}
}

func TestReset(t *testing.T) {
	c := &examCompleter{planErr: errors.New("boom")}
	s := newTestSession(c, nil)
	collect(s.Generate(context.Background(), model.ExamConfig{Topic: "Go", QuestionCount: 1}))

	if s.Progress().Phase != model.PhaseError {
		t.Fatalf("precondition: phase = %q", s.Progress().Phase)
	}
	s.Reset()
	if got := s.Progress(); got.Phase != model.PhaseIdle {
		t.Errorf("phase after reset = %q, want idle", got.Phase)
	}
}
