package i18n

import (
	"context"
	"strings"
	"testing"
)

func TestTranslations(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	ctx := context.Background()

	if got := T(ctx, "grading.correct"); got != "correct" {
		t.Errorf("en grading.correct = %q", got)
	}

	zh := WithLocalizer(ctx, NewLocalizer("zh"))
	if got := T(zh, "grading.correct"); got != "回答正确" {
		t.Errorf("zh grading.correct = %q", got)
	}
	if got := T(zh, "grading.incorrect"); got != "回答错误" {
		t.Errorf("zh grading.incorrect = %q", got)
	}

	got := Td(ctx, "grading.partial", map[string]any{"Count": 2})
	if !strings.Contains(got, "2") {
		t.Errorf("grading.partial should embed the count, got %q", got)
	}
}

func TestMissingTranslationFallsBackToID(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if got := T(context.Background(), "no.such.message"); got != "no.such.message" {
		t.Errorf("expected message ID fallback, got %q", got)
	}
}

func TestInitRejectsBadLanguage(t *testing.T) {
	if err := Init("not a language!"); err == nil {
		t.Error("expected error for invalid language tag")
	}
}
