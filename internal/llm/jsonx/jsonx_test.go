package jsonx

import "testing"

type payload struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

func TestDecodeTiers(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantTier Tier
		wantOK   bool
		want     payload
	}{
		{
			"strict",
			`{"score": 7.5, "feedback": "good"}`,
			TierStrict, true,
			payload{7.5, "good"},
		},
		{
			"fenced with language tag",
			"```json\n{\"score\": 3, \"feedback\": \"ok\"}\n```",
			TierLenient, true,
			payload{3, "ok"},
		},
		{
			"fenced without language tag",
			"```\n{\"score\": 1, \"feedback\": \"x\"}\n```",
			TierLenient, true,
			payload{1, "x"},
		},
		{
			"prose around object",
			"Here is the grade you asked for:\n{\"score\": 4, \"feedback\": \"partial\"}\nHope that helps!",
			TierSalvage, true,
			payload{4, "partial"},
		},
		{
			"no JSON at all",
			"I cannot grade this answer.",
			TierStrict, false,
			payload{},
		},
		{
			"truncated object",
			`{"score": 4, "feedback":`,
			TierStrict, false,
			payload{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got payload
			tier, err := Decode(tt.text, &got)
			if tt.wantOK && err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !tt.wantOK {
				if err == nil {
					t.Fatal("expected decode error")
				}
				return
			}
			if tier != tt.wantTier {
				t.Errorf("tier = %v, want %v", tier, tt.wantTier)
			}
			if got != tt.want {
				t.Errorf("payload = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeArray(t *testing.T) {
	text := "The blueprint follows.\n[{\"score\": 5, \"feedback\": \"a\"}, {\"score\": 5, \"feedback\": \"b\"}]"
	var got []payload
	tier, err := Decode(text, &got)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if tier != TierSalvage {
		t.Errorf("tier = %v, want %v", tier, TierSalvage)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"fence glued to brace", "```{\"a\":1}```", `{"a":1}`},
		{"whitespace", "  \n{\"a\":1}\n  ", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripCodeFences(tt.in); got != tt.want {
				t.Errorf("StripCodeFences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSalvagePrefersLargerFragment(t *testing.T) {
	// An array that itself contains objects must salvage as the array,
	// not the first inner object.
	text := "x [1, 2, {\"score\": 3, \"feedback\": \"\"}] y"
	var got []any
	if err := ParseSalvage(text, &got); err != nil {
		t.Fatalf("ParseSalvage: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 elements, got %d", len(got))
	}
}
