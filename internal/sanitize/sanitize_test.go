package sanitize

import (
	"strings"
	"testing"
)

func TestCleanRemovesThinkBlocks(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "paired block",
			in:   "<think>the user wants pricing</think>Prices start at AED 1,500 per square foot.",
			want: "Prices start at AED 1,500 per square foot.",
		},
		{
			name: "unterminated block",
			in:   "Prices start at AED 1,500 per square foot.<think>should I mention",
			want: "Prices start at AED 1,500 per square foot.",
		},
		{
			name: "orphan closing tag",
			in:   "leaked reasoning here</think>\nPrices start at AED 1,500 per square foot.",
			want: "Prices start at AED 1,500 per square foot.",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Clean(c.in)
			if got != c.want {
				t.Errorf("Clean(%q) = %q, want %q", c.in, got, c.want)
			}
			if strings.Contains(got, "<think>") {
				t.Errorf("Output still contains <think>: %q", got)
			}
		})
	}
}

func TestCleanRemovesSentinelTokens(t *testing.T) {
	in := "<｜begin▁of▁sentence｜>Palm Jumeirah has several new launches.<｜end▁of▁sentence｜>"
	want := "Palm Jumeirah has several new launches."
	if got := Clean(in); got != want {
		t.Errorf("Clean(%q) = %q, want %q", in, got, want)
	}
}

func TestCleanRemovesEmoji(t *testing.T) {
	in := "Great choice! 🏠🌴 The villa has sea views ☀️."
	got := Clean(in)
	if strings.ContainsAny(got, "🏠🌴☀") {
		t.Errorf("Expected emoji removed, got %q", got)
	}
	if !strings.Contains(got, "The villa has sea views") {
		t.Errorf("Expected content preserved, got %q", got)
	}
}

func TestCleanRemovesHallucinatedDialogue(t *testing.T) {
	in := "The area is family friendly.\nHuman: what about schools?\nAssistant: There are three schools nearby."
	got := Clean(in)
	if strings.Contains(got, "Human:") || strings.Contains(got, "Assistant:") {
		t.Errorf("Expected dialogue removed, got %q", got)
	}
	if !strings.Contains(got, "The area is family friendly.") {
		t.Errorf("Expected original sentence kept, got %q", got)
	}
}

func TestCleanStripsLeadingGreeting(t *testing.T) {
	cases := map[string]string{
		"Hello! The viewing can be arranged.":    "The viewing can be arranged.",
		"hey there, the unit is still listed.":   "the unit is still listed.",
		"Hi there! Downtown has two new towers.": "Downtown has two new towers.",
	}
	for in, want := range cases {
		if got := Clean(in); got != want {
			t.Errorf("Clean(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCleanRemovesVoiceDisclaimers(t *testing.T) {
	in := "I'm processing your voice message into English. The apartment is available from October."
	got := Clean(in)
	if strings.Contains(got, "processing your voice") {
		t.Errorf("Expected disclaimer removed, got %q", got)
	}
	if !strings.Contains(got, "The apartment is available from October.") {
		t.Errorf("Expected content preserved, got %q", got)
	}
}

func TestCleanKeepsFirstParagraphOnly(t *testing.T) {
	in := "The Marina is a strong rental market.\n\nAlso, let me tell you about my training data and many unrelated things."
	want := "The Marina is a strong rental market."
	if got := Clean(in); got != want {
		t.Errorf("Clean(%q) = %q, want %q", in, got, want)
	}
}

func TestCleanEnforcesLengthCap(t *testing.T) {
	// A long run of sentences: the cut must land on the last period inside
	// the cap window.
	in := strings.Repeat("This sentence is about Dubai property. ", 20)
	got := Clean(in)
	if len([]rune(got)) > MaxReplyLength {
		t.Errorf("Output exceeds cap: %d runes", len([]rune(got)))
	}
	if !strings.HasSuffix(got, ".") {
		t.Errorf("Expected output to end at a sentence boundary, got %q", got)
	}

	// No period anywhere: hard cut at the cap.
	in = strings.Repeat("x", 300)
	got = Clean(in)
	if len([]rune(got)) != MaxReplyLength {
		t.Errorf("Expected hard cut to %d runes, got %d", MaxReplyLength, len([]rune(got)))
	}
}

func TestCleanEmptyAndDegenerateInput(t *testing.T) {
	if got := Clean(""); got != "" {
		t.Errorf("Clean(\"\") = %q, want empty", got)
	}
	// Input that every pass consumes entirely.
	if got := Clean("<think>only reasoning</think>"); got != "" {
		t.Errorf("Expected empty output, got %q", got)
	}
	if got := Clean("Assistant: ok"); got != "" {
		t.Errorf("Expected role-label line removed entirely, got %q", got)
	}
}
