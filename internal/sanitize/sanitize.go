// Package sanitize cleans raw LLM output into a safe, bounded outbound
// message: sentinel tokens, reasoning blocks, emoji, hallucinated dialogue,
// greetings and disclaimers are stripped, then the text is truncated to a
// single short paragraph.
package sanitize

import (
	"regexp"
	"strings"
)

// MaxReplyLength is the hard character cap applied as the final pass.
const MaxReplyLength = 200

// sentinelReplacer removes model sentinel tokens. Both the fullwidth-bar
// spelling and its UTF-8-decoded-as-Latin-1 mojibake variant occur in the
// wild, so both are listed.
var sentinelReplacer = strings.NewReplacer(
	"<｜begin▁of▁sentence｜>", "",
	"｜begin▁of▁sentence｜", "",
	"<｜end▁of▁sentence｜>", "",
	"｜end▁of▁sentence｜", "",
	"｜Assistant｜", "",
	"ï¼±beginâofâsentenceï¼±", "",
	"ï¼±endâofâsentenceï¼±", "",
	"ï¼±Assistantï¼±", "",
)

var (
	thinkBlockRe    = regexp.MustCompile(`(?s)<think>.*?</think>`)
	thinkOrphanRe   = regexp.MustCompile(`(?s)^.*</think>\n?`)
	thinkOpenRe     = regexp.MustCompile(`(?s)<think>.*$`)
	emojiRe         = regexp.MustCompile(`[\x{1F300}-\x{1F5FF}\x{1F600}-\x{1F64F}\x{1F680}-\x{1F6FF}\x{1F700}-\x{1F77F}\x{1F780}-\x{1F7FF}\x{1F800}-\x{1F8FF}\x{1F900}-\x{1F9FF}\x{1FA00}-\x{1FAFF}\x{2600}-\x{26FF}\x{2700}-\x{27BF}\x{1F3FB}-\x{1F3FF}]`)
	dialogueSpanRes = []*regexp.Regexp{
		regexp.MustCompile(`(?s)Human:.*?Assistant:`),
		regexp.MustCompile(`(?s)User:.*?Sep:`),
		regexp.MustCompile(`(?s)User:.*?Assistant:`),
		regexp.MustCompile(`(?s)Human:.*?Sep:`),
	}
	dialogueLineRe = regexp.MustCompile(`(?m)^\w+: .*$`)
	roleLabelRe    = regexp.MustCompile(`(?m)^(?:Sep|Assistant|Human|User):.*$`)
	greetingRe     = regexp.MustCompile(`(?i)^(?:Hey there|Hello|Hi there|Hey)[\s,.!?]+`)
	disclaimerRes  = []*regexp.Regexp{
		regexp.MustCompile(`(?i)I'm processing your voice message into English\.?\s*`),
		regexp.MustCompile(`(?i)I am processing your voice message into English\.?\s*`),
		regexp.MustCompile(`(?i)Processing your voice message into English\.?\s*`),
		regexp.MustCompile(`(?i)Tôi đang xử lý tin nhắn thoại của bạn thành tiếng Anh\.?\s*`),
	}
)

// Clean applies the full sanitation chain to raw LLM output. The pass order
// is fixed: later passes assume earlier ones already ran. Clean is pure and
// never fails; degenerate input yields an empty string, and substituting a
// fallback for an empty result is the caller's responsibility.
func Clean(raw string) string {
	if raw == "" {
		return ""
	}

	// 1. Sentinel tokens.
	text := sentinelReplacer.Replace(raw)

	// 2. Reasoning blocks: paired first, then an orphaned closing tag (drop
	// everything before it), then an unterminated opening tag (drop to end).
	text = thinkBlockRe.ReplaceAllString(text, "")
	text = thinkOrphanRe.ReplaceAllString(text, "")
	text = thinkOpenRe.ReplaceAllString(text, "")

	// 3. Emoji and pictographs.
	text = emojiRe.ReplaceAllString(text, "")

	// 4. Hallucinated multi-turn dialogue.
	for _, re := range dialogueSpanRes {
		text = re.ReplaceAllString(text, "")
	}
	text = dialogueLineRe.ReplaceAllString(text, "")

	// 5. Pure role-label lines.
	text = roleLabelRe.ReplaceAllString(text, "")

	// 6. Leading greeting.
	text = greetingRe.ReplaceAllString(strings.TrimSpace(text), "")

	// 7. Voice-processing disclaimers.
	for _, re := range disclaimerRes {
		text = re.ReplaceAllString(text, "")
	}

	// 8. First paragraph only.
	text = strings.TrimSpace(text)
	if idx := strings.Index(text, "\n\n"); idx >= 0 {
		text = strings.TrimSpace(text[:idx])
	}

	// 9. Hard cap, preferring a sentence boundary.
	return truncate(text, MaxReplyLength)
}

// truncate cuts text to at most max runes, ending at the last period within
// the window when one exists.
func truncate(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	window := string(runes[:max])
	if idx := strings.LastIndex(window, "."); idx > 0 {
		return window[:idx+1]
	}
	return window
}
