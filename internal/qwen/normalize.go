package qwen

import (
	"regexp"
	"strings"
)

// Result classification for recognized content.
const (
	TypeText    = "text"
	TypeCaptcha = "captcha"
)

var (
	captchaPattern  = regexp.MustCompile(`^[A-Za-z0-9]+$`)
	newlineRuns     = regexp.MustCompile(`\n{3,}`)
	escapedParensRe = strings.NewReplacer(`\（`, "(", `\）`, ")")
)

// Normalize post-processes raw recognition output. Short alphanumeric
// responses are treated as captcha answers and uppercased untouched;
// everything else gets escaped full-width parentheses replaced,
// newline runs collapsed to two, and surrounding whitespace trimmed.
// Normalization is idempotent.
func Normalize(raw string) (result, kind string) {
	if len(raw) <= 10 && captchaPattern.MatchString(raw) {
		return strings.ToUpper(raw), TypeCaptcha
	}

	out := escapedParensRe.Replace(raw)
	out = newlineRuns.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out), TypeText
}
