// Package fence separates free-form narrative text from an embedded,
// possibly still-arriving fenced source block. Extraction is a pure
// function of the full accumulated buffer: it is re-run on every delta
// rather than patching earlier partial results, because fence
// boundaries can only be determined once enough text has arrived.
package fence

import (
	"regexp"
	"strings"
)

// opener matches a language-tagged triple-backtick marker and its
// optional trailing newline.
var opener = regexp.MustCompile("```[A-Za-z0-9_+-]*\r?\n?")

const closer = "```"

// Result is the derived split of an accumulated buffer. It is computed
// fresh each call and never stored.
type Result struct {
	// Narrative is the trimmed text outside the code block. Text after
	// an unterminated opener is never part of it.
	Narrative string

	// Code is the trimmed content of the fenced block, empty when no
	// opener has arrived yet. HasCode distinguishes "no block" from an
	// empty block.
	Code    string
	HasCode bool

	// Complete reports whether the closing fence has arrived.
	Complete bool
}

// Extract splits raw accumulated text into narrative and code.
// Calling it twice on the same buffer returns identical results, and
// once Complete is true, appending further text never changes Code.
func Extract(raw string) Result {
	loc := opener.FindStringIndex(raw)
	if loc == nil {
		return Result{Narrative: strings.TrimSpace(raw)}
	}

	before := strings.TrimSpace(raw[:loc[0]])
	body := raw[loc[1]:]

	q := strings.Index(body, closer)
	if q < 0 {
		// Fence still open: everything after the opener is code, still
		// growing, and is withheld from the narrative.
		return Result{
			Narrative: before,
			Code:      strings.TrimSpace(body),
			HasCode:   true,
		}
	}

	after := strings.TrimSpace(body[q+len(closer):])
	return Result{
		Narrative: joinNarrative(before, after),
		Code:      strings.TrimSpace(body[:q]),
		HasCode:   true,
		Complete:  true,
	}
}

// joinNarrative excises the code block entirely: the text before the
// opener and after the closer read as one continuous narrative.
func joinNarrative(before, after string) string {
	switch {
	case before == "":
		return after
	case after == "":
		return before
	default:
		return before + "\n" + after
	}
}

var (
	tagPattern = regexp.MustCompile(`<[^>]*>`)
	entities   = strings.NewReplacer(
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&amp;", "&",
	)
)

// Sanitize strips raw markup from text crossing into a code-display or
// code-execution context. The upstream text channel is not guaranteed
// to be markup-free and downstream consumers render it unescaped, so
// tags are removed and HTML entities restored to their literal
// characters. Apply this identically wherever code leaves the engine.
func Sanitize(text string) string {
	text = tagPattern.ReplaceAllString(text, "")
	return entities.Replace(text)
}
