// Classification of OP comments against configured trigger phrases.
//
// Everything in this package is pure: no platform, store, or clock access, so
// it can be exercised directly from tests and from the `latch classify`
// command.
package trigger

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type Kind int

const (
	None Kind = iota
	Lock
	Hide
)

func (k Kind) String() string {
	switch k {
	case Lock:
		return "lock"
	case Hide:
		return "hide"
	default:
		return "none"
	}
}

// Everything needed to classify a single comment. Trigger phrases are matched
// case-insensitively, so callers do not need to pre-normalize them.
type Input struct {
	Body            string
	PostAuthorID    string
	CommentAuthorID string
	// true if the comment is a reply to another comment (not a top-level comment on the post)
	HasParent    bool
	LockTriggers []string
	HideTrigger  string
}

// Result of classification. For Lock matches, Phrase is the configured trigger
// which matched and Context is the extracted trailing text (already prefixed
// with " - ", or empty).
type Match struct {
	Kind    Kind
	Phrase  string
	Context string
}

func Classify(in Input) Match {
	// only the original poster can trigger anything
	if in.CommentAuthorID != in.PostAuthorID {
		return Match{Kind: None}
	}
	body := strings.ToLower(in.Body)

	// configuration order wins, not position in the comment
	for _, phrase := range in.LockTriggers {
		p := strings.ToLower(phrase)
		if p == "" || !strings.Contains(body, p) {
			continue
		}
		return Match{
			Kind:    Lock,
			Phrase:  phrase,
			Context: ExtractContext(in.Body, phrase),
		}
	}

	if in.HasParent {
		p := strings.ToLower(in.HideTrigger)
		if p != "" && strings.Contains(body, p) {
			return Match{Kind: Hide, Phrase: in.HideTrigger}
		}
	}
	return Match{Kind: None}
}

// Returns the trimmed text following the first case-insensitive occurrence of
// phrase in body, prefixed with " - ". Returns an empty string if the phrase is
// not found or nothing follows it.
func ExtractContext(body, phrase string) string {
	_, end := indexLower(body, phrase)
	if end < 0 {
		return ""
	}
	rest := strings.TrimSpace(body[end:])
	if rest == "" {
		return ""
	}
	return " - " + rest
}

// Splits a comma-separated trigger list, trimming whitespace, lower-casing, and
// dropping empty entries.
func ParseTriggers(csv string) []string {
	out := []string{}
	for _, t := range strings.Split(csv, ",") {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Finds the first occurrence of sub in s, comparing rune-by-rune after
// unicode.ToLower (the same mapping strings.ToLower applies). Returns byte
// offsets into the original s, or (-1, -1).
//
// Offsets are computed against s itself rather than a lower-cased copy, because
// lower-casing can change the byte length of some runes.
func indexLower(s, sub string) (int, int) {
	if sub == "" {
		return -1, -1
	}
	for start := 0; start < len(s); {
		if end := prefixLower(s[start:], sub); end >= 0 {
			return start, start + end
		}
		_, size := utf8.DecodeRuneInString(s[start:])
		start += size
	}
	return -1, -1
}

// If s starts with sub (ignoring case), returns the byte length of the matching
// prefix of s, else -1.
func prefixLower(s, sub string) int {
	i := 0
	for _, want := range sub {
		if i >= len(s) {
			return -1
		}
		got, size := utf8.DecodeRuneInString(s[i:])
		if unicode.ToLower(got) != unicode.ToLower(want) {
			return -1
		}
		i += size
	}
	return i
}
