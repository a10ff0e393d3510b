package moderation

import (
	"fmt"
	"regexp"
	"strings"
)

// wordShape is the only shape a banned word may take. Anything else is
// dropped at the boundary so compiled patterns stay trivial.
var wordShape = regexp.MustCompile(`^[\p{L}\p{N} \-_'.!?]{1,100}$`)

// ValidWord reports whether a banned word is acceptable.
func ValidWord(word string) bool {
	return wordShape.MatchString(word)
}

// FilterWords lowercases, de-duplicates and drops malformed entries.
func FilterWords(words []string) []string {
	seen := make(map[string]bool, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" || seen[w] || !ValidWord(w) {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

const vowels = "aeiou"

// wordPatterns holds the compiled patterns for one banned word. The
// exact word-boundary pattern has priority; evasion patterns only run
// when it misses.
type wordPatterns struct {
	exact   *regexp.Regexp
	evasion []*regexp.Regexp
}

func compileWord(word string) (*wordPatterns, error) {
	exact, err := regexp.Compile(`\b` + regexp.QuoteMeta(word) + `\b`)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", word, err)
	}

	p := &wordPatterns{exact: exact}

	letters := []rune(word)
	quoted := make([]string, len(letters))
	for i, r := range letters {
		quoted[i] = regexp.QuoteMeta(string(r))
	}

	// Letters pulled apart by whitespace or dots.
	spaced := strings.Join(quoted, `\s+`)
	dotted := strings.Join(quoted, `\.+`)

	// Vowels masked with *.
	masked := make([]string, len(letters))
	for i, r := range letters {
		if strings.ContainsRune(vowels, r) {
			masked[i] = `\*`
		} else {
			masked[i] = regexp.QuoteMeta(string(r))
		}
	}

	// Basic leet substitutions.
	leeted := make([]string, len(letters))
	for i, r := range letters {
		switch r {
		case 'a':
			leeted[i] = "[a4]"
		case 'e':
			leeted[i] = "[e3]"
		case 'i':
			leeted[i] = "[i1]"
		case 'o':
			leeted[i] = "[o0]"
		case 's':
			leeted[i] = "[s5]"
		default:
			leeted[i] = regexp.QuoteMeta(string(r))
		}
	}

	for _, expr := range []string{
		spaced,
		dotted,
		`\b` + strings.Join(masked, "") + `\b`,
		`\b` + strings.Join(leeted, "") + `\b`,
	} {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", word, err)
		}
		p.evasion = append(p.evasion, re)
	}
	return p, nil
}

func (p *wordPatterns) match(text string) bool {
	if p.exact.MatchString(text) {
		return true
	}
	for _, re := range p.evasion {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// matcher caches compiled patterns per banned word for one entity.
// Patterns compile lazily on first use and the whole cache is dropped
// when the word list changes.
type matcher struct {
	words    []string
	compiled map[string]*wordPatterns
}

func newMatcher(words []string) *matcher {
	return &matcher{
		words:    words,
		compiled: make(map[string]*wordPatterns, len(words)),
	}
}

// Match returns the banned word the text violates, or "".
func (m *matcher) Match(text string) string {
	text = strings.ToLower(text)
	for _, w := range m.words {
		p, ok := m.compiled[w]
		if !ok {
			var err error
			p, err = compileWord(w)
			if err != nil {
				continue
			}
			m.compiled[w] = p
		}
		if p.match(text) {
			return w
		}
	}
	return ""
}
