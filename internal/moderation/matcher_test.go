package moderation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidWord(t *testing.T) {
	valid := []string{"badword", "two words", "héllo", "word-with-dash", "it's", "wow!", "why?", "слово"}
	for _, w := range valid {
		assert.True(t, ValidWord(w), "expected %q to be valid", w)
	}

	invalid := []string{
		"",
		"(?=lookahead)",
		"a{1,}b",
		"star*",
		"dot.*star",
		"[class]",
		"back\\slash",
		string(make([]byte, 101)),
	}
	for _, w := range invalid {
		assert.False(t, ValidWord(w), "expected %q to be rejected", w)
	}
}

func TestFilterWords(t *testing.T) {
	in := []string{"BadWord", "badword", "  other ", "bad(regex", ""}
	out := FilterWords(in)
	assert.Equal(t, []string{"badword", "other"}, out)
}

func TestMatcherExactWordBoundary(t *testing.T) {
	m := newMatcher([]string{"badword"})

	assert.Equal(t, "badword", m.Match("this has badword inside"))
	assert.Equal(t, "badword", m.Match("BADWORD"))
	assert.Equal(t, "badword", m.Match("badword."))
	assert.Equal(t, "", m.Match("notbadwording"), "substring of a longer word must not match")
	assert.Equal(t, "", m.Match("clean message"))
}

func TestMatcherEvasionSpaced(t *testing.T) {
	m := newMatcher([]string{"badword"})
	assert.Equal(t, "badword", m.Match("this is b a d w o r d indeed"))
	assert.Equal(t, "badword", m.Match("b  a  d  w  o  r  d"))
}

func TestMatcherEvasionDotted(t *testing.T) {
	m := newMatcher([]string{"badword"})
	assert.Equal(t, "badword", m.Match("b.a.d.w.o.r.d"))
}

func TestMatcherEvasionVowelMask(t *testing.T) {
	m := newMatcher([]string{"badword"})
	assert.Equal(t, "badword", m.Match("b*dw*rd is not allowed"))
}

func TestMatcherEvasionLeet(t *testing.T) {
	m := newMatcher([]string{"noise"})
	assert.Equal(t, "noise", m.Match("n0153 here"))
	assert.Equal(t, "noise", m.Match("n0ise"))

	m2 := newMatcher([]string{"grass"})
	assert.Equal(t, "grass", m2.Match("gr455"))
}

func TestMatcherMultipleWords(t *testing.T) {
	m := newMatcher([]string{"alpha", "beta"})
	assert.Equal(t, "beta", m.Match("some beta content"))
	assert.Equal(t, "alpha", m.Match("alpha and beta"), "list order decides the reported word")
}
