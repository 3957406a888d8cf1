package persona

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestBriefTakesFirstNonEmptyLine(t *testing.T) {
	text := "\n\n  Mara is a 30-something nurse in Lisbon.  \nShe jogs every morning."
	assert.Equal(t, "Mara is a 30-something nurse in Lisbon.", Brief(text, BriefMaxLen))
}

func TestBriefTruncatesLongLines(t *testing.T) {
	text := strings.Repeat("word ", 60)
	got := Brief(text, BriefMaxLen)

	assert.True(t, strings.HasSuffix(got, "…"))
	assert.LessOrEqual(t, utf8.RuneCountInString(got), BriefMaxLen)
	assert.False(t, strings.HasSuffix(strings.TrimSuffix(got, "…"), " "))
}

func TestBriefEmpty(t *testing.T) {
	assert.Equal(t, "", Brief("   ", BriefMaxLen))
}

func TestAnalysisKnownFlags(t *testing.T) {
	a := UnknownAnalysis()
	assert.False(t, a.EmotionKnown())
	assert.False(t, a.GenderKnown())

	a = Analysis{DominantEmotion: "happy", Gender: Unknown}
	assert.True(t, a.EmotionKnown())
	assert.False(t, a.GenderKnown())
}

func TestSpecSummary(t *testing.T) {
	spec := Spec{Name: "Alex", Gender: "Woman", Emotion: "sad"}
	assert.Equal(t, "The chatbot character will be a **Woman** with a **sad** demeanor.", spec.Summary())
}
