package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgeist/codereel/internal/jobs"
)

const validJSON = `{
	"title": "Closures in JavaScript",
	"steps": [
		{"code": "function counter() {}", "explanation": "We declare a function.", "language": "javascript"},
		{"code": "let n = 0", "explanation": "A captured variable.", "language": "javascript"}
	]
}`

func TestParseContentPlainJSON(t *testing.T) {
	got, err := parseContent(validJSON)
	require.NoError(t, err)
	assert.Equal(t, "Closures in JavaScript", got.Title)
	assert.Len(t, got.Steps, 2)
}

func TestParseContentCLIEnvelope(t *testing.T) {
	wrapped := `{"result": "{\"title\": \"T\", \"steps\": [{\"code\": \"x\", \"explanation\": \"e\", \"language\": \"go\"}]}"}`

	got, err := parseContent(wrapped)
	require.NoError(t, err)
	assert.Equal(t, "T", got.Title)
}

func TestParseContentMarkdownFences(t *testing.T) {
	fenced := "Here is your tutorial:\n```json\n" + validJSON + "\n```\nEnjoy!"

	got, err := parseContent(fenced)
	require.NoError(t, err)
	assert.Equal(t, "Closures in JavaScript", got.Title)
}

func TestParseContentSurroundingProse(t *testing.T) {
	prose := "Sure! " + validJSON + ""

	got, err := parseContent(prose)
	require.NoError(t, err)
	assert.Len(t, got.Steps, 2)
}

func TestParseContentRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "I could not generate a tutorial today."},
		{"missing title", `{"steps": [{"code": "x", "explanation": "e", "language": "go"}]}`},
		{"missing steps", `{"title": "T"}`},
		{"empty steps", `{"title": "T", "steps": []}`},
		{"step missing explanation", `{"title": "T", "steps": [{"code": "x", "language": "go"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseContent(tt.raw)
			assert.ErrorIs(t, err, ErrInvalidContent)
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	p := buildPrompt("map filter reduce", "javascript", jobs.StyleAdvanced)
	assert.Contains(t, p, "map filter reduce")
	assert.Contains(t, p, "Use javascript for all code examples")
	assert.Contains(t, p, "deep knowledge")

	// Unknown styles fall back to beginner guidance
	p = buildPrompt("x", "go", jobs.Style("weird"))
	assert.Contains(t, p, "very simple")
}
