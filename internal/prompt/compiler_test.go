package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile(t *testing.T) {
	c := Compile(CompileInput{
		Body:       "Project: Inventory",
		InputText:  "Track stock levels.",
		References: "## File: notes.txt\nwarehouse list",
		Context:    "Internal tool",
		Language:   "vi",
	})

	assert.Equal(t, defaultSystemInstructions, c.System)
	assert.True(t, strings.HasPrefix(c.User, "Project: Inventory"))
	assert.Contains(t, c.User, "Write the entire document in Vietnamese.")
	assert.Contains(t, c.User, "## User Requirements\nTrack stock levels.")
	assert.Contains(t, c.User, "## Reference Materials\n## File: notes.txt")
	assert.Contains(t, c.User, "## Additional Context\nInternal tool")
	assert.Less(t, strings.Index(c.User, "User Requirements"), strings.Index(c.User, "Reference Materials"))
	assert.Positive(t, c.EstimatedTokens)
}

func TestCompileOmitsEmptySections(t *testing.T) {
	c := Compile(CompileInput{Body: "Body", SystemInstructions: "  Be brief.  "})
	assert.Equal(t, "Be brief.", c.System)
	assert.Equal(t, "Body", c.User)
}

func TestNormalizeLanguage(t *testing.T) {
	got, err := NormalizeLanguage("EN-us")
	require.NoError(t, err)
	assert.Equal(t, "en-US", got)

	_, err = NormalizeLanguage("not a language!")
	assert.Error(t, err)
}

func TestLanguageName(t *testing.T) {
	assert.Equal(t, "English", LanguageName("en"))
	assert.Equal(t, "", LanguageName(""))
}
