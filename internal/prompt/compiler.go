package prompt

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/nikhilbhutani/docgen/pkg/tokenizer"
)

const defaultSystemInstructions = "You are a professional technical writer. " +
	"Produce the complete document in Markdown. Do not stop mid-section and do not summarize."

// CompileInput is everything folded into one LLM request.
type CompileInput struct {
	Body               string
	SystemInstructions string
	InputText          string
	Context            string
	References         string
	Language           string
}

// Compiled is an LLM-ready prompt pair.
type Compiled struct {
	System          string `json:"system"`
	User            string `json:"user"`
	EstimatedTokens int    `json:"estimated_tokens"`
}

// Compile assembles the user message from the resolved body followed by the
// language instruction and the optional requirement, reference and context
// sections. Empty sections are omitted.
func Compile(in CompileInput) Compiled {
	system := strings.TrimSpace(in.SystemInstructions)
	if system == "" {
		system = defaultSystemInstructions
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(in.Body))

	if name := LanguageName(in.Language); name != "" {
		fmt.Fprintf(&b, "\n\nWrite the entire document in %s.", name)
	}
	writeSection(&b, "User Requirements", in.InputText)
	writeSection(&b, "Reference Materials", in.References)
	writeSection(&b, "Additional Context", in.Context)

	user := b.String()
	return Compiled{
		System:          system,
		User:            user,
		EstimatedTokens: tokenizer.CountTokens(system + "\n" + user),
	}
}

func writeSection(b *strings.Builder, title, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	fmt.Fprintf(b, "\n\n## %s\n%s", title, text)
}

// NormalizeLanguage validates a BCP 47 tag and returns its canonical form.
func NormalizeLanguage(tag string) (string, error) {
	t, err := language.Parse(strings.TrimSpace(tag))
	if err != nil {
		return "", fmt.Errorf("parse language %q: %w", tag, err)
	}
	return t.String(), nil
}

// LanguageName returns the English display name of tag, falling back to the
// tag itself when it has no known name.
func LanguageName(tag string) string {
	if tag == "" {
		return ""
	}
	t, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	if name := display.English.Languages().Name(t); name != "" {
		return name
	}
	return tag
}
