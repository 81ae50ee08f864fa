package prompt

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/nikhilbhutani/docgen/internal/models"
)

//go:embed builtin_templates.yaml
var builtinTemplates []byte

// FreeformCategory is the category submissions without a template fall back to.
const FreeformCategory = "document_generation"

// FreeformBody is used for free-form submissions when the requested category
// has no active default template.
const FreeformBody = `Based on the requirements and reference materials below, write a complete, ` +
	`well-structured document in Markdown. Start with a single top-level heading that names the ` +
	`document. Use tables for structured information and fill every section with concrete detail.`

type SeedTemplate struct {
	Name               string                `yaml:"name"`
	Description        string                `yaml:"description"`
	Category           string                `yaml:"category"`
	Body               string                `yaml:"body"`
	SystemInstructions string                `yaml:"system_instructions"`
	Variables          []models.VariableSpec `yaml:"variables"`
	ModelConfig        *models.ModelConfig   `yaml:"model_config"`
	OutputFormat       string                `yaml:"output_format"`
	IsDefault          bool                  `yaml:"is_default"`
}

type seedFile struct {
	Templates []SeedTemplate `yaml:"templates"`
}

// LoadSeed decodes a YAML seed file.
func LoadSeed(r io.Reader) ([]SeedTemplate, error) {
	var f seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	return f.Templates, nil
}

// BuiltinSeed returns the document templates shipped with the binary.
func BuiltinSeed() ([]SeedTemplate, error) {
	return LoadSeed(bytes.NewReader(builtinTemplates))
}

// SeedResult counts what Seed did.
type SeedResult struct {
	Created int
	Skipped int
}

// Seed creates every template whose name is not yet present in its category.
func (s *Service) Seed(ctx context.Context, defs []SeedTemplate) (SeedResult, error) {
	var res SeedResult
	for _, d := range defs {
		existing, err := s.store.List(ctx, StoreFilter{Category: d.Category})
		if err != nil {
			return res, fmt.Errorf("list category %q: %w", d.Category, err)
		}
		if containsName(existing, d.Name) {
			res.Skipped++
			continue
		}

		_, err = s.Create(ctx, CreateRequest{
			Name:               d.Name,
			Description:        d.Description,
			Category:           d.Category,
			Body:               d.Body,
			SystemInstructions: d.SystemInstructions,
			Variables:          d.Variables,
			ModelConfig:        d.ModelConfig,
			OutputFormat:       d.OutputFormat,
			IsDefault:          d.IsDefault,
		})
		if err != nil {
			return res, fmt.Errorf("seed %q: %w", d.Name, err)
		}
		res.Created++
	}
	return res, nil
}

func containsName(ts []models.PromptTemplate, name string) bool {
	for _, t := range ts {
		if t.Name == name {
			return true
		}
	}
	return false
}
