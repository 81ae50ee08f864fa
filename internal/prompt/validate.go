package prompt

import (
	"fmt"
	"strings"

	"github.com/nikhilbhutani/docgen/internal/apperr"
	"github.com/nikhilbhutani/docgen/internal/models"
)

// validateTemplate rejects templates that can never produce a usable prompt.
func validateTemplate(t *models.PromptTemplate) error {
	if strings.TrimSpace(t.Name) == "" {
		return apperr.Invalid("name", "must not be empty")
	}
	if strings.TrimSpace(t.Category) == "" {
		return apperr.Invalid("category", "must not be empty")
	}
	if strings.TrimSpace(t.Body) == "" {
		return apperr.Invalid("body", "must not be empty")
	}
	return validateVariables(t.Variables)
}

func validateVariables(specs []models.VariableSpec) error {
	seen := make(map[string]bool, len(specs))
	for i, v := range specs {
		field := fmt.Sprintf("variables[%d].name", i)
		if !variableNamePattern.MatchString(v.Name) {
			return apperr.Invalid(field, "%q is not a valid variable name", v.Name)
		}
		if seen[v.Name] {
			return apperr.Invalid(field, "%q is declared more than once", v.Name)
		}
		seen[v.Name] = true
	}
	return nil
}

// advisories reports body/variable mismatches that only matter at generation
// time: placeholders nobody declared, and required variables without a
// default that neither the body nor the system instructions reference.
func advisories(t *models.PromptTemplate) []string {
	referenced := ExtractVariables(t.Body + "\n" + t.SystemInstructions)
	refSet := make(map[string]bool, len(referenced))
	for _, name := range referenced {
		refSet[name] = true
	}
	declared := make(map[string]bool, len(t.Variables))
	for _, v := range t.Variables {
		declared[v.Name] = true
	}

	var warnings []string
	for _, name := range referenced {
		if !declared[name] {
			warnings = append(warnings, fmt.Sprintf("placeholder {{%s}} is not declared and will be left verbatim", name))
		}
	}
	for _, v := range t.Variables {
		if v.Required && !v.HasDefault() && !refSet[v.Name] {
			warnings = append(warnings, fmt.Sprintf("required variable %q has no default and is never referenced", v.Name))
		}
	}
	return warnings
}
