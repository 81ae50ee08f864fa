package prompt

import (
	"regexp"
	"slices"

	"github.com/nikhilbhutani/docgen/internal/models"
)

var variablePattern = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

var variableNamePattern = regexp.MustCompile(`^\w+$`)

// Resolve substitutes every {{name}} placeholder declared in specs. A declared
// variable takes the supplied value, then its default, then a visible marker.
// Placeholders that are not declared are left verbatim. Required variables
// with neither a supplied value nor a default are reported in missing, in
// order of first appearance; substitution still proceeds with the marker.
func Resolve(body string, specs []models.VariableSpec, supplied map[string]string) (resolved string, missing []string) {
	declared := make(map[string]models.VariableSpec, len(specs))
	for _, s := range specs {
		declared[s.Name] = s
	}

	reported := make(map[string]bool)
	resolved = variablePattern.ReplaceAllStringFunc(body, func(match string) string {
		name := variablePattern.FindStringSubmatch(match)[1]
		spec, ok := declared[name]
		if !ok {
			return match
		}
		if v, ok := supplied[name]; ok {
			return v
		}
		if spec.HasDefault() {
			return *spec.DefaultValue
		}
		if spec.Required && !reported[name] {
			reported[name] = true
			missing = append(missing, name)
		}
		return Marker(spec)
	})
	return resolved, missing
}

// Marker is the visible stand-in for a variable nobody supplied.
func Marker(spec models.VariableSpec) string {
	if spec.Description != "" {
		return "[" + spec.Description + "]"
	}
	return "[" + spec.Name + "]"
}

// ExtractVariables returns a list of variable names found in the template.
func ExtractVariables(template string) []string {
	matches := variablePattern.FindAllStringSubmatch(template, -1)
	seen := make(map[string]bool)
	var vars []string
	for _, m := range matches {
		if len(m) > 1 && !seen[m[1]] {
			vars = append(vars, m[1])
			seen[m[1]] = true
		}
	}
	return vars
}

// ResolveValues returns the effective value of every declared variable that
// has one: supplied values win over defaults.
func ResolveValues(specs []models.VariableSpec, supplied map[string]string) map[string]string {
	out := make(map[string]string, len(specs))
	for _, s := range specs {
		if v, ok := supplied[s.Name]; ok {
			out[s.Name] = v
		} else if s.HasDefault() {
			out[s.Name] = *s.DefaultValue
		}
	}
	return out
}

// Undeclared returns the supplied names that specs do not declare, sorted.
func Undeclared(specs []models.VariableSpec, supplied map[string]string) []string {
	declared := make(map[string]bool, len(specs))
	for _, s := range specs {
		declared[s.Name] = true
	}
	var out []string
	for name := range supplied {
		if !declared[name] {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// Resolution is a template resolved against one set of supplied values.
type Resolution struct {
	Body               string
	SystemInstructions string
	Values             map[string]string
	MissingRequired    []string
}

// ResolveTemplate resolves both the body and the system instructions of a
// template. Missing variables are reported once, body first.
func ResolveTemplate(body, system string, specs []models.VariableSpec, supplied map[string]string) Resolution {
	resolvedBody, missing := Resolve(body, specs, supplied)
	resolvedSystem, missingSystem := Resolve(system, specs, supplied)

	seen := make(map[string]bool, len(missing))
	for _, m := range missing {
		seen[m] = true
	}
	for _, m := range missingSystem {
		if !seen[m] {
			missing = append(missing, m)
			seen[m] = true
		}
	}

	return Resolution{
		Body:               resolvedBody,
		SystemInstructions: resolvedSystem,
		Values:             ResolveValues(specs, supplied),
		MissingRequired:    missing,
	}
}
