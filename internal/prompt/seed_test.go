package prompt

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinSeed(t *testing.T) {
	defs, err := BuiltinSeed()
	require.NoError(t, err)
	require.Len(t, defs, 7)

	categories := make(map[string]bool)
	for _, d := range defs {
		assert.NotEmpty(t, d.Name)
		assert.NotEmpty(t, d.Body)
		assert.False(t, categories[d.Category], "duplicate category %s", d.Category)
		categories[d.Category] = true
	}
	assert.True(t, categories["srs"])
}

func TestLoadSeedRejectsUnknownFields(t *testing.T) {
	_, err := LoadSeed(strings.NewReader("templates:\n  - name: x\n    colour: red\n"))
	assert.Error(t, err)
}

func TestSeedIsIdempotent(t *testing.T) {
	svc := newTestService()
	defs, err := BuiltinSeed()
	require.NoError(t, err)

	res, err := svc.Seed(context.Background(), defs)
	require.NoError(t, err)
	assert.Equal(t, SeedResult{Created: 7}, res)

	res, err = svc.Seed(context.Background(), defs)
	require.NoError(t, err)
	assert.Equal(t, SeedResult{Skipped: 7}, res)

	def, err := svc.DefaultForCategory(context.Background(), "srs")
	require.NoError(t, err)
	assert.Equal(t, "Software Requirements Specification", def.Name)
	require.Len(t, def.Variables, 2)
	require.NotNil(t, def.Variables[1].DefaultValue)
}
