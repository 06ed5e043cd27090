package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

func mustMatch(t *testing.T, f models.Filter, attrs map[string]any) bool {
	t.Helper()
	compiled, err := CompileFilter(f)
	require.NoError(t, err)
	matched, err := compiled.Matches(attrs)
	require.NoError(t, err)
	return matched
}

func TestCompileFilter_Empty(t *testing.T) {
	assert.True(t, mustMatch(t, models.Filter{}, map[string]any{"anything": "goes"}))
}

func TestCompileFilter_Equality(t *testing.T) {
	f := models.Filter{Op: "eq", Key: "category", Value: "report"}

	assert.True(t, mustMatch(t, f, map[string]any{"category": "report"}))
	assert.False(t, mustMatch(t, f, map[string]any{"category": "memo"}))
	assert.False(t, mustMatch(t, f, map[string]any{}))
}

func TestCompileFilter_And(t *testing.T) {
	f := models.Filter{Op: "and", Children: []models.Filter{
		{Op: "eq", Key: "category", Value: "report"},
		{Op: "eq", Key: "year", Value: 2024},
	}}

	assert.True(t, mustMatch(t, f, map[string]any{"category": "report", "year": 2024}))
	assert.False(t, mustMatch(t, f, map[string]any{"category": "report", "year": 2023}))
}

func TestCompileFilter_Or(t *testing.T) {
	f := models.Filter{Op: "or", Children: []models.Filter{
		{Op: "eq", Key: "category", Value: "report"},
		{Op: "eq", Key: "category", Value: "memo"},
	}}

	assert.True(t, mustMatch(t, f, map[string]any{"category": "memo"}))
	assert.False(t, mustMatch(t, f, map[string]any{"category": "invoice"}))
}

func TestCompileFilter_NestedComposition(t *testing.T) {
	f := models.Filter{Op: "and", Children: []models.Filter{
		{Op: "eq", Key: "team", Value: "infra"},
		{Op: "or", Children: []models.Filter{
			{Op: "eq", Key: "quarter", Value: "q1"},
			{Op: "eq", Key: "quarter", Value: "q2"},
		}},
	}}

	assert.True(t, mustMatch(t, f, map[string]any{"team": "infra", "quarter": "q2"}))
	assert.False(t, mustMatch(t, f, map[string]any{"team": "infra", "quarter": "q3"}))
	assert.False(t, mustMatch(t, f, map[string]any{"team": "data", "quarter": "q1"}))
}

func TestCompileFilter_QuotedValuesStayLiteral(t *testing.T) {
	f := models.Filter{Op: "eq", Key: "note", Value: `say "hi" \ bye`}

	assert.True(t, mustMatch(t, f, map[string]any{"note": `say "hi" \ bye`}))
	assert.False(t, mustMatch(t, f, map[string]any{"note": "other"}))
}
