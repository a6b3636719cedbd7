package scholar

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCriteriaValidate(t *testing.T) {
	t.Parallel()

	valid := SearchCriteria{IncludeKeywords: []string{"reefs"}}
	require.NoError(t, valid.Validate())

	require.Error(t, SearchCriteria{}.Validate())
	require.Error(t, SearchCriteria{IncludeKeywords: []string{"  "}}.Validate())
	require.Error(t, SearchCriteria{
		IncludeKeywords: []string{"reefs"},
		StartYear:       2023,
		EndYear:         2020,
	}.Validate())
	require.Error(t, SearchCriteria{
		IncludeKeywords: []string{"reefs"},
		MaxResults:      -1,
	}.Validate())
}

func TestCriteriaYears(t *testing.T) {
	t.Parallel()

	c := SearchCriteria{StartYear: 2020, EndYear: 2023}
	require.Equal(t, []int{2020, 2021, 2022, 2023}, c.Years())

	require.Nil(t, SearchCriteria{StartYear: 2020}.Years())
	require.Nil(t, SearchCriteria{}.Years())
	require.Equal(t, []int{2021}, SearchCriteria{StartYear: 2021, EndYear: 2021}.Years())
}

func TestSemanticFilteringEnabled(t *testing.T) {
	t.Parallel()

	require.False(t, SearchCriteria{}.SemanticFilteringEnabled())
	require.True(t, SearchCriteria{SemanticInclusion: "field studies"}.SemanticFilteringEnabled())
	require.True(t, SearchCriteria{SemanticExclusion: "simulations"}.SemanticFilteringEnabled())
}

func TestStrategyStatsSuccessRate(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1.0, StrategyStats{}.SuccessRate())
	require.Equal(t, 0.75, StrategyStats{SuccessCount: 3, FailureCount: 1}.SuccessRate())
}

func TestTitleSetMarkIfNew(t *testing.T) {
	t.Parallel()

	set := NewTitleSet()
	require.True(t, set.MarkIfNew("Coral Reefs"))
	require.False(t, set.MarkIfNew("coral reefs"))
	require.False(t, set.MarkIfNew("  CORAL REEFS  "))
	require.False(t, set.MarkIfNew(""))
	require.True(t, set.MarkIfNew("Another Title"))
	require.Equal(t, 2, set.Len())
}
