package listing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchParamsValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		params SearchParams
		want   map[string]string
	}{
		{
			name:   "query and sort",
			params: SearchParams{Query: "golang", SortBy: "recency"},
			want:   map[string]string{"q": "golang", "sort": "recency"},
		},
		{
			name:   "experience tiers encode to numeric list",
			params: SearchParams{ExperienceLevel: "entry, expert"},
			want:   map[string]string{"contractor_tier": "1,3"},
		},
		{
			name:   "budget range open on one side",
			params: SearchParams{BudgetMin: 500},
			want:   map[string]string{"amount": "500-"},
		},
		{
			name:   "hourly range both sides",
			params: SearchParams{HourlyRateMin: 30, HourlyRateMax: 60},
			want:   map[string]string{"hourly_rate": "30-60"},
		},
		{
			name:   "category maps to uid",
			params: SearchParams{Category: "Web, Mobile & Software Dev"},
			want:   map[string]string{"category2_uid": "531770282580668418"},
		},
		{
			name:   "workload and duration",
			params: SearchParams{HoursPerWeek: "less_than_30", ProjectLength: "month"},
			want:   map[string]string{"workload": "as_needed", "duration_v3": "month"},
		},
		{
			name:   "per_page capped at 50",
			params: SearchParams{MaxResults: 200},
			want:   map[string]string{"per_page": "50"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			values := tc.params.Values()
			for key, want := range tc.want {
				assert.Equal(t, want, values.Get(key), "param %s", key)
			}
			assert.Len(t, values, len(tc.want))
		})
	}
}

func TestSearchParamsValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, SearchParams{Query: "x", SortBy: "relevance"}.Validate())
	require.Error(t, SearchParams{SortBy: "cheapest"}.Validate())
	require.Error(t, SearchParams{JobType: "retainer"}.Validate())
	require.Error(t, SearchParams{ExperienceLevel: "entry,ninja"}.Validate())
	require.Error(t, SearchParams{BudgetMin: -1}.Validate())
}

func TestExtractJobID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "~01abc123", ExtractJobID("https://www.upwork.com/jobs/Build-an-API_~01abc123/"))
	assert.Equal(t, "~0deadbeef", ExtractJobID("/jobs/~0deadbeef"))
	assert.Empty(t, ExtractJobID("https://www.upwork.com/nx/find-work/best-matches"))
}

func TestDetailURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, BaseURL+"/jobs/~01abc", DetailURL("~01abc"))
	assert.Equal(t, "https://example.com/jobs/~01abc", DetailURL("https://example.com/jobs/~01abc"))
}

func TestIsLoginShape(t *testing.T) {
	t.Parallel()

	assert.True(t, IsLoginShape(LoginURL))
	assert.True(t, IsLoginShape(BaseURL+"/ab/account-security/reauth"))
	assert.False(t, IsLoginShape(FeedURL))
}
