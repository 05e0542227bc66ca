package roadmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specsync/specsync/internal/models"
)

func TestMerge_BranchRefAndFuzzyMatch(t *testing.T) {
	local := []models.RoadmapItem{
		{Text: "Add X", FeatureBranchRef: "feat-1", Priority: models.PriorityP1},
		{Text: "Improve Y", Priority: models.PriorityP2},
	}
	epics := []models.RemoteEpic{
		{Number: 10, Title: "Epic for the X work", Body: "part of feat-1", URL: "https://example.com/10"},
		{Number: 11, Title: "Improve Y feature", URL: "https://example.com/11"},
		{Number: 12, Title: "Unrelated epic", Labels: []string{"p2"}, URL: "https://example.com/12"},
	}

	result, err := Merge(local, epics, NewMatcher())
	require.NoError(t, err)
	require.Len(t, result.Items, 3)

	t.Run("explicit branch reference wins and keeps local content", func(t *testing.T) {
		item := result.Items[0]
		assert.Equal(t, "Add X", item.Text)
		assert.Equal(t, models.PriorityP1, item.Priority)
		assert.Equal(t, 10, item.GitHubNumber)
		assert.Equal(t, "https://example.com/10", item.GitHubURL)
		assert.Equal(t, models.ProvenanceMerged, item.Provenance)
	})

	t.Run("fuzzy title match links the second item", func(t *testing.T) {
		item := result.Items[1]
		assert.Equal(t, "Improve Y", item.Text)
		assert.Equal(t, 11, item.GitHubNumber)
		assert.Equal(t, models.ProvenanceMerged, item.Provenance)
	})

	t.Run("unconsumed epic is appended as remote-only in its mapped band", func(t *testing.T) {
		item := result.Items[2]
		assert.Equal(t, "Unrelated epic", item.Text)
		assert.Equal(t, models.PriorityP2, item.Priority)
		assert.Equal(t, 12, item.GitHubNumber)
		assert.Equal(t, models.ProvenanceRemoteOnly, item.Provenance)
	})

	t.Run("report counts each category", func(t *testing.T) {
		assert.Equal(t, 1, result.Report.Matched)
		assert.Equal(t, 1, result.Report.FuzzyMatched)
		assert.Equal(t, 0, result.Report.LocalOnly)
		assert.Equal(t, 1, result.Report.RemoteOnly)
	})
}

func TestMerge_Idempotence(t *testing.T) {
	local := []models.RoadmapItem{
		{Text: "Add X", FeatureBranchRef: "feat-1", Priority: models.PriorityP1},
		{Text: "Improve Y", Priority: models.PriorityP2},
	}
	epics := []models.RemoteEpic{
		{Number: 10, Title: "Epic for the X work", Body: "part of feat-1"},
		{Number: 11, Title: "Improve Y feature"},
		{Number: 12, Title: "Unrelated epic"},
	}

	first, err := Merge(local, epics, NewMatcher())
	require.NoError(t, err)

	second, err := Merge(first.Items, epics, NewMatcher())
	require.NoError(t, err)

	require.Len(t, second.Items, len(first.Items), "rerun must not add duplicates")
	for i := range first.Items {
		assert.Equal(t, first.Items[i].Text, second.Items[i].Text)
		assert.Equal(t, first.Items[i].Priority, second.Items[i].Priority)
		assert.Equal(t, first.Items[i].GitHubNumber, second.Items[i].GitHubNumber)
		assert.Equal(t, first.Items[i].FeatureBranchRef, second.Items[i].FeatureBranchRef)
	}
	assert.Equal(t, 0, second.Report.RemoteOnly, "already-imported epics must not reappear")
}

func TestMerge_LocalItemsAreNeverDeleted(t *testing.T) {
	t.Run("no remote epics leaves everything local-only", func(t *testing.T) {
		local := []models.RoadmapItem{
			{Text: "Keep me", Priority: models.PriorityP1},
			{Text: "Me too", Priority: models.PriorityP4},
		}

		result, err := Merge(local, nil, NewMatcher())
		require.NoError(t, err)
		require.Len(t, result.Items, 2)
		for _, item := range result.Items {
			assert.Equal(t, models.ProvenanceLocalOnly, item.Provenance)
		}
		assert.Equal(t, 2, result.Report.LocalOnly)
	})

	t.Run("two items competing for one epic both survive", func(t *testing.T) {
		local := []models.RoadmapItem{
			{Text: "Improve Y", Priority: models.PriorityP2},
			{Text: "Improve Y", Priority: models.PriorityP3},
		}
		epics := []models.RemoteEpic{{Number: 11, Title: "Improve Y feature"}}

		result, err := Merge(local, epics, NewMatcher())
		require.NoError(t, err)
		require.Len(t, result.Items, 2)
		assert.Equal(t, models.ProvenanceMerged, result.Items[0].Provenance)
		assert.Equal(t, models.ProvenanceLocalOnly, result.Items[1].Provenance)
	})
}

func TestMerge_Ordering(t *testing.T) {
	local := []models.RoadmapItem{
		{Text: "third band item", Priority: models.PriorityP3},
		{Text: "first band item", Priority: models.PriorityP1},
		{Text: "another first band item", Priority: models.PriorityP1},
	}
	epics := []models.RemoteEpic{
		{Number: 20, Title: "Remote critical work", Labels: []string{"critical"}},
		{Number: 21, Title: "Remote background work", Labels: []string{"low"}},
	}

	result, err := Merge(local, epics, NewMatcher())
	require.NoError(t, err)
	require.Len(t, result.Items, 5)

	texts := make([]string, len(result.Items))
	for i, item := range result.Items {
		texts[i] = item.Text
	}
	assert.Equal(t, []string{
		"first band item",
		"another first band item",
		"Remote critical work",
		"third band item",
		"Remote background work",
	}, texts)
}

func TestMerge_LocalPriorityIsAuthoritative(t *testing.T) {
	local := []models.RoadmapItem{
		{Text: "Improve Y", Priority: models.PriorityP4},
	}
	epics := []models.RemoteEpic{
		{Number: 11, Title: "Improve Y feature", Labels: []string{"critical"}},
	}

	result, err := Merge(local, epics, NewMatcher())
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, models.PriorityP4, result.Items[0].Priority)
}
