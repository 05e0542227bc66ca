package roadmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specsync/specsync/internal/models"
)

const sampleRoadmap = `# Roadmap

## P1
- [ ] Ship auth ` + "`feat-auth`" + ` ([#12](https://github.com/acme/widgets/issues/12))
- [x] Fix startup crash

## P3
- [ ] Improve docs
`

func TestParse(t *testing.T) {
	doc, err := Parse([]byte(sampleRoadmap))
	require.NoError(t, err)
	require.Len(t, doc.Items, 3)

	t.Run("linked item with branch ref", func(t *testing.T) {
		item := doc.Items[0]
		assert.Equal(t, "Ship auth", item.Text)
		assert.Equal(t, models.PriorityP1, item.Priority)
		assert.Equal(t, "feat-auth", item.FeatureBranchRef)
		assert.Equal(t, 12, item.GitHubNumber)
		assert.Equal(t, "https://github.com/acme/widgets/issues/12", item.GitHubURL)
		assert.False(t, item.Done)
	})

	t.Run("done checkbox is preserved", func(t *testing.T) {
		item := doc.Items[1]
		assert.Equal(t, "Fix startup crash", item.Text)
		assert.True(t, item.Done)
	})

	t.Run("section header sets the priority band", func(t *testing.T) {
		assert.Equal(t, models.PriorityP3, doc.Items[2].Priority)
	})

	t.Run("item with only a branch ref has no text and is rejected", func(t *testing.T) {
		_, err := Parse([]byte("## P1\n- [ ] `feat-x`\n"))
		assert.Error(t, err)
	})
}

func TestRender_RoundTrip(t *testing.T) {
	doc, err := Parse([]byte(sampleRoadmap))
	require.NoError(t, err)

	rendered := doc.Render()
	assert.Equal(t, sampleRoadmap, string(rendered))

	reparsed, err := Parse(rendered)
	require.NoError(t, err)
	assert.Equal(t, doc.Items, reparsed.Items)
}

func TestLoadFile(t *testing.T) {
	t.Run("missing file yields an empty document", func(t *testing.T) {
		doc, err := LoadFile(filepath.Join(t.TempDir(), "ROADMAP.md"))
		require.NoError(t, err)
		assert.Empty(t, doc.Items)
	})

	t.Run("write then load round-trips", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ROADMAP.md")
		doc, err := Parse([]byte(sampleRoadmap))
		require.NoError(t, err)

		require.NoError(t, doc.WriteFile(path))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, sampleRoadmap, string(data))
	})
}
