package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/voicegrid/internal/domain/models"
)

func threeNodes() []models.JanusNode {
	return []models.JanusNode{{Name: "a"}, {Name: "b"}, {Name: "c"}}
}

func TestJanusNodeRepositoryAcquireEmpty(t *testing.T) {
	repo := NewJanusNodeRepository()

	_, err := repo.Acquire()
	assert.ErrorIs(t, err, ErrNoJanusNodes)
}

func TestJanusNodeRepositoryAcquireSpreadsLoad(t *testing.T) {
	repo := NewJanusNodeRepository()
	repo.Replace(threeNodes())

	var picked []string
	for i := 0; i < 4; i++ {
		node, err := repo.Acquire()
		require.NoError(t, err)
		picked = append(picked, node.Name)
	}

	assert.Equal(t, []string{"a", "b", "c", "a"}, picked)

	a, _ := repo.Get("a")
	assert.Equal(t, 2, a.ChannelCount)
}

func TestJanusNodeRepositoryReleaseFloorsAtZero(t *testing.T) {
	repo := NewJanusNodeRepository()
	repo.Replace(threeNodes())

	repo.Release("a")
	repo.Release("missing")

	a, ok := repo.Get("a")
	require.True(t, ok)
	assert.Zero(t, a.ChannelCount)

	_, err := repo.Acquire()
	require.NoError(t, err)
	repo.Release("a")

	a, _ = repo.Get("a")
	assert.Zero(t, a.ChannelCount)
}

func TestJanusNodeRepositoryReplaceKeepsCounts(t *testing.T) {
	repo := NewJanusNodeRepository()
	repo.Replace(threeNodes())

	_, ok := repo.Assign("b")
	require.True(t, ok)

	repo.Replace([]models.JanusNode{{Name: "b", PublicURL: "https://b"}, {Name: "d"}})

	nodes := repo.List()
	require.Len(t, nodes, 2)
	assert.Equal(t, 1, nodes[0].ChannelCount)
	assert.Equal(t, "https://b", nodes[0].PublicURL)

	_, ok = repo.Get("a")
	assert.False(t, ok)

	// d пустая, поэтому выбирается она
	node, err := repo.Acquire()
	require.NoError(t, err)
	assert.Equal(t, "d", node.Name)
}

func TestJanusNodeRepositoryAssignUnknown(t *testing.T) {
	repo := NewJanusNodeRepository()

	_, ok := repo.Assign("ghost")
	assert.False(t, ok)
}
