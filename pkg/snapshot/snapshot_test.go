package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biplanedb/biplane/pkg/storage"
)

func openRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func sampleSnapshot(t *testing.T) *storage.Snapshot {
	t.Helper()
	store := storage.New()
	require.NoError(t, store.CreateNode(&storage.Node{
		ID:         "u1",
		Label:      "user",
		Properties: map[string]any{"name": "Ada", "age": float64(36)},
	}))
	require.NoError(t, store.CreateNode(&storage.Node{
		ID:         "p1",
		Label:      "post",
		Properties: map[string]any{"title": "intro", "draft": false},
	}))
	require.NoError(t, store.CreateEdge(&storage.Edge{
		ID:     "a1",
		Type:   "authored",
		FromID: "u1",
		ToID:   "p1",
	}))
	return store.Export()
}

func TestRepository_SaveLoad(t *testing.T) {
	t.Run("round_trip_preserves_graph", func(t *testing.T) {
		repo := openRepo(t)
		snap := sampleSnapshot(t)

		require.NoError(t, repo.Save("daily", snap))

		got, err := repo.Load("daily")
		require.NoError(t, err)
		require.Len(t, got.Nodes, 2)
		require.Len(t, got.Edges, 1)

		// Array order is insertion order and must survive the trip.
		assert.Equal(t, "u1", got.Nodes[0].ID)
		assert.Equal(t, "p1", got.Nodes[1].ID)
		assert.Equal(t, "user", got.Nodes[0].Label)
		assert.Equal(t, "Ada", got.Nodes[0].Properties["name"])
		assert.Equal(t, float64(36), got.Nodes[0].Properties["age"])
		assert.Equal(t, false, got.Nodes[1].Properties["draft"])
		assert.Equal(t, "a1", got.Edges[0].ID)
		assert.Equal(t, "authored", got.Edges[0].Type)
		assert.Equal(t, "u1", got.Edges[0].FromID)
		assert.Equal(t, "p1", got.Edges[0].ToID)
	})

	t.Run("loaded_snapshot_imports_cleanly", func(t *testing.T) {
		repo := openRepo(t)
		require.NoError(t, repo.Save("daily", sampleSnapshot(t)))

		got, err := repo.Load("daily")
		require.NoError(t, err)

		restored := storage.New()
		require.NoError(t, restored.Import(got))

		node, err := restored.GetNode("u1")
		require.NoError(t, err)
		assert.Equal(t, "Ada", node.Properties["name"])

		stats := restored.Stats()
		assert.Equal(t, int64(2), stats.Nodes)
		assert.Equal(t, int64(1), stats.Edges)
	})

	t.Run("save_overwrites_same_name", func(t *testing.T) {
		repo := openRepo(t)
		require.NoError(t, repo.Save("daily", sampleSnapshot(t)))
		require.NoError(t, repo.Save("daily", &storage.Snapshot{}))

		got, err := repo.Load("daily")
		require.NoError(t, err)
		assert.Empty(t, got.Nodes)
		assert.Empty(t, got.Edges)
	})

	t.Run("load_missing_name", func(t *testing.T) {
		repo := openRepo(t)

		_, err := repo.Load("ghost")
		require.ErrorIs(t, err, ErrNotFound)

		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "ghost", nf.Name)
	})

	t.Run("empty_name_rejected", func(t *testing.T) {
		repo := openRepo(t)

		require.ErrorIs(t, repo.Save("", sampleSnapshot(t)), ErrInvalidName)
		_, err := repo.Load("")
		require.ErrorIs(t, err, ErrInvalidName)
		require.ErrorIs(t, repo.Delete(""), ErrInvalidName)
	})

	t.Run("nil_snapshot_rejected", func(t *testing.T) {
		repo := openRepo(t)
		require.ErrorIs(t, repo.Save("daily", nil), storage.ErrInvalidData)
	})
}

func TestRepository_ListDelete(t *testing.T) {
	t.Run("list_empty_repository", func(t *testing.T) {
		repo := openRepo(t)

		names, err := repo.List()
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("list_returns_sorted_names", func(t *testing.T) {
		repo := openRepo(t)
		snap := sampleSnapshot(t)
		require.NoError(t, repo.Save("weekly", snap))
		require.NoError(t, repo.Save("daily", snap))
		require.NoError(t, repo.Save("monthly", snap))

		names, err := repo.List()
		require.NoError(t, err)
		assert.Equal(t, []string{"daily", "monthly", "weekly"}, names)
	})

	t.Run("delete_removes_snapshot", func(t *testing.T) {
		repo := openRepo(t)
		require.NoError(t, repo.Save("daily", sampleSnapshot(t)))

		require.NoError(t, repo.Delete("daily"))

		_, err := repo.Load("daily")
		require.ErrorIs(t, err, ErrNotFound)

		names, err := repo.List()
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("delete_missing_name", func(t *testing.T) {
		repo := openRepo(t)
		err := repo.Delete("ghost")
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRepository_Close(t *testing.T) {
	t.Run("operations_after_close_fail", func(t *testing.T) {
		repo, err := OpenInMemory()
		require.NoError(t, err)
		require.NoError(t, repo.Close())

		require.ErrorIs(t, repo.Save("daily", &storage.Snapshot{}), ErrClosed)
		_, err = repo.Load("daily")
		require.ErrorIs(t, err, ErrClosed)
		_, err = repo.List()
		require.ErrorIs(t, err, ErrClosed)
		require.ErrorIs(t, repo.Delete("daily"), ErrClosed)
	})

	t.Run("close_is_idempotent", func(t *testing.T) {
		repo, err := OpenInMemory()
		require.NoError(t, err)
		require.NoError(t, repo.Close())
		require.NoError(t, repo.Close())
	})
}
