package odm

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sixpeteunder/orientdb-odm/database"
	"github.com/sixpeteunder/orientdb-odm/document"
	"github.com/sixpeteunder/orientdb-odm/models"
	"github.com/sixpeteunder/orientdb-odm/query"
	"github.com/sixpeteunder/orientdb-odm/storage"
)

// setupTestStore creates a sqlite backed store holding one country, two
// comments and two addresses: 13:0 (Via Roma, Residence) and 13:1 (Via Po,
// Office).
func setupTestStore(t *testing.T) *storage.Embedded {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "odm.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	store := storage.NewEmbedded(database.NewRepository(db), testLogger())
	ctx := context.Background()
	repo := store.Repository()
	require.NoError(t, repo.CreateCluster(ctx, "Country", 12))
	require.NoError(t, repo.CreateCluster(ctx, "Address", 13))
	require.NoError(t, repo.CreateCluster(ctx, "Comment", 20))

	italy, err := repo.InsertRecord(ctx, "Country", map[string]any{"name": "Italy"})
	require.NoError(t, err)
	c1, err := repo.InsertRecord(ctx, "Comment", map[string]any{"body": "nice"})
	require.NoError(t, err)
	c2, err := repo.InsertRecord(ctx, "Comment", map[string]any{"body": "noisy"})
	require.NoError(t, err)

	_, err = repo.InsertRecord(ctx, "Address", map[string]any{
		"street": "Via Roma", "type": "Residence", "floor": int64(2),
		"city": italy.RID, "comments": []models.RID{c1.RID, c2.RID},
	})
	require.NoError(t, err)
	_, err = repo.InsertRecord(ctx, "Address", map[string]any{
		"street": "Via Po", "type": "Office", "floor": int64(5),
		"city": italy.RID, "comments": []models.RID{},
	})
	require.NoError(t, err)
	return store
}

func setupTestManager(t *testing.T) (*Manager, *storage.Embedded) {
	t.Helper()
	store := setupTestStore(t)
	return NewManager(testMapper(t), store, testLogger()), store
}

func mustGet(t *testing.T, doc *document.Document, field string) any {
	t.Helper()
	v, err := doc.Get(context.Background(), field)
	require.NoError(t, err)
	return v
}

func TestResidenceBecomesFlat(t *testing.T) {
	manager, _ := setupTestManager(t)
	ctx := context.Background()

	doc, err := manager.Find(ctx, "13:0")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "Residence", mustGet(t, doc, "type"))

	res, err := manager.Execute(ctx, query.Update("Address").SetField("type", "Flat").Where("@rid", query.OpEq, "13:0"))
	require.NoError(t, err)
	assert.True(t, res.Success)

	again, err := manager.Find(ctx, "13:0")
	require.NoError(t, err)
	assert.Same(t, doc, again)
	assert.Equal(t, "Flat", mustGet(t, again, "type"))
}

func TestFindEagerAndLazy(t *testing.T) {
	ctx := context.Background()

	t.Run("eager", func(t *testing.T) {
		manager, _ := setupTestManager(t)
		doc, err := manager.Find(ctx, "13:0", "*:-1")
		require.NoError(t, err)

		city := mustGet(t, doc, "city").(*document.Document)
		assert.True(t, city.IsInitialized())
		assert.Equal(t, "Italy", mustGet(t, city, "name"))

		comments, ok := mustGet(t, doc, "comments").([]*document.Document)
		require.True(t, ok)
		require.Len(t, comments, 2)
		assert.Equal(t, "noisy", mustGet(t, comments[1], "body"))
	})

	t.Run("lazy", func(t *testing.T) {
		manager, _ := setupTestManager(t)
		doc, err := manager.Find(ctx, "13:0")
		require.NoError(t, err)

		city := mustGet(t, doc, "city").(*document.Document)
		assert.False(t, city.IsInitialized())
		assert.Equal(t, "Italy", mustGet(t, city, "name"))

		comments, ok := mustGet(t, doc, "comments").(*document.Collection)
		require.True(t, ok)
		docs, err := comments.All(ctx)
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "nice", mustGet(t, docs[0], "body"))
	})

	t.Run("tolerant collections are eager", func(t *testing.T) {
		manager, _ := setupTestManager(t)
		manager.Mapper().EnableMismatchesTolerance()
		doc, err := manager.Find(ctx, "13:0")
		require.NoError(t, err)

		comments, ok := mustGet(t, doc, "comments").([]*document.Document)
		require.True(t, ok)
		assert.Len(t, comments, 2)
	})
}

func TestUpdateRoundTrip(t *testing.T) {
	manager, store := setupTestManager(t)
	ctx := context.Background()

	doc, err := manager.Find(ctx, "13:1")
	require.NoError(t, err)
	version := doc.Version()

	require.NoError(t, doc.Set(ctx, "floor", 6))
	require.NoError(t, manager.Persist(doc))
	require.NoError(t, manager.Flush(ctx))

	require.NoError(t, doc.Set(ctx, "floor", 7))
	require.NoError(t, doc.Set(ctx, "street", "Via Po 2"))
	require.NoError(t, manager.Persist(doc))
	require.NoError(t, manager.Flush(ctx))
	assert.Equal(t, version+2, doc.Version())

	other := NewManager(testMapper(t), store, testLogger())
	fresh, err := other.Find(ctx, "13:1")
	require.NoError(t, err)
	assert.NotSame(t, doc, fresh)
	assert.Equal(t, int64(7), mustGet(t, fresh, "floor"))
	assert.Equal(t, "Via Po 2", mustGet(t, fresh, "street"))
}

func TestUnchangedUpdateIsSkipped(t *testing.T) {
	manager, _ := setupTestManager(t)
	ctx := context.Background()

	doc, err := manager.Find(ctx, "13:0")
	require.NoError(t, err)
	version := doc.Version()

	require.NoError(t, manager.Persist(doc))
	require.NoError(t, manager.Flush(ctx))
	assert.Equal(t, version, doc.Version())
	assert.Zero(t, manager.Pending())
}

func TestInsertCascade(t *testing.T) {
	manager, _ := setupTestManager(t)
	ctx := context.Background()

	country, err := manager.NewDocument("Country")
	require.NoError(t, err)
	require.NoError(t, country.Set(ctx, "name", "France"))

	address, err := manager.NewDocument("Address")
	require.NoError(t, err)
	require.NoError(t, address.Set(ctx, "street", "Rue de Rivoli"))
	require.NoError(t, address.Set(ctx, "type", "Flat"))
	require.NoError(t, address.Set(ctx, "city", country))

	// The country is queued after the address that references it.
	require.NoError(t, manager.Persist(address))
	require.NoError(t, manager.Persist(country))
	require.NoError(t, manager.Flush(ctx))
	assert.Zero(t, manager.Pending())

	require.True(t, address.HasRID())
	require.True(t, country.HasRID())
	assert.Equal(t, 12, country.RID().Cluster)
	assert.Equal(t, 13, address.RID().Cluster)
	assert.True(t, manager.Contains(address))

	other := NewManager(testMapper(t), manager.adapter, testLogger())
	stored, err := other.Find(ctx, address.RID().String(), "*:-1")
	require.NoError(t, err)
	city := mustGet(t, stored, "city").(*document.Document)
	assert.Equal(t, "France", mustGet(t, city, "name"))
	assert.Equal(t, int64(0), mustGet(t, stored, "floor"))
}

func TestRemoveAndDelete(t *testing.T) {
	manager, _ := setupTestManager(t)
	ctx := context.Background()

	doc, err := manager.Find(ctx, "13:1")
	require.NoError(t, err)
	require.NoError(t, manager.Remove(doc))
	require.NoError(t, manager.Flush(ctx))

	assert.Equal(t, document.StatusRemoved, doc.Status())
	assert.Equal(t, models.MustParseRID("13:1"), doc.RID())
	assert.False(t, manager.Contains(doc))
	assert.ErrorIs(t, manager.Persist(doc), ErrVoidDocument)

	gone, err := manager.Find(ctx, "13:1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestExecuteDeleteRefreshesCache(t *testing.T) {
	manager, _ := setupTestManager(t)
	ctx := context.Background()

	doc, err := manager.Find(ctx, "13:1")
	require.NoError(t, err)

	res, err := manager.Execute(ctx, query.Delete("#13:1").Return(query.ReturnCount))
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Count)

	assert.Equal(t, document.StateInitialized, doc.State())
	assert.True(t, doc.Missing())
	gone, err := manager.Find(ctx, "13:1")
	require.NoError(t, err)
	assert.Nil(t, gone)

	_, err = manager.Execute(ctx, query.Delete("#13:1"))
	assert.ErrorIs(t, err, ErrVoidDocument)
}

func TestExecuteKeepsLocalChanges(t *testing.T) {
	manager, _ := setupTestManager(t)
	ctx := context.Background()

	edited, err := manager.Find(ctx, "13:1")
	require.NoError(t, err)
	require.NoError(t, edited.Set(ctx, "street", "Via Nuova"))

	target, err := manager.Find(ctx, "13:0")
	require.NoError(t, err)
	assert.Equal(t, "Residence", mustGet(t, target, "type"))

	_, err = manager.Execute(ctx, query.Update("Address").SetField("type", "Flat").Where("@rid", query.OpEq, "13:0"))
	require.NoError(t, err)

	assert.Equal(t, document.StateInitialized, edited.State())
	assert.Equal(t, "Via Nuova", mustGet(t, edited, "street"))

	assert.Equal(t, document.StateInitialized, target.State())
	assert.Equal(t, "Flat", mustGet(t, target, "type"))

	// The edit still reaches the store.
	require.NoError(t, manager.Persist(edited))
	require.NoError(t, manager.Flush(ctx))
	other := NewManager(testMapper(t), manager.adapter, testLogger())
	stored, err := other.Find(ctx, "13:1")
	require.NoError(t, err)
	assert.Equal(t, "Via Nuova", mustGet(t, stored, "street"))
}

func TestEagerFindRefreshesCachedDocument(t *testing.T) {
	ctx := context.Background()

	t.Run("clean document", func(t *testing.T) {
		manager, _ := setupTestManager(t)

		lazy, err := manager.Find(ctx, "13:0")
		require.NoError(t, err)
		_, ok := mustGet(t, lazy, "comments").(*document.Collection)
		require.True(t, ok)
		city := mustGet(t, lazy, "city").(*document.Document)
		require.False(t, city.IsInitialized())

		eager, err := manager.Find(ctx, "13:0", "*:-1")
		require.NoError(t, err)
		assert.Same(t, lazy, eager)
		assert.Equal(t, document.StateInitialized, eager.State())

		comments, ok := mustGet(t, eager, "comments").([]*document.Document)
		require.True(t, ok)
		require.Len(t, comments, 2)
		assert.True(t, comments[0].IsInitialized())
		assert.Equal(t, "nice", mustGet(t, comments[0], "body"))

		assert.Same(t, city, mustGet(t, eager, "city"))
		assert.True(t, city.IsInitialized())
		assert.Equal(t, "Italy", mustGet(t, city, "name"))
	})

	t.Run("local changes are kept", func(t *testing.T) {
		manager, _ := setupTestManager(t)

		doc, err := manager.Find(ctx, "13:0")
		require.NoError(t, err)
		require.NoError(t, doc.Set(ctx, "street", "Via Nuova"))

		again, err := manager.Find(ctx, "13:0", "*:-1")
		require.NoError(t, err)
		assert.Same(t, doc, again)
		assert.Equal(t, "Via Nuova", mustGet(t, again, "street"))
	})
}

func TestCascadeRejectsRemovedDocument(t *testing.T) {
	manager, _ := setupTestManager(t)
	ctx := context.Background()

	countries, err := manager.GetRepository("Country")
	require.NoError(t, err)
	before, err := countries.Count(ctx)
	require.NoError(t, err)

	country, err := manager.NewDocument("Country")
	require.NoError(t, err)
	require.NoError(t, country.Set(ctx, "name", "Atlantis"))
	address, err := manager.NewDocument("Address")
	require.NoError(t, err)
	require.NoError(t, address.Set(ctx, "street", "Deep Street"))
	require.NoError(t, address.Set(ctx, "city", country))

	require.NoError(t, manager.Persist(country))
	require.NoError(t, manager.Persist(address))
	require.NoError(t, manager.Remove(country))
	assert.Equal(t, 1, manager.Pending())

	err = manager.Flush(ctx)
	assert.ErrorIs(t, err, ErrVoidDocument)
	var flushErr *FlushError
	require.ErrorAs(t, err, &flushErr)
	assert.Zero(t, flushErr.Applied)
	assert.Equal(t, 1, manager.Pending())

	assert.False(t, country.HasRID())
	assert.False(t, address.HasRID())
	after, err := countries.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestBatchFetchAtomicity(t *testing.T) {
	manager, _ := setupTestManager(t)
	ctx := context.Background()

	docs, err := manager.FindRecords(ctx, []string{"13:0", "13:99"})
	assert.ErrorIs(t, err, ErrInvalidQuery)
	assert.Nil(t, docs)
	assert.Zero(t, manager.identity.Len())

	docs, err = manager.FindRecords(ctx, []string{"13:0", "12:0"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	city := mustGet(t, docs[0], "city")
	assert.Same(t, docs[1], city)
}

func TestTolerantMapping(t *testing.T) {
	manager, store := setupTestManager(t)
	ctx := context.Background()

	rec, err := store.Repository().InsertRecord(ctx, "Country", map[string]any{"name": "Malta", "population": int64(500000)})
	require.NoError(t, err)

	_, err = manager.Find(ctx, rec.RID.String())
	assert.ErrorIs(t, err, ErrMappingMismatch)

	manager.Mapper().EnableMismatchesTolerance()
	doc, err := manager.Find(ctx, rec.RID.String())
	require.NoError(t, err)
	fields, err := doc.Fields(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Malta"}, fields)
}

func TestRepository(t *testing.T) {
	manager, _ := setupTestManager(t)
	ctx := context.Background()

	repo, err := manager.GetRepository("Address")
	require.NoError(t, err)

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	offices, err := repo.FindBy(ctx, map[string]any{"type": "Office"})
	require.NoError(t, err)
	require.Len(t, offices, 1)
	assert.Equal(t, "Via Po", mustGet(t, offices[0], "street"))
	assert.Same(t, all[1], offices[0])

	one, err := repo.FindOneBy(ctx, map[string]any{"type": "Castle"})
	require.NoError(t, err)
	assert.Nil(t, one)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	wrongClass, err := repo.Find(ctx, "12:0")
	require.NoError(t, err)
	assert.Nil(t, wrongClass)

	_, err = repo.FindBy(ctx, map[string]any{"colour": "red"})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = manager.GetRepository("Planet")
	assert.ErrorIs(t, err, ErrClassNotFound)
}
