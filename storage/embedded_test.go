package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sixpeteunder/orientdb-odm/database"
	"github.com/sixpeteunder/orientdb-odm/models"
	"github.com/sixpeteunder/orientdb-odm/protocol"
	"github.com/sixpeteunder/orientdb-odm/query"
)

func setupTestStore(t *testing.T) *Embedded {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	store := NewEmbedded(database.NewRepository(db), nil)
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
		"street": "Via Roma", "type": "Residence", "floor": 2,
		"city": italy.RID, "comments": []models.RID{c1.RID, c2.RID},
	})
	require.NoError(t, err)
	_, err = repo.InsertRecord(ctx, "Address", map[string]any{
		"street": "Via Po", "type": "Office", "floor": 5,
		"city": italy.RID, "comments": []models.RID{},
	})
	require.NoError(t, err)
	return store
}

func TestLoad(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	res, err := store.Send(ctx, protocol.Load(models.MustParseRID("13:0"), ""))
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "Residence", res.First().Fields["type"])
	assert.Empty(t, res.Prefetched)

	res, err = store.Send(ctx, protocol.Load(models.MustParseRID("13:2000"), ""))
	require.NoError(t, err)
	assert.Empty(t, res.Records)

	_, err = store.Send(ctx, protocol.Load(models.MustParseRID("13:0"), "*:x"))
	assert.ErrorIs(t, err, models.ErrInvalidQuery)
}

func TestLoadWithFetchPlan(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	res, err := store.Send(ctx, protocol.Load(models.MustParseRID("13:0"), "*:-1"))
	require.NoError(t, err)
	assert.Len(t, res.Prefetched, 3)
	assert.Contains(t, res.Prefetched, models.MustParseRID("12:0"))
	assert.Contains(t, res.Prefetched, models.MustParseRID("20:1"))

	res, err = store.Send(ctx, protocol.Load(models.MustParseRID("13:0"), "city:1"))
	require.NoError(t, err)
	assert.Len(t, res.Prefetched, 1)
	assert.Equal(t, "Italy", res.Prefetched[models.MustParseRID("12:0")].Fields["name"])
}

func TestRecordOps(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	res, err := store.Send(ctx, protocol.Create(&models.Record{Class: "Address", Fields: map[string]any{"street": "New"}}))
	require.NoError(t, err)
	created := res.First()
	assert.Equal(t, models.MustParseRID("13:2"), created.RID)

	created.Fields["street"] = "Renamed"
	res, err = store.Send(ctx, protocol.Update(created))
	require.NoError(t, err)
	assert.Equal(t, 2, res.First().Version)

	res, err = store.Send(ctx, protocol.LoadMany([]models.RID{created.RID, models.MustParseRID("13:0"), models.MustParseRID("13:99")}))
	require.NoError(t, err)
	assert.Len(t, res.Records, 2)

	res, err = store.Send(ctx, protocol.Delete(created.RID))
	require.NoError(t, err)
	assert.True(t, res.Bool)

	res, err = store.Send(ctx, protocol.Delete(created.RID))
	require.NoError(t, err)
	assert.False(t, res.Bool)

	res, err = store.Send(ctx, protocol.Update(created))
	require.NoError(t, err)
	assert.Empty(t, res.Records)

	_, err = store.Send(ctx, protocol.Create(&models.Record{Fields: map[string]any{"a": 1}}))
	assert.ErrorIs(t, err, models.ErrInvalidQuery)
}

func TestCommands(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	t.Run("Select filters, orders and limits", func(t *testing.T) {
		res, err := store.Send(ctx, protocol.Command(query.Select("Address").Where("floor", query.OpGt, 1).OrderBy("floor", true)))
		require.NoError(t, err)
		require.Len(t, res.Records, 2)
		assert.Equal(t, "Office", res.Records[0].Fields["type"])

		res, err = store.Send(ctx, protocol.Command(query.Select("Address").OrderBy("street", false).Skip(1).Limit(1)))
		require.NoError(t, err)
		require.Len(t, res.Records, 1)
		assert.Equal(t, "Via Roma", res.Records[0].Fields["street"])

		res, err = store.Send(ctx, protocol.Command(query.Select("13:1", "13:0").Where("@class", query.OpEq, "Address")))
		require.NoError(t, err)
		assert.Len(t, res.Records, 2)

		res, err = store.Send(ctx, protocol.Command(query.Select("Address").Where("type", query.OpEq, "Castle")))
		require.NoError(t, err)
		assert.Empty(t, res.Records)
	})

	t.Run("Select with fetch plan prefetches", func(t *testing.T) {
		res, err := store.Send(ctx, protocol.Command(query.Select("Address").Where("@rid", query.OpEq, "13:0").FetchPlan("*:-1")))
		require.NoError(t, err)
		assert.Len(t, res.Records, 1)
		assert.Len(t, res.Prefetched, 3)
	})

	t.Run("Unknown class is rejected", func(t *testing.T) {
		_, err := store.Send(ctx, protocol.Command(query.Select("Directory")))
		assert.ErrorIs(t, err, models.ErrInvalidQuery)
	})

	t.Run("Update counts matches", func(t *testing.T) {
		res, err := store.Send(ctx, protocol.Command(query.Update("Address").Set(map[string]any{"type": "Flat"}).Where("@rid", query.OpEq, "13:0")))
		require.NoError(t, err)
		assert.Equal(t, models.ResultCount, res.Kind)
		assert.Equal(t, int64(1), res.Count)

		res, err = store.Send(ctx, protocol.Load(models.MustParseRID("13:0"), ""))
		require.NoError(t, err)
		assert.Equal(t, "Flat", res.First().Fields["type"])
		assert.Equal(t, "Via Roma", res.First().Fields["street"])

		res, err = store.Send(ctx, protocol.Command(query.Update("Address").Set(map[string]any{"floor": 0})))
		require.NoError(t, err)
		assert.Equal(t, int64(2), res.Count)
	})

	t.Run("Empty update is void", func(t *testing.T) {
		_, err := store.Send(ctx, protocol.Command(query.Update("Address").Set(map[string]any{})))
		assert.ErrorIs(t, err, models.ErrVoidDocument)
	})

	t.Run("Insert and delete", func(t *testing.T) {
		res, err := store.Send(ctx, protocol.Command(query.Insert("Comment").Set(map[string]any{"body": "third"})))
		require.NoError(t, err)
		assert.Equal(t, models.MustParseRID("20:2"), res.First().RID)

		res, err = store.Send(ctx, protocol.Command(query.Delete("Comment").Where("body", query.OpLike, "n%")))
		require.NoError(t, err)
		assert.Equal(t, int64(2), res.Count)
	})

	t.Run("Grant, revoke and indexes", func(t *testing.T) {
		res, err := store.Send(ctx, protocol.Command(query.Grant("READ").On("database.class.Address").To("reader")))
		require.NoError(t, err)
		assert.True(t, res.Bool)

		res, err = store.Send(ctx, protocol.Command(query.Revoke("READ").On("database.class.Address").From("reader")))
		require.NoError(t, err)
		assert.True(t, res.Bool)

		res, err = store.Send(ctx, protocol.Command(query.CreateIndex("Address", "street").Type(query.IndexUnique)))
		require.NoError(t, err)
		assert.True(t, res.Bool)

		res, err = store.Send(ctx, protocol.Command(query.DropIndex("Address", "street")))
		require.NoError(t, err)
		assert.True(t, res.Bool)
	})

	t.Run("Invalid command", func(t *testing.T) {
		_, err := store.Send(ctx, protocol.Command(query.Grant("FLY").On("x").To("y")))
		assert.True(t, errors.Is(err, models.ErrInvalidQuery))
	})
}
