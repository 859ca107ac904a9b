package odm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sixpeteunder/orientdb-odm/document"
	"github.com/sixpeteunder/orientdb-odm/mapper"
	"github.com/sixpeteunder/orientdb-odm/models"
	"github.com/sixpeteunder/orientdb-odm/protocol"
	"github.com/sixpeteunder/orientdb-odm/query"
)

// ==================== MOCKS ====================

// MockAdapter is a mock implementation of protocol.Adapter
type MockAdapter struct {
	mock.Mock
}

// Ensure MockAdapter implements protocol.Adapter interface
var _ protocol.Adapter = (*MockAdapter)(nil)

func (m *MockAdapter) Send(ctx context.Context, req *protocol.Request) (*models.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Result), args.Error(1)
}

func isOp(op protocol.Op) any {
	return mock.MatchedBy(func(r *protocol.Request) bool { return r.Op == op })
}

func isLoad(rid string) any {
	want := models.MustParseRID(rid)
	return mock.MatchedBy(func(r *protocol.Request) bool { return r.Op == protocol.OpLoad && r.RID == want })
}

// ==================== FIXTURES ====================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMapper(t *testing.T) *mapper.Mapper {
	t.Helper()
	m := mapper.New(mapper.WithLogger(testLogger()))
	require.NoError(t, m.Register(models.NewClassMetadata("Country", "",
		models.FieldDescriptor{Name: "name", Type: models.TypeString, Validate: "required"},
	)))
	require.NoError(t, m.Register(models.NewClassMetadata("Comment", "",
		models.FieldDescriptor{Name: "body", Type: models.TypeString},
	)))
	require.NoError(t, m.Register(models.NewClassMetadata("Address", "",
		models.FieldDescriptor{Name: "street", Type: models.TypeString, Validate: "required"},
		models.FieldDescriptor{Name: "type", Type: models.TypeString, Validate: "omitempty,oneof=Residence Office Flat"},
		models.FieldDescriptor{Name: "floor", Type: models.TypeInteger, Default: int64(0)},
		models.FieldDescriptor{Name: "city", Type: models.TypeLink, Target: "Country"},
		models.FieldDescriptor{Name: "comments", Type: models.TypeLinkList, Target: "Comment"},
	)))
	return m
}

func addressRecord() *models.Record {
	return &models.Record{
		RID:     models.MustParseRID("13:0"),
		Class:   "Address",
		Version: 1,
		Fields: map[string]any{
			"street":   "Via Roma",
			"type":     "Residence",
			"floor":    int64(2),
			"city":     models.MustParseRID("12:0"),
			"comments": []models.RID{models.MustParseRID("20:0"), models.MustParseRID("20:1")},
		},
	}
}

func countryRecord() *models.Record {
	return &models.Record{
		RID:     models.MustParseRID("12:0"),
		Class:   "Country",
		Version: 1,
		Fields:  map[string]any{"name": "Italy"},
	}
}

func commentRecord(rid, body string) *models.Record {
	return &models.Record{RID: models.MustParseRID(rid), Class: "Comment", Version: 1, Fields: map[string]any{"body": body}}
}

func setupMockManager(t *testing.T) (*Manager, *MockAdapter) {
	t.Helper()
	adapter := new(MockAdapter)
	return NewManager(testMapper(t), adapter, testLogger()), adapter
}

// ==================== FIND ====================

func TestFind_IdentityMap(t *testing.T) {
	manager, adapter := setupMockManager(t)
	ctx := context.Background()
	adapter.On("Send", mock.Anything, isLoad("13:0")).Return(models.RecordsResult(addressRecord()), nil).Once()

	first, err := manager.Find(ctx, "13:0")
	require.NoError(t, err)
	second, err := manager.Find(ctx, "#13:0")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.True(t, manager.Contains(first))
	adapter.AssertNumberOfCalls(t, "Send", 1)
}

func TestFind_Absent(t *testing.T) {
	manager, adapter := setupMockManager(t)
	adapter.On("Send", mock.Anything, isLoad("13:9")).Return(models.RecordsResult(), nil)

	doc, err := manager.Find(context.Background(), "13:9")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestFind_InvalidInput(t *testing.T) {
	manager, adapter := setupMockManager(t)
	ctx := context.Background()

	tests := []struct {
		name string
		rid  string
		plan []string
	}{
		{name: "malformed rid", rid: "13-0"},
		{name: "empty rid", rid: ""},
		{name: "transient rid", rid: "#-1:-1"},
		{name: "malformed plan", rid: "13:0", plan: []string{"city"}},
		{name: "two plans", rid: "13:0", plan: []string{"*:-1", "*:0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := manager.Find(ctx, tt.rid, tt.plan...)
			assert.ErrorIs(t, err, ErrInvalidQuery)
		})
	}
	adapter.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestFind_TransportError(t *testing.T) {
	manager, adapter := setupMockManager(t)
	adapter.On("Send", mock.Anything, isLoad("13:0")).Return(nil, ErrTransport)

	_, err := manager.Find(context.Background(), "13:0")
	assert.ErrorIs(t, err, ErrTransport)
}

func TestProxyTransparency(t *testing.T) {
	manager, adapter := setupMockManager(t)
	ctx := context.Background()
	adapter.On("Send", mock.Anything, isLoad("13:0")).Return(models.RecordsResult(addressRecord()), nil).Once()
	adapter.On("Send", mock.Anything, isLoad("12:0")).Return(models.RecordsResult(countryRecord()), nil).Once()

	address, err := manager.Find(ctx, "13:0")
	require.NoError(t, err)

	v, err := address.Get(ctx, "city")
	require.NoError(t, err)
	city, ok := v.(*document.Document)
	require.True(t, ok)

	// Reading the RID does not load the proxy.
	assert.Equal(t, models.MustParseRID("12:0"), city.RID())
	assert.Equal(t, "Country", city.Class())
	assert.False(t, city.IsInitialized())
	adapter.AssertNumberOfCalls(t, "Send", 1)

	name, err := city.Get(ctx, "name")
	require.NoError(t, err)
	assert.Equal(t, "Italy", name)
	_, err = city.Get(ctx, "name")
	require.NoError(t, err)
	adapter.AssertNumberOfCalls(t, "Send", 2)

	// The proxy is the identity map instance.
	again, err := manager.Find(ctx, "12:0")
	require.NoError(t, err)
	assert.Same(t, city, again)
	adapter.AssertNumberOfCalls(t, "Send", 2)
}

func TestLazyCollectionLoadsInOneBatch(t *testing.T) {
	manager, adapter := setupMockManager(t)
	ctx := context.Background()
	adapter.On("Send", mock.Anything, isLoad("13:0")).Return(models.RecordsResult(addressRecord()), nil).Once()
	adapter.On("Send", mock.Anything, isOp(protocol.OpLoadMany)).
		Return(models.RecordsResult(commentRecord("20:0", "nice")), nil).Once()

	address, err := manager.Find(ctx, "13:0")
	require.NoError(t, err)
	v, err := address.Get(ctx, "comments")
	require.NoError(t, err)
	comments, ok := v.(*document.Collection)
	require.True(t, ok)
	assert.Equal(t, 2, comments.Len())
	assert.False(t, comments.IsLoaded())

	docs, err := comments.All(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	body, err := docs[0].Get(ctx, "body")
	require.NoError(t, err)
	assert.Equal(t, "nice", body)

	// 20:1 was not returned, so it reads as a missing record.
	assert.True(t, docs[1].Missing())
	adapter.AssertNumberOfCalls(t, "Send", 2)
}

func TestFind_EagerPlanFromPrefetched(t *testing.T) {
	manager, adapter := setupMockManager(t)
	ctx := context.Background()

	res := models.RecordsResult(addressRecord())
	res.AddPrefetched(countryRecord())
	res.AddPrefetched(commentRecord("20:0", "nice"))
	res.AddPrefetched(commentRecord("20:1", "noisy"))
	adapter.On("Send", mock.Anything, mock.MatchedBy(func(r *protocol.Request) bool {
		return r.Op == protocol.OpLoad && r.FetchPlan == "*:-1"
	})).Return(res, nil).Once()

	address, err := manager.Find(ctx, "13:0", "*:-1")
	require.NoError(t, err)

	city, err := address.Get(ctx, "city")
	require.NoError(t, err)
	assert.True(t, city.(*document.Document).IsInitialized())

	comments, err := address.Get(ctx, "comments")
	require.NoError(t, err)
	docs, ok := comments.([]*document.Document)
	require.True(t, ok)
	require.Len(t, docs, 2)
	for _, d := range docs {
		assert.True(t, d.IsInitialized())
	}
	adapter.AssertNumberOfCalls(t, "Send", 1)
}

func TestFind_StrictMismatch(t *testing.T) {
	manager, adapter := setupMockManager(t)
	rec := countryRecord()
	rec.Fields["continent"] = "Europe"
	adapter.On("Send", mock.Anything, isLoad("12:0")).Return(models.RecordsResult(rec), nil)

	_, err := manager.Find(context.Background(), "12:0")
	assert.ErrorIs(t, err, ErrMappingMismatch)

	manager.Mapper().EnableMismatchesTolerance()
	doc, err := manager.Find(context.Background(), "12:0")
	require.NoError(t, err)
	fields, err := doc.Fields(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Italy"}, fields)
}

// ==================== FIND RECORDS ====================

func TestFindRecords(t *testing.T) {
	manager, adapter := setupMockManager(t)
	adapter.On("Send", mock.Anything, isOp(protocol.OpLoadMany)).
		Return(models.RecordsResult(countryRecord(), commentRecord("20:0", "nice")), nil)

	docs, err := manager.FindRecords(context.Background(), []string{"#20:0", "12:0"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "Comment", docs[0].Class())
	assert.Equal(t, "Country", docs[1].Class())
}

func TestFindRecords_Atomicity(t *testing.T) {
	tests := []struct {
		name    string
		rids    []string
		records []*models.Record
		wantErr []error
	}{
		{
			name:    "malformed rid",
			rids:    []string{"12:0", "twelve"},
			wantErr: []error{ErrInvalidQuery},
		},
		{
			name:    "missing record",
			rids:    []string{"12:0", "12:7"},
			records: []*models.Record{countryRecord()},
			wantErr: []error{ErrInvalidQuery},
		},
		{
			name: "unmapped class",
			rids: []string{"12:0", "30:0"},
			records: []*models.Record{
				countryRecord(),
				{RID: models.MustParseRID("30:0"), Class: "Planet", Fields: map[string]any{}},
			},
			wantErr: []error{ErrInvalidQuery, ErrClassNotFound},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager, adapter := setupMockManager(t)
			adapter.On("Send", mock.Anything, isOp(protocol.OpLoadMany)).Return(models.RecordsResult(tt.records...), nil)

			docs, err := manager.FindRecords(context.Background(), tt.rids)
			require.Error(t, err)
			assert.Nil(t, docs)
			for _, want := range tt.wantErr {
				assert.ErrorIs(t, err, want)
			}
			assert.Zero(t, manager.identity.Len())
		})
	}
}

// ==================== EXECUTE ====================

func TestExecute_Shapes(t *testing.T) {
	manager, adapter := setupMockManager(t)
	ctx := context.Background()

	adapter.On("Send", mock.Anything, mock.MatchedBy(func(r *protocol.Request) bool {
		return r.Op == protocol.OpCommand && r.Command.Kind() == query.KindSelect
	})).Return(models.RecordsResult(), nil)
	adapter.On("Send", mock.Anything, mock.MatchedBy(func(r *protocol.Request) bool {
		return r.Op == protocol.OpCommand && r.Command.Kind() == query.KindUpdate
	})).Return(models.CountResult(2), nil)
	adapter.On("Send", mock.Anything, mock.MatchedBy(func(r *protocol.Request) bool {
		return r.Op == protocol.OpCommand && r.Command.Kind() == query.KindDelete
	})).Return(models.CountResult(0), nil)
	adapter.On("Send", mock.Anything, mock.MatchedBy(func(r *protocol.Request) bool {
		return r.Op == protocol.OpCommand && r.Command.Kind() == query.KindGrant
	})).Return(models.BoolResult(true), nil)

	res, err := manager.Execute(ctx, query.Select("Address").Where("type", query.OpEq, "Castle"))
	require.NoError(t, err)
	assert.NotNil(t, res.Documents)
	assert.Empty(t, res.Documents)

	res, err = manager.Execute(ctx, query.Update("Address").SetField("floor", 1))
	require.NoError(t, err)
	assert.True(t, res.Success)

	res, err = manager.Execute(ctx, query.Update("Address").SetField("floor", 1).Return(query.ReturnCount))
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Count)

	_, err = manager.Execute(ctx, query.Delete("Address").Where("floor", query.OpGt, 99))
	assert.ErrorIs(t, err, ErrVoidDocument)

	res, err = manager.Execute(ctx, query.Grant("read").On("database.cluster.Address").To("reader"))
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestExecute_RejectedBeforeSending(t *testing.T) {
	manager, adapter := setupMockManager(t)
	ctx := context.Background()

	_, err := manager.Execute(ctx, query.Update("Address").Set(map[string]any{}))
	assert.ErrorIs(t, err, ErrVoidDocument)

	_, err = manager.Execute(ctx, nil)
	assert.ErrorIs(t, err, ErrVoidDocument)

	_, err = manager.Execute(ctx, query.Select())
	assert.ErrorIs(t, err, ErrInvalidQuery)

	adapter.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

// ==================== UNIT OF WORK ====================

func TestPersistAndRemoveBeforeFlush(t *testing.T) {
	manager, adapter := setupMockManager(t)

	doc, err := manager.NewDocument("Country")
	require.NoError(t, err)
	require.NoError(t, doc.Set(context.Background(), "name", "Atlantis"))

	require.NoError(t, manager.Persist(doc))
	assert.Equal(t, 1, manager.Pending())
	require.NoError(t, manager.Remove(doc))
	assert.Zero(t, manager.Pending())

	require.NoError(t, manager.Flush(context.Background()))
	assert.False(t, doc.HasRID())
	assert.Equal(t, document.StatusTransient, doc.Status())
	adapter.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestPersistRejectsNil(t *testing.T) {
	manager, _ := setupMockManager(t)
	assert.ErrorIs(t, manager.Persist(nil), ErrVoidDocument)
	assert.ErrorIs(t, manager.Remove(nil), ErrVoidDocument)
}

func TestPersistUninitializedProxyIsNoop(t *testing.T) {
	manager, adapter := setupMockManager(t)

	ref, err := manager.GetReference("Country", "12:0")
	require.NoError(t, err)
	require.NoError(t, manager.Persist(ref))
	assert.Zero(t, manager.Pending())
	assert.False(t, ref.IsInitialized())
	adapter.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestFlush_PartialFailure(t *testing.T) {
	manager, adapter := setupMockManager(t)
	ctx := context.Background()

	adapter.On("Send", mock.Anything, mock.MatchedBy(func(r *protocol.Request) bool {
		return r.Op == protocol.OpCreate && r.Record.Fields["name"] == "Italy"
	})).Return(models.RecordsResult(&models.Record{RID: models.MustParseRID("12:0"), Class: "Country", Version: 1}), nil)
	adapter.On("Send", mock.Anything, mock.MatchedBy(func(r *protocol.Request) bool {
		return r.Op == protocol.OpCreate && r.Record.Fields["name"] == "France"
	})).Return(nil, ErrTransport)

	var docs []*document.Document
	for _, name := range []string{"Italy", "France", "Spain"} {
		doc, err := manager.NewDocument("Country")
		require.NoError(t, err)
		require.NoError(t, doc.Set(ctx, "name", name))
		require.NoError(t, manager.Persist(doc))
		docs = append(docs, doc)
	}

	err := manager.Flush(ctx)
	require.Error(t, err)
	var flushErr *FlushError
	require.True(t, errors.As(err, &flushErr))
	assert.Equal(t, 1, flushErr.Applied)
	assert.Equal(t, OpInsert, flushErr.Kind)
	assert.ErrorIs(t, err, ErrTransport)

	// No rollback: the first insert stays applied.
	assert.Equal(t, models.MustParseRID("12:0"), docs[0].RID())
	assert.True(t, manager.Contains(docs[0]))
	assert.False(t, docs[1].HasRID())
	assert.Equal(t, 2, manager.Pending())
	adapter.AssertNumberOfCalls(t, "Send", 2)
}

func TestFlush_ValidationFailure(t *testing.T) {
	manager, adapter := setupMockManager(t)

	doc, err := manager.NewDocument("Address")
	require.NoError(t, err)
	require.NoError(t, doc.Set(context.Background(), "street", "Via Roma"))
	require.NoError(t, doc.Set(context.Background(), "type", "Castle"))
	require.NoError(t, manager.Persist(doc))

	err = manager.Flush(context.Background())
	assert.ErrorIs(t, err, ErrVoidDocument)
	assert.Contains(t, err.Error(), "type must be one of")
	assert.Equal(t, 1, manager.Pending())
	adapter.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestFlush_EmptyDocument(t *testing.T) {
	manager, _ := setupMockManager(t)

	doc, err := manager.NewDocument("Comment")
	require.NoError(t, err)
	require.NoError(t, manager.Persist(doc))
	assert.ErrorIs(t, manager.Flush(context.Background()), ErrVoidDocument)
}

func TestUnitOfWorkCollapse(t *testing.T) {
	meta := models.NewClassMetadata("Country", "", models.FieldDescriptor{Name: "name", Type: models.TypeString})
	stored := func() *document.Document {
		return document.NewLoaded(meta, models.MustParseRID("12:0"), 1, map[string]any{"name": "Italy"})
	}

	t.Run("persist twice keeps one insert with the latest snapshot", func(t *testing.T) {
		var u unitOfWork
		doc := document.New(meta, nil)
		u.persist(doc, map[string]any{"name": "a"})
		u.persist(doc, map[string]any{"name": "b"})
		require.Equal(t, 1, u.len())
		assert.Equal(t, OpInsert, u.ops[0].kind)
		assert.Equal(t, "b", u.ops[0].snapshot["name"])
	})

	t.Run("remove after update becomes delete", func(t *testing.T) {
		var u unitOfWork
		doc := stored()
		u.persist(doc, map[string]any{"name": "a"})
		u.remove(doc)
		require.Equal(t, 1, u.len())
		assert.Equal(t, OpDelete, u.ops[0].kind)
	})

	t.Run("persist after delete resurrects as update", func(t *testing.T) {
		var u unitOfWork
		doc := stored()
		u.remove(doc)
		u.persist(doc, map[string]any{"name": "b"})
		require.Equal(t, 1, u.len())
		assert.Equal(t, OpUpdate, u.ops[0].kind)
	})

	t.Run("remove of unqueued transient document queues nothing", func(t *testing.T) {
		var u unitOfWork
		doc := document.New(meta, nil)
		u.remove(doc)
		assert.Zero(t, u.len())
		assert.True(t, u.cancelled(doc))
	})

	t.Run("remove after insert remembers the cancellation", func(t *testing.T) {
		var u unitOfWork
		doc := document.New(meta, nil)
		u.persist(doc, map[string]any{"name": "a"})
		u.remove(doc)
		assert.Zero(t, u.len())
		assert.True(t, u.cancelled(doc))

		u.persist(doc, map[string]any{"name": "b"})
		assert.False(t, u.cancelled(doc))
		require.Equal(t, 1, u.len())
		assert.Equal(t, OpInsert, u.ops[0].kind)

		u.remove(doc)
		u.clear()
		assert.False(t, u.cancelled(doc))
	})

	t.Run("order is kept", func(t *testing.T) {
		var u unitOfWork
		a, b := document.New(meta, nil), stored()
		u.persist(a, map[string]any{"name": "a"})
		u.remove(b)
		u.persist(a, map[string]any{"name": "c"})
		require.Equal(t, 2, u.len())
		assert.Same(t, a, u.ops[0].doc)
		assert.Same(t, b, u.ops[1].doc)
	})
}

func TestDetachAndClear(t *testing.T) {
	manager, adapter := setupMockManager(t)
	ctx := context.Background()
	adapter.On("Send", mock.Anything, isLoad("12:0")).Return(models.RecordsResult(countryRecord()), nil).Twice()

	doc, err := manager.Find(ctx, "12:0")
	require.NoError(t, err)
	manager.Detach(doc)
	assert.False(t, manager.Contains(doc))
	assert.Equal(t, document.StatusDetached, doc.Status())

	fresh, err := manager.Find(ctx, "12:0")
	require.NoError(t, err)
	assert.NotSame(t, doc, fresh)

	require.NoError(t, manager.Persist(fresh))
	manager.Clear()
	assert.Zero(t, manager.Pending())
	assert.False(t, manager.Contains(fresh))
}
