package storage_test

import (
	"context"
	"strings"
	"testing"

	"account-service/internal/domain"
	"account-service/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDoc(doctype string, fields map[string]any) domain.Document {
	doc := domain.Document{
		domain.KeyID:      domain.NewIUID(),
		domain.KeyDoctype: doctype,
	}
	for k, v := range fields {
		doc[k] = v
	}
	return doc
}

func TestPutAssignsGenerationalRevs(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	doc := newDoc("item", map[string]any{"n": 1})
	rev, err := store.Put(ctx, doc)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rev, "1-"))
	assert.Equal(t, rev, doc.Rev())

	doc["n"] = 2
	rev2, err := store.Put(ctx, doc)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rev2, "2-"))
	assert.NotEqual(t, rev, rev2)
}

func TestPutStaleRevConflicts(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	doc := newDoc("item", nil)
	_, err := store.Put(ctx, doc)
	require.NoError(t, err)

	stale, err := store.Get(ctx, doc.ID())
	require.NoError(t, err)

	_, err = store.Put(ctx, doc)
	require.NoError(t, err)

	_, err = store.Put(ctx, stale)
	assert.ErrorIs(t, err, domain.ErrWriteConflict)
}

func TestPutExistingIDWithoutRevConflicts(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	doc := newDoc("item", nil)
	_, err := store.Put(ctx, doc)
	require.NoError(t, err)

	clash := domain.Document{
		domain.KeyID:      doc.ID(),
		domain.KeyDoctype: "item",
	}
	_, err = store.Put(ctx, clash)
	assert.ErrorIs(t, err, domain.ErrWriteConflict)
}

func TestGetIsolation(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	doc := newDoc("item", map[string]any{"nested": map[string]any{"k": "v"}})
	_, err := store.Put(ctx, doc)
	require.NoError(t, err)

	got, err := store.Get(ctx, doc.ID())
	require.NoError(t, err)
	got["nested"].(map[string]any)["k"] = "mutated"

	again, err := store.Get(ctx, doc.ID())
	require.NoError(t, err)
	assert.Equal(t, "v", again["nested"].(map[string]any)["k"])
}

func TestGetMissing(t *testing.T) {
	store := storage.NewMemoryStore()
	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLogsDescendingByTimestamp(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	target := newDoc("item", nil)
	_, err := store.Put(ctx, target)
	require.NoError(t, err)

	stamps := []string{
		"2026-01-01T10:00:00.000Z",
		"2026-01-03T10:00:00.000Z",
		"2026-01-02T10:00:00.000Z",
	}
	for _, ts := range stamps {
		entry := newDoc(domain.DoctypeLog, map[string]any{
			domain.LogKeyDocID:     target.ID(),
			domain.LogKeyTimestamp: ts,
		})
		_, err := store.Put(ctx, entry)
		require.NoError(t, err)
	}
	// a log entry for another document must not leak in
	other := newDoc(domain.DoctypeLog, map[string]any{
		domain.LogKeyDocID:     "other",
		domain.LogKeyTimestamp: "2026-01-04T10:00:00.000Z",
	})
	_, err = store.Put(ctx, other)
	require.NoError(t, err)

	logs, err := store.Logs(ctx, target.ID())
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, "2026-01-03T10:00:00.000Z", logs[0].String(domain.LogKeyTimestamp))
	assert.Equal(t, "2026-01-02T10:00:00.000Z", logs[1].String(domain.LogKeyTimestamp))
	assert.Equal(t, "2026-01-01T10:00:00.000Z", logs[2].String(domain.LogKeyTimestamp))
}

func TestAttachmentLifecycle(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	doc := newDoc("item", nil)
	_, err := store.Put(ctx, doc)
	require.NoError(t, err)
	rev1 := doc.Rev()

	rev2, err := store.PutAttachment(ctx, doc, []byte("hello"), "a.txt", "text/plain")
	require.NoError(t, err)
	assert.NotEqual(t, rev1, rev2)
	assert.Equal(t, rev2, doc.Rev())

	att, err := store.GetAttachment(ctx, doc.ID(), "a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), att.Content)
	assert.Equal(t, int64(5), att.Size)
	assert.Equal(t, "text/plain", att.ContentType)

	rev3, err := store.DeleteAttachment(ctx, doc, "a.txt")
	require.NoError(t, err)
	assert.NotEqual(t, rev2, rev3)

	_, err = store.GetAttachment(ctx, doc.ID(), "a.txt")
	assert.ErrorIs(t, err, domain.ErrAttachmentNotFound)

	_, err = store.DeleteAttachment(ctx, doc, "a.txt")
	assert.ErrorIs(t, err, domain.ErrAttachmentNotFound)
}

func TestAttachmentStaleRevConflicts(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	doc := newDoc("item", nil)
	_, err := store.Put(ctx, doc)
	require.NoError(t, err)

	stale, err := store.Get(ctx, doc.ID())
	require.NoError(t, err)
	_, err = store.Put(ctx, doc)
	require.NoError(t, err)

	_, err = store.PutAttachment(ctx, stale, []byte("x"), "a.txt", "text/plain")
	assert.ErrorIs(t, err, domain.ErrWriteConflict)
}

func TestFindAndAll(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	alice := newDoc(domain.DoctypeUser, map[string]any{domain.UserKeyUsername: "alice"})
	bob := newDoc(domain.DoctypeUser, map[string]any{domain.UserKeyUsername: "bob"})
	for _, doc := range []domain.Document{alice, bob} {
		_, err := store.Put(ctx, doc)
		require.NoError(t, err)
	}

	found, err := store.Find(ctx, domain.DoctypeUser, domain.UserKeyUsername, "alice")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, alice.ID(), found[0].ID())

	all, err := store.All(ctx, domain.DoctypeUser)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	none, err := store.Find(ctx, domain.DoctypeUser, domain.UserKeyUsername, "carol")
	require.NoError(t, err)
	assert.Empty(t, none)
}
