package saver_test

import (
	"bytes"
	"context"
	"testing"

	"account-service/internal/domain"
	"account-service/internal/saver"
	"account-service/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttachmentsRealizedAfterCommit(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	rec := &recordingStore{DocStore: store}

	content := bytes.Repeat([]byte{0x42}, 2048)
	sv := saver.NewAttachments(testConfig(rec))
	sv.Set("email", "a@x.com")
	sv.AddAttachment("photo.png", content, "image/png")
	require.NoError(t, sv.Commit(ctx))

	// document, then log, then attachment realization
	require.Equal(t, []string{"put:item", "put:log", "put_attachment:photo.png"}, rec.ops)

	att, err := store.GetAttachment(ctx, sv.Doc().ID(), "photo.png")
	require.NoError(t, err)
	assert.Equal(t, content, att.Content)
	assert.Equal(t, "image/png", att.ContentType)

	logs, err := store.Logs(ctx, sv.Doc().ID())
	require.NoError(t, err)
	require.Len(t, logs, 1)
	added, ok := logs[0][domain.LogKeyAttachmentsAdded].([]map[string]any)
	require.True(t, ok)
	require.Len(t, added, 1)
	assert.Equal(t, "photo.png", added[0]["filename"])
	assert.Equal(t, int64(2048), added[0]["size"])
	assert.NotContains(t, added[0], "content", "log metadata must never carry raw bytes")
}

func TestAttachmentDeletesBeforeAdds(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	sv := saver.New(testConfig(store))
	sv.Set("email", "a@x.com")
	require.NoError(t, sv.Commit(ctx))
	id := sv.Doc().ID()

	doc, err := store.Get(ctx, id)
	require.NoError(t, err)
	_, err = store.PutAttachment(ctx, doc, []byte("old"), "old.txt", "text/plain")
	require.NoError(t, err)

	doc, err = store.Get(ctx, id)
	require.NoError(t, err)
	rec := &recordingStore{DocStore: store}
	cfg := testConfig(rec)
	edit := saver.EditAttachments(cfg, doc)
	edit.AddAttachment("new.txt", []byte("new"), "text/plain")
	edit.DeleteAttachment("old.txt")
	require.NoError(t, edit.Commit(ctx))

	require.Equal(t, []string{"put:item", "put:log", "delete_attachment:old.txt", "put_attachment:new.txt"}, rec.ops)

	// every realized operation advanced the held revision token
	stored, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, stored.Rev(), edit.Doc().Rev())

	_, err = store.GetAttachment(ctx, id, "old.txt")
	assert.ErrorIs(t, err, domain.ErrAttachmentNotFound)
}

func TestDeleteThenReAddSameFilename(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	rec := &recordingStore{DocStore: store}

	sv := saver.NewAttachments(testConfig(rec))
	sv.Set("email", "a@x.com")
	sv.DeleteAttachment("photo.png")
	sv.AddAttachment("photo.png", []byte("img"), "image/png")
	require.NoError(t, sv.Commit(ctx))

	logs, err := store.Logs(ctx, sv.Doc().ID())
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0], domain.LogKeyAttachmentsAdded)
	assert.NotContains(t, logs[0], domain.LogKeyAttachmentsDeleted)

	_, err = store.GetAttachment(ctx, sv.Doc().ID(), "photo.png")
	assert.NoError(t, err)
}

func TestAddThenDeleteSameFilename(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	sv := saver.New(testConfig(store))
	sv.Set("email", "a@x.com")
	require.NoError(t, sv.Commit(ctx))
	id := sv.Doc().ID()

	doc, err := store.Get(ctx, id)
	require.NoError(t, err)
	_, err = store.PutAttachment(ctx, doc, []byte("img"), "photo.png", "image/png")
	require.NoError(t, err)

	doc, err = store.Get(ctx, id)
	require.NoError(t, err)
	edit := saver.EditAttachments(testConfig(store), doc)
	edit.AddAttachment("photo.png", []byte("img2"), "image/png")
	edit.DeleteAttachment("photo.png")
	require.NoError(t, edit.Commit(ctx))

	logs, err := store.Logs(ctx, id)
	require.NoError(t, err)
	assert.NotContains(t, logs[0], domain.LogKeyAttachmentsAdded)
	assert.Contains(t, logs[0], domain.LogKeyAttachmentsDeleted)

	_, err = store.GetAttachment(ctx, id, "photo.png")
	assert.ErrorIs(t, err, domain.ErrAttachmentNotFound)
}

func TestLastAddPerFilenameWins(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	sv := saver.NewAttachments(testConfig(store))
	sv.Set("email", "a@x.com")
	sv.AddAttachment("notes.txt", []byte("first"), "text/plain")
	sv.AddAttachment("notes.txt", []byte("second version"), "text/plain")
	require.NoError(t, sv.Commit(ctx))

	att, err := store.GetAttachment(ctx, sv.Doc().ID(), "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("second version"), att.Content)

	logs, err := store.Logs(ctx, sv.Doc().ID())
	require.NoError(t, err)
	added := logs[0][domain.LogKeyAttachmentsAdded].([]map[string]any)
	require.Len(t, added, 1)
	assert.Equal(t, int64(len("second version")), added[0]["size"])
}

func TestAttachmentFailureAfterCommit(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	rec := &recordingStore{DocStore: store, failPutAttachment: true}

	sv := saver.NewAttachments(testConfig(rec))
	sv.Set("email", "a@x.com")
	sv.AddAttachment("photo.png", []byte("img"), "image/png")
	err := sv.Commit(ctx)

	var attErr *domain.AttachmentError
	require.ErrorAs(t, err, &attErr)
	assert.Equal(t, "photo.png", attErr.Filename)

	// the document and its log entry are committed regardless
	_, getErr := store.Get(ctx, sv.Doc().ID())
	assert.NoError(t, getErr)
	logs, logsErr := store.Logs(ctx, sv.Doc().ID())
	require.NoError(t, logsErr)
	assert.Len(t, logs, 1)
}
