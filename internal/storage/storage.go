// Package storage persists documents, their attachments and their log trail.
package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"account-service/internal/domain"
)

// Attachment is a stored binary attachment of a document.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"-"`
	Size        int64  `json:"size"`
}

// DocStore is the document storage contract consumed by the save engine.
//
// Put writes the document under optimistic concurrency: a stale revision
// token yields domain.ErrWriteConflict and nothing is written. On success
// the fresh revision token is set on the document and returned.
// PutAttachment and DeleteAttachment advance the owning document's revision
// the same way. Logs returns the log entry documents for a target document,
// ordered by descending timestamp.
type DocStore interface {
	Get(ctx context.Context, id string) (domain.Document, error)
	Put(ctx context.Context, doc domain.Document) (string, error)
	PutAttachment(ctx context.Context, doc domain.Document, content []byte, filename, contentType string) (string, error)
	DeleteAttachment(ctx context.Context, doc domain.Document, filename string) (string, error)
	GetAttachment(ctx context.Context, docID, filename string) (*Attachment, error)
	Logs(ctx context.Context, docID string) ([]domain.Document, error)
	Find(ctx context.Context, doctype, key, value string) ([]domain.Document, error)
	All(ctx context.Context, doctype string) ([]domain.Document, error)
}

// nextRev produces the revision token following current, in the familiar
// "<generation>-<opaque>" form.
func nextRev(current string) string {
	gen := 1
	if i := strings.IndexByte(current, '-'); i > 0 {
		if n, err := strconv.Atoi(current[:i]); err == nil {
			gen = n + 1
		}
	}
	return fmt.Sprintf("%d-%s", gen, domain.NewIUID())
}
