package saver

import (
	"context"
	"sort"

	"account-service/internal/domain"
	"account-service/internal/storage"
)

// AttachmentSaver is a save context that additionally buffers attachment
// operations. Buffered adds and deletes take effect only after the owning
// document and its log entry have been committed: deletes first, each
// advancing the held revision token, then adds using the latest one.
type AttachmentSaver struct {
	*Saver
	adds    []storage.Attachment
	deletes map[string]struct{}
}

// NewAttachments opens an attachment-aware context for a brand-new document.
func NewAttachments(cfg Config) *AttachmentSaver {
	a := newAttachmentSaver(&cfg)
	a.Saver = New(cfg)
	return a
}

// EditAttachments opens an attachment-aware context for an existing document.
func EditAttachments(cfg Config, doc domain.Document) *AttachmentSaver {
	a := newAttachmentSaver(&cfg)
	a.Saver = Edit(cfg, doc)
	return a
}

func newAttachmentSaver(cfg *Config) *AttachmentSaver {
	cfg.applyDefaults()
	a := &AttachmentSaver{deletes: make(map[string]struct{})}
	cfg.Hooks = &attachmentHooks{inner: cfg.Hooks, saver: a}
	return a
}

// AddAttachment buffers an attachment write. The last add per filename wins
// and cancels any pending delete of the same filename.
func (a *AttachmentSaver) AddAttachment(filename string, content []byte, contentType string) {
	if a.State() != StateOpen {
		return
	}
	delete(a.deletes, filename)
	att := storage.Attachment{
		Filename:    filename,
		ContentType: contentType,
		Content:     content,
		Size:        int64(len(content)),
	}
	for i := range a.adds {
		if a.adds[i].Filename == filename {
			a.adds[i] = att
			return
		}
	}
	a.adds = append(a.adds, att)
}

// DeleteAttachment buffers an attachment removal and cancels any pending
// add of the same filename. Order independent, set semantics.
func (a *AttachmentSaver) DeleteAttachment(filename string) {
	if a.State() != StateOpen {
		return
	}
	for i := range a.adds {
		if a.adds[i].Filename == filename {
			a.adds = append(a.adds[:i], a.adds[i+1:]...)
			break
		}
	}
	a.deletes[filename] = struct{}{}
}

func (a *AttachmentSaver) realize(ctx context.Context) error {
	doc := a.Doc()
	for _, filename := range a.deletedFilenames() {
		if _, err := a.cfg.Store.DeleteAttachment(ctx, doc, filename); err != nil {
			return &domain.AttachmentError{DocID: doc.ID(), Filename: filename, Err: err}
		}
	}
	for _, att := range a.adds {
		if _, err := a.cfg.Store.PutAttachment(ctx, doc, att.Content, att.Filename, att.ContentType); err != nil {
			return &domain.AttachmentError{DocID: doc.ID(), Filename: att.Filename, Err: err}
		}
	}
	return nil
}

// annotate records the attachment operations on the log entry: sizes and
// filenames only, never content.
func (a *AttachmentSaver) annotate(entry domain.Document) {
	if len(a.deletes) > 0 {
		entry[domain.LogKeyAttachmentsDeleted] = a.deletedFilenames()
	}
	if len(a.adds) > 0 {
		added := make([]map[string]any, 0, len(a.adds))
		for _, att := range a.adds {
			added = append(added, map[string]any{
				"filename":     att.Filename,
				"size":         att.Size,
				"content_type": att.ContentType,
			})
		}
		entry[domain.LogKeyAttachmentsAdded] = added
	}
}

func (a *AttachmentSaver) deletedFilenames() []string {
	filenames := make([]string, 0, len(a.deletes))
	for filename := range a.deletes {
		filenames = append(filenames, filename)
	}
	sort.Strings(filenames)
	return filenames
}

// attachmentHooks layers attachment realization and log annotation on top
// of the caller's own hooks.
type attachmentHooks struct {
	inner Hooks
	saver *AttachmentSaver
}

func (h *attachmentHooks) Initialize(doc domain.Document) { h.inner.Initialize(doc) }
func (h *attachmentHooks) Prepare(doc domain.Document)    { h.inner.Prepare(doc) }
func (h *attachmentHooks) Finish(doc domain.Document) error {
	return h.inner.Finish(doc)
}

func (h *attachmentHooks) Wrapup(ctx context.Context, doc domain.Document) error {
	if err := h.inner.Wrapup(ctx, doc); err != nil {
		return err
	}
	return h.saver.realize(ctx)
}

func (h *attachmentHooks) ModifyLogEntry(entry domain.Document) {
	h.inner.ModifyLogEntry(entry)
	h.saver.annotate(entry)
}
