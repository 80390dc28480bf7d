// Package audit turns committed document saves into immutable log entries.
package audit

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"account-service/internal/domain"
	"account-service/internal/storage"

	log "github.com/sirupsen/logrus"
)

// Publisher pushes committed log entries onto a side channel (e.g. Kafka).
type Publisher interface {
	Publish(ctx context.Context, event domain.AuditEvent) error
}

// Writer builds and persists one log entry per committed save. It holds no
// state between calls.
type Writer struct {
	Store     storage.DocStore
	Publisher Publisher // optional
	Service   string
	NewID     func() string
	Now       func() string
}

func NewWriter(store storage.DocStore) *Writer {
	return &Writer{
		Store:   store,
		Service: "account-service",
		NewID:   domain.NewIUID,
		Now:     domain.Now,
	}
}

// Write persists a log entry for the already-committed document. The actor
// metadata is stamped after the modify hook so a hook cannot forge it. A
// store failure here comes back as *domain.LogWriteError carrying the
// committed document's id and revision.
func (w *Writer) Write(ctx context.Context, actor domain.Actor, doc domain.Document, changes domain.DiffRecord, modify func(domain.Document)) (domain.Document, error) {
	entry := domain.Document{
		domain.KeyID:           w.NewID(),
		domain.KeyDoctype:      domain.DoctypeLog,
		domain.LogKeyDocID:     doc.ID(),
		domain.LogKeyDiff:      changes,
		domain.LogKeyTimestamp: w.Now(),
	}
	if modify != nil {
		modify(entry)
	}
	if actor.Anonymous() {
		entry[domain.LogKeyUsername] = nil
	} else {
		entry[domain.LogKeyUsername] = actor.Username
	}
	if actor.RemoteAddr != "" {
		entry[domain.LogKeyRemoteAddr] = actor.RemoteAddr
		entry[domain.LogKeyUserAgent] = actor.UserAgent
	} else {
		// Outside a request context; record the process instead.
		entry[domain.LogKeyRemoteAddr] = nil
		entry[domain.LogKeyUserAgent] = filepath.Base(os.Args[0])
	}

	if _, err := w.Store.Put(ctx, entry); err != nil {
		return nil, &domain.LogWriteError{DocID: doc.ID(), Rev: doc.Rev(), Err: err}
	}
	w.publish(ctx, actor, doc, entry)
	return entry, nil
}

// publish forwards the entry to the side channel, best effort. The log
// entry in the store is the source of truth; a publish failure is only
// logged.
func (w *Writer) publish(ctx context.Context, actor domain.Actor, doc, entry domain.Document) {
	if w.Publisher == nil {
		return
	}
	eventType := doc.Doctype() + "_updated"
	if strings.HasPrefix(doc.Rev(), "1-") {
		eventType = doc.Doctype() + "_created"
	}
	payload := make(map[string]any, len(entry))
	for k, v := range entry {
		if k == domain.KeyID || k == domain.KeyRev || k == domain.KeyDoctype {
			continue
		}
		payload[k] = v
	}
	event := domain.AuditEvent{
		Service:    w.Service,
		EventType:  eventType,
		EntityID:   doc.ID(),
		Actor:      actor.Username,
		OccurredAt: entry.String(domain.LogKeyTimestamp),
		Payload:    payload,
	}
	if err := w.Publisher.Publish(ctx, event); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"doc_id":     doc.ID(),
			"event_type": eventType,
		}).Warn("Failed to publish audit event")
	}
}
