package storage

import (
	"context"
	"sort"
	"sync"

	"account-service/internal/domain"
)

// MemoryStore is an in-memory DocStore with the same optimistic-concurrency
// semantics as the Postgres one. Used by tests and as a throwaway backend.
type MemoryStore struct {
	mu          sync.Mutex
	docs        map[string]domain.Document
	attachments map[string]map[string]Attachment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:        make(map[string]domain.Document),
		attachments: make(map[string]map[string]Attachment),
	}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return doc.DeepCopy(), nil
}

func (s *MemoryStore) Put(ctx context.Context, doc domain.Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := doc.ID()
	if id == "" {
		return "", domain.ErrNotFound
	}
	oldRev := doc.Rev()
	stored, exists := s.docs[id]
	if oldRev == "" && exists {
		return "", domain.ErrWriteConflict
	}
	if oldRev != "" && (!exists || stored.Rev() != oldRev) {
		return "", domain.ErrWriteConflict
	}

	rev := nextRev(oldRev)
	doc.SetRev(rev)
	s.docs[id] = doc.DeepCopy()
	return rev, nil
}

func (s *MemoryStore) PutAttachment(ctx context.Context, doc domain.Document, content []byte, filename, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rev, err := s.advance(doc)
	if err != nil {
		return "", err
	}
	byDoc := s.attachments[doc.ID()]
	if byDoc == nil {
		byDoc = make(map[string]Attachment)
		s.attachments[doc.ID()] = byDoc
	}
	stored := make([]byte, len(content))
	copy(stored, content)
	byDoc[filename] = Attachment{
		Filename:    filename,
		ContentType: contentType,
		Content:     stored,
		Size:        int64(len(content)),
	}
	return rev, nil
}

func (s *MemoryStore) DeleteAttachment(ctx context.Context, doc domain.Document, filename string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byDoc := s.attachments[doc.ID()]
	if _, ok := byDoc[filename]; !ok {
		return "", domain.ErrAttachmentNotFound
	}
	rev, err := s.advance(doc)
	if err != nil {
		return "", err
	}
	delete(byDoc, filename)
	return rev, nil
}

// advance bumps the stored document's revision; caller holds the lock.
func (s *MemoryStore) advance(doc domain.Document) (string, error) {
	stored, exists := s.docs[doc.ID()]
	if !exists {
		return "", domain.ErrNotFound
	}
	if stored.Rev() != doc.Rev() {
		return "", domain.ErrWriteConflict
	}
	rev := nextRev(doc.Rev())
	stored.SetRev(rev)
	doc.SetRev(rev)
	return rev, nil
}

func (s *MemoryStore) GetAttachment(ctx context.Context, docID, filename string) (*Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	att, ok := s.attachments[docID][filename]
	if !ok {
		return nil, domain.ErrAttachmentNotFound
	}
	out := att
	out.Content = make([]byte, len(att.Content))
	copy(out.Content, att.Content)
	return &out, nil
}

func (s *MemoryStore) Find(ctx context.Context, doctype, key, value string) ([]domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var docs []domain.Document
	for _, doc := range s.docs {
		if doc.Doctype() == doctype && doc.String(key) == value {
			docs = append(docs, doc.DeepCopy())
		}
	}
	return docs, nil
}

func (s *MemoryStore) All(ctx context.Context, doctype string) ([]domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var docs []domain.Document
	for _, doc := range s.docs {
		if doc.Doctype() == doctype {
			docs = append(docs, doc.DeepCopy())
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID() < docs[j].ID() })
	return docs, nil
}

func (s *MemoryStore) Logs(ctx context.Context, docID string) ([]domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []domain.Document
	for _, doc := range s.docs {
		if doc.Doctype() != domain.DoctypeLog {
			continue
		}
		if doc.String(domain.LogKeyDocID) != docID {
			continue
		}
		entries = append(entries, doc.DeepCopy())
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].String(domain.LogKeyTimestamp) > entries[j].String(domain.LogKeyTimestamp)
	})
	return entries, nil
}
