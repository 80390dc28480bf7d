// Package saver implements the document save context: a unit of work
// wrapping a single document mutation. A committed context performs exactly
// one document write followed by exactly one log entry write; an aborted
// context performs none.
package saver

import (
	"context"
	"fmt"

	"account-service/internal/audit"
	"account-service/internal/diff"
	"account-service/internal/domain"
	"account-service/internal/storage"
)

// State of a save context.
type State int

const (
	StateOpen State = iota
	StateFinalizing
	StateCommitted
	StateAborted
)

// Hooks customize a save context for a document type. All methods have
// no-op defaults via BaseHooks.
type Hooks interface {
	// Initialize runs once for a brand-new document, after id and created
	// are stamped.
	Initialize(doc domain.Document)

	// Prepare runs on construction, before any mutation.
	Prepare(doc domain.Document)

	// Finish runs at commit, before any write. Returning an error (usually
	// a *domain.ValidationError) aborts the save with zero writes.
	Finish(doc domain.Document) error

	// Wrapup runs after the document and its log entry are committed, for
	// side effects that must not happen on a failed save.
	Wrapup(ctx context.Context, doc domain.Document) error

	// ModifyLogEntry may add fields to the log entry before it is written.
	ModifyLogEntry(entry domain.Document)
}

// BaseHooks is a no-op Hooks implementation meant for embedding.
type BaseHooks struct{}

func (BaseHooks) Initialize(domain.Document)                    {}
func (BaseHooks) Prepare(domain.Document)                       {}
func (BaseHooks) Finish(domain.Document) error                  { return nil }
func (BaseHooks) Wrapup(context.Context, domain.Document) error { return nil }
func (BaseHooks) ModifyLogEntry(domain.Document)                {}

// Config carries the collaborators of a save context. Store, Writer and
// Doctype are required; everything else has defaults.
type Config struct {
	Doctype string
	Store   storage.DocStore
	Writer  *audit.Writer
	Engine  *diff.Engine
	Hooks   Hooks
	Actor   domain.Actor
	NewID   func() string
	Now     func() string
}

func (cfg *Config) applyDefaults() {
	if cfg.Engine == nil {
		cfg.Engine = diff.New()
	}
	if cfg.Hooks == nil {
		cfg.Hooks = BaseHooks{}
	}
	if cfg.NewID == nil {
		cfg.NewID = domain.NewIUID
	}
	if cfg.Now == nil {
		cfg.Now = domain.Now
	}
}

// Saver is the save context for one document mutation. It owns the live
// working copy and the immutable original snapshot for the duration of the
// scope. Not safe for concurrent use.
type Saver struct {
	cfg      Config
	state    State
	original domain.Document
	doc      domain.Document
}

// New opens a save context for a brand-new document: fresh id, created
// stamped, Initialize and Prepare hooks run. The diff snapshot is empty.
func New(cfg Config) *Saver {
	cfg.applyDefaults()
	s := &Saver{
		cfg:      cfg,
		original: domain.Document{},
		doc: domain.Document{
			domain.KeyID:      cfg.NewID(),
			domain.KeyCreated: cfg.Now(),
		},
	}
	cfg.Hooks.Initialize(s.doc)
	cfg.Hooks.Prepare(s.doc)
	return s
}

// Edit opens a save context for an existing document. The snapshot for
// diffing is a deep copy taken before any mutation.
func Edit(cfg Config, doc domain.Document) *Saver {
	cfg.applyDefaults()
	s := &Saver{
		cfg:      cfg,
		original: doc.DeepCopy(),
		doc:      doc,
	}
	cfg.Hooks.Prepare(s.doc)
	return s
}

// Doc returns the live working copy.
func (s *Saver) Doc() domain.Document {
	return s.doc
}

// Original returns the snapshot taken at construction.
func (s *Saver) Original() domain.Document {
	return s.original
}

func (s *Saver) State() State {
	return s.state
}

// Get reads a field of the working copy.
func (s *Saver) Get(key string) any {
	return s.doc[key]
}

// Set writes a field of the working copy. Ignored once the context has
// left the open state.
func (s *Saver) Set(key string, value any) {
	if s.state != StateOpen {
		return
	}
	s.doc[key] = value
}

// Abort closes the context without writing anything.
func (s *Saver) Abort() {
	if s.state == StateOpen {
		s.state = StateAborted
	}
}

// Commit finalizes and persists the document, then writes its log entry,
// then runs the Wrapup hook. Before the document write any error leaves
// the store untouched. After it, a failed log write returns a
// *domain.LogWriteError and a failed Wrapup returns the hook's error; in
// both cases the document commit stands and the state is committed.
func (s *Saver) Commit(ctx context.Context) error {
	if s.state != StateOpen {
		return fmt.Errorf("save context is not open (state %d)", s.state)
	}
	s.state = StateFinalizing

	if err := s.cfg.Hooks.Finish(s.doc); err != nil {
		s.state = StateAborted
		return err
	}
	s.doc[domain.KeyDoctype] = s.cfg.Doctype
	if s.doc.IsNew() {
		// First save: created and modified must be identical.
		s.doc[domain.KeyModified] = s.doc[domain.KeyCreated]
	} else {
		s.doc[domain.KeyModified] = s.cfg.Now()
	}

	if _, err := s.cfg.Store.Put(ctx, s.doc); err != nil {
		s.state = StateAborted
		return err
	}
	s.state = StateCommitted

	changes := s.cfg.Engine.Diff(s.original, s.doc)
	if _, err := s.cfg.Writer.Write(ctx, s.cfg.Actor, s.doc, changes, s.cfg.Hooks.ModifyLogEntry); err != nil {
		return err
	}
	return s.cfg.Hooks.Wrapup(ctx, s.doc)
}

// Context is the commit/abort surface shared by Saver and AttachmentSaver.
type Context interface {
	Commit(ctx context.Context) error
	Abort()
}

// Save runs mutate inside the context: an error aborts with zero writes,
// otherwise the context commits. The Go rendition of a scoped save block.
func Save(ctx context.Context, sc Context, mutate func() error) error {
	if mutate != nil {
		if err := mutate(); err != nil {
			sc.Abort()
			return err
		}
	}
	return sc.Commit(ctx)
}
