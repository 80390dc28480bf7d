// Package service implements the user account operations on top of the
// document save engine. Every mutation goes through a save context, so
// every change leaves a log entry.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"

	"account-service/internal/audit"
	"account-service/internal/diff"
	"account-service/internal/domain"
	"account-service/internal/saver"
	"account-service/internal/storage"

	log "github.com/sirupsen/logrus"

	"golang.org/x/crypto/bcrypt"
)

var (
	usernameRx = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)
	emailRx    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// UserHiddenPaths are the user fields whose values must never appear
// verbatim in a log entry.
func UserHiddenPaths() []diff.Path {
	return []diff.Path{
		{domain.UserKeyPassword},
		{domain.UserKeyAPIKey},
	}
}

type UserService struct {
	store             storage.DocStore
	writer            *audit.Writer
	minPasswordLength int
}

func NewUserService(store storage.DocStore, writer *audit.Writer, minPasswordLength int) *UserService {
	if minPasswordLength <= 0 {
		minPasswordLength = 6
	}
	return &UserService{
		store:             store,
		writer:            writer,
		minPasswordLength: minPasswordLength,
	}
}

func (s *UserService) config(actor domain.Actor) saver.Config {
	return saver.Config{
		Doctype: domain.DoctypeUser,
		Store:   s.store,
		Writer:  s.writer,
		Engine:  diff.New(UserHiddenPaths()...),
		Hooks:   userHooks{},
		Actor:   actor,
	}
}

func (s *UserService) Create(ctx context.Context, actor domain.Actor, req domain.CreateUserRequest) (domain.Document, error) {
	if req.Username == "" {
		return nil, &domain.ValidationError{Field: domain.UserKeyUsername, Reason: "required"}
	}
	existing, err := s.GetByUsername(ctx, req.Username)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, &domain.ValidationError{Field: domain.UserKeyUsername, Reason: "already in use"}
	}
	hash, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	sv := saver.New(s.config(actor))
	err = saver.Save(ctx, sv, func() error {
		sv.Set(domain.UserKeyUsername, req.Username)
		sv.Set(domain.UserKeyEmail, req.Email)
		sv.Set(domain.UserKeyPassword, hash)
		if req.Role != "" {
			sv.Set(domain.UserKeyRole, req.Role)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"username": req.Username,
		"user_id":  sv.Doc().ID(),
	}).Info("User account created")
	return sv.Doc(), nil
}

func (s *UserService) GetByID(ctx context.Context, id string) (domain.Document, error) {
	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Doctype() != domain.DoctypeUser {
		return nil, domain.ErrNotFound
	}
	return doc, nil
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (domain.Document, error) {
	docs, err := s.store.Find(ctx, domain.DoctypeUser, domain.UserKeyUsername, username)
	if err != nil {
		return nil, fmt.Errorf("failed to find user %q: %w", username, err)
	}
	if len(docs) == 0 {
		return nil, domain.ErrNotFound
	}
	if len(docs) > 1 {
		log.WithField("username", username).Warn("Multiple user documents share one username")
	}
	return docs[0], nil
}

func (s *UserService) Update(ctx context.Context, actor domain.Actor, username string, req domain.UpdateUserRequest) (domain.Document, error) {
	doc, err := s.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	sv := saver.Edit(s.config(actor), doc)
	err = saver.Save(ctx, sv, func() error {
		if req.Email != nil {
			sv.Set(domain.UserKeyEmail, *req.Email)
		}
		if req.Role != nil {
			sv.Set(domain.UserKeyRole, *req.Role)
		}
		if req.Status != nil {
			sv.Set(domain.UserKeyStatus, *req.Status)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sv.Doc(), nil
}

// SetStatus flips the account status, e.g. to enable a pending account.
func (s *UserService) SetStatus(ctx context.Context, actor domain.Actor, username, status string) (domain.Document, error) {
	return s.Update(ctx, actor, username, domain.UpdateUserRequest{Status: &status})
}

func (s *UserService) SetPassword(ctx context.Context, actor domain.Actor, username, password string) error {
	hash, err := s.hashPassword(password)
	if err != nil {
		return err
	}
	doc, err := s.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	sv := saver.Edit(s.config(actor), doc)
	return saver.Save(ctx, sv, func() error {
		sv.Set(domain.UserKeyPassword, hash)
		return nil
	})
}

// CheckPassword verifies a candidate password against the stored hash.
func (s *UserService) CheckPassword(doc domain.Document, password string) bool {
	hash := doc.String(domain.UserKeyPassword)
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ResetAPIKey assigns a fresh API key and returns it. The key shows up
// redacted in the log trail.
func (s *UserService) ResetAPIKey(ctx context.Context, actor domain.Actor, username string) (string, error) {
	doc, err := s.GetByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	key := domain.NewIUID()
	sv := saver.Edit(s.config(actor), doc)
	err = saver.Save(ctx, sv, func() error {
		sv.Set(domain.UserKeyAPIKey, key)
		return nil
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// AddAttachment stores a file on the user document, after the document
// save itself has committed.
func (s *UserService) AddAttachment(ctx context.Context, actor domain.Actor, username, filename string, content []byte, contentType string) (domain.Document, error) {
	doc, err := s.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	sv := saver.EditAttachments(s.config(actor), doc)
	err = saver.Save(ctx, sv, func() error {
		sv.AddAttachment(filename, content, contentType)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sv.Doc(), nil
}

func (s *UserService) DeleteAttachment(ctx context.Context, actor domain.Actor, username, filename string) (domain.Document, error) {
	doc, err := s.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	sv := saver.EditAttachments(s.config(actor), doc)
	err = saver.Save(ctx, sv, func() error {
		sv.DeleteAttachment(filename)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sv.Doc(), nil
}

func (s *UserService) GetAttachment(ctx context.Context, username, filename string) (*storage.Attachment, error) {
	doc, err := s.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.store.GetAttachment(ctx, doc.ID(), filename)
}

// Logs returns the account's log trail, newest first, stripped of storage
// bookkeeping fields.
func (s *UserService) Logs(ctx context.Context, username string) ([]domain.Document, error) {
	doc, err := s.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.Logs(ctx, doc.ID())
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		delete(entry, domain.KeyID)
		delete(entry, domain.KeyRev)
		delete(entry, domain.KeyDoctype)
		delete(entry, domain.LogKeyDocID)
	}
	return entries, nil
}

func (s *UserService) List(ctx context.Context) ([]domain.Document, error) {
	docs, err := s.store.All(ctx, domain.DoctypeUser)
	if err != nil {
		return nil, err
	}
	for i, doc := range docs {
		docs[i] = ScrubUser(doc)
	}
	return docs, nil
}

func (s *UserService) hashPassword(password string) (string, error) {
	if len(password) < s.minPasswordLength {
		return "", &domain.ValidationError{
			Field:  domain.UserKeyPassword,
			Reason: fmt.Sprintf("shorter than %d characters", s.minPasswordLength),
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// ScrubUser returns a copy of the user document safe for external
// representation: secrets removed.
func ScrubUser(doc domain.Document) domain.Document {
	out := doc.DeepCopy()
	delete(out, domain.UserKeyPassword)
	delete(out, domain.UserKeyAPIKey)
	return out
}

// userHooks carry the user doctype rules into the save context.
type userHooks struct {
	saver.BaseHooks
}

func (userHooks) Initialize(doc domain.Document) {
	doc[domain.UserKeyRole] = domain.RoleUser
	doc[domain.UserKeyStatus] = domain.StatusPending
	doc[domain.UserKeyAPIKey] = domain.NewIUID()
}

func (userHooks) Finish(doc domain.Document) error {
	username := doc.String(domain.UserKeyUsername)
	if username == "" {
		return &domain.ValidationError{Field: domain.UserKeyUsername, Reason: "required"}
	}
	if !usernameRx.MatchString(username) {
		return &domain.ValidationError{Field: domain.UserKeyUsername, Reason: "invalid format"}
	}
	email := doc.String(domain.UserKeyEmail)
	if email == "" {
		return &domain.ValidationError{Field: domain.UserKeyEmail, Reason: "required"}
	}
	if !emailRx.MatchString(email) {
		return &domain.ValidationError{Field: domain.UserKeyEmail, Reason: "invalid format"}
	}
	if doc.String(domain.UserKeyPassword) == "" {
		return &domain.ValidationError{Field: domain.UserKeyPassword, Reason: "required"}
	}
	if !slices.Contains(domain.ValidRoles(), doc.String(domain.UserKeyRole)) {
		return &domain.ValidationError{Field: domain.UserKeyRole, Reason: "unknown role"}
	}
	if !slices.Contains(domain.ValidStatuses(), doc.String(domain.UserKeyStatus)) {
		return &domain.ValidationError{Field: domain.UserKeyStatus, Reason: "unknown status"}
	}
	return nil
}
