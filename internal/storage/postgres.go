package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"account-service/internal/domain"

	log "github.com/sirupsen/logrus"

	"github.com/lib/pq"
)

const opTimeout = 5 * time.Second

// PostgresStore keeps documents as JSONB rows and attachments as bytea rows.
// Schema lives in db/migrations.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, id string) (domain.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var rev string
	var body []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT rev, body FROM documents WHERE id = $1`, id).Scan(&rev, &body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		log.WithError(err).WithField("doc_id", id).Error("Failed to get document")
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	var doc domain.Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	doc[domain.KeyID] = id
	doc.SetRev(rev)
	return doc, nil
}

func (s *PostgresStore) Put(ctx context.Context, doc domain.Document) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	id := doc.ID()
	if id == "" {
		return "", fmt.Errorf("document has no id")
	}
	oldRev := doc.Rev()
	rev := nextRev(oldRev)
	doc.SetRev(rev)
	body, err := json.Marshal(doc)
	if err != nil {
		doc.SetRev(oldRev)
		return "", fmt.Errorf("failed to encode document %s: %w", id, err)
	}

	if oldRev == "" {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO documents (id, rev, doctype, body) VALUES ($1, $2, $3, $4)`,
			id, rev, doc.Doctype(), body)
		if err != nil {
			doc.SetRev(oldRev)
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
				return "", domain.ErrWriteConflict
			}
			log.WithError(err).WithField("doc_id", id).Error("Failed to insert document")
			return "", fmt.Errorf("failed to insert document: %w", err)
		}
		return rev, nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET rev = $3, doctype = $4, body = $5 WHERE id = $1 AND rev = $2`,
		id, oldRev, rev, doc.Doctype(), body)
	if err != nil {
		doc.SetRev(oldRev)
		log.WithError(err).WithField("doc_id", id).Error("Failed to update document")
		return "", fmt.Errorf("failed to update document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		doc.SetRev(oldRev)
		return "", fmt.Errorf("failed to update document: %w", err)
	}
	if n == 0 {
		doc.SetRev(oldRev)
		return "", domain.ErrWriteConflict
	}
	return rev, nil
}

func (s *PostgresStore) PutAttachment(ctx context.Context, doc domain.Document, content []byte, filename, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	id := doc.ID()
	oldRev := doc.Rev()
	rev := nextRev(oldRev)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin attachment write: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO attachments (doc_id, filename, content, content_type, length)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (doc_id, filename)
		 DO UPDATE SET content = EXCLUDED.content, content_type = EXCLUDED.content_type, length = EXCLUDED.length`,
		id, filename, content, contentType, len(content))
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"doc_id": id, "filename": filename}).Error("Failed to write attachment")
		return "", fmt.Errorf("failed to write attachment: %w", err)
	}

	if err := s.bumpRev(ctx, tx, id, oldRev, rev); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit attachment write: %w", err)
	}
	doc.SetRev(rev)
	return rev, nil
}

func (s *PostgresStore) DeleteAttachment(ctx context.Context, doc domain.Document, filename string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	id := doc.ID()
	oldRev := doc.Rev()
	rev := nextRev(oldRev)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin attachment delete: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM attachments WHERE doc_id = $1 AND filename = $2`, id, filename)
	if err != nil {
		return "", fmt.Errorf("failed to delete attachment: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return "", fmt.Errorf("failed to delete attachment: %w", err)
	} else if n == 0 {
		return "", domain.ErrAttachmentNotFound
	}

	if err := s.bumpRev(ctx, tx, id, oldRev, rev); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit attachment delete: %w", err)
	}
	doc.SetRev(rev)
	return rev, nil
}

// bumpRev advances the document revision inside the attachment transaction,
// keeping the attachment write and the rev change atomic.
func (s *PostgresStore) bumpRev(ctx context.Context, tx *sql.Tx, id, oldRev, rev string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE documents SET rev = $3 WHERE id = $1 AND rev = $2`, id, oldRev, rev)
	if err != nil {
		return fmt.Errorf("failed to advance document revision: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to advance document revision: %w", err)
	}
	if n == 0 {
		return domain.ErrWriteConflict
	}
	return nil
}

func (s *PostgresStore) GetAttachment(ctx context.Context, docID, filename string) (*Attachment, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	att := Attachment{Filename: filename}
	err := s.db.QueryRowContext(ctx,
		`SELECT content, content_type, length FROM attachments WHERE doc_id = $1 AND filename = $2`,
		docID, filename).Scan(&att.Content, &att.ContentType, &att.Size)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAttachmentNotFound
		}
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return &att, nil
}

func (s *PostgresStore) Find(ctx context.Context, doctype, key, value string) ([]domain.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, rev, body FROM documents WHERE doctype = $1 AND body->>$2 = $3`,
		doctype, key, value)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func (s *PostgresStore) All(ctx context.Context, doctype string) ([]domain.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, rev, body FROM documents WHERE doctype = $1 ORDER BY id`, doctype)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func scanDocuments(rows *sql.Rows) ([]domain.Document, error) {
	var docs []domain.Document
	for rows.Next() {
		var id, rev string
		var body []byte
		if err := rows.Scan(&id, &rev, &body); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		var doc domain.Document
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
		}
		doc[domain.KeyID] = id
		doc.SetRev(rev)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}
	return docs, nil
}

func (s *PostgresStore) Logs(ctx context.Context, docID string) ([]domain.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, rev, body FROM documents
		 WHERE doctype = $1 AND body->>'docid' = $2
		 ORDER BY body->>'timestamp' DESC`,
		domain.DoctypeLog, docID)
	if err != nil {
		log.WithError(err).WithField("doc_id", docID).Error("Failed to query log entries")
		return nil, fmt.Errorf("failed to query log entries: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}
