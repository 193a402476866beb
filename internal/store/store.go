// Package store is a small document store on top of Postgres. Records live as
// JSONB rows keyed by (collection, id), which keeps the persisted order and
// menu shapes identical to what the boards and the customer app exchange.
package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	CollectionMenuItems = "menuItems"
	CollectionOrders    = "orders"
)

var (
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned by UpdateIf when the guarded field no longer
	// holds the expected value.
	ErrConflict = errors.New("document changed concurrently")
)

type Document struct {
	ID   string
	Data json.RawMessage
}

// Patch is one shallow merge against a single document. Fields present in
// Fields overwrite the stored top-level keys; everything else is untouched.
// When IfField is set the patch applies only while that top-level field still
// equals IfEquals (absent fields compare as "").
type Patch struct {
	Collection string
	ID         string
	Fields     map[string]any
	IfField    string
	IfEquals   string
}

type Client struct {
	DB *pgxpool.Pool
}

func (c *Client) Create(ctx context.Context, collection string, doc any) (string, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = c.DB.Exec(ctx, `
		INSERT INTO documents(collection, id, doc)
		VALUES ($1, $2, $3)
	`, collection, id, b)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (c *Client) Get(ctx context.Context, collection, id string) (Document, error) {
	var d Document
	d.ID = id
	err := c.DB.QueryRow(ctx, `
		SELECT doc FROM documents WHERE collection=$1 AND id=$2
	`, collection, id).Scan(&d.Data)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	return d, nil
}

func (c *Client) GetAll(ctx context.Context, collection string) ([]Document, error) {
	rows, err := c.DB.Query(ctx, `
		SELECT id, doc FROM documents WHERE collection=$1
	`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Data); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (c *Client) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	b, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	ct, err := c.DB.Exec(ctx, `
		UPDATE documents SET doc = doc || $3 WHERE collection=$1 AND id=$2
	`, collection, id, b)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateIf applies fields only while the stored top-level field still equals
// expect. A stale operator action therefore cannot clobber a transition another
// operator already made.
func (c *Client) UpdateIf(ctx context.Context, collection, id, field, expect string, fields map[string]any) error {
	b, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	ct, err := c.DB.Exec(ctx, `
		UPDATE documents SET doc = doc || $5
		WHERE collection=$1 AND id=$2 AND COALESCE(doc->>$3, '') = $4
	`, collection, id, field, expect, b)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		// Distinguish a vanished document from a lost race.
		if _, err := c.Get(ctx, collection, id); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

// ApplyAll runs every patch inside one transaction. A missing document or a
// failed guard rolls the whole batch back.
func (c *Client) ApplyAll(ctx context.Context, patches []Patch) error {
	tx, err := c.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, p := range patches {
		b, err := json.Marshal(p.Fields)
		if err != nil {
			return err
		}
		var ct pgconn.CommandTag
		if p.IfField != "" {
			ct, err = tx.Exec(ctx, `
				UPDATE documents SET doc = doc || $5
				WHERE collection=$1 AND id=$2 AND COALESCE(doc->>$3, '') = $4
			`, p.Collection, p.ID, p.IfField, p.IfEquals, b)
		} else {
			ct, err = tx.Exec(ctx, `
				UPDATE documents SET doc = doc || $3 WHERE collection=$1 AND id=$2
			`, p.Collection, p.ID, b)
		}
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `
				SELECT EXISTS(SELECT 1 FROM documents WHERE collection=$1 AND id=$2)
			`, p.Collection, p.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return ErrNotFound
			}
			return ErrConflict
		}
	}
	return tx.Commit(ctx)
}
