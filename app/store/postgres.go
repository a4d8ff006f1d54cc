package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	_ "github.com/lib/pq"
)

// Postgres keeps documents in a single JSONB-backed table, preserving the
// record shapes of the data model verbatim.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(host, port, user, password, dbname string) (*Postgres, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{db: db}, nil
}

func (p *Postgres) Put(ctx context.Context, collection, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document %s/%s: %w", collection, id, err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, doc, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (collection, id)
		DO UPDATE SET doc = EXCLUDED.doc, updated_at = NOW()
	`, collection, id, data)
	if err != nil {
		return fmt.Errorf("failed to put document %s/%s: %w", collection, id, err)
	}

	return nil
}

func (p *Postgres) Get(ctx context.Context, collection, id string, out any) error {
	var data []byte
	err := p.db.QueryRowContext(ctx, `
		SELECT doc FROM documents WHERE collection = $1 AND id = $2
	`, collection, id).Scan(&data)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get document %s/%s: %w", collection, id, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal document %s/%s: %w", collection, id, err)
	}

	return nil
}

func (p *Postgres) Delete(ctx context.Context, collection, id string) error {
	_, err := p.db.ExecContext(ctx, `
		DELETE FROM documents WHERE collection = $1 AND id = $2
	`, collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete document %s/%s: %w", collection, id, err)
	}
	return nil
}

func (p *Postgres) Query(ctx context.Context, collection, field, value string, out any) error {
	rows, err := p.db.QueryContext(ctx, `
		SELECT doc FROM documents WHERE collection = $1 AND doc->>$2 = $3
	`, collection, field, value)
	if err != nil {
		return fmt.Errorf("failed to query collection %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []json.RawMessage
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, json.RawMessage(data))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate collection %s: %w", collection, err)
	}

	return unmarshalDocs(docs, out)
}

func (p *Postgres) All(ctx context.Context, collection string, out any) error {
	rows, err := p.db.QueryContext(ctx, `
		SELECT doc FROM documents WHERE collection = $1
	`, collection)
	if err != nil {
		return fmt.Errorf("failed to scan collection %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []json.RawMessage
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, json.RawMessage(data))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate collection %s: %w", collection, err)
	}

	return unmarshalDocs(docs, out)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

// unmarshalDocs decodes raw documents into out, which must be a pointer to
// a slice of the caller's record type.
func unmarshalDocs(docs []json.RawMessage, out any) error {
	outVal := reflect.ValueOf(out)
	if outVal.Kind() != reflect.Pointer || outVal.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("query output must be a pointer to a slice, got %T", out)
	}

	sliceVal := outVal.Elem()
	elemType := sliceVal.Type().Elem()

	for _, doc := range docs {
		elem := reflect.New(elemType)
		if err := json.Unmarshal(doc, elem.Interface()); err != nil {
			return fmt.Errorf("failed to unmarshal queried document: %w", err)
		}
		sliceVal = reflect.Append(sliceVal, elem.Elem())
	}

	outVal.Elem().Set(sliceVal)
	return nil
}
