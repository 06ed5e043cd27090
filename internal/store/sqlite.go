package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

// SQLiteStore is a durable ResponseStore and CompletionStore backed by a
// single SQLite connection. A single connection is intentional: SQLite
// serializes writers regardless, and the gateway's own mutex-free call
// pattern relies on database/sql's connection pool never handing out a
// second writer mid-transaction.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) the database at path and
// ensures its schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("store: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: failed to ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: failed to ensure schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) ensureSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS responses (
		id TEXT PRIMARY KEY,
		response_json TEXT NOT NULL,
		input_items_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS completions (
		id TEXT PRIMARY KEY,
		completion_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Put merges inputItems with any previously stored input items for the same
// ID and replaces the stored Response with resp, in a single transaction.
func (s *SQLiteStore) Put(ctx context.Context, resp *models.Response, inputItems []models.InputItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	merged := inputItems
	var existingJSON string
	err = tx.QueryRowContext(ctx, `SELECT input_items_json FROM responses WHERE id = ?`, resp.ID).Scan(&existingJSON)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("store: read existing input items: %w", err)
	default:
		var existing []models.InputItem
		if err := json.Unmarshal([]byte(existingJSON), &existing); err != nil {
			return fmt.Errorf("store: decode existing input items: %w", err)
		}
		merged = models.MergeInputItems(existing, inputItems)
	}

	respJSON, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("store: encode response: %w", err)
	}
	itemsJSON, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("store: encode input items: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO responses (id, response_json, input_items_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET response_json = excluded.response_json,
			input_items_json = excluded.input_items_json, updated_at = excluded.updated_at
	`, resp.ID, string(respJSON), string(itemsJSON), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store: upsert response: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Response, []models.InputItem, error) {
	var respJSON, itemsJSON string
	err := s.db.QueryRowContext(ctx, `SELECT response_json, input_items_json FROM responses WHERE id = ?`, id).
		Scan(&respJSON, &itemsJSON)
	if err == sql.ErrNoRows {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("store: query response: %w", err)
	}

	var resp models.Response
	if err := json.Unmarshal([]byte(respJSON), &resp); err != nil {
		return nil, nil, fmt.Errorf("store: decode response: %w", err)
	}
	var items []models.InputItem
	if err := json.Unmarshal([]byte(itemsJSON), &items); err != nil {
		return nil, nil, fmt.Errorf("store: decode input items: %w", err)
	}
	return &resp, items, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM responses WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) PutCompletion(ctx context.Context, c *models.ChatCompletion) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("store: encode completion: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO completions (id, completion_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET completion_json = excluded.completion_json, updated_at = excluded.updated_at
	`, c.ID, string(data), time.Now().Unix())
	return err
}

func (s *SQLiteStore) GetCompletion(ctx context.Context, id string) (*models.ChatCompletion, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT completion_json FROM completions WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: query completion: %w", err)
	}
	var c models.ChatCompletion
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil, fmt.Errorf("store: decode completion: %w", err)
	}
	return &c, nil
}

func (s *SQLiteStore) DeleteCompletion(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM completions WHERE id = ?`, id)
	return err
}

// CompletionStoreAdapter exposes SQLiteStore's completion methods as a
// standalone CompletionStore, since SQLiteStore itself satisfies
// ResponseStore directly but names its completion methods distinctly to
// avoid a naming collision on the shared *sql.DB.
type CompletionStoreAdapter struct{ *SQLiteStore }

func (a CompletionStoreAdapter) Put(ctx context.Context, c *models.ChatCompletion) error {
	return a.SQLiteStore.PutCompletion(ctx, c)
}
func (a CompletionStoreAdapter) Get(ctx context.Context, id string) (*models.ChatCompletion, error) {
	return a.SQLiteStore.GetCompletion(ctx, id)
}
func (a CompletionStoreAdapter) Delete(ctx context.Context, id string) error {
	return a.SQLiteStore.DeleteCompletion(ctx, id)
}
