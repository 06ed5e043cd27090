package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

func TestSQLiteStore_PutGetDeleteResponse(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "gateway.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	resp := &models.Response{ID: "resp_1", Model: "gpt-4o-mini", Status: models.ResponseStatusCompleted}
	if err := s.Put(ctx, resp, []models.InputItem{models.NewUserText("hi")}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, items, err := s.Get(ctx, "resp_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Model != "gpt-4o-mini" || len(items) != 1 {
		t.Errorf("Get = %+v, %+v", got, items)
	}

	if err := s.Delete(ctx, "resp_1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, err := s.Get(ctx, "resp_1"); !errors.Is(err, ErrNotFound) {
		t.Error("expected ErrNotFound after delete")
	}
}

func TestSQLiteStore_PutMergesInputItemsAcrossTurns(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "gateway.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	resp := &models.Response{ID: "resp_1"}
	s.Put(ctx, resp, []models.InputItem{models.NewUserText("a")})
	s.Put(ctx, resp, []models.InputItem{models.NewUserText("a"), models.NewUserText("b")})

	_, items, err := s.Get(ctx, "resp_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("len(items) = %d, want 2", len(items))
	}
}

func TestSQLiteStore_CompletionRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "gateway.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()

	adapter := CompletionStoreAdapter{s}
	ctx := context.Background()
	c := &models.ChatCompletion{ID: "chatcmpl_1", Model: "gpt-4o"}
	if err := adapter.Put(ctx, c); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := adapter.Get(ctx, "chatcmpl_1")
	if err != nil || got.Model != "gpt-4o" {
		t.Errorf("Get = %+v, %v", got, err)
	}
}
