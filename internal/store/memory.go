package store

import (
	"container/list"
	"context"
	"sync"

	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

// MemoryResponseStore is an in-memory, size-bounded ResponseStore. Eviction
// is plain LRU by most-recent Put/Get, a standard choice when persistence
// isn't configured and the only goal is bounding RAM for a long-lived
// process. container/list is the stdlib building block for the LRU
// bookkeeping; no dedicated cache library is needed for a map + list.
type MemoryResponseStore struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

type responseEntry struct {
	id         string
	resp       *models.Response
	inputItems []models.InputItem
}

func NewMemoryResponseStore(capacity int) *MemoryResponseStore {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryResponseStore{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

// Put merges inputItems into any existing record for resp.ID and replaces
// the stored Response with resp.
func (s *MemoryResponseStore) Put(_ context.Context, resp *models.Response, inputItems []models.InputItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[resp.ID]; ok {
		existing := el.Value.(*responseEntry)
		merged := models.MergeInputItems(existing.inputItems, inputItems)
		existing.inputItems = merged
		existing.resp = resp.Clone()
		s.ll.MoveToFront(el)
		return nil
	}

	entry := &responseEntry{id: resp.ID, resp: resp.Clone(), inputItems: append([]models.InputItem(nil), inputItems...)}
	el := s.ll.PushFront(entry)
	s.items[resp.ID] = el

	if s.ll.Len() > s.capacity {
		oldest := s.ll.Back()
		if oldest != nil {
			s.ll.Remove(oldest)
			delete(s.items, oldest.Value.(*responseEntry).id)
		}
	}
	return nil
}

func (s *MemoryResponseStore) Get(_ context.Context, id string) (*models.Response, []models.InputItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[id]
	if !ok {
		return nil, nil, ErrNotFound
	}
	s.ll.MoveToFront(el)
	entry := el.Value.(*responseEntry)
	return entry.resp.Clone(), append([]models.InputItem(nil), entry.inputItems...), nil
}

func (s *MemoryResponseStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[id]
	if !ok {
		return nil
	}
	s.ll.Remove(el)
	delete(s.items, id)
	return nil
}

// MemoryCompletionStore is a size-bounded, in-memory CompletionStore.
type MemoryCompletionStore struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

type completionEntry struct {
	id string
	c  *models.ChatCompletion
}

func NewMemoryCompletionStore(capacity int) *MemoryCompletionStore {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryCompletionStore{capacity: capacity, ll: list.New(), items: make(map[string]*list.Element)}
}

func (s *MemoryCompletionStore) Put(_ context.Context, c *models.ChatCompletion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[c.ID]; ok {
		el.Value.(*completionEntry).c = c
		s.ll.MoveToFront(el)
		return nil
	}
	el := s.ll.PushFront(&completionEntry{id: c.ID, c: c})
	s.items[c.ID] = el
	if s.ll.Len() > s.capacity {
		oldest := s.ll.Back()
		if oldest != nil {
			s.ll.Remove(oldest)
			delete(s.items, oldest.Value.(*completionEntry).id)
		}
	}
	return nil
}

func (s *MemoryCompletionStore) Get(_ context.Context, id string) (*models.ChatCompletion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.ll.MoveToFront(el)
	return el.Value.(*completionEntry).c, nil
}

func (s *MemoryCompletionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[id]
	if !ok {
		return nil
	}
	s.ll.Remove(el)
	delete(s.items, id)
	return nil
}
