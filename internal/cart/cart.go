// Package cart реализует корзину покупателя с долговременными снапшотами.
//
// Корзина принадлежит браузерной сессии и переживает перезагрузки страницы:
// каждая мутация синхронно записывает снапшот в хранилище, чтение всегда
// начинается с гидратации из последнего снапшота. Повреждённый снапшот
// трактуется как пустая корзина.
package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sramos/educart-system/internal/model"
	"github.com/sramos/educart-system/internal/storage"
)

// Cart — упорядоченный набор позиций одной сессии. Итог и количество
// всегда вычисляются заново и отдельно не хранятся.
type Cart struct {
	Items []model.CartItem `json:"items"`
}

// Total возвращает сумму цен всех позиций в центах.
func (c *Cart) Total() int64 {
	var total int64
	for _, it := range c.Items {
		total += it.Price
	}
	return total
}

// ItemCount возвращает количество позиций в корзине.
func (c *Cart) ItemCount() int {
	return len(c.Items)
}

// Contains сообщает, есть ли в корзине позиция с указанным идентификатором.
func (c *Cart) Contains(id string) bool {
	for _, it := range c.Items {
		if it.ID == id {
			return true
		}
	}
	return false
}

// Store управляет корзинами всех сессий поверх хранилища снапшотов.
// Мутации сериализуются: две мутации не перемежаются.
type Store struct {
	mu        sync.Mutex
	snapshots storage.Store
}

// NewStore создаёт хранилище корзин поверх указанного хранилища снапшотов.
func NewStore(snapshots storage.Store) *Store {
	return &Store{snapshots: snapshots}
}

func cartKey(sessionID string) string {
	return "cart:" + sessionID
}

// Get возвращает корзину сессии, гидратируя её из последнего снапшота.
// Отсутствующий или повреждённый снапшот означает пустую корзину.
func (s *Store) Get(ctx context.Context, sessionID string) (*Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load(ctx, sessionID)
}

// Add добавляет позицию в корзину. Позиция с уже существующим
// идентификатором не добавляется повторно, это не ошибка.
func (s *Store) Add(ctx context.Context, sessionID string, item model.CartItem) (*Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if c.Contains(item.ID) {
		return c, nil
	}

	c.Items = append(c.Items, item)

	if err := s.persist(ctx, sessionID, c); err != nil {
		return nil, err
	}

	return c, nil
}

// Remove удаляет позицию с указанным идентификатором. Отсутствие
// позиции не является ошибкой.
func (s *Store) Remove(ctx context.Context, sessionID, itemID string) (*Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	kept := c.Items[:0]
	for _, it := range c.Items {
		if it.ID != itemID {
			kept = append(kept, it)
		}
	}
	if len(kept) == len(c.Items) {
		return c, nil
	}
	c.Items = kept

	if err := s.persist(ctx, sessionID, c); err != nil {
		return nil, err
	}

	return c, nil
}

// Clear опустошает корзину и стирает её снапшот.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.snapshots.Delete(ctx, cartKey(sessionID)); err != nil {
		return fmt.Errorf("delete cart snapshot: %w", err)
	}
	return nil
}

func (s *Store) load(ctx context.Context, sessionID string) (*Cart, error) {
	raw, err := s.snapshots.Get(ctx, cartKey(sessionID))
	if err != nil {
		if err == storage.ErrNotFound {
			return &Cart{}, nil
		}
		return nil, fmt.Errorf("read cart snapshot: %w", err)
	}

	var c Cart
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		// повреждённый снапшот эквивалентен пустой корзине
		return &Cart{}, nil
	}

	return &c, nil
}

func (s *Store) persist(ctx context.Context, sessionID string, c *Cart) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}

	if err := s.snapshots.Set(ctx, cartKey(sessionID), string(raw), 0); err != nil {
		return fmt.Errorf("write cart snapshot: %w", err)
	}

	return nil
}
