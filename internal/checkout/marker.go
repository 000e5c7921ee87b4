// Package checkout реализует инициирование оплаты и согласование покупок.
//
// Между уходом браузера к платёжному провайдеру и возвращением на success
// адрес состояние переживает только маркер незавершённой покупки. Его
// жизненный цикл описан явным конечным автоматом: Absent -> Written ->
// Read -> Reconciled либо Expired.
package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sramos/educart-system/internal/model"
	"github.com/sramos/educart-system/internal/storage"
)

// MarkerState — состояние маркера незавершённой покупки.
type MarkerState int

const (
	// MarkerAbsent — маркера нет.
	MarkerAbsent MarkerState = iota
	// MarkerWritten — маркер записан перед уходом к провайдеру.
	MarkerWritten
	// MarkerRead — маркер прочитан после возвращения, покупка ещё не записана.
	MarkerRead
	// MarkerReconciled — покупка записана ровно один раз, маркер удалён.
	MarkerReconciled
	// MarkerExpired — маркер старше часа, отброшен без записи покупки.
	MarkerExpired
)

func (s MarkerState) String() string {
	switch s {
	case MarkerAbsent:
		return "absent"
	case MarkerWritten:
		return "written"
	case MarkerRead:
		return "read"
	case MarkerReconciled:
		return "reconciled"
	case MarkerExpired:
		return "expired"
	default:
		return "unknown"
	}
}

const (
	// markerValidity — логический срок жизни маркера: старше часа не согласуется.
	markerValidity = time.Hour
	// markerStorageTTL страхует от маркеров, которые никто не прочитал.
	markerStorageTTL = 24 * time.Hour
)

// Marker — запись о незавершённой покупке, мост через редирект к провайдеру.
type Marker struct {
	Token     string               `json:"token"`
	UserID    int64                `json:"user_id"`
	SessionID string               `json:"session_id,omitempty"`
	Items     []model.PurchaseItem `json:"items"`
	Total     int64                `json:"total"`
	Timestamp time.Time            `json:"timestamp"`
}

// Expired сообщает, истёк ли логический срок жизни маркера.
func (m *Marker) Expired(now time.Time) bool {
	return now.Sub(m.Timestamp) > markerValidity
}

// MarkerStore хранит маркеры в хранилище снапшотов, по одному на сессию.
// Новая запись всегда перезаписывает предыдущий маркер.
type MarkerStore struct {
	snapshots storage.Store
}

// NewMarkerStore создаёт хранилище маркеров поверх хранилища снапшотов.
func NewMarkerStore(snapshots storage.Store) *MarkerStore {
	return &MarkerStore{snapshots: snapshots}
}

const markerKeyPrefix = "pending:"

func markerKey(sessionID string) string {
	return markerKeyPrefix + sessionID
}

// Write записывает маркер сессии, перезаписывая существующий.
func (s *MarkerStore) Write(ctx context.Context, sessionID string, m *Marker) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal marker: %w", err)
	}

	if err := s.snapshots.Set(ctx, markerKey(sessionID), string(raw), markerStorageTTL); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}

	return nil
}

// Read возвращает маркер сессии и его состояние. Повреждённый маркер
// трактуется как отсутствующий, просроченный удаляется и не согласуется.
func (s *MarkerStore) Read(ctx context.Context, sessionID string, now time.Time) (*Marker, MarkerState, error) {
	raw, err := s.snapshots.Get(ctx, markerKey(sessionID))
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, MarkerAbsent, nil
		}
		return nil, MarkerAbsent, fmt.Errorf("read marker: %w", err)
	}

	var m Marker
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		_ = s.snapshots.Delete(ctx, markerKey(sessionID))
		return nil, MarkerAbsent, nil
	}

	if m.Expired(now) {
		if err := s.snapshots.Delete(ctx, markerKey(sessionID)); err != nil {
			return nil, MarkerExpired, fmt.Errorf("discard expired marker: %w", err)
		}
		return nil, MarkerExpired, nil
	}

	return &m, MarkerRead, nil
}

// Delete удаляет маркер сессии.
func (s *MarkerStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.snapshots.Delete(ctx, markerKey(sessionID)); err != nil {
		return fmt.Errorf("delete marker: %w", err)
	}
	return nil
}

// PendingMarker — маркер вместе с идентификатором браузерной сессии.
type PendingMarker struct {
	SessionID string
	Marker    *Marker
}

// List возвращает все записанные маркеры. Используется фоновым процессом
// сверки платежей, когда браузер так и не вернулся.
func (s *MarkerStore) List(ctx context.Context) ([]PendingMarker, error) {
	keys, err := s.snapshots.Keys(ctx, markerKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list markers: %w", err)
	}

	var res []PendingMarker
	for _, key := range keys {
		raw, err := s.snapshots.Get(ctx, key)
		if err != nil {
			continue
		}

		var m Marker
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			_ = s.snapshots.Delete(ctx, key)
			continue
		}

		res = append(res, PendingMarker{
			SessionID: key[len(markerKeyPrefix):],
			Marker:    &m,
		})
	}

	return res, nil
}
