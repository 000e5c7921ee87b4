package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/sramos/educart-system/internal/model"
	"github.com/sramos/educart-system/internal/storage"
)

func TestMarkerRead_Expiry(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		age       time.Duration
		wantState MarkerState
	}{
		{name: "59 minutes old is still valid", age: 59 * time.Minute, wantState: MarkerRead},
		{name: "61 minutes old is expired", age: 61 * time.Minute, wantState: MarkerExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snapshots := storage.NewMemoryStore()
			store := NewMarkerStore(snapshots)
			ctx := context.Background()

			err := store.Write(ctx, "sid", &Marker{
				Token:     "tok",
				UserID:    1,
				Items:     []model.PurchaseItem{{ID: "a", Title: "A", Price: 990, Type: model.ProductTypeActivity}},
				Total:     990,
				Timestamp: now.Add(-tt.age),
			})
			if err != nil {
				t.Fatalf("Write error: %v", err)
			}

			m, state, err := store.Read(ctx, "sid", now)
			if err != nil {
				t.Fatalf("Read error: %v", err)
			}
			if state != tt.wantState {
				t.Fatalf("state = %v, want %v", state, tt.wantState)
			}

			if tt.wantState == MarkerExpired {
				if m != nil {
					t.Fatalf("expired marker must not be returned: %+v", m)
				}
				// просроченный маркер удаляется при чтении
				if _, err := snapshots.Get(ctx, "pending:sid"); err != storage.ErrNotFound {
					t.Fatalf("expired marker must be discarded, got err = %v", err)
				}
			} else if m == nil || m.Token != "tok" {
				t.Fatalf("valid marker not returned: %+v", m)
			}
		})
	}
}

func TestMarkerRead_Absent(t *testing.T) {
	store := NewMarkerStore(storage.NewMemoryStore())

	m, state, err := store.Read(context.Background(), "sid", time.Now())
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if state != MarkerAbsent || m != nil {
		t.Fatalf("state = %v, marker = %+v, want absent/nil", state, m)
	}
}

func TestMarkerRead_Corrupt(t *testing.T) {
	snapshots := storage.NewMemoryStore()
	ctx := context.Background()

	if err := snapshots.Set(ctx, "pending:sid", `{"token":`, 0); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	store := NewMarkerStore(snapshots)
	m, state, err := store.Read(ctx, "sid", time.Now())
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if state != MarkerAbsent || m != nil {
		t.Fatalf("corrupt marker must read as absent, got %v / %+v", state, m)
	}
}

func TestMarkerWrite_Overwrites(t *testing.T) {
	store := NewMarkerStore(storage.NewMemoryStore())
	ctx := context.Background()
	now := time.Now()

	if err := store.Write(ctx, "sid", &Marker{Token: "old", Timestamp: now}); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if err := store.Write(ctx, "sid", &Marker{Token: "new", Timestamp: now}); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	m, _, err := store.Read(ctx, "sid", now)
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if m.Token != "new" {
		t.Fatalf("token = %q, want new (single marker per session)", m.Token)
	}
}

func TestMarkerList(t *testing.T) {
	store := NewMarkerStore(storage.NewMemoryStore())
	ctx := context.Background()
	now := time.Now()

	if err := store.Write(ctx, "s1", &Marker{Token: "t1", SessionID: "pay1", Timestamp: now}); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if err := store.Write(ctx, "s2", &Marker{Token: "t2", Timestamp: now}); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	pending, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("len = %d, want 2", len(pending))
	}

	byToken := make(map[string]string)
	for _, p := range pending {
		byToken[p.Marker.Token] = p.SessionID
	}
	if byToken["t1"] != "s1" || byToken["t2"] != "s2" {
		t.Fatalf("unexpected listing: %+v", byToken)
	}
}
