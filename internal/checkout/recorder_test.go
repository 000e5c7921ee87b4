package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sramos/educart-system/internal/cart"
	"github.com/sramos/educart-system/internal/model"
	"github.com/sramos/educart-system/internal/storage"
)

type stubProfile struct {
	failures  int
	purchases []*model.Purchase
	userIDs   []int64
}

func (s *stubProfile) AppendPurchase(ctx context.Context, userID int64, p *model.Purchase) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("transient write error")
	}
	for _, existing := range s.purchases {
		if existing.ID == p.ID {
			// идемпотентность профиля: дубликат молча игнорируется
			return nil
		}
	}
	s.purchases = append(s.purchases, p)
	s.userIDs = append(s.userIDs, userID)
	return nil
}

func newTestRecorder(t *testing.T, profile Profile) (*Recorder, *cart.Store, *MarkerStore, storage.Store) {
	t.Helper()

	snapshots := storage.NewMemoryStore()
	carts := cart.NewStore(snapshots)
	markers := NewMarkerStore(snapshots)
	return NewRecorder(carts, markers, profile, zap.NewNop()), carts, markers, snapshots
}

func writeTestMarker(t *testing.T, markers *MarkerStore, age time.Duration) {
	t.Helper()

	err := markers.Write(context.Background(), "sid", &Marker{
		Token:     "tok-1",
		UserID:    7,
		Items:     []model.PurchaseItem{{ID: "activity-1", Title: "Colagem", Price: 990, Type: model.ProductTypeActivity}},
		Total:     990,
		Timestamp: time.Now().Add(-age),
	})
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
}

func TestArrive_ExactlyOnce(t *testing.T) {
	profile := &stubProfile{}
	r, _, _, _ := newTestRecorder(t, profile)
	writeTestMarker(t, r.markers, 0)

	ctx := context.Background()
	user := &model.User{ID: 7, Email: "ana@example.com"}

	first, err := r.Arrive(ctx, "sid", user)
	if err != nil {
		t.Fatalf("first Arrive error: %v", err)
	}
	if first.State != MarkerReconciled {
		t.Fatalf("first state = %v, want reconciled", first.State)
	}

	// маркер удалён, повторный приход согласовывать нечего
	second, err := r.Arrive(ctx, "sid", user)
	if err != nil {
		t.Fatalf("second Arrive error: %v", err)
	}
	if second.State != MarkerAbsent {
		t.Fatalf("second state = %v, want absent", second.State)
	}

	if len(profile.purchases) != 1 {
		t.Fatalf("purchases recorded = %d, want exactly 1", len(profile.purchases))
	}
	if profile.purchases[0].Total != 990 || profile.userIDs[0] != 7 {
		t.Fatalf("unexpected purchase: %+v for user %d", profile.purchases[0], profile.userIDs[0])
	}
}

func TestArrive_SecondPurchaseSameSession(t *testing.T) {
	profile := &stubProfile{}
	r, carts, markers, _ := newTestRecorder(t, profile)
	writeTestMarker(t, markers, 0)

	ctx := context.Background()
	user := &model.User{ID: 7, Email: "ana@example.com"}

	first, err := r.Arrive(ctx, "sid", user)
	if err != nil {
		t.Fatalf("first Arrive error: %v", err)
	}
	if first.State != MarkerReconciled {
		t.Fatalf("first state = %v, want reconciled", first.State)
	}

	// второе оформление в той же браузерной сессии: новый маркер, новая корзина
	if _, err := carts.Add(ctx, "sid", model.CartItem{ID: "video-1", Title: "Contando", Price: 1490}); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	err = markers.Write(ctx, "sid", &Marker{
		Token:     "tok-2",
		UserID:    7,
		Items:     []model.PurchaseItem{{ID: "video-1", Title: "Contando", Price: 1490, Type: model.ProductTypeVideo}},
		Total:     1490,
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}

	second, err := r.Arrive(ctx, "sid", user)
	if err != nil {
		t.Fatalf("second Arrive error: %v", err)
	}
	if second.State != MarkerReconciled {
		t.Fatalf("second state = %v, want reconciled", second.State)
	}
	if second.Purchase == nil || second.Purchase.ID != "tok-2" || second.Purchase.Total != 1490 {
		t.Fatalf("second purchase = %+v, want tok-2 with total 1490", second.Purchase)
	}

	if len(profile.purchases) != 2 {
		t.Fatalf("purchases recorded = %d, want 2", len(profile.purchases))
	}

	c, err := carts.Get(ctx, "sid")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if c.ItemCount() != 0 {
		t.Fatalf("cart after second purchase: count = %d, want 0", c.ItemCount())
	}
	if _, state, _ := markers.Read(ctx, "sid", time.Now()); state != MarkerAbsent {
		t.Fatalf("marker state = %v, want absent after second commit", state)
	}
}

func TestArrive_AttributesPurchaseToInitiator(t *testing.T) {
	profile := &stubProfile{}
	r, _, markers, _ := newTestRecorder(t, profile)
	writeTestMarker(t, markers, 0)

	// оформление начинал пользователь 7, вернулся браузер с другой личностью
	res, err := r.Arrive(context.Background(), "sid", &model.User{ID: 9})
	if err != nil {
		t.Fatalf("Arrive error: %v", err)
	}
	if res.State != MarkerReconciled {
		t.Fatalf("state = %v, want reconciled", res.State)
	}

	if len(profile.userIDs) != 1 || profile.userIDs[0] != 7 {
		t.Fatalf("purchase attributed to %v, want initiator 7", profile.userIDs)
	}
}

func TestArrive_ClearsCartBeforeIdentity(t *testing.T) {
	profile := &stubProfile{}
	r, carts, _, _ := newTestRecorder(t, profile)
	writeTestMarker(t, r.markers, 0)

	ctx := context.Background()
	if _, err := carts.Add(ctx, "sid", model.CartItem{ID: "activity-1", Price: 990}); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	// браузер вернулся, личность ещё не разрешена
	res, err := r.Arrive(ctx, "sid", nil)
	if err != nil {
		t.Fatalf("Arrive error: %v", err)
	}
	if res.State != MarkerRead {
		t.Fatalf("state = %v, want read (commit deferred)", res.State)
	}

	c, _ := carts.Get(ctx, "sid")
	if c.ItemCount() != 0 {
		t.Fatalf("cart must be cleared optimistically, got %+v", c)
	}
	if len(profile.purchases) != 0 {
		t.Fatalf("commit must not happen before identity is resolved")
	}

	// личность разрешилась на повторном приходе
	res, err = r.Arrive(ctx, "sid", &model.User{ID: 7})
	if err != nil {
		t.Fatalf("Arrive error: %v", err)
	}
	if res.State != MarkerReconciled {
		t.Fatalf("state = %v, want reconciled", res.State)
	}
	if len(profile.purchases) != 1 {
		t.Fatalf("purchases recorded = %d, want 1", len(profile.purchases))
	}
}

func TestArrive_CommitRetryAfterTransientFailure(t *testing.T) {
	// первые три попытки (приход с ретраями) падают, следующий приход добивает
	profile := &stubProfile{failures: 3}
	r, _, markers, _ := newTestRecorder(t, profile)
	writeTestMarker(t, markers, 0)

	ctx := context.Background()
	user := &model.User{ID: 7}

	res, err := r.Arrive(ctx, "sid", user)
	if err != nil {
		t.Fatalf("Arrive error: %v", err)
	}
	if res.State != MarkerRead {
		t.Fatalf("state after failed commit = %v, want read (marker kept)", res.State)
	}

	// маркер не удалён: запись обязана в итоге состояться
	if _, state, _ := markers.Read(ctx, "sid", time.Now()); state != MarkerRead {
		t.Fatalf("marker state = %v, want still readable", state)
	}

	res, err = r.Arrive(ctx, "sid", user)
	if err != nil {
		t.Fatalf("retry Arrive error: %v", err)
	}
	if res.State != MarkerReconciled {
		t.Fatalf("state = %v, want reconciled", res.State)
	}

	if len(profile.purchases) != 1 {
		t.Fatalf("purchases recorded = %d, want exactly 1", len(profile.purchases))
	}

	// маркер удалён только после успешной записи
	if _, state, _ := markers.Read(ctx, "sid", time.Now()); state != MarkerAbsent {
		t.Fatalf("marker state = %v, want absent after commit", state)
	}
}

func TestArrive_ExpiredMarkerNotCommitted(t *testing.T) {
	profile := &stubProfile{}
	r, _, markers, _ := newTestRecorder(t, profile)
	writeTestMarker(t, markers, 61*time.Minute)

	res, err := r.Arrive(context.Background(), "sid", &model.User{ID: 7})
	if err != nil {
		t.Fatalf("Arrive error: %v", err)
	}
	if res.State != MarkerExpired {
		t.Fatalf("state = %v, want expired", res.State)
	}
	if len(profile.purchases) != 0 {
		t.Fatalf("expired marker must not produce a purchase")
	}
}

func TestArrive_NoMarker(t *testing.T) {
	profile := &stubProfile{}
	r, carts, _, _ := newTestRecorder(t, profile)

	ctx := context.Background()
	if _, err := carts.Add(ctx, "sid", model.CartItem{ID: "video-1", Title: "Contando", Price: 1490}); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	res, err := r.Arrive(ctx, "sid", &model.User{ID: 7})
	if err != nil {
		t.Fatalf("Arrive error: %v", err)
	}
	if res.State != MarkerAbsent {
		t.Fatalf("state = %v, want absent", res.State)
	}
	if len(profile.purchases) != 0 {
		t.Fatalf("no marker must mean no purchase")
	}

	// приход без маркера корзину не опустошает
	c, err := carts.Get(ctx, "sid")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if c.ItemCount() != 1 {
		t.Fatalf("cart count = %d, want 1", c.ItemCount())
	}
}
