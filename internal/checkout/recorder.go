package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/sramos/educart-system/internal/cart"
	"github.com/sramos/educart-system/internal/model"
)

// Profile — контракт записи покупок в профиль пользователя.
// AppendPurchase обязан быть идемпотентным по идентификатору покупки.
type Profile interface {
	AppendPurchase(ctx context.Context, userID int64, p *model.Purchase) error
}

// Result — исход одного прихода на success адрес.
type Result struct {
	State    MarkerState
	Purchase *model.Purchase
}

// Recorder согласует маркер незавершённой покупки с профилем пользователя.
//
// Состояние согласования живёт в хранилище маркеров, а не в памяти процесса:
// каждое оформление в той же браузерной сессии начинает согласование заново.
// Повторные приходы на success адрес, дубли навигации и гонка с фоновой
// сверкой не приводят к повторной записи: маркер удаляется после успешной
// записи, а сама запись идемпотентна по токену маркера.
type Recorder struct {
	carts   *cart.Store
	markers *MarkerStore
	profile Profile
	logger  *zap.Logger
	now     func() time.Time

	mu sync.Mutex
}

// NewRecorder создаёт регистратор покупок.
func NewRecorder(carts *cart.Store, markers *MarkerStore, profile Profile, logger *zap.Logger) *Recorder {
	return &Recorder{
		carts:   carts,
		markers: markers,
		profile: profile,
		logger:  logger,
		now:     time.Now,
	}
}

// Arrive обрабатывает возвращение браузера из платёжного потока.
//
// Живой маркер оптимистично опустошает корзину независимо от аутентификации.
// Покупка записывается только когда известна личность пользователя, и
// приписывается инициатору оформления из маркера. При сбое записи маркер
// остаётся на месте, следующий приход повторит запись; маркер удаляется
// только после успешной записи.
func (r *Recorder) Arrive(ctx context.Context, sessionID string, user *model.User) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	marker, state, err := r.markers.Read(ctx, sessionID, r.now())
	if err != nil {
		return nil, fmt.Errorf("read marker: %w", err)
	}

	// корзина опустошается только при живом маркере: приход без маркера
	// (прямой заход на адрес, возврат после отмены) корзину не трогает
	if state == MarkerRead {
		if err := r.carts.Clear(ctx, sessionID); err != nil {
			r.logger.Error("clear cart on return", zap.String("session", sessionID), zap.Error(err))
		}
	}

	if state != MarkerRead || user == nil {
		return &Result{State: state}, nil
	}

	purchase := &model.Purchase{
		ID:    marker.Token,
		Date:  r.now(),
		Items: marker.Items,
		Total: marker.Total,
	}

	if err := r.commit(ctx, marker.UserID, purchase); err != nil {
		// платёж уже прошёл у провайдера, пользователю об этом сбое не сообщаем
		r.logger.Error("record purchase", zap.String("session", sessionID),
			zap.String("purchase", purchase.ID), zap.Error(err))
		return &Result{State: MarkerRead}, nil
	}

	if err := r.markers.Delete(ctx, sessionID); err != nil {
		// покупка записана, повторную запись заблокирует идемпотентность профиля
		r.logger.Warn("delete marker after commit", zap.String("session", sessionID), zap.Error(err))
	}

	return &Result{State: MarkerReconciled, Purchase: purchase}, nil
}

func (r *Recorder) commit(ctx context.Context, userID int64, p *model.Purchase) error {
	backoff := retry.WithMaxRetries(2, retry.NewFibonacci(100*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := r.profile.AppendPurchase(ctx, userID, p); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
