package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sramos/educart-system/internal/cart"
	"github.com/sramos/educart-system/internal/model"
	"github.com/sramos/educart-system/internal/payment"
)

// ErrEmptyCart возвращается при попытке оплатить пустую корзину.
var (
	ErrEmptyCart = errors.New("cart is empty")
	// ErrNotAuthenticated возвращается, если оплату инициирует гость.
	ErrNotAuthenticated = errors.New("authentication required")
	// ErrProductUnavailable возвращается, если позиция корзины отсутствует в каталоге или снята с продажи.
	ErrProductUnavailable = errors.New("product unavailable")
	// ErrPaymentUnavailable возвращается, если провайдер не смог создать сессию. Корзина и маркер сохраняются для повтора.
	ErrPaymentUnavailable = errors.New("payment provider unavailable")
)

// Catalog описывает доступ к каноническому каталогу товаров.
// Цены позиций всегда берутся из каталога, а не из корзины.
type Catalog interface {
	GetProductsByIDs(ctx context.Context, ids []string) ([]model.Product, error)
}

// SessionCreator — контракт создания платёжной сессии у провайдера.
type SessionCreator interface {
	CreateSession(ctx context.Context, req *payment.SessionRequest) (*payment.Session, error)
}

// Initiator превращает корзину в платёжную сессию провайдера.
type Initiator struct {
	carts       *cart.Store
	markers     *MarkerStore
	catalog     Catalog
	payments    SessionCreator
	baseURL     string
	devFallback bool
	logger      *zap.Logger
	now         func() time.Time
}

// NewInitiator создаёт инициатор оплаты. При devFallback отказ провайдера
// имитирует завершённую оплату: браузер отправляется сразу на success адрес,
// согласование идёт обычным путём через маркер.
func NewInitiator(carts *cart.Store, markers *MarkerStore, catalog Catalog, payments SessionCreator, baseURL string, devFallback bool, logger *zap.Logger) *Initiator {
	return &Initiator{
		carts:       carts,
		markers:     markers,
		catalog:     catalog,
		payments:    payments,
		baseURL:     baseURL,
		devFallback: devFallback,
		logger:      logger,
		now:         time.Now,
	}
}

// SuccessPath и CancelPath — адреса возврата из платёжного потока.
const (
	SuccessPath = "/api/checkout/success"
	CancelPath  = "/api/checkout/cancel"
)

// Start инициирует оплату корзины сессии от имени пользователя и возвращает
// URL для редиректа. Маркер записывается до ухода к провайдеру; отказ
// провайдера оставляет корзину и маркер нетронутыми.
func (i *Initiator) Start(ctx context.Context, sessionID string, user *model.User) (string, error) {
	if user == nil {
		return "", ErrNotAuthenticated
	}

	c, err := i.carts.Get(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("read cart: %w", err)
	}
	if c.ItemCount() == 0 {
		return "", ErrEmptyCart
	}

	items, lineItems, total, err := i.priceFromCatalog(ctx, c)
	if err != nil {
		return "", err
	}

	marker := &Marker{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		Items:     items,
		Total:     total,
		Timestamp: i.now(),
	}
	if err := i.markers.Write(ctx, sessionID, marker); err != nil {
		return "", fmt.Errorf("write marker: %w", err)
	}

	session, err := i.payments.CreateSession(ctx, &payment.SessionRequest{
		Items:         lineItems,
		Currency:      "brl",
		CustomerEmail: user.Email,
		SuccessURL:    i.baseURL + SuccessPath,
		CancelURL:     i.baseURL + CancelPath,
	})
	if err != nil {
		if i.devFallback {
			i.logger.Warn("payment provider failed, simulating completed purchase",
				zap.String("session", sessionID), zap.Error(err))
			return i.baseURL + SuccessPath, nil
		}
		i.logger.Error("create payment session", zap.String("session", sessionID), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrPaymentUnavailable, err)
	}

	// идентификатор сессии провайдера нужен фоновой сверке платежей
	marker.SessionID = session.ID
	if err := i.markers.Write(ctx, sessionID, marker); err != nil {
		return "", fmt.Errorf("update marker: %w", err)
	}

	return session.URL, nil
}

// priceFromCatalog переоценивает корзину по каноническому каталогу.
// Цены, присланные клиентом, в платёжную сессию не попадают.
func (i *Initiator) priceFromCatalog(ctx context.Context, c *cart.Cart) ([]model.PurchaseItem, []payment.LineItem, int64, error) {
	ids := make([]string, 0, len(c.Items))
	for _, it := range c.Items {
		ids = append(ids, it.ID)
	}

	products, err := i.catalog.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("read catalog: %w", err)
	}

	byID := make(map[string]model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	var (
		items     []model.PurchaseItem
		lineItems []payment.LineItem
		total     int64
	)
	for _, it := range c.Items {
		p, ok := byID[it.ID]
		if !ok || !p.Active {
			return nil, nil, 0, fmt.Errorf("%w: %s", ErrProductUnavailable, it.ID)
		}

		items = append(items, model.PurchaseItem{
			ID:    p.ID,
			Title: p.Title,
			Price: p.Price,
			Type:  p.Type,
		})
		lineItems = append(lineItems, payment.LineItem{
			Name:       p.Title,
			UnitAmount: p.Price,
			Quantity:   1,
			ImageURL:   p.ImageURL,
		})
		total += p.Price
	}

	return items, lineItems, total, nil
}
