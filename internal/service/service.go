// Package service реализует бизнес-логику магазина educart.
package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sramos/educart-system/internal/checkout"
	"github.com/sramos/educart-system/internal/model"
	"github.com/sramos/educart-system/internal/payment"
	"github.com/sramos/educart-system/internal/repository"
)

// ErrInvalidCredentials возвращается при неверной паре почта/пароль.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotPurchased возвращается при попытке скачать некупленный товар.
	ErrNotPurchased = errors.New("product not purchased")
	// ErrNoDigitalFile возвращается, если у товара нет цифрового файла.
	ErrNoDigitalFile = errors.New("product has no digital file")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, email, name string, passwordHash []byte) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetProducts(ctx context.Context, productType string) ([]model.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) ([]model.Product, error)
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	AppendPurchase(ctx context.Context, userID int64, p *model.Purchase) error
	GetPurchasesByUser(ctx context.Context, userID int64) ([]model.Purchase, error)
	HasPurchased(ctx context.Context, userID int64, productID string) (bool, error)
}

// Payments — контракт опроса состояния платёжной сессии у провайдера.
type Payments interface {
	GetSession(ctx context.Context, id string) (*payment.Session, error)
}

// Service содержит бизнес-логику магазина educart.
type Service struct {
	repo     Repository
	payments Payments
	markers  *checkout.MarkerStore
	logger   *zap.Logger
}

// NewService создаёт сервис с указанным репозиторием, клиентом провайдера
// и хранилищем маркеров. payments может быть nil, тогда фоновая сверка
// платежей не работает.
func NewService(repo Repository, payments Payments, markers *checkout.MarkerStore, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		payments: payments,
		markers:  markers,
		logger:   logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя.
func (s *Service) RegisterUser(ctx context.Context, email, name, password string) (int64, error) {
	hashed := hashPassword(email, password)
	id, err := s.repo.CreateUser(ctx, email, name, hashed)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет почту и пароль пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	hashed := hashPassword(email, password)
	if subtle.ConstantTimeCompare(hashed, u.PasswordHash) != 1 {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

func hashPassword(email, password string) []byte {
	sum := sha256.Sum256([]byte(email + ":" + password))
	return sum[:]
}

// GetUser возвращает пользователя по идентификатору.
func (s *Service) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// ListProducts возвращает активные товары каталога, опционально одного типа.
func (s *Service) ListProducts(ctx context.Context, productType string) ([]model.Product, error) {
	return s.repo.GetProducts(ctx, productType)
}

// GetProduct возвращает товар каталога по идентификатору.
func (s *Service) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// GetPurchasesByUser возвращает покупки пользователя, новые первыми.
func (s *Service) GetPurchasesByUser(ctx context.Context, userID int64) ([]model.Purchase, error) {
	return s.repo.GetPurchasesByUser(ctx, userID)
}

// AuthorizeDownload проверяет право пользователя на скачивание товара и
// возвращает путь файла в файловом хранилище.
func (s *Service) AuthorizeDownload(ctx context.Context, userID int64, productID string) (string, error) {
	p, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return "", err
	}
	if p.DownloadPath == "" {
		return "", ErrNoDigitalFile
	}

	ok, err := s.repo.HasPurchased(ctx, userID, productID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotPurchased
	}

	return p.DownloadPath, nil
}

// StartPendingSweep запускает фоновую сверку незавершённых покупок с
// провайдером. Она закрывает разрыв клиентского согласования: если браузер
// после оплаты так и не вернулся, покупка всё равно будет записана.
func (s *Service) StartPendingSweep(ctx context.Context, interval time.Duration) {
	if s.payments == nil || s.markers == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.processPendingBatch(ctx)
			}
		}
	}()
}

func (s *Service) processPendingBatch(ctx context.Context) {
	pending, err := s.markers.List(ctx)
	if err != nil {
		s.logger.Error("list pending markers", zap.Error(err))
		return
	}

	now := time.Now()
	for _, p := range pending {
		m := p.Marker

		if m.Expired(now) {
			_ = s.markers.Delete(ctx, p.SessionID)
			continue
		}
		if m.SessionID == "" {
			// сессию у провайдера создать не удалось, маркер доживёт до истечения срока
			continue
		}

		session, err := s.payments.GetSession(ctx, m.SessionID)
		if err != nil {
			if errors.Is(err, payment.ErrSessionNotFound) {
				_ = s.markers.Delete(ctx, p.SessionID)
			}
			continue
		}

		switch session.Status {
		case payment.SessionStatusComplete:
			purchase := &model.Purchase{
				ID:    m.Token,
				Date:  now,
				Items: m.Items,
				Total: m.Total,
			}
			if err := s.repo.AppendPurchase(ctx, m.UserID, purchase); err != nil {
				s.logger.Error("sweep purchase commit", zap.String("purchase", m.Token), zap.Error(err))
				continue
			}
			_ = s.markers.Delete(ctx, p.SessionID)
		case payment.SessionStatusExpired:
			_ = s.markers.Delete(ctx, p.SessionID)
		}
	}
}
