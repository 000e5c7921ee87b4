// Package handler содержит HTTP-обработчики API сервиса educart.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sramos/educart-system/internal/cart"
	"github.com/sramos/educart-system/internal/checkout"
	"github.com/sramos/educart-system/internal/filestore"
	"github.com/sramos/educart-system/internal/middleware"
	"github.com/sramos/educart-system/internal/model"
	"github.com/sramos/educart-system/internal/repository"
	"github.com/sramos/educart-system/internal/service"
	"github.com/sramos/educart-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, email, name, password string) (int64, error)
	AuthenticateUser(ctx context.Context, email, password string) (*model.User, error)
	GetUser(ctx context.Context, id int64) (*model.User, error)
	ListProducts(ctx context.Context, productType string) ([]model.Product, error)
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	GetPurchasesByUser(ctx context.Context, userID int64) ([]model.Purchase, error)
	AuthorizeDownload(ctx context.Context, userID int64, productID string) (string, error)
}

// Handler реализует HTTP-обработчики API сервиса educart.
type Handler struct {
	service        Service
	carts          *cart.Store
	markers        *checkout.MarkerStore
	initiator      *checkout.Initiator
	recorder       *checkout.Recorder
	signer         *filestore.Signer
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(
	s Service,
	carts *cart.Store,
	markers *checkout.MarkerStore,
	initiator *checkout.Initiator,
	recorder *checkout.Recorder,
	signer *filestore.Signer,
	logger *zap.Logger,
	auth *middleware.AuthMiddleware,
) *Handler {
	return &Handler{
		service:        s,
		carts:          carts,
		markers:        markers,
		initiator:      initiator,
		recorder:       recorder,
		signer:         signer,
		logger:         logger,
		authMiddleware: auth,
	}
}

// currentUser возвращает пользователя из cookie авторизации либо nil для гостя.
// Просроченный cookie с несуществующим пользователем приравнивается к гостю.
func (h *Handler) currentUser(r *http.Request) (*model.User, error) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		return nil, nil
	}

	u, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return u, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || !strings.Contains(req.Email, "@") || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	u, err := h.service.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, u.ID)
	w.WriteHeader(http.StatusOK)
}

// Logout стирает cookie авторизации текущего пользователя.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authMiddleware.ClearAuthCookie(w)
	w.WriteHeader(http.StatusOK)
}

type productResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Price       int64  `json:"price"`
	Type        string `json:"type"`
	Category    string `json:"category"`
	ImageURL    string `json:"image_url,omitempty"`
}

// GetProducts возвращает каталог товаров, опционально отфильтрованный по типу.
func (h *Handler) GetProducts(w http.ResponseWriter, r *http.Request) {
	productType := r.URL.Query().Get("type")
	if productType != "" && !validation.IsValidProductType(productType) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	products, err := h.service.ListProducts(r.Context(), productType)
	if err != nil {
		h.logger.Error("list products error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]productResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, productResponse{
			ID:          p.ID,
			Title:       p.Title,
			Description: p.Description,
			Price:       p.Price,
			Type:        string(p.Type),
			Category:    p.Category,
			ImageURL:    p.ImageURL,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

type cartResponse struct {
	Items []model.CartItem `json:"items"`
	Total int64            `json:"total"`
	Count int              `json:"count"`
}

func newCartResponse(c *cart.Cart) cartResponse {
	return cartResponse{
		Items: c.Items,
		Total: c.Total(),
		Count: c.ItemCount(),
	}
}

// GetCart возвращает корзину текущей сессии.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	sid, ok := middleware.GetSessionIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	c, err := h.carts.Get(r.Context(), sid)
	if err != nil {
		h.logger.Error("get cart error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, newCartResponse(c))
}

type addItemRequest struct {
	ID string `json:"id"`
}

// AddCartItem добавляет товар в корзину. Название, цена и тип берутся из
// каталога, а не из запроса.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	sid, ok := middleware.GetSessionIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !validation.IsValidProductID(req.ID) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	p, err := h.service.GetProduct(r.Context(), req.ID)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("add cart item error", zap.Error(err), zap.String("product", req.ID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if !p.Active {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	c, err := h.carts.Add(r.Context(), sid, model.CartItem{
		ID:       p.ID,
		Title:    p.Title,
		Price:    p.Price,
		Type:     p.Type,
		ImageURL: p.ImageURL,
	})
	if err != nil {
		h.logger.Error("persist cart error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, newCartResponse(c))
}

// RemoveCartItem удаляет товар из корзины текущей сессии.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	sid, ok := middleware.GetSessionIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	itemID := chi.URLParam(r, "id")
	if !validation.IsValidProductID(itemID) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	c, err := h.carts.Remove(r.Context(), sid, itemID)
	if err != nil {
		h.logger.Error("remove cart item error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, newCartResponse(c))
}

// ClearCart опустошает корзину текущей сессии.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	sid, ok := middleware.GetSessionIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if err := h.carts.Clear(r.Context(), sid); err != nil {
		h.logger.Error("clear cart error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// Checkout начинает оформление заказа: записывает маркер ожидаемой покупки и
// возвращает ссылку платёжной системы для редиректа.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	sid, ok := middleware.GetSessionIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	u, err := h.currentUser(r)
	if err != nil {
		h.logger.Error("checkout user lookup error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if u == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":     "authentication required",
			"login_url": "/login",
		})
		return
	}

	url, err := h.initiator.Start(r.Context(), sid, u)
	if err != nil {
		switch {
		case errors.Is(err, checkout.ErrEmptyCart):
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		case errors.Is(err, checkout.ErrProductUnavailable):
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		case errors.Is(err, checkout.ErrPaymentUnavailable):
			h.logger.Error("checkout payment error", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		default:
			h.logger.Error("checkout error", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

type purchaseResponse struct {
	ID    string               `json:"id"`
	Date  string               `json:"date"`
	Items []model.PurchaseItem `json:"items"`
	Total int64                `json:"total"`
}

// CheckoutSuccess обрабатывает возврат покупателя из платёжной системы:
// сверяет маркер ожидаемой покупки и записывает покупку в профиль.
func (h *Handler) CheckoutSuccess(w http.ResponseWriter, r *http.Request) {
	sid, ok := middleware.GetSessionIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	u, err := h.currentUser(r)
	if err != nil {
		h.logger.Error("success user lookup error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	res, err := h.recorder.Arrive(r.Context(), sid, u)
	if err != nil {
		h.logger.Error("reconcile error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	body := map[string]any{}
	switch res.State {
	case checkout.MarkerReconciled:
		body["status"] = "recorded"
		if res.Purchase != nil {
			body["purchase"] = purchaseResponse{
				ID:    res.Purchase.ID,
				Date:  res.Purchase.Date.Format(time.RFC3339),
				Items: res.Purchase.Items,
				Total: res.Purchase.Total,
			}
		}
	case checkout.MarkerRead:
		body["status"] = "pending"
	case checkout.MarkerExpired:
		body["status"] = "expired"
	default:
		body["status"] = "none"
	}

	writeJSON(w, http.StatusOK, body)
}

// CheckoutCancel обрабатывает отказ от оплаты: корзина сохраняется, маркер
// ожидаемой покупки удаляется.
func (h *Handler) CheckoutCancel(w http.ResponseWriter, r *http.Request) {
	sid, ok := middleware.GetSessionIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if err := h.markers.Delete(r.Context(), sid); err != nil {
		h.logger.Error("delete marker error", zap.Error(err))
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// GetPurchases возвращает историю покупок текущего пользователя.
func (h *Handler) GetPurchases(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	purchases, err := h.service.GetPurchasesByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("get purchases error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(purchases) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]purchaseResponse, 0, len(purchases))
	for _, p := range purchases {
		resp = append(resp, purchaseResponse{
			ID:    p.ID,
			Date:  p.Date.Format(time.RFC3339),
			Items: p.Items,
			Total: p.Total,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

type downloadRequest struct {
	ID string `json:"id"`
}

// Download проверяет право текущего пользователя на скачивание товара и
// возвращает временную подписанную ссылку на файл.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req downloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !validation.IsValidProductID(req.ID) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	filePath, err := h.service.AuthorizeDownload(r.Context(), userID, req.ID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrProductNotFound), errors.Is(err, service.ErrNoDigitalFile):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, service.ErrNotPurchased):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		default:
			h.logger.Error("download error", zap.Error(err), zap.Int64("userID", userID), zap.String("product", req.ID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	url := h.signer.SignedURL(filePath, time.Now(), filestore.DownloadTTL)
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
