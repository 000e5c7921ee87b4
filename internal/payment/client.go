// Package payment предоставляет клиент размещённого платёжного провайдера.
//
// Провайдер создаёт платёжную сессию по списку позиций и адресу покупателя,
// возвращает URL для редиректа и после оплаты сам возвращает браузер на
// success или cancel адрес сервиса.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
)

// Статусы платёжной сессии у провайдера.
const (
	SessionStatusOpen     = "open"
	SessionStatusComplete = "complete"
	SessionStatusExpired  = "expired"
)

// ErrSessionNotFound возвращается, если провайдер не знает такую сессию.
var ErrSessionNotFound = errors.New("payment session not found")

// Client инкапсулирует HTTP-взаимодействие с платёжным провайдером.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// LineItem — позиция платёжной сессии.
type LineItem struct {
	Name       string `json:"name"`
	UnitAmount int64  `json:"unit_amount"`
	Quantity   int    `json:"quantity"`
	ImageURL   string `json:"image_url,omitempty"`
}

// SessionRequest описывает запрос на создание платёжной сессии.
type SessionRequest struct {
	Items         []LineItem `json:"items"`
	Currency      string     `json:"currency"`
	CustomerEmail string     `json:"customer_email"`
	SuccessURL    string     `json:"success_url"`
	CancelURL     string     `json:"cancel_url"`
}

// Session описывает платёжную сессию провайдера.
type Session struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Status string `json:"status"`
}

// NewClient создаёт клиент провайдера по указанному адресу.
// Временные сетевые ошибки и ответы 5xx ретраятся прозрачно.
func NewClient(baseURL string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: rc.StandardClient(),
	}
}

// CreateSession создаёт платёжную сессию и возвращает её вместе с URL редиректа.
func (c *Client) CreateSession(ctx context.Context, req *SessionRequest) (*Session, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("payment client not configured")
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("session without items")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal session request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if session.ID == "" || session.URL == "" {
		return nil, fmt.Errorf("incomplete session in response")
	}

	return &session, nil
}

// GetSession запрашивает текущее состояние платёжной сессии.
func (c *Client) GetSession(ctx context.Context, id string) (*Session, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("payment client not configured")
	}

	url := fmt.Sprintf("%s/api/sessions/%s", c.baseURL, id)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrSessionNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &session, nil
}
