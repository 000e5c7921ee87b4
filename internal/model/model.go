// Package model содержит доменные сущности магазина educart.
package model

import "time"

// ProductType описывает тип цифрового товара.
type ProductType string

const (
	ProductTypeVideo    ProductType = "video"
	ProductTypeGame     ProductType = "game"
	ProductTypeActivity ProductType = "activity"
	ProductTypeBundle   ProductType = "bundle"
)

// User представляет зарегистрированного покупателя магазина.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Product описывает товар каталога. Цена хранится в центах,
// каталог является единственным источником цен.
type Product struct {
	ID           string
	Title        string
	Description  string
	Price        int64
	Type         ProductType
	Category     string
	ImageURL     string
	DownloadPath string
	Active       bool
	CreatedAt    time.Time
}

// CartItem — позиция корзины. Цифровые товары добавляются не более одного
// раза, поэтому количество не моделируется.
type CartItem struct {
	ID       string      `json:"id"`
	Title    string      `json:"title"`
	Price    int64       `json:"price"`
	Type     ProductType `json:"type"`
	ImageURL string      `json:"image_url,omitempty"`
}

// PurchaseItem — позиция завершённой покупки.
type PurchaseItem struct {
	ID    string      `json:"id"`
	Title string      `json:"title"`
	Price int64       `json:"price"`
	Type  ProductType `json:"type"`
}

// Purchase описывает завершённую покупку в профиле пользователя.
// Список покупок append-only, при чтении новые записи идут первыми.
type Purchase struct {
	ID    string
	Date  time.Time
	Items []PurchaseItem
	Total int64
}
