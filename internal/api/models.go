package api

import (
	"net/url"
	"strconv"
)

// Admin is the logged-in administrator's profile.
type Admin struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
	Role  string `json:"role"`
}

// ProfileUpdate carries the editable profile fields; empty fields are left
// unchanged.
type ProfileUpdate struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Admin        Admin  `json:"admin"`
}

type Product struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Description      string   `json:"description,omitempty"`
	Brand            string   `json:"brand,omitempty"`
	Price            float64  `json:"price"`
	Stock            int      `json:"stock"`
	CategoryID       string   `json:"category_id,omitempty"`
	SubCategoryID    string   `json:"subcategory_id,omitempty"`
	SubSubCategoryID string   `json:"subsubcategory_id,omitempty"`
	Images           []string `json:"images,omitempty"`
	CreatedAt        string   `json:"created_at,omitempty"`
}

// Upload is one image attached to a product create/update.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ProductInput is sent as multipart/form-data.
type ProductInput struct {
	Name             string
	Description      string
	Brand            string
	Price            float64
	Stock            int
	CategoryID       string
	SubCategoryID    string
	SubSubCategoryID string
	Images           []Upload
}

type StockUpdate struct {
	ProductID string `json:"product_id"`
	Stock     int    `json:"stock"`
}

type Category struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parent_id,omitempty"`
}

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

type OrderItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type Order struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	Status    OrderStatus `json:"status"`
	Items     []OrderItem `json:"items"`
	Total     float64     `json:"total"`
	CreatedAt string      `json:"created_at"`
	UpdatedAt string      `json:"updated_at,omitempty"`
}

type OrderStatusUpdate struct {
	OrderID string      `json:"order_id"`
	Status  OrderStatus `json:"status"`
}

type User struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	OrderCount int    `json:"order_count"`
	CreatedAt  string `json:"created_at,omitempty"`
}

type SalesReport struct {
	From      string  `json:"from,omitempty"`
	To        string  `json:"to,omitempty"`
	Orders    int     `json:"orders"`
	ItemsSold int     `json:"items_sold"`
	Revenue   float64 `json:"revenue"`
}

type DailyReport struct {
	Date    string  `json:"date"`
	Orders  int     `json:"orders"`
	Revenue float64 `json:"revenue"`
}

type BrandStat struct {
	Brand    string  `json:"brand"`
	Products int     `json:"products"`
	Sold     int     `json:"sold"`
	Revenue  float64 `json:"revenue"`
}

type Stats struct {
	Products      int     `json:"products"`
	Orders        int     `json:"orders"`
	PendingOrders int     `json:"pending_orders"`
	Users         int     `json:"users"`
	OutOfStock    int     `json:"out_of_stock"`
	LowStock      int     `json:"low_stock"`
	Revenue       float64 `json:"revenue"`
}

// List is the envelope of every list endpoint. Total is 0 when the backend
// does not report one.
type List[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total,omitempty"`
	Page  int `json:"page"`
}

// ProductFilter narrows the product listing. The zero value lists everything.
type ProductFilter struct {
	Search     string
	CategoryID string
	Brand      string
}

func (f ProductFilter) Values() url.Values {
	v := url.Values{}
	if f.Search != "" {
		v.Set("search", f.Search)
	}
	if f.CategoryID != "" {
		v.Set("category", f.CategoryID)
	}
	if f.Brand != "" {
		v.Set("brand", f.Brand)
	}
	return v
}

// OrderFilter narrows the order listing. Dates are YYYY-MM-DD, inclusive.
type OrderFilter struct {
	Status OrderStatus
	From   string
	To     string
}

func (f OrderFilter) Values() url.Values {
	v := url.Values{}
	if f.Status != "" {
		v.Set("status", string(f.Status))
	}
	if f.From != "" {
		v.Set("from", f.From)
	}
	if f.To != "" {
		v.Set("to", f.To)
	}
	return v
}

// DateRange bounds report queries. Dates are YYYY-MM-DD, inclusive.
type DateRange struct {
	From string
	To   string
}

func (r DateRange) Values() url.Values {
	v := url.Values{}
	if r.From != "" {
		v.Set("from", r.From)
	}
	if r.To != "" {
		v.Set("to", r.To)
	}
	return v
}

func withPage(v url.Values, page, limit int) url.Values {
	if v == nil {
		v = url.Values{}
	}
	if page > 0 {
		v.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	return v
}
