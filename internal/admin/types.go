package admin

import (
	"encoding/json"
	"strconv"
	"time"
)

// Stats is the dashboard summary returned by the admin collaborator.
// Every field is coerced to numeric; missing or invalid values become 0.
type Stats struct {
	TotalOrders      float64 `json:"totalOrders"`
	TotalRevenue     float64 `json:"totalRevenue"`
	TotalProducts    float64 `json:"totalProducts"`
	LowStockProducts float64 `json:"lowStockProducts"`
}

// Order statuses accepted by UpdateOrderStatus.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusShipped    = "shipped"
	StatusDelivered  = "delivered"
)

// ValidStatus reports whether s is one of the accepted order statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered:
		return true
	}
	return false
}

// OrderProduct is one product row inside an order.
type OrderProduct struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// ShippingAddress is the order's destination.
type ShippingAddress struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
}

// Order is one order row as the collaborator reports it.
type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	Products        []OrderProduct  `json:"products"`
	Total           float64         `json:"total"`
	Status          string          `json:"status"`
	CreatedAt       time.Time       `json:"createdAt"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
}

// Product is one catalog row as the collaborator reports it.
type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
	Image       string  `json:"image"`
	Category    string  `json:"category"`
}

// NewProduct is the payload for product creation.
type NewProduct struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
	Category    string  `json:"category"`
	Image       string  `json:"image"`
}

// coerceStats reads the collaborator's stats payload defensively:
// numbers may arrive as numbers or strings, and fields may be missing.
func coerceStats(raw map[string]json.RawMessage) Stats {
	return Stats{
		TotalOrders:      coerceNumber(raw["totalOrders"]),
		TotalRevenue:     coerceNumber(raw["totalRevenue"]),
		TotalProducts:    coerceNumber(raw["totalProducts"]),
		LowStockProducts: coerceNumber(raw["lowStockProducts"]),
	}
}

// coerceNumber converts a raw JSON value to float64, defaulting to 0.
func coerceNumber(raw json.RawMessage) float64 {
	if raw == nil {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return 0
}
