package admin

import "time"

// Static placeholder data substituted when the collaborator is
// unreachable. One-shot substitution, not a retry: the view renders
// these values instead of an error.

// FallbackStats mirrors the numbers the dashboard has always shown when
// the stats endpoint is down.
func FallbackStats() Stats {
	return Stats{
		TotalOrders:      150,
		TotalRevenue:     15000,
		TotalProducts:    75,
		LowStockProducts: 5,
	}
}

// FallbackOrders returns the placeholder order list.
func FallbackOrders() []Order {
	return []Order{
		{
			ID:     "1",
			UserID: "user1",
			Products: []OrderProduct{
				{ProductID: "prod1", Quantity: 2, Price: 29.99},
			},
			Total:     59.98,
			Status:    StatusPending,
			CreatedAt: time.Date(2023, time.November, 20, 10, 0, 0, 0, time.UTC),
			ShippingAddress: ShippingAddress{
				Street:  "123 Main St",
				City:    "Springfield",
				State:   "IL",
				ZipCode: "62701",
			},
		},
	}
}

// FallbackProducts returns the placeholder product list.
func FallbackProducts() []Product {
	return []Product{
		{
			ID:          "1",
			Name:        "Basic Tee",
			Description: "A comfortable cotton t-shirt",
			Price:       29.99,
			Stock:       50,
			Image:       "https://tailwindui.com/img/ecommerce-images/product-page-01-related-product-01.jpg",
			Category:    "Clothing",
		},
	}
}
