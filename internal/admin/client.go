// Package admin is the client for the administrative collaborator: the
// HTTP service behind the dashboard, order management, and product
// management views.
//
// Reads never fail the view: a transport failure substitutes the static
// placeholder data (one shot, no retry) and a malformed body coerces to
// an empty collection. Writes return errors; the caller decides what to
// show the user. All requests pass through a circuit breaker so a dead
// collaborator stops consuming connections, and each call is traced.
package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "shopfront/admin"

// ErrInvalidStatus is returned by UpdateOrderStatus for an unknown status.
var ErrInvalidStatus = errors.New("admin: invalid order status")

// StatusError reports a non-success HTTP response from the collaborator.
type StatusError struct {
	Code int
}

func (e StatusError) Error() string {
	return fmt.Sprintf("admin: unexpected status %d", e.Code)
}

// Client talks to the admin collaborator.
type Client struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	tracer  trace.Tracer
	logger  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the http.Client used for collaborator calls.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.client = c
		}
	}
}

// WithLogger sets the logger for client diagnostics.
func WithLogger(l *slog.Logger) ClientOption {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// NewClient creates an admin client rooted at baseURL (the origin serving
// /api/admin/...).
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		tracer:  otel.Tracer(tracerName),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "admin-api",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// Stats fetches the dashboard summary.
// On failure the documented placeholder numbers are returned instead.
func (c *Client) Stats(ctx context.Context) Stats {
	body, err := c.do(ctx, http.MethodGet, "/api/admin/stats", nil)
	if err != nil {
		c.logger.Warn("stats fetch failed, using placeholder data", "error", err)
		return FallbackStats()
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		c.logger.Warn("stats response unreadable, using placeholder data", "error", err)
		return FallbackStats()
	}
	return coerceStats(raw)
}

// Orders fetches the order list.
// Transport failure substitutes the placeholder list; a body that is not
// an array coerces to an empty list.
func (c *Client) Orders(ctx context.Context) []Order {
	body, err := c.do(ctx, http.MethodGet, "/api/admin/orders", nil)
	if err != nil {
		c.logger.Warn("orders fetch failed, using placeholder data", "error", err)
		return FallbackOrders()
	}

	var orders []Order
	if err := json.Unmarshal(body, &orders); err != nil {
		return []Order{}
	}
	if orders == nil {
		return []Order{}
	}
	return orders
}

// UpdateOrderStatus patches one order's status and returns the updated
// order. The caller applies the change to its view only after success.
func (c *Client) UpdateOrderStatus(ctx context.Context, orderID, status string) (Order, error) {
	if !ValidStatus(status) {
		return Order{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	body, err := c.do(ctx, http.MethodPatch, "/api/admin/orders/"+orderID,
		map[string]string{"status": status})
	if err != nil {
		return Order{}, fmt.Errorf("admin: update order %s: %w", orderID, err)
	}

	var order Order
	if err := json.Unmarshal(body, &order); err != nil {
		return Order{}, fmt.Errorf("admin: decode updated order: %w", err)
	}
	return order, nil
}

// Products fetches the product list with the same defensive handling as
// Orders.
func (c *Client) Products(ctx context.Context) []Product {
	body, err := c.do(ctx, http.MethodGet, "/api/admin/products", nil)
	if err != nil {
		c.logger.Warn("products fetch failed, using placeholder data", "error", err)
		return FallbackProducts()
	}

	var products []Product
	if err := json.Unmarshal(body, &products); err != nil {
		return []Product{}
	}
	if products == nil {
		return []Product{}
	}
	return products
}

// CreateProduct posts a new product and returns the created row.
func (c *Client) CreateProduct(ctx context.Context, p NewProduct) (Product, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/admin/products", p)
	if err != nil {
		return Product{}, fmt.Errorf("admin: create product: %w", err)
	}

	var created Product
	if err := json.Unmarshal(body, &created); err != nil {
		return Product{}, fmt.Errorf("admin: decode created product: %w", err)
	}
	return created, nil
}

// DeleteProduct removes a product. The collaborator answers 204.
func (c *Client) DeleteProduct(ctx context.Context, productID string) error {
	if _, err := c.do(ctx, http.MethodDelete, "/api/admin/products/"+productID, nil); err != nil {
		return fmt.Errorf("admin: delete product %s: %w", productID, err)
	}
	return nil
}

// do performs one traced request through the circuit breaker and returns
// the response body. Non-2xx statuses are errors.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, method+" "+path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", path),
		),
	)
	defer span.End()

	body, err := c.breaker.Execute(func() ([]byte, error) {
		var reqBody *bytes.Reader
		if payload != nil {
			data, err := json.Marshal(payload)
			if err != nil {
				return nil, fmt.Errorf("encode request: %w", err)
			}
			reqBody = bytes.NewReader(data)
		} else {
			reqBody = bytes.NewReader(nil)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, StatusError{Code: resp.StatusCode}
		}

		var buf bytes.Buffer
		if _, err := buf.ReadFrom(resp.Body); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return body, nil
}
