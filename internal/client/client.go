// Package client is a typed HTTP client for the marketplace API, used by the
// buyer-side tooling and the integration tests.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"

	"github.com/joao-fontenele/goodfood/internal/domain"
)

// APIError is a non-2xx response. It unwraps to the domain error matching
// its status so callers can use errors.Is.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest:
		return domain.ErrValidation
	case http.StatusUnauthorized:
		return domain.ErrUnauthorized
	case http.StatusForbidden:
		return domain.ErrForbidden
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		return domain.ErrStaleWrite
	}
	return nil
}

type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

// WithToken returns a copy of c that authenticates as the holder of token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

type OrderLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type loginResponse struct {
	Token string          `json:"token"`
	User  json.RawMessage `json:"user"`
}

func (c *Client) login(ctx context.Context, path, email, password string, user any) (string, error) {
	var resp loginResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return "", err
	}
	if err := json.Unmarshal(resp.User, user); err != nil {
		return "", fmt.Errorf("decode user: %w", err)
	}
	return resp.Token, nil
}

func (c *Client) LoginBuyer(ctx context.Context, email, password string) (string, *domain.Buyer, error) {
	var buyer domain.Buyer
	token, err := c.login(ctx, "/api/buyerAuth/login", email, password, &buyer)
	if err != nil {
		return "", nil, err
	}
	return token, &buyer, nil
}

func (c *Client) LoginSeller(ctx context.Context, email, password string) (string, *domain.Seller, error) {
	var seller domain.Seller
	token, err := c.login(ctx, "/api/sellerAuth/login", email, password, &seller)
	if err != nil {
		return "", nil, err
	}
	return token, &seller, nil
}

func (c *Client) Menu(ctx context.Context) ([]domain.MenuItem, error) {
	var items []domain.MenuItem
	if err := c.do(ctx, http.MethodGet, "/api/menu", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) SearchMenu(ctx context.Context, q string) ([]domain.MenuItem, error) {
	var items []domain.MenuItem
	path := "/api/menu/search?" + url.Values{"q": {q}}.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// CreateOrder submits product ids and quantities. total is advisory; the
// returned order carries the server's price.
func (c *Client) CreateOrder(ctx context.Context, buyerID string, lines []OrderLine, total int64) (*domain.Order, error) {
	req := map[string]any{"buyerId": buyerID, "items": lines, "total": total}
	var resp struct {
		Order *domain.Order `json:"order"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/orders/create", req, &resp); err != nil {
		return nil, err
	}
	return resp.Order, nil
}

func (c *Client) BuyerOrders(ctx context.Context, buyerID string) ([]domain.Order, error) {
	var orders []domain.Order
	if err := c.do(ctx, http.MethodGet, "/api/orders/buyer/"+url.PathEscape(buyerID), nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var resp struct {
		Order *domain.Order `json:"order"`
	}
	if err := c.do(ctx, http.MethodPut, "/api/orders/cancel/"+url.PathEscape(orderID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Order, nil
}

func (c *Client) Reorder(ctx context.Context, orderID, buyerID string) (*domain.Order, error) {
	req := map[string]string{"orderId": orderID, "buyerId": buyerID}
	var resp struct {
		NewOrder *domain.Order `json:"newOrder"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/orders/reorder", req, &resp); err != nil {
		return nil, err
	}
	return resp.NewOrder, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		apiErr.Message = body.Error
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
