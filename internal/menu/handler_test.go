package menu

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/joao-fontenele/goodfood/internal/auth"
	"github.com/joao-fontenele/goodfood/internal/domain"
)

type memStore struct {
	items map[string]*domain.MenuItem
	liked map[string]domain.LikedItem
	views map[string]int64
	seq   int
}

func newMemStore() *memStore {
	return &memStore{
		items: map[string]*domain.MenuItem{},
		liked: map[string]domain.LikedItem{},
		views: map[string]int64{},
	}
}

func (m *memStore) Create(_ context.Context, item *domain.MenuItem) error {
	m.seq++
	item.ID = "item-" + string(rune('0'+m.seq))
	cp := *item
	m.items[item.ID] = &cp
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*domain.MenuItem, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	cp := *item
	return &cp, nil
}

func (m *memStore) ListAll(context.Context) ([]domain.MenuItem, error) {
	out := []domain.MenuItem{}
	for _, item := range m.items {
		out = append(out, *item)
	}
	return out, nil
}

func (m *memStore) ListBySeller(_ context.Context, sellerID string) ([]domain.MenuItem, error) {
	out := []domain.MenuItem{}
	for _, item := range m.items {
		if item.SellerID == sellerID {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (m *memStore) Search(_ context.Context, q string) ([]domain.MenuItem, error) {
	out := []domain.MenuItem{}
	for _, item := range m.items {
		if strings.Contains(strings.ToLower(item.Name), strings.ToLower(q)) {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (m *memStore) Update(_ context.Context, item *domain.MenuItem) error {
	cp := *item
	m.items[item.ID] = &cp
	return nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	delete(m.items, id)
	return nil
}

func (m *memStore) CategoryCounts(_ context.Context, sellerID string) ([]domain.CategoryCount, error) {
	return []domain.CategoryCount{}, nil
}

func (m *memStore) Like(_ context.Context, buyerID string, item *domain.MenuItem) (*domain.LikedItem, error) {
	key := buyerID + "/" + item.ID
	if _, ok := m.liked[key]; ok {
		return nil, domain.Errorf(domain.ErrConflict, "item is already liked")
	}
	liked := domain.LikedItem{BuyerID: buyerID, ProductID: item.ID, Name: item.Name, Price: item.Price}
	m.liked[key] = liked
	return &liked, nil
}

func (m *memStore) Unlike(_ context.Context, buyerID, productID string) error {
	key := buyerID + "/" + productID
	if _, ok := m.liked[key]; !ok {
		return domain.Errorf(domain.ErrNotFound, "liked item not found")
	}
	delete(m.liked, key)
	return nil
}

func (m *memStore) LikedItems(_ context.Context, buyerID string) ([]domain.LikedItem, error) {
	out := []domain.LikedItem{}
	for _, l := range m.liked {
		if l.BuyerID == buyerID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memStore) RecordView(_ context.Context, productID string) (*domain.ViewCounts, error) {
	item, ok := m.items[productID]
	if !ok {
		return nil, domain.Errorf(domain.ErrNotFound, "product not found")
	}
	item.Views++
	m.views[item.SellerID]++
	return &domain.ViewCounts{ProductViews: item.Views, SellerViews: m.views[item.SellerID]}, nil
}

func (m *memStore) SellerViews(_ context.Context, sellerID string) (int64, error) {
	v, ok := m.views[sellerID]
	if !ok {
		return 0, domain.Errorf(domain.ErrNotFound, "seller stats not found")
	}
	return v, nil
}

type fakeImages struct {
	saved   []string
	removed []string
}

func (f *fakeImages) SaveImage(fh *multipart.FileHeader) (string, error) {
	name := "1700000000000-" + fh.Filename
	f.saved = append(f.saved, name)
	return name, nil
}

func (f *fakeImages) Remove(names ...string) {
	for _, n := range names {
		if n != "" {
			f.removed = append(f.removed, n)
		}
	}
}

type resolver struct{}

func (resolver) ResolvePrincipal(_ context.Context, kind auth.Kind, id string) (*auth.Principal, error) {
	return &auth.Principal{Kind: kind, ID: id, Name: "Name of " + id}, nil
}

type testServer struct {
	store  *memStore
	images *fakeImages
	tokens *auth.Tokens
	router http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens, err := auth.NewTokens("secret", time.Hour)
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	s := &testServer{store: newMemStore(), images: &fakeImages{}, tokens: tokens}

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		NewHandler(s.store, s.images, logger).Mount(r, auth.NewGate(tokens, resolver{}, logger))
	})
	s.router = r
	return s
}

func (s *testServer) send(t *testing.T, kind auth.Kind, id string, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if id != "" {
		token, err := s.tokens.Issue(kind, id)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func multipartRequest(t *testing.T, method, path string, fields map[string]string, file string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if file != "" {
		fw, err := mw.CreateFormFile("image", file)
		if err != nil {
			t.Fatalf("create file: %v", err)
		}
		_, _ = fw.Write([]byte("image bytes"))
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHandler_CreateAndUpdate(t *testing.T) {
	s := newTestServer(t)

	rec := s.send(t, auth.KindSeller, "s1", multipartRequest(t, http.MethodPost, "/api/menu", map[string]string{
		"name": "Paneer Tikka", "category": "Appetizers", "price": "450", "description": "smoky",
	}, "tikka.png"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created domain.MenuItem
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.SellerID != "s1" || created.SellerName != "Name of s1" || created.Image != "1700000000000-tikka.png" {
		t.Errorf("unexpected item %+v", created)
	}

	rec = s.send(t, auth.KindSeller, "s2", multipartRequest(t, http.MethodPatch, "/api/menu/"+created.ID, map[string]string{"price": "1"}, ""))
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for another seller, got %d", rec.Code)
	}

	rec = s.send(t, auth.KindSeller, "s1", multipartRequest(t, http.MethodPatch, "/api/menu/"+created.ID, map[string]string{"price": "500"}, "new.png"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	stored := s.store.items[created.ID]
	if stored.Price != 500 || stored.Name != "Paneer Tikka" || stored.Image != "1700000000000-new.png" {
		t.Errorf("expected partial update, got %+v", stored)
	}
	if len(s.images.removed) != 1 || s.images.removed[0] != "1700000000000-tikka.png" {
		t.Errorf("expected old image removed, got %v", s.images.removed)
	}
}

func TestHandler_CreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
		want   string
	}{
		{"missing name", map[string]string{"category": "Sides", "price": "10"}, "name is required"},
		{"bad category", map[string]string{"name": "x", "category": "Soup", "price": "10"}, `unknown category "Soup"`},
		{"zero price", map[string]string{"name": "x", "category": "Sides", "price": "0"}, "price must be greater than 0"},
		{"decimal price", map[string]string{"name": "x", "category": "Sides", "price": "1.5"}, "price must be a whole number of minor units"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			rec := s.send(t, auth.KindSeller, "s1", multipartRequest(t, http.MethodPost, "/api/menu", tt.fields, ""))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			var resp map[string]string
			_ = json.Unmarshal(rec.Body.Bytes(), &resp)
			if resp["error"] != tt.want {
				t.Errorf("expected %q, got %q", tt.want, resp["error"])
			}
		})
	}

	s := newTestServer(t)
	rec := s.send(t, auth.KindBuyer, "b1", multipartRequest(t, http.MethodPost, "/api/menu", map[string]string{}, ""))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for buyer, got %d", rec.Code)
	}
}

func TestHandler_ListBySellerForbidden(t *testing.T) {
	s := newTestServer(t)
	rec := s.send(t, auth.KindSeller, "s2", httptest.NewRequest(http.MethodGet, "/api/menu/seller/s1", nil))
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestHandler_LikedItems(t *testing.T) {
	s := newTestServer(t)
	s.store.items["A"] = &domain.MenuItem{ID: "A", SellerID: "s1", Name: "Samosa", Price: 100}

	like := `{"productId":"A","action":"like"}`
	if rec := s.send(t, auth.KindBuyer, "b1", jsonRequest(http.MethodPost, "/api/menu/likedItems", like)); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if rec := s.send(t, auth.KindBuyer, "b1", jsonRequest(http.MethodPost, "/api/menu/likedItems", like)); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for duplicate like, got %d", rec.Code)
	}
	if rec := s.send(t, auth.KindBuyer, "b1", jsonRequest(http.MethodPost, "/api/menu/likedItems", `{"productId":"Z","action":"like"}`)); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown product, got %d", rec.Code)
	}
	if rec := s.send(t, auth.KindBuyer, "b1", jsonRequest(http.MethodPost, "/api/menu/likedItems", `{"productId":"A","action":"love"}`)); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad action, got %d", rec.Code)
	}

	rec := s.send(t, auth.KindBuyer, "b1", httptest.NewRequest(http.MethodGet, "/api/menu/likedItems/b1", nil))
	var items []domain.LikedItem
	_ = json.Unmarshal(rec.Body.Bytes(), &items)
	if len(items) != 1 {
		t.Errorf("expected 1 liked item, got %d", len(items))
	}

	if rec := s.send(t, auth.KindBuyer, "b2", httptest.NewRequest(http.MethodGet, "/api/menu/likedItems/b1", nil)); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}

	if rec := s.send(t, auth.KindBuyer, "b1", httptest.NewRequest(http.MethodDelete, "/api/menu/likedItems/b1/A", nil)); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_Views(t *testing.T) {
	s := newTestServer(t)
	s.store.items["A"] = &domain.MenuItem{ID: "A", SellerID: "s1"}

	rec := s.send(t, "", "", jsonRequest(http.MethodPost, "/api/seller/status/views", `{"productId":"A"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var counts domain.ViewCounts
	_ = json.Unmarshal(rec.Body.Bytes(), &counts)
	if counts.ProductViews != 1 || counts.SellerViews != 1 {
		t.Errorf("unexpected counts %+v", counts)
	}

	if rec := s.send(t, "", "", jsonRequest(http.MethodPost, "/api/seller/status/views", `{"productId":"Z"}`)); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	rec = s.send(t, auth.KindSeller, "s1", httptest.NewRequest(http.MethodGet, "/api/seller/status/views?sellerId=s1", nil))
	var total map[string]int64
	_ = json.Unmarshal(rec.Body.Bytes(), &total)
	if total["totalViews"] != 1 {
		t.Errorf("expected 1, got %v", total)
	}

	if rec := s.send(t, auth.KindSeller, "s9", httptest.NewRequest(http.MethodGet, "/api/seller/status/views?sellerId=s9", nil)); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 when nothing recorded, got %d", rec.Code)
	}
}

func TestHandler_Search(t *testing.T) {
	s := newTestServer(t)
	s.store.items["A"] = &domain.MenuItem{ID: "A", Name: "Mango Lassi"}
	s.store.items["B"] = &domain.MenuItem{ID: "B", Name: "Samosa"}

	rec := s.send(t, "", "", httptest.NewRequest(http.MethodGet, "/api/menu/search?q=lassi", nil))
	var items []domain.MenuItem
	_ = json.Unmarshal(rec.Body.Bytes(), &items)
	if len(items) != 1 || items[0].ID != "A" {
		t.Errorf("unexpected results %+v", items)
	}

	if rec := s.send(t, "", "", httptest.NewRequest(http.MethodGet, "/api/menu/search", nil)); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without q, got %d", rec.Code)
	}
}
