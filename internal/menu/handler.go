// Package menu stores sellers' menu items, buyers' liked items and product
// view counters.
package menu

import (
	"context"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/joao-fontenele/goodfood/internal/auth"
	"github.com/joao-fontenele/goodfood/internal/domain"
	"github.com/joao-fontenele/goodfood/internal/httpx"
	"github.com/joao-fontenele/goodfood/internal/validation"
)

const maxFormMemory = 8 << 20

type Store interface {
	Create(ctx context.Context, item *domain.MenuItem) error
	Get(ctx context.Context, id string) (*domain.MenuItem, error)
	ListAll(ctx context.Context) ([]domain.MenuItem, error)
	ListBySeller(ctx context.Context, sellerID string) ([]domain.MenuItem, error)
	Search(ctx context.Context, q string) ([]domain.MenuItem, error)
	Update(ctx context.Context, item *domain.MenuItem) error
	Delete(ctx context.Context, id string) error
	CategoryCounts(ctx context.Context, sellerID string) ([]domain.CategoryCount, error)
	Like(ctx context.Context, buyerID string, item *domain.MenuItem) (*domain.LikedItem, error)
	Unlike(ctx context.Context, buyerID, productID string) error
	LikedItems(ctx context.Context, buyerID string) ([]domain.LikedItem, error)
	RecordView(ctx context.Context, productID string) (*domain.ViewCounts, error)
	SellerViews(ctx context.Context, sellerID string) (int64, error)
}

type ImageStore interface {
	SaveImage(fh *multipart.FileHeader) (string, error)
	Remove(names ...string)
}

type Handler struct {
	store  Store
	images ImageStore
	logger *slog.Logger
}

func NewHandler(store Store, images ImageStore, logger *slog.Logger) *Handler {
	return &Handler{store: store, images: images, logger: logger}
}

func (h *Handler) Mount(r chi.Router, gate *auth.Gate) {
	r.Get("/menu", h.HandleList)
	r.Get("/menu/search", h.HandleSearch)
	r.Post("/seller/status/views", h.HandleRecordView)

	r.Group(func(r chi.Router) {
		r.Use(gate.Require(auth.KindSeller))
		r.Post("/menu", h.HandleCreate)
		r.Get("/menu/seller/{sellerId}", h.HandleListBySeller)
		r.Get("/menu/seller/{sellerId}/category-counts", h.HandleCategoryCounts)
		r.Patch("/menu/{id}", h.HandleUpdate)
		r.Delete("/menu/{id}", h.HandleDelete)
		r.Get("/seller/status/views", h.HandleSellerViews)
	})

	r.Group(func(r chi.Router) {
		r.Use(gate.Require(auth.KindBuyer))
		r.Post("/menu/likedItems", h.HandleLike)
		r.Get("/menu/likedItems/{buyerId}", h.HandleLikedItems)
		r.Delete("/menu/likedItems/{buyerId}/{productId}", h.HandleDeleteLiked)
	})
}

type itemForm struct {
	Name        string `form:"name" validate:"required,max=120"`
	Category    string `form:"category" validate:"required"`
	Price       int64  `form:"price" validate:"gt=0"`
	Description string `form:"description" validate:"max=1000"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "expected multipart form")
		return
	}

	var form itemForm
	if err := readItemForm(r, &form, nil); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "invalid menu item")
		return
	}
	category, err := domain.ParseCategory(form.Category)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "invalid menu item")
		return
	}

	image, err := h.saveImage(r)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to store menu image")
		return
	}

	item := &domain.MenuItem{
		SellerID:    p.ID,
		SellerName:  p.Name,
		Name:        form.Name,
		Category:    category,
		Price:       form.Price,
		Description: form.Description,
		Image:       image,
	}
	if err := h.store.Create(r.Context(), item); err != nil {
		h.images.Remove(image)
		httpx.WriteDomainError(w, h.logger, err, "failed to create menu item", "seller_id", p.ID)
		return
	}

	h.logger.Info("menu item created", "item_id", item.ID, "seller_id", p.ID)
	httpx.WriteJSON(w, h.logger, http.StatusCreated, item)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListAll(r.Context())
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to list menu items")
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, items)
}

func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "q is required")
		return
	}

	items, err := h.store.Search(r.Context(), q)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to search menu items", "q", q)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, items)
}

func (h *Handler) HandleListBySeller(w http.ResponseWriter, r *http.Request) {
	sellerID := chi.URLParam(r, "sellerId")
	if err := auth.Authorize(r.Context(), auth.KindSeller, sellerID); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "list seller menu rejected")
		return
	}

	items, err := h.store.ListBySeller(r.Context(), sellerID)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to list seller menu", "seller_id", sellerID)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, items)
}

func (h *Handler) HandleCategoryCounts(w http.ResponseWriter, r *http.Request) {
	sellerID := chi.URLParam(r, "sellerId")
	if err := auth.Authorize(r.Context(), auth.KindSeller, sellerID); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "category counts rejected")
		return
	}

	counts, err := h.store.CategoryCounts(r.Context(), sellerID)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to count categories", "seller_id", sellerID)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, counts)
}

// HandleUpdate applies only the fields present in the form.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	item, err := h.ownedItem(r)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "update menu item rejected")
		return
	}

	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "expected multipart form")
		return
	}

	form := itemForm{
		Name:        item.Name,
		Category:    string(item.Category),
		Price:       item.Price,
		Description: item.Description,
	}
	if err := readItemForm(r, &form, item); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "invalid menu item")
		return
	}
	category, err := domain.ParseCategory(form.Category)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "invalid menu item")
		return
	}

	image, err := h.saveImage(r)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to store menu image")
		return
	}

	previous := item.Image
	item.Name = form.Name
	item.Category = category
	item.Price = form.Price
	item.Description = form.Description
	if image != "" {
		item.Image = image
	}

	if err := h.store.Update(r.Context(), item); err != nil {
		h.images.Remove(image)
		httpx.WriteDomainError(w, h.logger, err, "failed to update menu item", "item_id", item.ID)
		return
	}
	if image != "" {
		h.images.Remove(previous)
	}

	h.logger.Info("menu item updated", "item_id", item.ID)
	httpx.WriteJSON(w, h.logger, http.StatusOK, item)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	item, err := h.ownedItem(r)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "delete menu item rejected")
		return
	}

	if err := h.store.Delete(r.Context(), item.ID); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to delete menu item", "item_id", item.ID)
		return
	}
	h.images.Remove(item.Image)

	h.logger.Info("menu item deleted", "item_id", item.ID)
	httpx.WriteJSON(w, h.logger, http.StatusOK, item)
}

type likeRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Action    string `json:"action" validate:"required,oneof=like unlike"`
}

func (h *Handler) HandleLike(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	var req likeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "invalid like request")
		return
	}

	if req.Action == "unlike" {
		if err := h.store.Unlike(r.Context(), p.ID, req.ProductID); err != nil {
			httpx.WriteDomainError(w, h.logger, err, "failed to unlike item", "product_id", req.ProductID)
			return
		}
		httpx.WriteJSON(w, h.logger, http.StatusOK, map[string]string{"message": "Item unliked successfully"})
		return
	}

	item, err := h.store.Get(r.Context(), req.ProductID)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to load item", "product_id", req.ProductID)
		return
	}
	if item == nil {
		httpx.WriteError(w, h.logger, http.StatusNotFound, "product not found")
		return
	}

	liked, err := h.store.Like(r.Context(), p.ID, item)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to like item", "product_id", req.ProductID)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusCreated, liked)
}

func (h *Handler) HandleLikedItems(w http.ResponseWriter, r *http.Request) {
	buyerID := chi.URLParam(r, "buyerId")
	if err := auth.Authorize(r.Context(), auth.KindBuyer, buyerID); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "liked items rejected")
		return
	}

	items, err := h.store.LikedItems(r.Context(), buyerID)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to list liked items", "buyer_id", buyerID)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, items)
}

func (h *Handler) HandleDeleteLiked(w http.ResponseWriter, r *http.Request) {
	buyerID := chi.URLParam(r, "buyerId")
	if err := auth.Authorize(r.Context(), auth.KindBuyer, buyerID); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "delete liked item rejected")
		return
	}

	productID := chi.URLParam(r, "productId")
	if err := h.store.Unlike(r.Context(), buyerID, productID); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to delete liked item", "product_id", productID)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, map[string]string{"message": "Liked item deleted successfully"})
}

type viewRequest struct {
	ProductID string `json:"productId" validate:"required"`
}

func (h *Handler) HandleRecordView(w http.ResponseWriter, r *http.Request) {
	var req viewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "invalid view request")
		return
	}

	counts, err := h.store.RecordView(r.Context(), req.ProductID)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to record view", "product_id", req.ProductID)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, counts)
}

func (h *Handler) HandleSellerViews(w http.ResponseWriter, r *http.Request) {
	sellerID := r.URL.Query().Get("sellerId")
	if sellerID == "" {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "sellerId is required")
		return
	}
	if err := auth.Authorize(r.Context(), auth.KindSeller, sellerID); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "seller views rejected")
		return
	}

	total, err := h.store.SellerViews(r.Context(), sellerID)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to load seller views", "seller_id", sellerID)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, map[string]int64{"totalViews": total})
}

// ownedItem loads the {id} item and checks it belongs to the calling seller.
func (h *Handler) ownedItem(r *http.Request) (*domain.MenuItem, error) {
	id := chi.URLParam(r, "id")
	item, err := h.store.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.Errorf(domain.ErrNotFound, "menu item not found")
	}
	if err := auth.Authorize(r.Context(), auth.KindSeller, item.SellerID); err != nil {
		return nil, err
	}
	return item, nil
}

func (h *Handler) saveImage(r *http.Request) (string, error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File["image"]) == 0 {
		return "", nil
	}
	return h.images.SaveImage(r.MultipartForm.File["image"][0])
}

// readItemForm overlays the submitted form values on dst. When existing is
// nil every field is taken from the form.
func readItemForm(r *http.Request, dst *itemForm, existing *domain.MenuItem) error {
	has := func(key string) bool {
		_, ok := r.MultipartForm.Value[key]
		return ok || existing == nil
	}

	if has("name") {
		dst.Name = strings.TrimSpace(r.FormValue("name"))
	}
	if has("category") {
		dst.Category = r.FormValue("category")
	}
	if has("description") {
		dst.Description = r.FormValue("description")
	}
	if has("price") {
		dst.Price = 0
		if raw := strings.TrimSpace(r.FormValue("price")); raw != "" {
			price, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return domain.Errorf(domain.ErrValidation, "price must be a whole number of minor units")
			}
			dst.Price = price
		}
	}
	return validation.Struct(dst)
}
