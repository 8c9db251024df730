package feedback

import (
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/joao-fontenele/goodfood/internal/auth"
	"github.com/joao-fontenele/goodfood/internal/httpx"
	"github.com/joao-fontenele/goodfood/internal/validation"
)

const maxFormMemory = 16 << 20

type ImageStore interface {
	SaveImages(files []*multipart.FileHeader) ([]string, error)
	Remove(names ...string)
}

type Handler struct {
	svc    *Service
	images ImageStore
	logger *slog.Logger
}

func NewHandler(svc *Service, images ImageStore, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, images: images, logger: logger}
}

func (h *Handler) Mount(r chi.Router, gate *auth.Gate) {
	r.Get("/feedback/{orderId}", h.HandleByOrder)
	r.Get("/sellerAuth/sellers/ratings", h.HandleSellerRatings)

	r.With(gate.Require(auth.KindBuyer)).Post("/feedback/submit", h.HandleSubmit)

	r.Group(func(r chi.Router) {
		r.Use(gate.Require(auth.KindSeller))
		r.Get("/seller/status/seller/{sellerId}", h.HandleCounts)
		r.Get("/seller/status/today", h.HandleToday)
	})
}

func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "expected multipart form")
		return
	}
	if buyerID := r.FormValue("buyerId"); buyerID != "" {
		if err := auth.Authorize(r.Context(), auth.KindBuyer, buyerID); err != nil {
			httpx.WriteDomainError(w, h.logger, err, "submit feedback rejected")
			return
		}
	}

	sub := Submission{
		OrderID: strings.TrimSpace(r.FormValue("orderId")),
		Comment: strings.TrimSpace(r.FormValue("comment")),
	}
	rating, err := strconv.Atoi(strings.TrimSpace(r.FormValue("rating")))
	if err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "rating must be a number between 1 and 5")
		return
	}
	sub.Rating = rating
	if err := validation.Struct(&sub); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "invalid feedback")
		return
	}

	files := r.MultipartForm.File["images"]
	if len(files) > MaxImages {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "at most 3 images are allowed")
		return
	}
	images, err := h.images.SaveImages(files)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to store feedback images")
		return
	}
	sub.Images = images

	fb, err := h.svc.Submit(r.Context(), p.ID, sub)
	if err != nil {
		h.images.Remove(images...)
		httpx.WriteDomainError(w, h.logger, err, "failed to submit feedback", "order_id", sub.OrderID)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusCreated, map[string]any{
		"message":  "Feedback submitted successfully",
		"feedback": fb,
	})
}

func (h *Handler) HandleByOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	fb, err := h.svc.ByOrder(r.Context(), orderID)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to load feedback", "order_id", orderID)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, fb)
}

func (h *Handler) HandleCounts(w http.ResponseWriter, r *http.Request) {
	sellerID := chi.URLParam(r, "sellerId")
	if err := auth.Authorize(r.Context(), auth.KindSeller, sellerID); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "feedback counts rejected")
		return
	}

	counts, err := h.svc.Counts(r.Context(), sellerID)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to count feedback", "seller_id", sellerID)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, counts)
}

func (h *Handler) HandleToday(w http.ResponseWriter, r *http.Request) {
	sellerID := r.URL.Query().Get("sellerId")
	if sellerID == "" {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "sellerId is required")
		return
	}
	if err := auth.Authorize(r.Context(), auth.KindSeller, sellerID); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "today's feedback rejected")
		return
	}

	list, err := h.svc.Today(r.Context(), sellerID)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to list feedback", "seller_id", sellerID)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, list)
}

func (h *Handler) HandleSellerRatings(w http.ResponseWriter, r *http.Request) {
	ratings, err := h.svc.SellerRatings(r.Context())
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to list seller ratings")
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, ratings)
}
