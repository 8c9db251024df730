package orders

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/joao-fontenele/goodfood/internal/auth"
	"github.com/joao-fontenele/goodfood/internal/domain"
	"github.com/joao-fontenele/goodfood/internal/httpx"
)

type Handler struct {
	svc    *Service
	logger *slog.Logger
}

func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Mount registers the order routes on r, which is expected to sit under /api.
func (h *Handler) Mount(r chi.Router, gate *auth.Gate) {
	r.Group(func(r chi.Router) {
		r.Use(gate.Require(auth.KindBuyer))
		r.Post("/orders/create", h.HandleCreate)
		r.Get("/orders/buyer/{buyerId}", h.HandleListForBuyer)
		r.Put("/orders/cancel/{id}", h.HandleCancel)
		r.Post("/orders/reorder", h.HandleReorder)
	})

	r.Group(func(r chi.Router) {
		r.Use(gate.Require(auth.KindSeller))
		r.Get("/orders/seller/{sellerId}", h.HandleListForSeller)
		r.Get("/orders/seller/{sellerId}/new-count", h.HandleNewCount)
		r.Patch("/orders/seller/{sellerId}/mark-viewed", h.HandleMarkViewed)
		r.Patch("/orders/{orderId}", h.HandleSetStatus)
		r.Patch("/orders/{orderId}/delivery-time", h.HandleDeliveryTime)
		r.Get("/seller/orderStats", h.HandleStats)
		r.Get("/seller/status/most-ordered-items/{sellerId}", h.HandleTopItems)
	})
}

type createOrderRequest struct {
	BuyerID string     `json:"buyerId"`
	Items   []CartLine `json:"items" validate:"required,min=1,dive"`
	Total   int64      `json:"total"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "invalid create order request")
		return
	}

	buyerID, err := h.buyerFor(r.Context(), req.BuyerID)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "create order rejected")
		return
	}

	order, err := h.svc.Create(r.Context(), buyerID, req.Items, req.Total)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to create order", "buyer_id", buyerID)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusCreated, map[string]any{
		"message": "Order created successfully",
		"order":   order,
	})
}

type reorderRequest struct {
	OrderID string `json:"orderId" validate:"required"`
	BuyerID string `json:"buyerId"`
}

func (h *Handler) HandleReorder(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "invalid reorder request")
		return
	}

	buyerID, err := h.buyerFor(r.Context(), req.BuyerID)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "reorder rejected")
		return
	}

	src, err := h.svc.Get(r.Context(), req.OrderID)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to load order for reorder", "order_id", req.OrderID)
		return
	}
	if src.BuyerID != buyerID {
		httpx.WriteDomainError(w, h.logger, domain.Errorf(domain.ErrForbidden, "order belongs to another buyer"),
			"reorder rejected", "order_id", req.OrderID)
		return
	}

	order, err := h.svc.Reorder(r.Context(), req.OrderID, buyerID)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to reorder", "order_id", req.OrderID)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusCreated, map[string]any{
		"message":  "Order placed successfully",
		"newOrder": order,
	})
}

func (h *Handler) HandleListForBuyer(w http.ResponseWriter, r *http.Request) {
	buyerID := chi.URLParam(r, "buyerId")
	if err := auth.Authorize(r.Context(), auth.KindBuyer, buyerID); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "list buyer orders rejected")
		return
	}

	orders, err := h.svc.ListForBuyer(r.Context(), buyerID)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to list buyer orders", "buyer_id", buyerID)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, orders)
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	order, err := h.svc.Get(r.Context(), id)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to load order", "order_id", id)
		return
	}
	if err := auth.Authorize(r.Context(), auth.KindBuyer, order.BuyerID); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "cancel rejected", "order_id", id)
		return
	}

	order, err = h.svc.Cancel(r.Context(), id)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to cancel order", "order_id", id)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, map[string]any{
		"message": "Order canceled successfully",
		"order":   order,
	})
}

func (h *Handler) HandleListForSeller(w http.ResponseWriter, r *http.Request) {
	sellerID := chi.URLParam(r, "sellerId")
	if err := auth.Authorize(r.Context(), auth.KindSeller, sellerID); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "list seller orders rejected")
		return
	}

	orders, err := h.svc.ListForSeller(r.Context(), sellerID)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to list seller orders", "seller_id", sellerID)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, orders)
}

func (h *Handler) HandleNewCount(w http.ResponseWriter, r *http.Request) {
	sellerID := chi.URLParam(r, "sellerId")
	if err := auth.Authorize(r.Context(), auth.KindSeller, sellerID); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "new order count rejected")
		return
	}

	n, err := h.svc.NewOrderCount(r.Context(), sellerID)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to count new orders", "seller_id", sellerID)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, map[string]int{"count": n})
}

func (h *Handler) HandleMarkViewed(w http.ResponseWriter, r *http.Request) {
	sellerID := chi.URLParam(r, "sellerId")
	if err := auth.Authorize(r.Context(), auth.KindSeller, sellerID); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "mark viewed rejected")
		return
	}

	if err := h.svc.MarkViewed(r.Context(), sellerID); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to mark orders viewed", "seller_id", sellerID)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, map[string]string{"message": "Orders marked as viewed"})
}

type setStatusRequest struct {
	Status      string     `json:"status" validate:"required"`
	ReceivedAt  *time.Time `json:"receivedAt"`
	DeliveredAt *time.Time `json:"deliveredAt"`
}

func (h *Handler) HandleSetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "orderId")

	var req setStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "invalid status request")
		return
	}
	status, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "invalid status request")
		return
	}

	if _, err := h.sellerOrder(r.Context(), id); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "status change rejected", "order_id", id)
		return
	}

	at := req.ReceivedAt
	if status == domain.OrderStatusDelivered {
		at = req.DeliveredAt
	}

	order, err := h.svc.SetStatus(r.Context(), id, status, at)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to update order status", "order_id", id)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, order)
}

type deliveryTimeRequest struct {
	DeliveryTime  *time.Time `json:"deliveryTime"`
	ExtendMinutes int        `json:"extendMinutes" validate:"omitempty,min=1"`
}

func (h *Handler) HandleDeliveryTime(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "orderId")

	var req deliveryTimeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "invalid delivery time request")
		return
	}
	if req.DeliveryTime == nil && req.ExtendMinutes == 0 {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "deliveryTime or extendMinutes is required")
		return
	}

	if _, err := h.sellerOrder(r.Context(), id); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "delivery time rejected", "order_id", id)
		return
	}

	var (
		order *domain.Order
		err   error
	)
	if req.DeliveryTime != nil {
		order, err = h.svc.SetDeliveryEstimate(r.Context(), id, *req.DeliveryTime)
	} else {
		order, err = h.svc.ExtendDeliveryEstimate(r.Context(), id, time.Duration(req.ExtendMinutes)*time.Minute)
	}
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to set delivery time", "order_id", id)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, order)
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	sellerID := r.URL.Query().Get("sellerId")
	if sellerID == "" {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "sellerId is required")
		return
	}
	if err := auth.Authorize(r.Context(), auth.KindSeller, sellerID); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "order stats rejected")
		return
	}

	stats, err := h.svc.Stats(r.Context(), sellerID)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to compute order stats", "seller_id", sellerID)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, stats)
}

func (h *Handler) HandleTopItems(w http.ResponseWriter, r *http.Request) {
	sellerID := chi.URLParam(r, "sellerId")
	if err := auth.Authorize(r.Context(), auth.KindSeller, sellerID); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "top items rejected")
		return
	}

	items, err := h.svc.TopItems(r.Context(), sellerID)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to rank items", "seller_id", sellerID)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, items)
}

// buyerFor resolves the acting buyer. A buyer id in the body must match the caller.
func (h *Handler) buyerFor(ctx context.Context, requested string) (string, error) {
	p, ok := auth.PrincipalFrom(ctx)
	if !ok || p.Kind != auth.KindBuyer {
		return "", domain.Errorf(domain.ErrUnauthorized, "not authorized as buyer")
	}
	if requested != "" && requested != p.ID {
		return "", domain.Errorf(domain.ErrForbidden, "cannot place orders for another buyer")
	}
	return p.ID, nil
}

// sellerOrder loads an order the calling seller has at least one item in.
func (h *Handler) sellerOrder(ctx context.Context, id string) (*domain.Order, error) {
	order, err := h.svc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p, ok := auth.PrincipalFrom(ctx)
	if !ok || p.Kind != auth.KindSeller || !order.HasSeller(p.ID) {
		return nil, domain.Errorf(domain.ErrForbidden, "order does not contain your items")
	}
	return order, nil
}
