package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/joao-fontenele/goodfood/internal/auth"
	"github.com/joao-fontenele/goodfood/internal/email"
	"github.com/joao-fontenele/goodfood/internal/httpx"
)

type Mailer interface {
	Send(ctx context.Context, msg email.Message) error
}

// ContactHandler relays the public contact form to the support mailbox.
type ContactHandler struct {
	mailer  Mailer
	support string
	logger  *slog.Logger
}

func NewContactHandler(mailer Mailer, support string, logger *slog.Logger) *ContactHandler {
	return &ContactHandler{mailer: mailer, support: support, logger: logger}
}

func (h *ContactHandler) Mount(r chi.Router, _ *auth.Gate) {
	r.Post("/service/sendQuery", h.HandleSendQuery)
}

type queryRequest struct {
	QueryType string `json:"queryType" validate:"required,max=100"`
	Name      string `json:"name" validate:"required,max=120"`
	Email     string `json:"email" validate:"required,email"`
	Message   string `json:"message" validate:"required,max=5000"`
	IsMember  string `json:"isMember" validate:"required,oneof=Yes No"`
}

func (h *ContactHandler) HandleSendQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "invalid contact query")
		return
	}

	msg := email.Message{
		To:      h.support,
		Subject: fmt.Sprintf("Query from %s - %s", req.Name, req.QueryType),
		Text: fmt.Sprintf("Name: %s\nEmail: %s\nMember of GoodFood: %s\nMessage: %s\n",
			req.Name, req.Email, req.IsMember, req.Message),
	}
	if err := h.mailer.Send(r.Context(), msg); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to relay contact query", "query_type", req.QueryType)
		return
	}

	h.logger.Info("contact query relayed", "query_type", req.QueryType)
	httpx.WriteJSON(w, h.logger, http.StatusOK, map[string]string{"message": "Query sent"})
}
