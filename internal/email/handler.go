// Package email holds the mail delivery service handler and the client other
// services use to reach it.
package email

import (
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/goodfood/internal/httpx"
)

// Handler pretends to deliver mail. It logs what it would have sent.
type Handler struct {
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

type sendResponse struct {
	Status string `json:"status"`
}

func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var msg Message
	if err := httpx.DecodeJSON(r, &msg); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "invalid mail request")
		return
	}
	if msg.Text == "" && msg.HTML == "" {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "text or html is required")
		return
	}

	h.logger.Info("email sent", "to", msg.To, "from", msg.From, "subject", msg.Subject, "html", msg.HTML != "")

	httpx.WriteJSON(w, h.logger, http.StatusOK, sendResponse{Status: "sent"})
}
