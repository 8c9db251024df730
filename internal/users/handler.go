package users

import (
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/joao-fontenele/goodfood/internal/auth"
	"github.com/joao-fontenele/goodfood/internal/httpx"
	"github.com/joao-fontenele/goodfood/internal/validation"
)

const maxFormMemory = 8 << 20

type ImageStore interface {
	SaveImage(fh *multipart.FileHeader) (string, error)
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
	r.Post("/buyerAuth/register", h.HandleRegisterBuyer)
	r.Post("/buyerAuth/verify-email", h.HandleVerifyBuyer)
	r.Post("/buyerAuth/login", h.HandleLogin(auth.KindBuyer))
	r.Post("/buyerAuth/forgot-password", h.HandleForgotPassword(auth.KindBuyer))
	r.Put("/buyerAuth/reset-password", h.HandleResetPassword(auth.KindBuyer))

	r.Post("/sellerAuth/register", h.HandleRegisterSeller)
	r.Get("/sellerAuth/verify-email", h.HandleVerifySeller)
	r.Post("/sellerAuth/login", h.HandleLogin(auth.KindSeller))
	r.Post("/sellerAuth/forgot-password", h.HandleForgotPassword(auth.KindSeller))
	r.Put("/sellerAuth/reset-password", h.HandleResetPassword(auth.KindSeller))

	r.Group(func(r chi.Router) {
		r.Use(gate.Require(auth.KindBuyer))
		r.Get("/buyerAuth/profile", h.HandleProfile)
		r.Put("/buyerAuth/{id}", h.HandleUpdateBuyer)
	})

	r.With(gate.Require(auth.KindSeller)).Get("/sellerAuth/profile", h.HandleProfile)
}

func (h *Handler) HandleRegisterBuyer(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "expected multipart form")
		return
	}

	reg := BuyerRegistration{
		Name:          strings.TrimSpace(r.FormValue("name")),
		Email:         strings.TrimSpace(r.FormValue("email")),
		ContactNumber: strings.TrimSpace(r.FormValue("contactNumber")),
		Password:      r.FormValue("password"),
	}
	if raw := r.FormValue("address"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &reg.Address); err != nil {
			httpx.WriteError(w, h.logger, http.StatusBadRequest, "address must be valid JSON")
			return
		}
	}
	if err := validation.Struct(&reg); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "invalid registration")
		return
	}

	picture, err := h.saveImage(r, "profilePicture")
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to store profile picture")
		return
	}
	reg.ProfilePicture = picture

	pending, err := h.svc.RegisterBuyer(r.Context(), reg)
	if err != nil {
		h.images.Remove(picture)
		httpx.WriteDomainError(w, h.logger, err, "failed to register buyer")
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusCreated, map[string]any{
		"message": "User registered successfully. Please verify your email.",
		"user":    pending,
	})
}

type verifyCodeRequest struct {
	UserID string `json:"userId" validate:"required"`
	Code   string `json:"code" validate:"required,len=6,numeric"`
}

func (h *Handler) HandleVerifyBuyer(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "invalid verification request")
		return
	}

	buyer, err := h.svc.VerifyBuyer(r.Context(), req.UserID, req.Code)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to verify buyer", "pending_id", req.UserID)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, map[string]any{
		"message": "Email verified successfully!",
		"user":    buyer,
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) HandleLogin(kind auth.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteDomainError(w, h.logger, err, "invalid login request")
			return
		}

		var (
			token string
			user  any
			err   error
		)
		if kind == auth.KindSeller {
			token, user, err = h.svc.LoginSeller(r.Context(), req.Email, req.Password)
		} else {
			token, user, err = h.svc.LoginBuyer(r.Context(), req.Email, req.Password)
		}
		if err != nil {
			httpx.WriteDomainError(w, h.logger, err, "login failed", "kind", kind)
			return
		}
		httpx.WriteJSON(w, h.logger, http.StatusOK, map[string]any{"token": token, "user": user})
	}
}

func (h *Handler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	var (
		user any
		err  error
	)
	if p.Kind == auth.KindSeller {
		user, err = h.svc.Seller(r.Context(), p.ID)
	} else {
		user, err = h.svc.Buyer(r.Context(), p.ID)
	}
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to load profile", "user_id", p.ID)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, map[string]any{"user": user})
}

func (h *Handler) HandleUpdateBuyer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := auth.Authorize(r.Context(), auth.KindBuyer, id); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "update buyer rejected")
		return
	}

	var upd BuyerUpdate
	if err := httpx.DecodeJSON(r, &upd); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "invalid profile update")
		return
	}

	buyer, err := h.svc.UpdateBuyer(r.Context(), id, upd)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to update buyer", "buyer_id", id)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, buyer)
}

func (h *Handler) HandleRegisterSeller(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "expected multipart form")
		return
	}

	reg := SellerRegistration{
		Name:     strings.TrimSpace(r.FormValue("name")),
		Email:    strings.TrimSpace(r.FormValue("email")),
		Password: r.FormValue("password"),
	}
	if err := validation.Struct(&reg); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "invalid registration")
		return
	}

	picture, err := h.saveImage(r, "profilePicture")
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to store profile picture")
		return
	}
	reg.ProfilePicture = picture

	token, seller, err := h.svc.RegisterSeller(r.Context(), reg)
	if err != nil {
		h.images.Remove(picture)
		httpx.WriteDomainError(w, h.logger, err, "failed to register seller")
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusCreated, map[string]any{
		"message": "User registered successfully. Please verify your email.",
		"user":    seller,
		"token":   token,
	})
}

func (h *Handler) HandleVerifySeller(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.VerifySellerEmail(r.Context(), r.URL.Query().Get("token")); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to verify seller")
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, map[string]string{"message": "Email verified successfully."})
}

type forgotRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *Handler) HandleForgotPassword(kind auth.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req forgotRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteDomainError(w, h.logger, err, "invalid reset request")
			return
		}
		if err := h.svc.ForgotPassword(r.Context(), kind, req.Email); err != nil {
			httpx.WriteDomainError(w, h.logger, err, "failed to start password reset", "kind", kind)
			return
		}
		httpx.WriteJSON(w, h.logger, http.StatusOK, map[string]string{"message": "Password reset email sent"})
	}
}

type resetRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

func (h *Handler) HandleResetPassword(kind auth.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req resetRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteDomainError(w, h.logger, err, "invalid reset request")
			return
		}
		if err := h.svc.ResetPassword(r.Context(), kind, req.Token, req.Password); err != nil {
			httpx.WriteDomainError(w, h.logger, err, "failed to reset password", "kind", kind)
			return
		}
		httpx.WriteJSON(w, h.logger, http.StatusOK, map[string]string{"message": "Password has been reset"})
	}
}

func (h *Handler) saveImage(r *http.Request, field string) (string, error) {
	files := r.MultipartForm.File[field]
	if len(files) == 0 {
		return "", nil
	}
	return h.images.SaveImage(files[0])
}

var _ auth.Resolver = (*Service)(nil)
