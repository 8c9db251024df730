// Package users owns buyer and seller accounts: registration, e-mail
// verification, login, profiles and password resets.
package users

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/joao-fontenele/goodfood/internal/auth"
	"github.com/joao-fontenele/goodfood/internal/domain"
	"github.com/joao-fontenele/goodfood/internal/email"
)

type Repository interface {
	Account(ctx context.Context, kind auth.Kind, email string) (*Account, error)
	SetResetToken(ctx context.Context, kind auth.Kind, id, token string, expires time.Time) error
	ConsumeResetToken(ctx context.Context, kind auth.Kind, token, passwordHash string, now time.Time) (bool, error)
	Buyer(ctx context.Context, id string) (*domain.Buyer, error)
	UpdateBuyer(ctx context.Context, b *domain.Buyer) error
	PendingExists(ctx context.Context, email string) (bool, error)
	CreatePending(ctx context.Context, p *PendingRegistration) error
	Pending(ctx context.Context, id string) (*PendingRegistration, error)
	DeletePending(ctx context.Context, id string) error
	PromotePending(ctx context.Context, p *PendingRegistration, now time.Time) (*domain.Buyer, error)
	PurgePending(ctx context.Context, cutoff time.Time) (int64, error)
	CreateSeller(ctx context.Context, s *domain.Seller, passwordHash string) error
	Seller(ctx context.Context, id string) (*domain.Seller, error)
	MarkSellerVerified(ctx context.Context, id string) error
}

type Mailer interface {
	Send(ctx context.Context, msg email.Message) error
}

var (
	errUserNotFound    = domain.Errorf(domain.ErrNotFound, "user not found")
	errBadCredentials  = domain.Errorf(domain.ErrValidation, "password does not match")
	errUnknownEmail    = domain.Errorf(domain.ErrValidation, "user not found")
	errBadResetToken   = domain.Errorf(domain.ErrValidation, "invalid or expired token")
	errBadCode         = domain.Errorf(domain.ErrValidation, "invalid verification code")
	errPendingNotFound = domain.Errorf(domain.ErrValidation, "registration not found or expired")
)

var digits = regexp.MustCompile(`^[0-9]{12,19}$`)

// Links are the public base URLs embedded in outgoing mail.
type Links struct {
	App string
	API string
}

type Service struct {
	repo       Repository
	tokens     *auth.Tokens
	mailer     Mailer
	links      Links
	logger     *slog.Logger
	now        func() time.Time
	pendingTTL time.Duration
	resetTTL   time.Duration
	verifyTTL  time.Duration
	bcryptCost int
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTTLs overrides how long pending registrations, reset tokens and seller
// verification links stay valid. Zero keeps the default.
func WithTTLs(pending, reset, verify time.Duration) Option {
	return func(s *Service) {
		if pending > 0 {
			s.pendingTTL = pending
		}
		if reset > 0 {
			s.resetTTL = reset
		}
		if verify > 0 {
			s.verifyTTL = verify
		}
	}
}

// WithBcryptCost is meant for tests.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

func NewService(repo Repository, tokens *auth.Tokens, mailer Mailer, links Links, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		tokens:     tokens,
		mailer:     mailer,
		links:      links,
		logger:     logger,
		now:        time.Now,
		pendingTTL: 24 * time.Hour,
		resetTTL:   time.Hour,
		verifyTTL:  24 * time.Hour,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type BuyerRegistration struct {
	Name           string         `json:"name" validate:"required,max=100"`
	Email          string         `json:"email" validate:"required,email"`
	ContactNumber  string         `json:"contactNumber" validate:"required,max=20"`
	Address        domain.Address `json:"address"`
	Password       string         `json:"password" validate:"required,min=6,max=72"`
	ProfilePicture string         `json:"-"`
}

// RegisterBuyer stores a pending registration and mails its verification
// code. Nothing is kept when the mail cannot be sent.
func (s *Service) RegisterBuyer(ctx context.Context, reg BuyerRegistration) (*domain.PendingBuyer, error) {
	existing, err := s.repo.Account(ctx, auth.KindBuyer, reg.Email)
	if err != nil {
		return nil, fmt.Errorf("lookup buyer: %w", err)
	}
	if existing != nil {
		return nil, domain.Errorf(domain.ErrConflict, "user already exists")
	}
	pending, err := s.repo.PendingExists(ctx, reg.Email)
	if err != nil {
		return nil, fmt.Errorf("lookup pending buyer: %w", err)
	}
	if pending {
		return nil, domain.Errorf(domain.ErrConflict, "user already registered but not verified, please check your email")
	}

	hash, err := s.hash(reg.Password)
	if err != nil {
		return nil, err
	}
	code, err := verificationCode()
	if err != nil {
		return nil, err
	}

	p := &PendingRegistration{
		PendingBuyer: domain.PendingBuyer{
			Name:           reg.Name,
			Email:          reg.Email,
			ContactNumber:  reg.ContactNumber,
			Address:        reg.Address,
			ProfilePicture: reg.ProfilePicture,
			CreatedAt:      s.now(),
		},
		PasswordHash: hash,
		Code:         code,
	}
	if err := s.repo.CreatePending(ctx, p); err != nil {
		return nil, fmt.Errorf("create pending buyer: %w", err)
	}

	err = s.mailer.Send(ctx, email.Message{
		To:      p.Email,
		Subject: "Verify your email to create your GoodFood account",
		HTML: fmt.Sprintf("<p>Your verification code for registration on GoodFood is <strong>%s</strong>. "+
			"Do not share this code with anyone.</p>", code),
	})
	if err != nil {
		if delErr := s.repo.DeletePending(context.WithoutCancel(ctx), p.ID); delErr != nil {
			s.logger.Error("failed to drop pending buyer", "error", delErr, "pending_id", p.ID)
		}
		return nil, fmt.Errorf("send verification code: %w", err)
	}

	s.logger.Info("buyer registration pending", "pending_id", p.ID)
	return &p.PendingBuyer, nil
}

// VerifyBuyer turns a pending registration into a buyer when code matches.
func (s *Service) VerifyBuyer(ctx context.Context, pendingID, code string) (*domain.Buyer, error) {
	p, err := s.repo.Pending(ctx, pendingID)
	if err != nil {
		return nil, fmt.Errorf("load pending buyer: %w", err)
	}
	if p == nil || s.now().Sub(p.CreatedAt) > s.pendingTTL {
		return nil, errPendingNotFound
	}
	if subtle.ConstantTimeCompare([]byte(p.Code), []byte(code)) != 1 {
		return nil, errBadCode
	}

	buyer, err := s.repo.PromotePending(ctx, p, s.now())
	if err != nil {
		return nil, fmt.Errorf("promote pending buyer: %w", err)
	}
	s.logger.Info("buyer verified", "buyer_id", buyer.ID)
	return buyer, nil
}

func (s *Service) LoginBuyer(ctx context.Context, emailAddr, password string) (string, *domain.Buyer, error) {
	acc, err := s.login(ctx, auth.KindBuyer, emailAddr, password)
	if err != nil {
		return "", nil, err
	}
	buyer, err := s.Buyer(ctx, acc.ID)
	if err != nil {
		return "", nil, err
	}
	token, err := s.tokens.Issue(auth.KindBuyer, acc.ID)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}
	return token, buyer, nil
}

func (s *Service) Buyer(ctx context.Context, id string) (*domain.Buyer, error) {
	buyer, err := s.repo.Buyer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load buyer: %w", err)
	}
	if buyer == nil {
		return nil, errUserNotFound
	}
	return buyer, nil
}

// PaymentInput is what the profile form submits. Only the last four digits
// and the expiry of a card are ever kept.
type PaymentInput struct {
	Method     domain.PaymentMethod `json:"paymentMethod" validate:"omitempty,oneof=cash_on_delivery card upi"`
	CardNumber string               `json:"cardNumber"`
	CardExpiry string               `json:"cardExpiry"`
	UPIID      string               `json:"upiId"`
}

type BuyerUpdate struct {
	Name          string          `json:"name" validate:"required,max=100"`
	Email         string          `json:"email" validate:"required,email"`
	ContactNumber string          `json:"contactNumber" validate:"required,max=20"`
	Address       *domain.Address `json:"address"`
	Payment       PaymentInput    `json:"payment"`
}

func (s *Service) UpdateBuyer(ctx context.Context, id string, upd BuyerUpdate) (*domain.Buyer, error) {
	buyer, err := s.Buyer(ctx, id)
	if err != nil {
		return nil, err
	}

	payment, err := paymentPreference(upd.Payment)
	if err != nil {
		return nil, err
	}

	buyer.Name = upd.Name
	buyer.Email = upd.Email
	buyer.ContactNumber = upd.ContactNumber
	if upd.Address != nil {
		buyer.Address = *upd.Address
	}
	buyer.Payment = payment

	if err := s.repo.UpdateBuyer(ctx, buyer); err != nil {
		return nil, fmt.Errorf("update buyer: %w", err)
	}
	s.logger.Info("buyer updated", "buyer_id", id, "payment_method", payment.Method)
	return buyer, nil
}

// paymentPreference keeps card details only for card, the UPI id only for
// upi, and clears both otherwise.
func paymentPreference(in PaymentInput) (domain.PaymentPreference, error) {
	pref := domain.PaymentPreference{Method: in.Method}
	switch in.Method {
	case domain.PaymentCard:
		number := strings.ReplaceAll(strings.ReplaceAll(in.CardNumber, " ", ""), "-", "")
		if !digits.MatchString(number) {
			return pref, domain.Errorf(domain.ErrValidation, "cardNumber must be 12 to 19 digits")
		}
		if in.CardExpiry == "" {
			return pref, domain.Errorf(domain.ErrValidation, "cardExpiry is required")
		}
		pref.CardLast4 = number[len(number)-4:]
		pref.CardExpiry = in.CardExpiry
	case domain.PaymentUPI:
		if in.UPIID == "" {
			return pref, domain.Errorf(domain.ErrValidation, "upiId is required")
		}
		pref.UPIID = in.UPIID
	}
	return pref, nil
}

type SellerRegistration struct {
	Name           string `json:"name" validate:"required,max=100"`
	Email          string `json:"email" validate:"required,email"`
	Password       string `json:"password" validate:"required,min=6,max=72"`
	ProfilePicture string `json:"-"`
}

// RegisterSeller creates the account right away and mails a verification
// link. A failed mail is logged; the seller can still sign in.
func (s *Service) RegisterSeller(ctx context.Context, reg SellerRegistration) (string, *domain.Seller, error) {
	existing, err := s.repo.Account(ctx, auth.KindSeller, reg.Email)
	if err != nil {
		return "", nil, fmt.Errorf("lookup seller: %w", err)
	}
	if existing != nil {
		return "", nil, domain.Errorf(domain.ErrConflict, "user already exists")
	}

	hash, err := s.hash(reg.Password)
	if err != nil {
		return "", nil, err
	}

	seller := &domain.Seller{
		Name:           reg.Name,
		Email:          reg.Email,
		ProfilePicture: reg.ProfilePicture,
		CreatedAt:      s.now(),
	}
	if err := s.repo.CreateSeller(ctx, seller, hash); err != nil {
		return "", nil, fmt.Errorf("create seller: %w", err)
	}

	link, err := s.tokens.IssuePurpose(auth.KindSeller, seller.ID, auth.PurposeEmailVerification, s.verifyTTL)
	if err != nil {
		return "", nil, fmt.Errorf("issue verification token: %w", err)
	}
	err = s.mailer.Send(ctx, email.Message{
		To:      seller.Email,
		Subject: "Verify your GoodFood seller account",
		HTML: fmt.Sprintf(`<p>Click <a href="%s/api/sellerAuth/verify-email?token=%s">here</a> to verify your email.</p>`,
			s.links.API, link),
	})
	if err != nil {
		s.logger.Error("failed to send seller verification", "error", err, "seller_id", seller.ID)
	}

	token, err := s.tokens.Issue(auth.KindSeller, seller.ID)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}
	s.logger.Info("seller registered", "seller_id", seller.ID)
	return token, seller, nil
}

func (s *Service) VerifySellerEmail(ctx context.Context, token string) error {
	id, err := s.tokens.ParsePurpose(token, auth.PurposeEmailVerification)
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return domain.Errorf(domain.ErrValidation, "token has expired")
	case err != nil:
		return domain.Errorf(domain.ErrValidation, "invalid token")
	}

	if err := s.repo.MarkSellerVerified(ctx, id); err != nil {
		return fmt.Errorf("verify seller %s: %w", id, err)
	}
	s.logger.Info("seller verified", "seller_id", id)
	return nil
}

func (s *Service) LoginSeller(ctx context.Context, emailAddr, password string) (string, *domain.Seller, error) {
	acc, err := s.login(ctx, auth.KindSeller, emailAddr, password)
	if err != nil {
		return "", nil, err
	}
	seller, err := s.Seller(ctx, acc.ID)
	if err != nil {
		return "", nil, err
	}
	token, err := s.tokens.Issue(auth.KindSeller, acc.ID)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}
	return token, seller, nil
}

func (s *Service) Seller(ctx context.Context, id string) (*domain.Seller, error) {
	seller, err := s.repo.Seller(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load seller: %w", err)
	}
	if seller == nil {
		return nil, errUserNotFound
	}
	return seller, nil
}

// ForgotPassword mails a one-hour reset link to the account behind emailAddr.
func (s *Service) ForgotPassword(ctx context.Context, kind auth.Kind, emailAddr string) error {
	acc, err := s.repo.Account(ctx, kind, emailAddr)
	if err != nil {
		return fmt.Errorf("lookup account: %w", err)
	}
	if acc == nil {
		return errUserNotFound
	}

	token, err := resetToken()
	if err != nil {
		return err
	}
	if err := s.repo.SetResetToken(ctx, kind, acc.ID, token, s.now().Add(s.resetTTL)); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	err = s.mailer.Send(ctx, email.Message{
		To:      acc.Email,
		Subject: "Password Reset Request",
		Text: "We received a request to reset your password. If you did not request this, ignore this email.\n\n" +
			s.links.App + "/reset-password?token=" + token,
	})
	if err != nil {
		return fmt.Errorf("send reset link: %w", err)
	}
	s.logger.Info("password reset requested", "kind", kind, "user_id", acc.ID)
	return nil
}

func (s *Service) ResetPassword(ctx context.Context, kind auth.Kind, token, password string) error {
	if token == "" {
		return errBadResetToken
	}
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	ok, err := s.repo.ConsumeResetToken(ctx, kind, token, hash, s.now())
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	if !ok {
		return errBadResetToken
	}
	return nil
}

// PurgeExpiredPending drops pending registrations older than the pending TTL.
func (s *Service) PurgeExpiredPending(ctx context.Context) (int64, error) {
	n, err := s.repo.PurgePending(ctx, s.now().Add(-s.pendingTTL))
	if err != nil {
		return 0, fmt.Errorf("purge pending buyers: %w", err)
	}
	if n > 0 {
		s.logger.Info("purged expired registrations", "count", n)
	}
	return n, nil
}

// ResolvePrincipal looks id up in the store of kind. Unknown ids resolve to nil.
func (s *Service) ResolvePrincipal(ctx context.Context, kind auth.Kind, id string) (*auth.Principal, error) {
	switch kind {
	case auth.KindBuyer:
		b, err := s.repo.Buyer(ctx, id)
		if err != nil || b == nil {
			return nil, err
		}
		return &auth.Principal{Kind: kind, ID: b.ID, Name: b.Name, Email: b.Email}, nil
	case auth.KindSeller:
		sl, err := s.repo.Seller(ctx, id)
		if err != nil || sl == nil {
			return nil, err
		}
		return &auth.Principal{Kind: kind, ID: sl.ID, Name: sl.Name, Email: sl.Email}, nil
	}
	return nil, nil
}

func (s *Service) login(ctx context.Context, kind auth.Kind, emailAddr, password string) (*Account, error) {
	acc, err := s.repo.Account(ctx, kind, emailAddr)
	if err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if acc == nil {
		return nil, errUnknownEmail
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return nil, errBadCredentials
	}
	return acc, nil
}

func (s *Service) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func verificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func resetToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
