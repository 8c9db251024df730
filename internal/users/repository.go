package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/joao-fontenele/goodfood/internal/auth"
	"github.com/joao-fontenele/goodfood/internal/domain"
)

// Account is the credential view shared by buyers and sellers.
type Account struct {
	ID           string `db:"id"`
	Name         string `db:"name"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
}

// PendingRegistration is a buyer sign-up waiting for its code.
type PendingRegistration struct {
	domain.PendingBuyer
	PasswordHash string
	Code         string
}

type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

type buyerRow struct {
	ID             string         `db:"id"`
	Name           string         `db:"name"`
	Email          string         `db:"email"`
	ContactNumber  string         `db:"contact_number"`
	Address        []byte         `db:"address"`
	ProfilePicture sql.NullString `db:"profile_picture"`
	PaymentMethod  sql.NullString `db:"payment_method"`
	CardLast4      sql.NullString `db:"card_last4"`
	CardExpiry     sql.NullString `db:"card_expiry"`
	UPIID          sql.NullString `db:"upi_id"`
	EmailVerified  bool           `db:"email_verified"`
	CreatedAt      time.Time      `db:"created_at"`
}

func (r buyerRow) toDomain() (*domain.Buyer, error) {
	b := &domain.Buyer{
		ID:             r.ID,
		Name:           r.Name,
		Email:          r.Email,
		ContactNumber:  r.ContactNumber,
		ProfilePicture: r.ProfilePicture.String,
		Payment: domain.PaymentPreference{
			Method:     domain.PaymentMethod(r.PaymentMethod.String),
			CardLast4:  r.CardLast4.String,
			CardExpiry: r.CardExpiry.String,
			UPIID:      r.UPIID.String,
		},
		EmailVerified: r.EmailVerified,
		CreatedAt:     r.CreatedAt,
	}
	if len(r.Address) > 0 {
		if err := json.Unmarshal(r.Address, &b.Address); err != nil {
			return nil, fmt.Errorf("decode address of buyer %s: %w", r.ID, err)
		}
	}
	return b, nil
}

type pendingRow struct {
	ID             string         `db:"id"`
	Name           string         `db:"name"`
	Email          string         `db:"email"`
	ContactNumber  string         `db:"contact_number"`
	Address        []byte         `db:"address"`
	ProfilePicture sql.NullString `db:"profile_picture"`
	PasswordHash   string         `db:"password_hash"`
	Code           string         `db:"verification_code"`
	CreatedAt      time.Time      `db:"created_at"`
}

type sellerRow struct {
	ID             string         `db:"id"`
	Name           string         `db:"name"`
	Email          string         `db:"email"`
	ProfilePicture sql.NullString `db:"profile_picture"`
	EmailVerified  bool           `db:"email_verified"`
	CreatedAt      time.Time      `db:"created_at"`
}

const buyerColumns = `id, name, email, contact_number, address, profile_picture, payment_method,
	card_last4, card_expiry, upi_id, email_verified, created_at`

const sellerColumns = `id, name, email, profile_picture, email_verified, created_at`

func table(kind auth.Kind) string {
	if kind == auth.KindSeller {
		return "sellers"
	}
	return "buyers"
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (r *UserRepository) Account(ctx context.Context, kind auth.Kind, email string) (*Account, error) {
	var acc Account
	query := fmt.Sprintf(`SELECT id, name, email, password_hash FROM %s WHERE lower(email) = lower($1)`, table(kind))
	err := r.db.GetContext(ctx, &acc, query, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (r *UserRepository) SetResetToken(ctx context.Context, kind auth.Kind, id, token string, expires time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET reset_token = $1, reset_expires = $2 WHERE id = $3`, table(kind))
	_, err := r.db.ExecContext(ctx, query, token, expires, id)
	return err
}

// ConsumeResetToken sets the new password hash if token is known and not
// expired at now, and clears the token. It reports whether a row matched.
func (r *UserRepository) ConsumeResetToken(ctx context.Context, kind auth.Kind, token, passwordHash string, now time.Time) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET password_hash = $1, reset_token = NULL, reset_expires = NULL
		WHERE reset_token = $2 AND reset_expires > $3
	`, table(kind))
	res, err := r.db.ExecContext(ctx, query, passwordHash, token, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *UserRepository) Buyer(ctx context.Context, id string) (*domain.Buyer, error) {
	var row buyerRow
	err := r.db.GetContext(ctx, &row, `SELECT `+buyerColumns+` FROM buyers WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

func (r *UserRepository) UpdateBuyer(ctx context.Context, b *domain.Buyer) error {
	address, err := json.Marshal(b.Address)
	if err != nil {
		return fmt.Errorf("encode address: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE buyers
		SET name = $1, email = $2, contact_number = $3, address = $4, payment_method = $5,
			card_last4 = $6, card_expiry = $7, upi_id = $8
		WHERE id = $9
	`, b.Name, b.Email, b.ContactNumber, address, nullString(string(b.Payment.Method)),
		nullString(b.Payment.CardLast4), nullString(b.Payment.CardExpiry), nullString(b.Payment.UPIID), b.ID)
	if isUniqueViolation(err) {
		return domain.Errorf(domain.ErrConflict, "email is already in use")
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.Errorf(domain.ErrNotFound, "user not found")
	}
	return nil
}

func (r *UserRepository) PendingExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM pending_buyers WHERE lower(email) = lower($1))`, email)
	return exists, err
}

func (r *UserRepository) CreatePending(ctx context.Context, p *PendingRegistration) error {
	address, err := json.Marshal(p.Address)
	if err != nil {
		return fmt.Errorf("encode address: %w", err)
	}

	p.ID = uuid.NewString()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO pending_buyers (id, name, email, contact_number, address, profile_picture,
			password_hash, verification_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, p.ID, p.Name, p.Email, p.ContactNumber, address, nullString(p.ProfilePicture),
		p.PasswordHash, p.Code, p.CreatedAt)
	if isUniqueViolation(err) {
		return domain.Errorf(domain.ErrConflict, "user already registered but not verified, please check your email")
	}
	return err
}

func (r *UserRepository) Pending(ctx context.Context, id string) (*PendingRegistration, error) {
	var row pendingRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, name, email, contact_number, address, profile_picture, password_hash,
			verification_code, created_at
		FROM pending_buyers WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p := &PendingRegistration{
		PendingBuyer: domain.PendingBuyer{
			ID:             row.ID,
			Name:           row.Name,
			Email:          row.Email,
			ContactNumber:  row.ContactNumber,
			ProfilePicture: row.ProfilePicture.String,
			CreatedAt:      row.CreatedAt,
		},
		PasswordHash: row.PasswordHash,
		Code:         row.Code,
	}
	if len(row.Address) > 0 {
		if err := json.Unmarshal(row.Address, &p.Address); err != nil {
			return nil, fmt.Errorf("decode address of pending buyer %s: %w", row.ID, err)
		}
	}
	return p, nil
}

func (r *UserRepository) DeletePending(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pending_buyers WHERE id = $1`, id)
	return err
}

// PromotePending creates the verified buyer and drops the pending record in
// one transaction.
func (r *UserRepository) PromotePending(ctx context.Context, p *PendingRegistration, now time.Time) (*domain.Buyer, error) {
	address, err := json.Marshal(p.Address)
	if err != nil {
		return nil, fmt.Errorf("encode address: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	buyer := &domain.Buyer{
		ID:             uuid.NewString(),
		Name:           p.Name,
		Email:          p.Email,
		ContactNumber:  p.ContactNumber,
		Address:        p.Address,
		ProfilePicture: p.ProfilePicture,
		EmailVerified:  true,
		CreatedAt:      now,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO buyers (id, name, email, contact_number, address, profile_picture,
			password_hash, email_verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8)
	`, buyer.ID, buyer.Name, buyer.Email, buyer.ContactNumber, address,
		nullString(buyer.ProfilePicture), p.PasswordHash, buyer.CreatedAt)
	if isUniqueViolation(err) {
		return nil, domain.Errorf(domain.ErrConflict, "user already exists")
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_buyers WHERE id = $1`, p.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return buyer, nil
}

// PurgePending deletes registrations created before cutoff.
func (r *UserRepository) PurgePending(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pending_buyers WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *UserRepository) CreateSeller(ctx context.Context, s *domain.Seller, passwordHash string) error {
	s.ID = uuid.NewString()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sellers (id, name, email, profile_picture, password_hash, email_verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.ID, s.Name, s.Email, nullString(s.ProfilePicture), passwordHash, s.EmailVerified, s.CreatedAt)
	if isUniqueViolation(err) {
		return domain.Errorf(domain.ErrConflict, "user already exists")
	}
	return err
}

func (r *UserRepository) Seller(ctx context.Context, id string) (*domain.Seller, error) {
	var row sellerRow
	err := r.db.GetContext(ctx, &row, `SELECT `+sellerColumns+` FROM sellers WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain.Seller{
		ID:             row.ID,
		Name:           row.Name,
		Email:          row.Email,
		ProfilePicture: row.ProfilePicture.String,
		EmailVerified:  row.EmailVerified,
		CreatedAt:      row.CreatedAt,
	}, nil
}

func (r *UserRepository) MarkSellerVerified(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE sellers SET email_verified = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.Errorf(domain.ErrNotFound, "user not found")
	}
	return nil
}
