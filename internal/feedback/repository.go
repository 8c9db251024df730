package feedback

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/joao-fontenele/goodfood/internal/domain"
)

type FeedbackRepository struct {
	db *sqlx.DB
}

func NewFeedbackRepository(db *sqlx.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

type feedbackRow struct {
	ID        string         `db:"id"`
	BuyerID   string         `db:"buyer_id"`
	SellerID  string         `db:"seller_id"`
	OrderID   string         `db:"order_id"`
	Rating    int            `db:"rating"`
	Comment   string         `db:"comment"`
	Images    pq.StringArray `db:"images"`
	CreatedAt time.Time      `db:"created_at"`
	BuyerName sql.NullString `db:"buyer_name"`
}

func (r feedbackRow) toDomain() domain.Feedback {
	images := []string(r.Images)
	if images == nil {
		images = []string{}
	}
	return domain.Feedback{
		ID:        r.ID,
		BuyerID:   r.BuyerID,
		SellerID:  r.SellerID,
		OrderID:   r.OrderID,
		Rating:    r.Rating,
		Comment:   r.Comment,
		Images:    images,
		CreatedAt: r.CreatedAt,
		BuyerName: r.BuyerName.String,
	}
}

const feedbackColumns = `f.id, f.buyer_id, f.seller_id, f.order_id, f.rating, f.comment, f.images, f.created_at`

func (r *FeedbackRepository) Create(ctx context.Context, fb *domain.Feedback) error {
	fb.ID = uuid.NewString()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO feedback (id, buyer_id, seller_id, order_id, rating, comment, images, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, fb.ID, fb.BuyerID, fb.SellerID, fb.OrderID, fb.Rating, fb.Comment, pq.Array(fb.Images), fb.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return errAlreadySubmitted
	}
	return err
}

// ByOrder returns nil, nil when the order has no feedback.
func (r *FeedbackRepository) ByOrder(ctx context.Context, orderID string) (*domain.Feedback, error) {
	var row feedbackRow
	err := r.db.GetContext(ctx, &row, `
		SELECT `+feedbackColumns+`, NULL AS buyer_name FROM feedback f WHERE f.order_id = $1
	`, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	fb := row.toDomain()
	return &fb, nil
}

// Counts only looks at feedback on orders that were not canceled and contain
// at least one of the seller's items, whichever seller the feedback row names.
func (r *FeedbackRepository) Counts(ctx context.Context, sellerID string) (domain.FeedbackCounts, error) {
	var counts struct {
		Ratings  int `db:"total_ratings"`
		Comments int `db:"total_comments"`
	}
	err := r.db.GetContext(ctx, &counts, `
		SELECT
			COUNT(*) FILTER (WHERE f.rating >= 1) AS total_ratings,
			COUNT(*) FILTER (WHERE btrim(f.comment) <> '') AS total_comments
		FROM feedback f
		JOIN orders o ON o.id = f.order_id
		WHERE EXISTS (SELECT 1 FROM order_items oi WHERE oi.order_id = o.id AND oi.seller_id = $1)
			AND o.status <> $2
	`, sellerID, domain.OrderStatusCanceled)
	if err != nil {
		return domain.FeedbackCounts{}, err
	}
	return domain.FeedbackCounts{TotalRatings: counts.Ratings, TotalComments: counts.Comments}, nil
}

// Between lists the seller's feedback created in [from, to), newest first.
func (r *FeedbackRepository) Between(ctx context.Context, sellerID string, from, to time.Time) ([]domain.Feedback, error) {
	var rows []feedbackRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+feedbackColumns+`, b.name AS buyer_name
		FROM feedback f
		LEFT JOIN buyers b ON b.id = f.buyer_id
		WHERE f.seller_id = $1 AND f.created_at >= $2 AND f.created_at < $3
		ORDER BY f.created_at DESC
	`, sellerID, from, to)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Feedback, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// SellerRatings lists every seller with the average and number of ratings.
// Sellers without feedback have a nil average.
func (r *FeedbackRepository) SellerRatings(ctx context.Context) ([]domain.SellerRating, error) {
	ratings := []domain.SellerRating{}
	err := r.db.SelectContext(ctx, &ratings, `
		SELECT s.id, s.name, AVG(f.rating)::float8 AS average_rating, COUNT(f.id) AS total_ratings
		FROM sellers s
		LEFT JOIN feedback f ON f.seller_id = s.id
		GROUP BY s.id, s.name
		ORDER BY s.name
	`)
	return ratings, err
}
