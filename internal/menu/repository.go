package menu

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/joao-fontenele/goodfood/internal/domain"
)

type MenuRepository struct {
	db *sqlx.DB
}

func NewMenuRepository(db *sqlx.DB) *MenuRepository {
	return &MenuRepository{db: db}
}

const itemColumns = `id, seller_id, seller_name, name, category, price, description, COALESCE(image, '') AS image, views, created_at`

func (r *MenuRepository) Create(ctx context.Context, item *domain.MenuItem) error {
	item.ID = uuid.NewString()
	item.CreatedAt = time.Now().UTC()

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO menu_items (id, seller_id, seller_name, name, category, price, description, image, views, created_at)
		VALUES (:id, :seller_id, :seller_name, :name, :category, :price, :description, :image, :views, :created_at)
	`, item)
	return err
}

func (r *MenuRepository) Get(ctx context.Context, id string) (*domain.MenuItem, error) {
	var item domain.MenuItem
	err := r.db.GetContext(ctx, &item, `SELECT `+itemColumns+` FROM menu_items WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// GetMany returns the items found among ids keyed by id. Unknown ids are
// simply absent from the result.
func (r *MenuRepository) GetMany(ctx context.Context, ids []string) (map[string]domain.MenuItem, error) {
	var items []domain.MenuItem
	err := r.db.SelectContext(ctx, &items, `SELECT `+itemColumns+` FROM menu_items WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}

	found := make(map[string]domain.MenuItem, len(items))
	for _, item := range items {
		found[item.ID] = item
	}
	return found, nil
}

func (r *MenuRepository) ListAll(ctx context.Context) ([]domain.MenuItem, error) {
	items := []domain.MenuItem{}
	err := r.db.SelectContext(ctx, &items, `SELECT `+itemColumns+` FROM menu_items ORDER BY created_at DESC`)
	return items, err
}

func (r *MenuRepository) ListBySeller(ctx context.Context, sellerID string) ([]domain.MenuItem, error) {
	items := []domain.MenuItem{}
	err := r.db.SelectContext(ctx, &items, `
		SELECT `+itemColumns+` FROM menu_items
		WHERE seller_id = $1
		ORDER BY created_at DESC
	`, sellerID)
	return items, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search matches q as a literal, case-insensitive substring of item names.
func (r *MenuRepository) Search(ctx context.Context, q string) ([]domain.MenuItem, error) {
	items := []domain.MenuItem{}
	err := r.db.SelectContext(ctx, &items, `
		SELECT `+itemColumns+` FROM menu_items
		WHERE name ILIKE $1 ESCAPE '\'
		ORDER BY name
	`, "%"+likeEscaper.Replace(q)+"%")
	return items, err
}

func (r *MenuRepository) Update(ctx context.Context, item *domain.MenuItem) error {
	result, err := r.db.NamedExecContext(ctx, `
		UPDATE menu_items
		SET name = :name, category = :category, price = :price, description = :description, image = :image
		WHERE id = :id
	`, item)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.Errorf(domain.ErrNotFound, "menu item not found")
	}
	return nil
}

func (r *MenuRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM menu_items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.Errorf(domain.ErrNotFound, "menu item not found")
	}
	return nil
}

func (r *MenuRepository) CategoryCounts(ctx context.Context, sellerID string) ([]domain.CategoryCount, error) {
	counts := []domain.CategoryCount{}
	err := r.db.SelectContext(ctx, &counts, `
		SELECT category, COUNT(*) AS count
		FROM menu_items
		WHERE seller_id = $1
		GROUP BY category
		ORDER BY category
	`, sellerID)
	return counts, err
}

// Like snapshots the item into the buyer's liked list.
func (r *MenuRepository) Like(ctx context.Context, buyerID string, item *domain.MenuItem) (*domain.LikedItem, error) {
	liked := &domain.LikedItem{
		BuyerID:   buyerID,
		ProductID: item.ID,
		SellerID:  item.SellerID,
		Name:      item.Name,
		Price:     item.Price,
		Image:     item.Image,
		LikedAt:   time.Now().UTC(),
	}

	result, err := r.db.NamedExecContext(ctx, `
		INSERT INTO liked_items (buyer_id, product_id, seller_id, name, price, image, liked_at)
		VALUES (:buyer_id, :product_id, :seller_id, :name, :price, :image, :liked_at)
		ON CONFLICT (buyer_id, product_id) DO NOTHING
	`, liked)
	if err != nil {
		return nil, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, domain.Errorf(domain.ErrConflict, "item is already liked")
	}
	return liked, nil
}

func (r *MenuRepository) Unlike(ctx context.Context, buyerID, productID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM liked_items WHERE buyer_id = $1 AND product_id = $2`, buyerID, productID)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.Errorf(domain.ErrNotFound, "liked item not found")
	}
	return nil
}

func (r *MenuRepository) LikedItems(ctx context.Context, buyerID string) ([]domain.LikedItem, error) {
	items := []domain.LikedItem{}
	err := r.db.SelectContext(ctx, &items, `
		SELECT buyer_id, product_id, seller_id, name, price, COALESCE(image, '') AS image, liked_at
		FROM liked_items
		WHERE buyer_id = $1
		ORDER BY liked_at DESC
	`, buyerID)
	return items, err
}

// RecordView bumps the item, the seller aggregate and the seller's
// per-product counter in one transaction. Each increment is done in SQL so
// concurrent views never lose updates.
func (r *MenuRepository) RecordView(ctx context.Context, productID string) (*domain.ViewCounts, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		counts   domain.ViewCounts
		sellerID string
	)
	err = tx.QueryRowxContext(ctx, `
		UPDATE menu_items SET views = views + 1
		WHERE id = $1
		RETURNING views, seller_id
	`, productID).Scan(&counts.ProductViews, &sellerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.Errorf(domain.ErrNotFound, "product not found")
		}
		return nil, err
	}

	err = tx.QueryRowxContext(ctx, `
		INSERT INTO seller_stats (seller_id, views) VALUES ($1, 1)
		ON CONFLICT (seller_id) DO UPDATE SET views = seller_stats.views + 1
		RETURNING views
	`, sellerID).Scan(&counts.SellerViews)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO seller_product_views (seller_id, product_id, views) VALUES ($1, $2, 1)
		ON CONFLICT (seller_id, product_id) DO UPDATE SET views = seller_product_views.views + 1
	`, sellerID, productID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &counts, nil
}

// SellerViews returns the seller aggregate plus every per-product counter.
func (r *MenuRepository) SellerViews(ctx context.Context, sellerID string) (int64, error) {
	var total int64
	err := r.db.GetContext(ctx, &total, `
		SELECT (s.views + COALESCE((SELECT SUM(p.views) FROM seller_product_views p WHERE p.seller_id = s.seller_id), 0))::bigint
		FROM seller_stats s
		WHERE s.seller_id = $1
	`, sellerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.Errorf(domain.ErrNotFound, "seller stats not found")
		}
		return 0, err
	}
	return total, nil
}
