package orders

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

	"github.com/joao-fontenele/goodfood/internal/domain"
)

type OrderRepository struct {
	db *sqlx.DB
}

func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

type orderRow struct {
	ID               string       `db:"id"`
	BuyerID          string       `db:"buyer_id"`
	Status           string       `db:"status"`
	Total            int64        `db:"total"`
	CreatedAt        time.Time    `db:"created_at"`
	ReceivedAt       sql.NullTime `db:"received_at"`
	DeliveredAt      sql.NullTime `db:"delivered_at"`
	DeliveryEstimate sql.NullTime `db:"delivery_estimate"`
	IsViewed         bool         `db:"is_viewed"`
	Version          int          `db:"version"`
}

type sellerOrderRow struct {
	orderRow
	BuyerName    string `db:"buyer_name"`
	BuyerContact string `db:"buyer_contact"`
	BuyerAddress []byte `db:"buyer_address"`
}

type itemRow struct {
	OrderID   string `db:"order_id"`
	ProductID string `db:"product_id"`
	SellerID  string `db:"seller_id"`
	Name      string `db:"name"`
	Price     int64  `db:"price"`
	Quantity  int    `db:"quantity"`
	Category  string `db:"category"`
}

const orderColumns = `o.id, o.buyer_id, o.status, o.total, o.created_at, o.received_at,
	o.delivered_at, o.delivery_estimate, o.is_viewed, o.version`

const sellerFilter = `EXISTS (SELECT 1 FROM order_items oi WHERE oi.order_id = o.id AND oi.seller_id = $1)`

func (r orderRow) toDomain() domain.Order {
	return domain.Order{
		ID:               r.ID,
		BuyerID:          r.BuyerID,
		Status:           domain.OrderStatus(r.Status),
		Total:            r.Total,
		CreatedAt:        r.CreatedAt,
		ReceivedAt:       nullTime(r.ReceivedAt),
		DeliveredAt:      nullTime(r.DeliveredAt),
		DeliveryEstimate: nullTime(r.DeliveryEstimate),
		IsViewed:         r.IsViewed,
		Version:          r.Version,
		Items:            []domain.LineItem{},
	}
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func timeArg(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Create stores the order and its line items in one transaction and assigns
// the order id.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	order.ID = uuid.NewString()
	order.Version = 1

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, buyer_id, status, total, created_at, is_viewed, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, order.ID, order.BuyerID, order.Status, order.Total, order.CreatedAt, order.IsViewed, order.Version)
	if err != nil {
		return err
	}

	for i, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, position, product_id, seller_id, name, price, quantity)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, uuid.NewString(), order.ID, i, item.ProductID, item.SellerID, item.Name, item.Price, item.Quantity)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	var row orderRow
	err := r.db.GetContext(ctx, &row, `SELECT `+orderColumns+` FROM orders o WHERE o.id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	order := row.toDomain()
	items, err := r.loadItems(ctx, []string{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = append(order.Items, items[order.ID]...)
	return &order, nil
}

// Update writes the mutable lifecycle fields guarded by the version column.
func (r *OrderRepository) Update(ctx context.Context, order *domain.Order) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, received_at = $2, delivered_at = $3, delivery_estimate = $4, version = version + 1
		WHERE id = $5 AND version = $6
	`, order.Status, timeArg(order.ReceivedAt), timeArg(order.DeliveredAt), timeArg(order.DeliveryEstimate),
		order.ID, order.Version)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return domain.ErrStaleWrite
	}

	order.Version++
	return nil
}

func (r *OrderRepository) ListForBuyer(ctx context.Context, buyerID string) ([]domain.Order, error) {
	var rows []orderRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+orderColumns+`
		FROM orders o
		WHERE o.buyer_id = $1
		ORDER BY o.created_at DESC
	`, buyerID)
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		orders = append(orders, row.toDomain())
	}
	return orders, r.attachItems(ctx, orders)
}

func (r *OrderRepository) ListForSeller(ctx context.Context, sellerID string) ([]domain.Order, error) {
	var rows []sellerOrderRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+orderColumns+`,
			COALESCE(b.name, '') AS buyer_name,
			COALESCE(b.contact_number, '') AS buyer_contact,
			b.address AS buyer_address
		FROM orders o
		LEFT JOIN buyers b ON b.id = o.buyer_id
		WHERE `+sellerFilter+`
		ORDER BY o.created_at DESC
	`, sellerID)
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		order := row.toDomain()
		contact := &domain.BuyerContact{
			ID:            row.BuyerID,
			Name:          row.BuyerName,
			ContactNumber: row.BuyerContact,
		}
		if len(row.BuyerAddress) > 0 {
			if err := json.Unmarshal(row.BuyerAddress, &contact.Address); err != nil {
				return nil, fmt.Errorf("decode address of buyer %s: %w", row.BuyerID, err)
			}
		}
		order.Buyer = contact
		orders = append(orders, order)
	}
	return orders, r.attachItems(ctx, orders)
}

func (r *OrderRepository) CountUnviewed(ctx context.Context, sellerID string) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM orders o
		WHERE o.is_viewed = false AND `+sellerFilter, sellerID)
	return n, err
}

func (r *OrderRepository) MarkViewed(ctx context.Context, sellerID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders o SET is_viewed = true
		WHERE o.is_viewed = false AND `+sellerFilter, sellerID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// attachItems loads all line items of orders with a single query.
func (r *OrderRepository) attachItems(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}

	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return err
	}
	for i := range orders {
		orders[i].Items = append(orders[i].Items, items[orders[i].ID]...)
	}
	return nil
}

func (r *OrderRepository) loadItems(ctx context.Context, orderIDs []string) (map[string][]domain.LineItem, error) {
	var rows []itemRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT oi.order_id, oi.product_id, oi.seller_id, oi.name, oi.price, oi.quantity,
			COALESCE(m.category, '') AS category
		FROM order_items oi
		LEFT JOIN menu_items m ON m.id = oi.product_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.order_id, oi.position
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}

	items := make(map[string][]domain.LineItem, len(orderIDs))
	for _, row := range rows {
		items[row.OrderID] = append(items[row.OrderID], domain.LineItem{
			ProductID: row.ProductID,
			SellerID:  row.SellerID,
			Name:      row.Name,
			Price:     row.Price,
			Quantity:  row.Quantity,
			Category:  row.Category,
		})
	}
	return items, nil
}
