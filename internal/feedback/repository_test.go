package feedback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/joao-fontenele/goodfood/internal/domain"
)

func newMockRepo(t *testing.T) (*FeedbackRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewFeedbackRepository(sqlx.NewDb(db, "postgres")), mock
}

func TestFeedbackRepository_CountsMatchesAnySellerLine(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`JOIN orders o ON o.id = f.order_id\s+WHERE EXISTS \(SELECT 1 FROM order_items oi WHERE oi.order_id = o.id AND oi.seller_id = \$1\)\s+AND o.status <> \$2`).
		WithArgs("s1", domain.OrderStatusCanceled).
		WillReturnRows(sqlmock.NewRows([]string{"total_ratings", "total_comments"}).AddRow(4, 3))

	counts, err := repo.Counts(context.Background(), "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts.TotalRatings != 4 || counts.TotalComments != 3 {
		t.Errorf("unexpected counts %+v", counts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestFeedbackRepository_CreateDuplicate(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`INSERT INTO feedback`).WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &domain.Feedback{OrderID: "o1", CreatedAt: time.Now()})
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestFeedbackRepository_ByOrder(t *testing.T) {
	repo, mock := newMockRepo(t)

	cols := []string{"id", "buyer_id", "seller_id", "order_id", "rating", "comment", "images", "created_at", "buyer_name"}
	mock.ExpectQuery(`FROM feedback f WHERE f.order_id = \$1`).
		WithArgs("o1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("f1", "b1", "s1", "o1", 5, "great", "{a.png,b.png}", time.Now(), nil))
	mock.ExpectQuery(`FROM feedback f WHERE f.order_id = \$1`).
		WithArgs("o2").
		WillReturnRows(sqlmock.NewRows(cols))

	fb, err := repo.ByOrder(context.Background(), "o1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fb.Images) != 2 || fb.Images[1] != "b.png" {
		t.Errorf("unexpected images %v", fb.Images)
	}

	fb, err = repo.ByOrder(context.Background(), "o2")
	if err != nil || fb != nil {
		t.Errorf("expected nil, nil, got %+v %v", fb, err)
	}
}

func TestFeedbackRepository_SellerRatings(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`LEFT JOIN feedback f ON f.seller_id = s.id`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "average_rating", "total_ratings"}).
			AddRow("s1", "Spice Hut", 4.5, 2).
			AddRow("s2", "Tea Stall", nil, 0))

	ratings, err := repo.SellerRatings(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ratings) != 2 || *ratings[0].AverageRating != 4.5 || ratings[1].AverageRating != nil {
		t.Errorf("unexpected ratings %+v", ratings)
	}
}
