package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/pizzahub/internal/core/domain"
)

var ingredientRowColumns = []string{"id", "name", "price", "stock", "low_stock_threshold", "available", "created_at", "updated_at"}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestMySQLDecrement_Applied(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewMySQLIngredientStore(db)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE pizza_bases SET stock = stock - ?")).
		WithArgs(2, sqlmock.AnyArg(), "thin-crust", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM pizza_bases WHERE id = ?")).
		WithArgs("thin-crust").
		WillReturnRows(sqlmock.NewRows(ingredientRowColumns).
			AddRow("thin-crust", "Thin Crust", "120.50", 8, 20, true, now, now))
	mock.ExpectCommit()

	ingredient, err := store.ConditionalDecrement(context.Background(), thinCrust, 2)
	require.NoError(t, err)
	assert.Equal(t, thinCrust, ingredient.Key())
	assert.Equal(t, 8, ingredient.StockQuantity)
	assert.True(t, ingredient.Price.Equal(decimal.RequireFromString("120.5")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLDecrement_Insufficient(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewMySQLIngredientStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE pizza_bases SET stock = stock - ?")).
		WithArgs(5, sqlmock.AnyArg(), "thin-crust", 5).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM pizza_bases WHERE id = ?")).
		WithArgs("thin-crust").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectRollback()

	_, err := store.ConditionalDecrement(context.Background(), thinCrust, 5)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLDecrement_Missing(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewMySQLIngredientStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE meats SET stock = stock - ?")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM meats WHERE id = ?")).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))
	mock.ExpectRollback()

	_, err := store.ConditionalDecrement(context.Background(), domain.IngredientKey{Type: domain.IngredientMeat, ID: "ghost"}, 1)
	assert.ErrorIs(t, err, domain.ErrIngredientNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLDecrement_UnknownType(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewMySQLIngredientStore(db)

	_, err := store.ConditionalDecrement(context.Background(), domain.IngredientKey{ID: "x"}, 1)
	assert.ErrorIs(t, err, domain.ErrIngredientNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStockChange_RejectsNonPositiveAmounts(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewMySQLIngredientStore(db)

	_, err := store.ConditionalDecrement(context.Background(), thinCrust, -(1 << 62))
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	_, err = store.Increment(context.Background(), thinCrust, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	// no statement may reach the database
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLCreate_DuplicateKey(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewMySQLIngredientStore(db)
	ingredient := domain.Ingredient{Type: domain.IngredientSauce, ID: "tomato", Name: "Tomato", Price: decimal.NewFromInt(20), StockQuantity: 40}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sauces")).
		WithArgs("tomato", "Tomato", sqlmock.AnyArg(), 40, 0, false, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sauces")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'tomato' for key 'PRIMARY'"})

	require.NoError(t, store.Create(context.Background(), ingredient))
	err := store.Create(context.Background(), ingredient)
	assert.ErrorIs(t, err, domain.ErrIngredientExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLAdjustStock_ClampsAtZero(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewMySQLIngredientStore(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET stock = GREATEST(0, CAST(stock AS SIGNED) + ?)")).
		WithArgs(-50, sqlmock.AnyArg(), "mozzarella").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM cheeses WHERE id = ?")).
		WithArgs("mozzarella").
		WillReturnRows(sqlmock.NewRows(ingredientRowColumns).
			AddRow("mozzarella", "Mozzarella", "40.00", 0, 20, true, now, now))
	mock.ExpectCommit()

	ingredient, err := store.AdjustStock(context.Background(), domain.IngredientKey{Type: domain.IngredientCheese, ID: "mozzarella"}, -50)
	require.NoError(t, err)
	assert.Equal(t, 0, ingredient.StockQuantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLDelete_NotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewMySQLIngredientStore(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sauces WHERE id = ?")).
		WithArgs("pesto").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Delete(context.Background(), domain.IngredientKey{Type: domain.IngredientSauce, ID: "pesto"})
	assert.ErrorIs(t, err, domain.ErrIngredientNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func sampleOrder(now time.Time) domain.Order {
	return domain.NewOrder(domain.NewOrderParams{
		CustomerRef: "cust-1",
		Configuration: domain.PizzaConfiguration{
			Size:   domain.SizeMedium,
			Base:   domain.IngredientRef{Type: domain.IngredientBase, ID: "thin-crust", Quantity: 1},
			Sauce:  domain.IngredientRef{Type: domain.IngredientSauce, ID: "tomato", Quantity: 1},
			Cheese: domain.IngredientRef{Type: domain.IngredientCheese, ID: "mozzarella", Quantity: 1},
		},
		Quantity:    1,
		Pricing:     domain.Pricing{ItemPrice: decimal.NewFromInt(200)},
		Sequence:    1,
		DeliveryETA: 30 * time.Minute,
	}, now)
}

func TestMySQLOrderCreate(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewMySQLOrderStore(db)
	order := sampleOrder(time.Now())

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO orders")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_status_history")).
		WithArgs(order.ID, "received", "", "Order received", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, store.Create(context.Background(), order))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLOrderCreate_InsertFails(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewMySQLOrderStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO orders")).
		WillReturnError(fmt.Errorf("duplicate entry"))
	mock.ExpectRollback()

	err := store.Create(context.Background(), sampleOrder(time.Now()))
	assert.ErrorContains(t, err, "insert order")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLAppendStatus_NotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewMySQLOrderStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM orders WHERE id = ? FOR UPDATE")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := store.AppendStatus(context.Background(), "missing",
		domain.StatusEntry{Status: domain.OrderStatusConfirmed, Timestamp: time.Now()}, nil)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func getMySQLDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/pizzahub?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return db
}

func TestMySQLLive_DecrementAndRestore(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewMySQLIngredientStore(db)
	key := domain.IngredientKey{Type: domain.IngredientVegetable, ID: "live-test-onion"}
	defer store.Delete(ctx, key)

	now := time.Now()
	require.NoError(t, store.Save(ctx, domain.Ingredient{
		Type: key.Type, ID: key.ID, Name: "Onion", Price: decimal.NewFromInt(5),
		StockQuantity: 10, LowStockThreshold: 3, Available: true, CreatedAt: now, UpdatedAt: now,
	}))

	ingredient, err := store.ConditionalDecrement(ctx, key, 4)
	require.NoError(t, err)
	assert.Equal(t, 6, ingredient.StockQuantity)

	_, err = store.ConditionalDecrement(ctx, key, 7)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	ingredient, err = store.Increment(ctx, key, 4)
	require.NoError(t, err)
	assert.Equal(t, 10, ingredient.StockQuantity)
}

func TestMySQLLive_OrderLifecycle(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	store := NewMySQLOrderStore(db)
	order := sampleOrder(time.Now().Truncate(time.Millisecond))
	defer func() {
		db.ExecContext(ctx, `DELETE FROM order_status_history WHERE order_id = ?`, order.ID)
		db.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, order.ID)
	}()

	require.NoError(t, store.Create(ctx, order))

	delivered := time.Now().Truncate(time.Millisecond)
	updated, err := store.AppendStatus(ctx, order.ID,
		domain.StatusEntry{Status: domain.OrderStatusDelivered, Timestamp: delivered, Actor: "driver"}, &delivered)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDelivered, updated.Status)
	require.Len(t, updated.StatusHistory, 2)
	require.NotNil(t, updated.ActualDeliveryTime)
	assert.Equal(t, "cust-1", updated.CustomerRef)
	assert.Equal(t, "thin-crust", updated.Configuration.Base.ID)
}
