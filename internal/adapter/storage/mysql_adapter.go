package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/pizzahub/internal/core/domain"
)

const errDuplicateEntry = 1062

// queryRower is satisfied by both *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ingredientTable maps each ingredient type to its table. Every table shares
// the same columns.
func ingredientTable(typ domain.IngredientType) (string, error) {
	switch typ {
	case domain.IngredientBase:
		return "pizza_bases", nil
	case domain.IngredientSauce:
		return "sauces", nil
	case domain.IngredientCheese:
		return "cheeses", nil
	case domain.IngredientVegetable:
		return "vegetables", nil
	case domain.IngredientMeat:
		return "meats", nil
	default:
		return "", fmt.Errorf("%w: unknown ingredient type %d", domain.ErrIngredientNotFound, typ)
	}
}

const ingredientColumns = "id, name, price, stock, low_stock_threshold, available, created_at, updated_at"

type MySQLIngredientStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewMySQLIngredientStore(db *sql.DB) *MySQLIngredientStore {
	return &MySQLIngredientStore{db: db, now: time.Now}
}

// ConditionalDecrement relies on the stock guard in the WHERE clause; the
// row lock taken by the UPDATE keeps the snapshot read consistent.
func (m *MySQLIngredientStore) ConditionalDecrement(ctx context.Context, key domain.IngredientKey, amount int) (domain.Ingredient, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return domain.Ingredient{}, err
	}
	table, err := ingredientTable(key.Type)
	if err != nil {
		return domain.Ingredient{}, err
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Ingredient{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE `+table+`
		SET stock = stock - ?, version = version + 1, updated_at = ?
		WHERE id = ? AND stock >= ?`,
		amount, m.now(), key.ID, amount,
	)
	if err != nil {
		return domain.Ingredient{}, fmt.Errorf("decrement %s: %w", key, err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = ?`, key.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Ingredient{}, domain.ErrIngredientNotFound
		}
		if err != nil {
			return domain.Ingredient{}, fmt.Errorf("decrement %s: %w", key, err)
		}
		return domain.Ingredient{}, domain.ErrInsufficientStock
	}

	ingredient, err := selectIngredient(ctx, tx, table, key)
	if err != nil {
		return domain.Ingredient{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Ingredient{}, fmt.Errorf("commit decrement %s: %w", key, err)
	}
	return ingredient, nil
}

func (m *MySQLIngredientStore) Increment(ctx context.Context, key domain.IngredientKey, amount int) (domain.Ingredient, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return domain.Ingredient{}, err
	}
	return m.applyStockChange(ctx, key, "stock = stock + ?", amount)
}

func (m *MySQLIngredientStore) AdjustStock(ctx context.Context, key domain.IngredientKey, change int) (domain.Ingredient, error) {
	return m.applyStockChange(ctx, key, "stock = GREATEST(0, CAST(stock AS SIGNED) + ?)", change)
}

func (m *MySQLIngredientStore) applyStockChange(ctx context.Context, key domain.IngredientKey, set string, amount int) (domain.Ingredient, error) {
	table, err := ingredientTable(key.Type)
	if err != nil {
		return domain.Ingredient{}, err
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Ingredient{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE `+table+`
		SET `+set+`, version = version + 1, updated_at = ?
		WHERE id = ?`,
		amount, m.now(), key.ID,
	)
	if err != nil {
		return domain.Ingredient{}, fmt.Errorf("update stock %s: %w", key, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.Ingredient{}, domain.ErrIngredientNotFound
	}

	ingredient, err := selectIngredient(ctx, tx, table, key)
	if err != nil {
		return domain.Ingredient{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Ingredient{}, fmt.Errorf("commit stock %s: %w", key, err)
	}
	return ingredient, nil
}

func (m *MySQLIngredientStore) Get(ctx context.Context, key domain.IngredientKey) (domain.Ingredient, error) {
	table, err := ingredientTable(key.Type)
	if err != nil {
		return domain.Ingredient{}, err
	}
	return selectIngredient(ctx, m.db, table, key)
}

func (m *MySQLIngredientStore) Create(ctx context.Context, ingredient domain.Ingredient) error {
	table, err := ingredientTable(ingredient.Type)
	if err != nil {
		return err
	}

	_, err = m.db.ExecContext(ctx, `
		INSERT INTO `+table+` (`+ingredientColumns+`, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		ingredient.ID, ingredient.Name, ingredient.Price, ingredient.StockQuantity,
		ingredient.LowStockThreshold, ingredient.Available, ingredient.CreatedAt, ingredient.UpdatedAt,
	)
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == errDuplicateEntry {
		return fmt.Errorf("%w: %s", domain.ErrIngredientExists, ingredient.Key())
	}
	if err != nil {
		return fmt.Errorf("create ingredient %s: %w", ingredient.Key(), err)
	}
	return nil
}

func (m *MySQLIngredientStore) Save(ctx context.Context, ingredient domain.Ingredient) error {
	table, err := ingredientTable(ingredient.Type)
	if err != nil {
		return err
	}

	_, err = m.db.ExecContext(ctx, `
		INSERT INTO `+table+` (`+ingredientColumns+`, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON DUPLICATE KEY UPDATE
			name = VALUES(name), price = VALUES(price), stock = VALUES(stock),
			low_stock_threshold = VALUES(low_stock_threshold), available = VALUES(available),
			version = version + 1, updated_at = VALUES(updated_at)`,
		ingredient.ID, ingredient.Name, ingredient.Price, ingredient.StockQuantity,
		ingredient.LowStockThreshold, ingredient.Available, ingredient.CreatedAt, ingredient.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save ingredient %s: %w", ingredient.Key(), err)
	}
	return nil
}

func (m *MySQLIngredientStore) List(ctx context.Context, typ domain.IngredientType) ([]domain.Ingredient, error) {
	table, err := ingredientTable(typ)
	if err != nil {
		return nil, err
	}

	rows, err := m.db.QueryContext(ctx, `SELECT `+ingredientColumns+` FROM `+table+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", typ, err)
	}
	defer rows.Close()

	var out []domain.Ingredient
	for rows.Next() {
		ingredient := domain.Ingredient{Type: typ}
		if err := rows.Scan(
			&ingredient.ID, &ingredient.Name, &ingredient.Price, &ingredient.StockQuantity,
			&ingredient.LowStockThreshold, &ingredient.Available, &ingredient.CreatedAt, &ingredient.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan %s: %w", typ, err)
		}
		out = append(out, ingredient)
	}
	return out, rows.Err()
}

func (m *MySQLIngredientStore) Delete(ctx context.Context, key domain.IngredientKey) error {
	table, err := ingredientTable(key.Type)
	if err != nil {
		return err
	}

	result, err := m.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, key.ID)
	if err != nil {
		return fmt.Errorf("delete ingredient %s: %w", key, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.ErrIngredientNotFound
	}
	return nil
}

func selectIngredient(ctx context.Context, q queryRower, table string, key domain.IngredientKey) (domain.Ingredient, error) {
	ingredient := domain.Ingredient{Type: key.Type}
	err := q.QueryRowContext(ctx, `SELECT `+ingredientColumns+` FROM `+table+` WHERE id = ?`, key.ID).Scan(
		&ingredient.ID, &ingredient.Name, &ingredient.Price, &ingredient.StockQuantity,
		&ingredient.LowStockThreshold, &ingredient.Available, &ingredient.CreatedAt, &ingredient.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Ingredient{}, domain.ErrIngredientNotFound
	}
	if err != nil {
		return domain.Ingredient{}, fmt.Errorf("query ingredient %s: %w", key, err)
	}
	return ingredient, nil
}

const orderColumns = `id, order_number, customer_ref, customer_phone, configuration, quantity,
	item_price, delivery_fee, tax, total_amount, delivery_address, notes, status,
	estimated_delivery_time, actual_delivery_time, created_at, updated_at`

// MySQLOrderStore keeps orders in the orders table and their status
// history in order_status_history. Configuration and address are JSON
// columns.
type MySQLOrderStore struct {
	db *sql.DB
}

func NewMySQLOrderStore(db *sql.DB) *MySQLOrderStore {
	return &MySQLOrderStore{db: db}
}

func (m *MySQLOrderStore) Create(ctx context.Context, order domain.Order) error {
	configuration, err := json.Marshal(order.Configuration)
	if err != nil {
		return fmt.Errorf("encode configuration: %w", err)
	}
	address, err := json.Marshal(order.DeliveryAddress)
	if err != nil {
		return fmt.Errorf("encode address: %w", err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.OrderNumber, order.CustomerRef, order.CustomerPhone, configuration, order.Quantity,
		order.Pricing.ItemPrice, order.Pricing.DeliveryFee, order.Pricing.Tax, order.Pricing.TotalAmount,
		address, order.Notes, order.Status,
		order.EstimatedDeliveryTime, order.ActualDeliveryTime, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, entry := range order.StatusHistory {
		if err := insertStatus(ctx, tx, order.ID, entry); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (m *MySQLOrderStore) AppendStatus(ctx context.Context, orderID string, entry domain.StatusEntry, deliveredAt *time.Time) (domain.Order, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var locked string
	err = tx.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = ? FOR UPDATE`, orderID).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("lock order: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET status = ?, actual_delivery_time = COALESCE(?, actual_delivery_time), updated_at = ?
		WHERE id = ?`,
		entry.Status, deliveredAt, entry.Timestamp, orderID,
	)
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order status: %w", err)
	}
	if err := insertStatus(ctx, tx, orderID, entry); err != nil {
		return domain.Order{}, err
	}

	order, err := loadOrder(ctx, tx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Order{}, fmt.Errorf("commit status: %w", err)
	}
	return order, nil
}

func (m *MySQLOrderStore) Get(ctx context.Context, orderID string) (domain.Order, error) {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	return loadOrder(ctx, tx, orderID)
}

func (m *MySQLOrderStore) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	var (
		where []string
		args  []any
	)
	if filter.CustomerRef != "" {
		where = append(where, "customer_ref = ?")
		args = append(args, filter.CustomerRef)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	query := `SELECT id FROM orders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	out := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		order, err := m.Get(ctx, id)
		if errors.Is(err, domain.ErrOrderNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, order)
	}
	return out, nil
}

func insertStatus(ctx context.Context, tx *sql.Tx, orderID string, entry domain.StatusEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO order_status_history (order_id, status, actor, notes, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		orderID, entry.Status, entry.Actor, entry.Notes, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}

func loadOrder(ctx context.Context, tx *sql.Tx, orderID string) (domain.Order, error) {
	var (
		order         domain.Order
		configuration []byte
		address       []byte
		delivered     sql.NullTime
	)
	err := tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, orderID).Scan(
		&order.ID, &order.OrderNumber, &order.CustomerRef, &order.CustomerPhone, &configuration, &order.Quantity,
		&order.Pricing.ItemPrice, &order.Pricing.DeliveryFee, &order.Pricing.Tax, &order.Pricing.TotalAmount,
		&address, &order.Notes, &order.Status,
		&order.EstimatedDeliveryTime, &delivered, &order.CreatedAt, &order.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("query order: %w", err)
	}
	if err := json.Unmarshal(configuration, &order.Configuration); err != nil {
		return domain.Order{}, fmt.Errorf("decode configuration: %w", err)
	}
	if err := json.Unmarshal(address, &order.DeliveryAddress); err != nil {
		return domain.Order{}, fmt.Errorf("decode address: %w", err)
	}
	if delivered.Valid {
		at := delivered.Time
		order.ActualDeliveryTime = &at
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT status, actor, notes, created_at
		FROM order_status_history WHERE order_id = ? ORDER BY seq`, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("query status history: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var entry domain.StatusEntry
		if err := rows.Scan(&entry.Status, &entry.Actor, &entry.Notes, &entry.Timestamp); err != nil {
			return domain.Order{}, fmt.Errorf("scan status history: %w", err)
		}
		order.StatusHistory = append(order.StatusHistory, entry)
	}
	return order, rows.Err()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id VARCHAR(36) PRIMARY KEY,
		order_number VARCHAR(32) NOT NULL UNIQUE,
		customer_ref VARCHAR(64) NOT NULL,
		customer_phone VARCHAR(32) NOT NULL DEFAULT '',
		configuration JSON NOT NULL,
		quantity INT NOT NULL,
		item_price DECIMAL(12,2) NOT NULL,
		delivery_fee DECIMAL(12,2) NOT NULL,
		tax DECIMAL(12,2) NOT NULL,
		total_amount DECIMAL(12,2) NOT NULL,
		delivery_address JSON NOT NULL,
		notes TEXT,
		status VARCHAR(32) NOT NULL,
		estimated_delivery_time DATETIME(3) NOT NULL,
		actual_delivery_time DATETIME(3) NULL,
		created_at DATETIME(3) NOT NULL,
		updated_at DATETIME(3) NOT NULL,
		INDEX idx_orders_customer (customer_ref, created_at),
		INDEX idx_orders_status (status)
	)`,
	`CREATE TABLE IF NOT EXISTS order_status_history (
		seq BIGINT AUTO_INCREMENT PRIMARY KEY,
		order_id VARCHAR(36) NOT NULL,
		status VARCHAR(32) NOT NULL,
		actor VARCHAR(64) NOT NULL DEFAULT '',
		notes TEXT,
		created_at DATETIME(3) NOT NULL,
		INDEX idx_history_order (order_id)
	)`,
}

// Migrate creates the ingredient and order tables when missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	statements := append([]string(nil), schema...)
	for _, typ := range domain.IngredientTypes {
		table, _ := ingredientTable(typ)
		statements = append(statements, `CREATE TABLE IF NOT EXISTS `+table+` (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(128) NOT NULL,
			price DECIMAL(12,2) NOT NULL,
			stock INT UNSIGNED NOT NULL,
			low_stock_threshold INT NOT NULL,
			available BOOLEAN NOT NULL DEFAULT TRUE,
			version BIGINT NOT NULL DEFAULT 1,
			created_at DATETIME(3) NOT NULL,
			updated_at DATETIME(3) NOT NULL
		)`)
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
