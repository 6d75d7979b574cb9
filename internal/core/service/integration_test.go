package service

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/pizzahub/internal/adapter/storage"
	"github.com/rl1809/pizzahub/internal/core/domain"
)

type testEnv struct {
	redis   *redis.Client
	cache   *storage.RedisAdapter
	keys    map[string]domain.IngredientKey
	cleanup func()
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		t.Skipf("Redis not available: %v", err)
	}

	// Fresh ids per run so concurrent test runs never share stock.
	suffix := uuid.NewString()[:8]
	env := &testEnv{
		redis: rdb,
		cache: storage.NewRedisAdapter(rdb),
		keys: map[string]domain.IngredientKey{
			"base":   {Type: domain.IngredientBase, ID: "it-crust-" + suffix},
			"sauce":  {Type: domain.IngredientSauce, ID: "it-tomato-" + suffix},
			"cheese": {Type: domain.IngredientCheese, ID: "it-mozzarella-" + suffix},
		},
	}
	env.cleanup = func() {
		for _, key := range env.keys {
			env.cache.Delete(context.Background(), key)
		}
		rdb.Close()
	}
	return env
}

func (e *testEnv) seed(t *testing.T, baseStock int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.cache.Save(ctx, stocked(e.keys["base"], baseStock)))
	require.NoError(t, e.cache.Save(ctx, stocked(e.keys["sauce"], 100)))
	require.NoError(t, e.cache.Save(ctx, stocked(e.keys["cheese"], 100)))
}

func (e *testEnv) pizza() domain.PizzaConfiguration {
	return domain.PizzaConfiguration{
		Base:   ref(e.keys["base"], 1),
		Sauce:  ref(e.keys["sauce"], 1),
		Cheese: ref(e.keys["cheese"], 1),
	}
}

func (e *testEnv) stock(t *testing.T, name string) int {
	t.Helper()
	ing, err := e.cache.Get(context.Background(), e.keys[name])
	require.NoError(t, err)
	return ing.StockQuantity
}

func openMySQL(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/pizzahub?parseTime=true"
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("MySQL not available: %v", err)
	}
	require.NoError(t, storage.Migrate(context.Background(), db))
	return db
}

func TestIntegration_FullPlacementFlow(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()
	db := openMySQL(t)
	defer db.Close()

	ctx := context.Background()
	const initialStock = 10
	env.seed(t, initialStock)

	customer := "it-" + uuid.NewString()[:8]
	svc := NewOrderService(env.cache, storage.NewMySQLOrderStore(db), nil,
		WithLogger(discardLogger), WithIdempotency(env.cache))

	var (
		wg      sync.WaitGroup
		success atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in := placeInput(env.pizza())
			in.CustomerRef = customer
			in.RequestID = uuid.NewString()
			if _, err := svc.PlaceOrder(ctx, in); err == nil {
				success.Add(1)
			} else {
				assert.ErrorIs(t, err, domain.ErrInsufficientStock)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, initialStock, success.Load())
	assert.Equal(t, 0, env.stock(t, "base"))
	assert.Equal(t, 100-initialStock, env.stock(t, "sauce"), "losers must release their sauce")
	assert.Equal(t, 100-initialStock, env.stock(t, "cheese"))

	var orderCount int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE customer_ref = ?`, customer).Scan(&orderCount))
	assert.Equal(t, initialStock, orderCount)

	orders, err := svc.ListOrders(ctx, domain.OrderFilter{CustomerRef: customer})
	require.NoError(t, err)
	require.Len(t, orders, initialStock)
	assert.Len(t, orders[0].StatusHistory, 1)

	db.ExecContext(ctx, `DELETE h FROM order_status_history h JOIN orders o ON o.id = h.order_id WHERE o.customer_ref = ?`, customer)
	db.ExecContext(ctx, `DELETE FROM orders WHERE customer_ref = ?`, customer)
}

func TestIntegration_RollbackOnPersistenceFailure(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	// A closed pool fails every write without needing a MySQL server.
	closed, err := sql.Open("mysql", "root:root@tcp(127.0.0.1:1)/none")
	require.NoError(t, err)
	require.NoError(t, closed.Close())

	env.seed(t, 5)
	svc := NewOrderService(env.cache, storage.NewMySQLOrderStore(closed), nil, WithLogger(discardLogger))

	_, err = svc.PlaceOrder(context.Background(), placeInput(env.pizza()))
	require.ErrorIs(t, err, domain.ErrPersistence)

	assert.Equal(t, 5, env.stock(t, "base"))
	assert.Equal(t, 100, env.stock(t, "sauce"))
	assert.Equal(t, 100, env.stock(t, "cheese"))
}

func TestIntegration_IdempotencyPreventsDoubleOrder(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	env.seed(t, 10)
	requestID := "same-request-id-" + uuid.NewString()
	defer env.cache.Release(ctx, idempotencyKeyPrefix+requestID)

	svc := NewOrderService(env.cache, storage.NewMemoryOrderStore(), nil,
		WithLogger(discardLogger), WithIdempotency(env.cache))

	in := placeInput(env.pizza())
	in.RequestID = requestID
	_, err := svc.PlaceOrder(ctx, in)
	require.NoError(t, err)

	_, err = svc.PlaceOrder(ctx, in)
	assert.ErrorIs(t, err, domain.ErrDuplicateRequest)
	assert.Equal(t, 9, env.stock(t, "base"))
}
