package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rl1809/pizzahub/internal/core/domain"
)

const (
	ingredientKeyPrefix = "ingredient:"
	indexKeyPrefix      = "ingredients:"
	idempotencyKeyTTL   = 24 * time.Hour
)

const (
	scriptMissing      = -1
	scriptInsufficient = 0
	scriptApplied      = 1
)

// Every stock script replies {status, field1, value1, ...}; the hash fields
// follow only when status is scriptApplied.
var decrementStockScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])

if redis.call('EXISTS', key) == 0 then
	return {-1}
end

local current = tonumber(redis.call('HGET', key, 'stock'))
if current < quantity then
	return {0}
end

redis.call('HINCRBY', key, 'stock', -quantity)
redis.call('HSET', key, 'updated_at', ARGV[2])

local reply = {1}
for _, v in ipairs(redis.call('HGETALL', key)) do
	reply[#reply + 1] = v
end
return reply
`)

var incrementStockScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])

if redis.call('EXISTS', key) == 0 then
	return {-1}
end

redis.call('HINCRBY', key, 'stock', quantity)
redis.call('HSET', key, 'updated_at', ARGV[2])

local reply = {1}
for _, v in ipairs(redis.call('HGETALL', key)) do
	reply[#reply + 1] = v
end
return reply
`)

var adjustStockScript = redis.NewScript(`
local key = KEYS[1]
local change = tonumber(ARGV[1])

if redis.call('EXISTS', key) == 0 then
	return {-1}
end

local stock = tonumber(redis.call('HGET', key, 'stock')) + change
if stock < 0 then
	stock = 0
end
redis.call('HSET', key, 'stock', stock, 'updated_at', ARGV[2])

local reply = {1}
for _, v in ipairs(redis.call('HGETALL', key)) do
	reply[#reply + 1] = v
end
return reply
`)

// ARGV[1] is the ingredient id, the rest are hash field/value pairs.
var createIngredientScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
redis.call('SADD', KEYS[2], ARGV[1])
return 1
`)

// RedisAdapter stores ingredient stock as hashes and serves as the
// idempotency guard.
type RedisAdapter struct {
	client redis.Cmdable
	now    func() time.Time
}

func NewRedisAdapter(client redis.Cmdable) *RedisAdapter {
	return &RedisAdapter{client: client, now: time.Now}
}

func ingredientKey(key domain.IngredientKey) string {
	return ingredientKeyPrefix + key.Type.String() + ":" + key.ID
}

func indexKey(typ domain.IngredientType) string {
	return indexKeyPrefix + typ.String()
}

func (r *RedisAdapter) ConditionalDecrement(ctx context.Context, key domain.IngredientKey, amount int) (domain.Ingredient, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return domain.Ingredient{}, err
	}
	return r.runStockScript(ctx, decrementStockScript, key, amount)
}

func (r *RedisAdapter) Increment(ctx context.Context, key domain.IngredientKey, amount int) (domain.Ingredient, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return domain.Ingredient{}, err
	}
	return r.runStockScript(ctx, incrementStockScript, key, amount)
}

func (r *RedisAdapter) AdjustStock(ctx context.Context, key domain.IngredientKey, change int) (domain.Ingredient, error) {
	return r.runStockScript(ctx, adjustStockScript, key, change)
}

func (r *RedisAdapter) runStockScript(ctx context.Context, script *redis.Script, key domain.IngredientKey, amount int) (domain.Ingredient, error) {
	if !key.Type.Valid() {
		return domain.Ingredient{}, domain.ErrIngredientNotFound
	}

	reply, err := script.Run(ctx, r.client, []string{ingredientKey(key)}, amount, r.now().UnixNano()).Slice()
	if err != nil {
		return domain.Ingredient{}, fmt.Errorf("stock script %s: %w", key, err)
	}
	if len(reply) == 0 {
		return domain.Ingredient{}, fmt.Errorf("stock script %s: empty reply", key)
	}

	status, ok := reply[0].(int64)
	if !ok {
		return domain.Ingredient{}, fmt.Errorf("stock script %s: unexpected status %T", key, reply[0])
	}
	switch status {
	case scriptMissing:
		return domain.Ingredient{}, domain.ErrIngredientNotFound
	case scriptInsufficient:
		return domain.Ingredient{}, domain.ErrInsufficientStock
	case scriptApplied:
	default:
		return domain.Ingredient{}, fmt.Errorf("stock script %s: unknown status %d", key, status)
	}

	fields := make(map[string]string, (len(reply)-1)/2)
	for i := 1; i+1 < len(reply); i += 2 {
		name, _ := reply[i].(string)
		value, _ := reply[i+1].(string)
		fields[name] = value
	}
	return decodeIngredient(key, fields)
}

func (r *RedisAdapter) Get(ctx context.Context, key domain.IngredientKey) (domain.Ingredient, error) {
	fields, err := r.client.HGetAll(ctx, ingredientKey(key)).Result()
	if err != nil {
		return domain.Ingredient{}, fmt.Errorf("get ingredient %s: %w", key, err)
	}
	if len(fields) == 0 {
		return domain.Ingredient{}, domain.ErrIngredientNotFound
	}
	return decodeIngredient(key, fields)
}

// Create writes the ingredient only when its key is free.
func (r *RedisAdapter) Create(ctx context.Context, ingredient domain.Ingredient) error {
	keys := []string{ingredientKey(ingredient.Key()), indexKey(ingredient.Type)}
	args := append([]any{ingredient.ID}, encodeIngredient(ingredient)...)

	created, err := createIngredientScript.Run(ctx, r.client, keys, args...).Int()
	if err != nil {
		return fmt.Errorf("create ingredient %s: %w", ingredient.Key(), err)
	}
	if created == 0 {
		return fmt.Errorf("%w: %s", domain.ErrIngredientExists, ingredient.Key())
	}
	return nil
}

func (r *RedisAdapter) Save(ctx context.Context, ingredient domain.Ingredient) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, ingredientKey(ingredient.Key()), encodeIngredient(ingredient)...)
		pipe.SAdd(ctx, indexKey(ingredient.Type), ingredient.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save ingredient %s: %w", ingredient.Key(), err)
	}
	return nil
}

func (r *RedisAdapter) List(ctx context.Context, typ domain.IngredientType) ([]domain.Ingredient, error) {
	ids, err := r.client.SMembers(ctx, indexKey(typ)).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", typ, err)
	}
	sort.Strings(ids)

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, ingredientKey(domain.IngredientKey{Type: typ, ID: id}))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", typ, err)
	}

	out := make([]domain.Ingredient, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// index entry outlived its hash
			continue
		}
		ingredient, err := decodeIngredient(domain.IngredientKey{Type: typ, ID: ids[i]}, fields)
		if err != nil {
			return nil, err
		}
		out = append(out, ingredient)
	}
	return out, nil
}

func (r *RedisAdapter) Delete(ctx context.Context, key domain.IngredientKey) error {
	var del *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, ingredientKey(key))
		pipe.SRem(ctx, indexKey(key.Type), key.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete ingredient %s: %w", key, err)
	}
	if del.Val() == 0 {
		return domain.ErrIngredientNotFound
	}
	return nil
}

func (r *RedisAdapter) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// encodeIngredient returns the hash as field/value pairs in a fixed order.
func encodeIngredient(i domain.Ingredient) []any {
	return []any{
		"name", i.Name,
		"price", i.Price.String(),
		"stock", i.StockQuantity,
		"threshold", i.LowStockThreshold,
		"available", strconv.FormatBool(i.Available),
		"created_at", encodeNanos(i.CreatedAt),
		"updated_at", encodeNanos(i.UpdatedAt),
	}
}

func decodeIngredient(key domain.IngredientKey, fields map[string]string) (domain.Ingredient, error) {
	ingredient := domain.Ingredient{
		Type:      key.Type,
		ID:        key.ID,
		Name:      fields["name"],
		Available: fields["available"] != "false",
	}

	var err error
	if ingredient.StockQuantity, err = strconv.Atoi(fields["stock"]); err != nil {
		return domain.Ingredient{}, fmt.Errorf("decode %s stock: %w", key, err)
	}
	if v, ok := fields["threshold"]; ok {
		if ingredient.LowStockThreshold, err = strconv.Atoi(v); err != nil {
			return domain.Ingredient{}, fmt.Errorf("decode %s threshold: %w", key, err)
		}
	} else {
		ingredient.LowStockThreshold = domain.DefaultLowStockThreshold
	}
	if v, ok := fields["price"]; ok && v != "" {
		if ingredient.Price, err = decimal.NewFromString(v); err != nil {
			return domain.Ingredient{}, fmt.Errorf("decode %s price: %w", key, err)
		}
	}
	ingredient.CreatedAt = decodeNanos(fields["created_at"])
	ingredient.UpdatedAt = decodeNanos(fields["updated_at"])
	return ingredient, nil
}

func encodeNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func decodeNanos(v string) time.Time {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
