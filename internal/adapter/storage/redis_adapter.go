package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/catalog/internal/core/domain"
)

const (
	inventoryKeyPrefix = "inventory:"
	idempotencyKeyTTL  = 24 * time.Hour
)

// Ledger scripts return {status, quantity, version}; quantity comes back as
// the stored string so large values keep full precision. status 1 = applied,
// -1 = missing key, -2 = not enough stock, -3 = quantity would overflow.
var decrementStockScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])

local current = redis.call('HGET', key, 'quantity')
if not current then
	return {-1, 0, 0}
end

current = tonumber(current)
if current < quantity then
	local version = tonumber(redis.call('HGET', key, 'version'))
	return {-2, current, version}
end

redis.call('HINCRBY', key, 'quantity', '-' .. ARGV[1])
local version = redis.call('HINCRBY', key, 'version', 1)
return {1, redis.call('HGET', key, 'quantity'), version}
`)

var incrementStockScript = redis.NewScript(`
local key = KEYS[1]

if redis.call('EXISTS', key) == 0 then
	return {-1, 0, 0}
end

-- ARGV[1] is passed through as a string: a Lua number cannot hold every int64
local total = redis.pcall('HINCRBY', key, 'quantity', ARGV[1])
if type(total) == 'table' and total.err then
	return {-3, 0, 0}
end
local version = redis.call('HINCRBY', key, 'version', 1)
return {1, redis.call('HGET', key, 'quantity'), version}
`)

var createStockScript = redis.NewScript(`
local key = KEYS[1]
if redis.call('EXISTS', key) == 1 then
	return 0
end
redis.call('HSET', key, 'quantity', ARGV[1], 'version', 1)
return 1
`)

// RedisAdapter keeps inventory ledgers in Redis hashes and guards purchase
// requests with SETNX keys.
type RedisAdapter struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client, ttl: idempotencyKeyTTL}
}

// WithIdempotencyTTL overrides how long a claimed request id is remembered.
func (r *RedisAdapter) WithIdempotencyTTL(ttl time.Duration) *RedisAdapter {
	if ttl > 0 {
		r.ttl = ttl
	}
	return r
}

func (r *RedisAdapter) Get(ctx context.Context, productID int64) (domain.Inventory, error) {
	vals, err := r.client.HMGet(ctx, inventoryKey(productID), "quantity", "version").Result()
	if err != nil {
		return domain.Inventory{}, errors.Wrap(err, "read inventory")
	}
	if vals[0] == nil || vals[1] == nil {
		return domain.Inventory{}, errors.Wrapf(domain.ErrNotFound, "inventory for product %d", productID)
	}

	quantity, err := parseRedisInt(vals[0])
	if err != nil {
		return domain.Inventory{}, errors.Wrap(err, "parse quantity")
	}
	version, err := parseRedisInt(vals[1])
	if err != nil {
		return domain.Inventory{}, errors.Wrap(err, "parse version")
	}
	return domain.Inventory{ProductID: productID, Quantity: quantity, Version: version}, nil
}

func (r *RedisAdapter) Create(ctx context.Context, productID, quantity int64) (domain.Inventory, error) {
	created, err := createStockScript.Run(ctx, r.client, []string{inventoryKey(productID)}, quantity).Int()
	if err != nil {
		return domain.Inventory{}, errors.Wrap(err, "create inventory")
	}
	if created == 0 {
		return domain.Inventory{}, errors.Wrapf(domain.ErrDuplicateIdentity, "inventory for product %d", productID)
	}
	return domain.Inventory{ProductID: productID, Quantity: quantity, Version: 1}, nil
}

func (r *RedisAdapter) Decrement(ctx context.Context, productID, quantity int64) (domain.Inventory, error) {
	return r.runLedgerScript(ctx, decrementStockScript, productID, quantity)
}

func (r *RedisAdapter) Increment(ctx context.Context, productID, quantity int64) (domain.Inventory, error) {
	return r.runLedgerScript(ctx, incrementStockScript, productID, quantity)
}

// SetStock overwrites the quantity, creating the ledger when missing.
func (r *RedisAdapter) SetStock(ctx context.Context, productID, quantity int64) error {
	key := inventoryKey(productID)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, "quantity", quantity)
	pipe.HIncrBy(ctx, key, "version", 1)
	_, err := pipe.Exec(ctx)
	return errors.Wrap(err, "set stock")
}

func (r *RedisAdapter) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, r.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "claim idempotency key")
	}

	return ok, nil
}

func (r *RedisAdapter) Release(ctx context.Context, key string) error {
	return errors.Wrap(r.client.Del(ctx, key).Err(), "release idempotency key")
}

func (r *RedisAdapter) runLedgerScript(ctx context.Context, script *redis.Script, productID, quantity int64) (domain.Inventory, error) {
	res, err := script.Run(ctx, r.client, []string{inventoryKey(productID)}, quantity).Int64Slice()
	if err != nil {
		return domain.Inventory{}, errors.Wrap(err, "run ledger script")
	}
	if len(res) != 3 {
		return domain.Inventory{}, errors.Errorf("ledger script returned %d values", len(res))
	}

	switch res[0] {
	case -1:
		return domain.Inventory{}, errors.Wrapf(domain.ErrNotFound, "inventory for product %d", productID)
	case -2:
		return domain.Inventory{}, errors.Wrapf(domain.ErrInsufficientStock, "requested %d, available %d", quantity, res[1])
	case -3:
		return domain.Inventory{}, errors.Wrapf(domain.ErrInvalidQuantity, "adding %d overflows stock", quantity)
	}
	return domain.Inventory{ProductID: productID, Quantity: res[1], Version: res[2]}, nil
}

func inventoryKey(productID int64) string {
	return inventoryKeyPrefix + strconv.FormatInt(productID, 10)
}

func parseRedisInt(v interface{}) (int64, error) {
	switch t := v.(type) {
	case string:
		return strconv.ParseInt(t, 10, 64)
	case int64:
		return t, nil
	default:
		return 0, errors.Errorf("unexpected redis value %T", v)
	}
}
