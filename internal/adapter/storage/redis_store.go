package storage

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/catalog/internal/core/domain"
)

var insertRecordScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'payload', ARGV[1], 'version', ARGV[2])
return 1
`)

// compareAndSwapScript returns {status, version}: 1 applied (new version),
// -1 missing, -2 stored version differs (stored version).
var compareAndSwapScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if not current then
	return {-1, 0}
end
current = tonumber(current)
if current ~= tonumber(ARGV[1]) then
	return {-2, current}
end
redis.call('HSET', KEYS[1], 'payload', ARGV[2], 'version', current + 1)
return {1, current + 1}
`)

var deleteRecordScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if not current then
	return {-1, 0}
end
current = tonumber(current)
if current ~= tonumber(ARGV[1]) then
	return {-2, current}
end
redis.call('DEL', KEYS[1])
return {1, current}
`)

// RedisStore is a VersionedRepository keeping each record in a hash with a
// JSON payload and a version field. Conditional writes run as Lua scripts so
// the check and the write are one step on the server.
type RedisStore[P any] struct {
	client *redis.Client
	prefix string
}

func NewRedisStore[P any](client *redis.Client, prefix string) *RedisStore[P] {
	return &RedisStore[P]{client: client, prefix: prefix}
}

func (s *RedisStore[P]) NextID(ctx context.Context) (string, error) {
	n, err := s.client.Incr(ctx, s.prefix+"seq").Result()
	if err != nil {
		return "", errors.Wrap(err, "next id")
	}
	return strconv.FormatInt(n, 10), nil
}

func (s *RedisStore[P]) Get(ctx context.Context, id string) (domain.Record[P], error) {
	vals, err := s.client.HMGet(ctx, s.key(id), "payload", "version").Result()
	if err != nil {
		return domain.Record[P]{}, errors.Wrap(err, "read record")
	}
	if vals[0] == nil || vals[1] == nil {
		return domain.Record[P]{}, errors.Wrapf(domain.ErrNotFound, "id %s", id)
	}

	raw, ok := vals[0].(string)
	if !ok {
		return domain.Record[P]{}, errors.Errorf("unexpected payload type %T", vals[0])
	}
	var payload P
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return domain.Record[P]{}, errors.Wrap(err, "decode payload")
	}
	version, err := parseRedisInt(vals[1])
	if err != nil {
		return domain.Record[P]{}, errors.Wrap(err, "parse version")
	}
	return domain.Record[P]{ID: id, Version: version, Payload: payload}, nil
}

func (s *RedisStore[P]) Insert(ctx context.Context, record domain.Record[P]) error {
	raw, err := json.Marshal(record.Payload)
	if err != nil {
		return errors.Wrap(err, "encode payload")
	}

	ok, err := insertRecordScript.Run(ctx, s.client, []string{s.key(record.ID)}, string(raw), record.Version).Int()
	if err != nil {
		return errors.Wrap(err, "insert record")
	}
	if ok == 0 {
		return errors.Wrapf(domain.ErrDuplicateIdentity, "id %s", record.ID)
	}
	return nil
}

func (s *RedisStore[P]) CompareAndSwap(ctx context.Context, id string, expectedVersion int64, payload P) (domain.Record[P], error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return domain.Record[P]{}, errors.Wrap(err, "encode payload")
	}

	res, err := compareAndSwapScript.Run(ctx, s.client, []string{s.key(id)}, expectedVersion, string(raw)).Int64Slice()
	if err != nil {
		return domain.Record[P]{}, errors.Wrap(err, "compare and swap")
	}
	if err := scriptStatus(res, id, expectedVersion); err != nil {
		return domain.Record[P]{}, err
	}
	return domain.Record[P]{ID: id, Version: res[1], Payload: payload}, nil
}

func (s *RedisStore[P]) Delete(ctx context.Context, id string, expectedVersion int64) error {
	res, err := deleteRecordScript.Run(ctx, s.client, []string{s.key(id)}, expectedVersion).Int64Slice()
	if err != nil {
		return errors.Wrap(err, "delete record")
	}
	return scriptStatus(res, id, expectedVersion)
}

func (s *RedisStore[P]) key(id string) string {
	return s.prefix + id
}

func scriptStatus(res []int64, id string, expectedVersion int64) error {
	if len(res) != 2 {
		return errors.Errorf("script returned %d values", len(res))
	}
	switch res[0] {
	case -1:
		return errors.Wrapf(domain.ErrNotFound, "id %s", id)
	case -2:
		return versionConflict(expectedVersion, res[1])
	}
	return nil
}
