package main

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/rl1809/catalog/internal/adapter/storage"
	"github.com/rl1809/catalog/internal/config"
	"github.com/rl1809/catalog/internal/core/domain"
	"github.com/rl1809/catalog/internal/port"
)

type backends struct {
	products port.VersionedRepository[domain.Product]
	reviews  port.ReviewRepository
	ledger   port.LedgerRepository
	guard    port.IdempotencyGuard
	journal  port.PurchaseJournal

	closers []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	log.Info("connections closed")
}

// openBackends connects only to the infrastructure the configuration names.
func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	b := &backends{}

	var db *sqlx.DB
	if cfg.Uses(config.BackendSQL) {
		var err error
		db, err = storage.OpenSQL(ctx, cfg.SQLDriver, cfg.SQLDSN)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { db.Close() })
		if err := storage.Migrate(db); err != nil {
			b.Close()
			return nil, err
		}
		log.WithField("driver", cfg.SQLDriver).Info("connected to sql")
	}

	var rdb *redis.Client
	if cfg.Uses(config.BackendRedis) {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: cfg.RedisPoolSize,
		})
		b.closers = append(b.closers, func() { rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			b.Close()
			return nil, errors.Wrap(err, "failed to connect redis")
		}
		log.WithField("addr", cfg.RedisAddr).Info("connected to redis")
	}

	var mdb *mongo.Database
	if cfg.Uses(config.BackendMongo) {
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			b.Close()
			return nil, errors.Wrap(err, "failed to connect mongo")
		}
		b.closers = append(b.closers, func() { client.Disconnect(context.Background()) })
		if err := client.Ping(ctx, nil); err != nil {
			b.Close()
			return nil, errors.Wrap(err, "failed to ping mongo")
		}
		mdb = client.Database(cfg.MongoDatabase)
		log.WithField("database", cfg.MongoDatabase).Info("connected to mongo")
	}

	switch cfg.ProductBackend {
	case config.BackendSQL:
		b.products = storage.NewSQLProductRepository(db)
	case config.BackendRedis:
		b.products = storage.NewRedisStore[domain.Product](rdb, "product:")
	default:
		b.products = storage.NewMemoryStore[domain.Product]()
	}

	switch cfg.ReviewBackend {
	case config.BackendSQL:
		b.reviews = storage.NewSQLReviewRepository(db)
	case config.BackendMongo:
		repo := storage.NewMongoReviewRepository(mdb)
		if err := repo.EnsureIndexes(ctx); err != nil {
			b.Close()
			return nil, err
		}
		b.reviews = repo
	default:
		b.reviews = storage.NewMemoryReviewRepository()
	}

	switch cfg.InventoryBackend {
	case config.BackendSQL:
		b.ledger = storage.NewSQLLedger(db)
	case config.BackendRedis:
		b.ledger = storage.NewRedisAdapter(rdb)
	default:
		b.ledger = storage.NewMemoryLedger()
	}

	switch cfg.IdempotencyBackend {
	case config.BackendRedis:
		b.guard = storage.NewRedisAdapter(rdb).WithIdempotencyTTL(cfg.IdempotencyTTL)
	default:
		b.guard = storage.NewMemoryIdempotencyGuard(cfg.IdempotencyTTL)
	}

	switch cfg.JournalBackend {
	case config.BackendSQL:
		b.journal = storage.NewSQLJournal(db)
	default:
		b.journal = storage.NewMemoryJournal()
	}

	log.WithFields(log.Fields{
		"product":     cfg.ProductBackend,
		"review":      cfg.ReviewBackend,
		"inventory":   cfg.InventoryBackend,
		"idempotency": cfg.IdempotencyBackend,
		"journal":     cfg.JournalBackend,
	}).Info("backends ready")
	return b, nil
}
