package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/rl1809/catalog/internal/core/domain"
)

const reviewCollection = "reviews"

type reviewDocument struct {
	ID        string                `bson:"_id"`
	ProductID int64                 `bson:"productId"`
	Version   int64                 `bson:"version"`
	Entries   []reviewEntryDocument `bson:"entries"`
}

type reviewEntryDocument struct {
	Username string    `bson:"username"`
	Review   string    `bson:"review"`
	Date     time.Time `bson:"date"`
}

// MongoReviewRepository stores each review aggregate as one document. Appends
// use $push guarded by a {_id, version} filter.
type MongoReviewRepository struct {
	coll *mongo.Collection
}

func NewMongoReviewRepository(db *mongo.Database) *MongoReviewRepository {
	return &MongoReviewRepository{coll: db.Collection(reviewCollection)}
}

// EnsureIndexes creates the unique product id index.
func (r *MongoReviewRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "productId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return errors.Wrap(err, "create productId index")
}

func (r *MongoReviewRepository) NextID(ctx context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (r *MongoReviewRepository) Get(ctx context.Context, id string) (domain.Record[domain.Review], error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

func (r *MongoReviewRepository) FindByProductID(ctx context.Context, productID int64) (domain.Record[domain.Review], error) {
	return r.findOne(ctx, bson.D{{Key: "productId", Value: productID}})
}

func (r *MongoReviewRepository) Insert(ctx context.Context, record domain.Record[domain.Review]) error {
	doc := reviewDocument{
		ID:        record.ID,
		ProductID: record.Payload.ProductID,
		Version:   record.Version,
		Entries:   make([]reviewEntryDocument, 0, len(record.Payload.Entries)),
	}
	for _, e := range record.Payload.Entries {
		doc.Entries = append(doc.Entries, toEntryDocument(e))
	}

	_, err := r.coll.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return errors.Wrapf(domain.ErrDuplicateIdentity, "review for product %d", record.Payload.ProductID)
	}
	return errors.Wrap(err, "insert review")
}

func (r *MongoReviewRepository) AppendEntry(ctx context.Context, id string, expectedVersion int64, entry domain.ReviewEntry) (domain.Record[domain.Review], error) {
	filter := bson.D{{Key: "_id", Value: id}, {Key: "version", Value: expectedVersion}}
	update := bson.D{
		{Key: "$push", Value: bson.D{{Key: "entries", Value: toEntryDocument(entry)}}},
		{Key: "$inc", Value: bson.D{{Key: "version", Value: 1}}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc reviewDocument
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Record[domain.Review]{}, r.classifyMiss(ctx, id, expectedVersion)
	}
	if err != nil {
		return domain.Record[domain.Review]{}, errors.Wrap(err, "append review entry")
	}
	return doc.toRecord(), nil
}

func (r *MongoReviewRepository) Delete(ctx context.Context, id string, expectedVersion int64) error {
	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}, {Key: "version", Value: expectedVersion}})
	if err != nil {
		return errors.Wrap(err, "delete review")
	}
	if res.DeletedCount == 0 {
		return r.classifyMiss(ctx, id, expectedVersion)
	}
	return nil
}

func (r *MongoReviewRepository) findOne(ctx context.Context, filter bson.D) (domain.Record[domain.Review], error) {
	var doc reviewDocument
	err := r.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Record[domain.Review]{}, errors.Wrap(domain.ErrNotFound, "review")
	}
	if err != nil {
		return domain.Record[domain.Review]{}, errors.Wrap(err, "find review")
	}
	return doc.toRecord(), nil
}

func (r *MongoReviewRepository) classifyMiss(ctx context.Context, id string, expectedVersion int64) error {
	rec, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return versionConflict(expectedVersion, rec.Version)
}

func (d reviewDocument) toRecord() domain.Record[domain.Review] {
	entries := make([]domain.ReviewEntry, 0, len(d.Entries))
	for _, e := range d.Entries {
		entries = append(entries, domain.ReviewEntry{Username: e.Username, Review: e.Review, Date: e.Date.UTC()})
	}
	return domain.Record[domain.Review]{
		ID:      d.ID,
		Version: d.Version,
		Payload: domain.Review{ProductID: d.ProductID, Entries: entries},
	}
}

func toEntryDocument(e domain.ReviewEntry) reviewEntryDocument {
	return reviewEntryDocument{Username: e.Username, Review: e.Review, Date: e.Date}
}
