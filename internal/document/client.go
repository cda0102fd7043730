// Package document owns the document (MongoDB) connection and the
// batch-upsert contract from spec section 6. It is shaped symmetrically
// with package relational so the router can treat both backends
// uniformly, even though MongoDB has no teacher-pack analogue: the
// connect/close/deadline/Open(ctx, Config) shape and the Bind/Preflight
// config pair are adapted from the teacher's connection-handling idiom
// rather than from any mongo-specific teacher code.
package document

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rajmodi8905/adaptive-sink/internal/metrics"
	"github.com/rajmodi8905/adaptive-sink/internal/record"
)

// DefaultDeadline is the default timeout applied to every document
// operation, per spec section 5.
const DefaultDeadline = 30 * time.Second

// Client owns the Mongo connection and every index/upsert operation
// against it.
type Client struct {
	db       *mongo.Database
	raw      *mongo.Client
	Deadline time.Duration
}

// Open connects to MongoDB and pings it before returning, the same
// connect-then-verify discipline as relational.Open.
func Open(ctx context.Context, cfg Config) (*Client, error) {
	uri := buildURI(cfg)
	raw, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to document backend")
	}
	if err := raw.Ping(ctx, nil); err != nil {
		_ = raw.Disconnect(ctx)
		return nil, errors.Wrap(err, "could not ping document backend")
	}
	log.WithField("host", cfg.Host).Info("connected to document backend")

	return &Client{db: raw.Database(cfg.Database), raw: raw, Deadline: DefaultDeadline}, nil
}

func buildURI(cfg Config) string {
	if cfg.User == "" {
		return fmt.Sprintf("mongodb://%s:%d", cfg.Host, cfg.Port)
	}
	return fmt.Sprintf("mongodb://%s:%s@%s:%d/%s", cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
}

// WrapDatabase builds a Client around an already-open *mongo.Database,
// for tests that supply a database from a local or in-memory mongo
// instance. The returned Client's Close is a no-op.
func WrapDatabase(db *mongo.Database) *Client {
	return &Client{db: db, Deadline: DefaultDeadline}
}

// Close disconnects the underlying client.
func (c *Client) Close(ctx context.Context) error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Disconnect(ctx)
}

// EnsureIndexes creates a unique index on keyField for collection if one
// does not already exist (spec section 6). A blank keyField is a no-op:
// the collection falls back to plain insert and may hold duplicates,
// which is the documented trade-off when no viable key exists.
func (c *Client) EnsureIndexes(ctx context.Context, collection, keyField string) error {
	if keyField == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.Deadline)
	defer cancel()

	model := mongo.IndexModel{
		Keys:    bson.D{{Key: keyField, Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_" + keyField),
	}
	_, err := c.db.Collection(collection).Indexes().CreateOne(ctx, model)
	return errors.Wrapf(err, "ensuring unique index on %s.%s", collection, keyField)
}

// InsertBatch upserts docs into collection, matching on keyField and
// replacing the whole document on a match, inserting on miss. When
// keyField is empty, every doc is plainly inserted instead (spec section
// 6). Documents missing keyField (or carrying a null value for it) are
// also plainly inserted, since there is no key to match against.
func (c *Client) InsertBatch(ctx context.Context, collection string, docs []record.Record, keyField string) (err error) {
	if len(docs) == 0 {
		return nil
	}

	start := time.Now()
	defer func() {
		metrics.UpsertDuration.WithLabelValues(collection, "doc").Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.UpsertErrors.WithLabelValues(collection, "doc").Inc()
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, c.Deadline)
	defer cancel()

	models := make([]mongo.WriteModel, 0, len(docs))
	for _, r := range docs {
		body := toBSON(r)
		if keyField == "" {
			models = append(models, mongo.NewInsertOneModel().SetDocument(body))
			continue
		}
		keyVal, ok := r[keyField]
		if !ok || keyVal.IsNull() {
			models = append(models, mongo.NewInsertOneModel().SetDocument(body))
			continue
		}
		filter := bson.D{{Key: keyField, Value: keyVal.ToRaw()}}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(filter).
			SetReplacement(body).
			SetUpsert(true))
	}

	opts := options.BulkWrite().SetOrdered(false)
	_, writeErr := c.db.Collection(collection).BulkWrite(ctx, models, opts)
	err = errors.Wrap(writeErr, "upserting document batch")
	return err
}

// IterateAll streams every document in collection to fn, for the
// migrator's DOC -> SQL backfill (spec section 4.7): it never loads the
// whole collection into memory at once. fn's error aborts the scan.
func (c *Client) IterateAll(ctx context.Context, collection string, fn func(doc bson.M) error) error {
	cur, err := c.db.Collection(collection).Find(ctx, bson.D{})
	if err != nil {
		return errors.Wrapf(err, "scanning %s", collection)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return errors.Wrapf(err, "decoding document in %s", collection)
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return errors.Wrap(cur.Err(), "iterating "+collection)
}

// SetFields applies a $set of fields to every document in collection
// matching filter, for the migrator's SQL -> DOC backfill before a
// column drop (spec section 4.7).
func (c *Client) SetFields(ctx context.Context, collection string, filter bson.D, fields bson.M) error {
	if len(fields) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.Deadline)
	defer cancel()
	_, err := c.db.Collection(collection).UpdateMany(ctx, filter, bson.D{{Key: "$set", Value: fields}})
	return errors.Wrapf(err, "setting fields on %s", collection)
}

// toBSON converts a Record into a bson.M, preserving datetime values as
// native time.Time (rather than their canonical string form) so Mongo
// stores and can range-query them as dates.
func toBSON(r record.Record) bson.M {
	out := make(bson.M, len(r))
	for k, v := range r {
		out[k] = valueToBSON(v)
	}
	return out
}

func valueToBSON(v record.Value) any {
	if v.Kind == record.KindDateTime {
		return v.Time
	}
	if v.Kind == record.KindArray {
		items := make(bson.A, len(v.Array))
		for i, item := range v.Array {
			items[i] = valueToBSON(item)
		}
		return items
	}
	if v.Kind == record.KindObject {
		out := make(bson.M, len(v.Object))
		for k, item := range v.Object {
			out[k] = valueToBSON(item)
		}
		return out
	}
	return v.ToRaw()
}
