// Package mongo implements internal/memory.Store atop
// go.mongodb.org/mongo-driver/v2, the durable backend named directly in
// spec.md §4.7 and wired in the teacher's own go.mod. The teacher's
// features/memory/mongo/clients/mongo/client.go exercises the v1 import
// paths (go.mongodb.org/mongo-driver/{bson,mongo,mongo/options,
// mongo/readpref}) even though the teacher's go.mod declares the v2
// module; this package follows the same Options/ensureIndexes/upsert
// shape but against the v2 package paths and API the go.mod actually
// pins, since no file anywhere in the corpus exercises v2 directly (see
// DESIGN.md).
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/magray/magray/pkg/magray"
)

const (
	defaultCollection = "memory_records"
	defaultTimeout    = 5 * time.Second
)

// Client exposes the Mongo-backed operations the memory Store needs:
// persistence for records plus a liveness ping for Health.
type Client interface {
	Ping(ctx context.Context) error
	LoadAll(ctx context.Context) ([]magray.MemoryRecord, error)
	Upsert(ctx context.Context, record magray.MemoryRecord) error
	Delete(ctx context.Context, id string) error
}

// ClientOptions configures the Mongo client implementation.
type ClientOptions struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

type client struct {
	mongo   *mongodriver.Client
	coll    *mongodriver.Collection
	timeout time.Duration
}

// New returns a Client backed by the provided MongoDB client, ensuring
// the (layer) index exists before returning.
func New(opts ClientOptions) (Client, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	collName := opts.Collection
	if collName == "" {
		collName = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	coll := opts.Client.Database(opts.Database).Collection(collName)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := ensureIndexes(ctx, coll); err != nil {
		return nil, err
	}
	return &client{mongo: opts.Client, coll: coll, timeout: timeout}, nil
}

func (c *client) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return c.mongo.Ping(ctx, readpref.Primary())
}

func (c *client) LoadAll(ctx context.Context) ([]magray.MemoryRecord, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	cursor, err := c.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []recordDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	records := make([]magray.MemoryRecord, len(docs))
	for i, d := range docs {
		records[i] = d.toRecord()
	}
	return records, nil
}

func (c *client) Upsert(ctx context.Context, record magray.MemoryRecord) error {
	if record.ID == "" {
		return errors.New("record id is required")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	filter := bson.M{"_id": record.ID}
	update := bson.M{"$set": fromRecord(record)}
	_, err := c.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (c *client) Delete(ctx context.Context, id string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	_, err := c.coll.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (c *client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

type recordDocument struct {
	ID           string    `bson:"_id"`
	Layer        string    `bson:"layer"`
	Text         string    `bson:"text"`
	Embedding    []float32 `bson:"embedding"`
	Kind         string    `bson:"kind"`
	Tags         []string  `bson:"tags,omitempty"`
	CreatedAt    time.Time `bson:"created_at"`
	LastAccessAt time.Time `bson:"last_access_at"`
	AccessCount  int64     `bson:"access_count"`
	Score        float64   `bson:"score"`
	Source       string    `bson:"source,omitempty"`
}

func fromRecord(r magray.MemoryRecord) recordDocument {
	return recordDocument{
		ID: r.ID, Layer: string(r.Layer), Text: r.Text, Embedding: r.Embedding, Kind: r.Kind,
		Tags: r.Tags, CreatedAt: r.CreatedAt, LastAccessAt: r.LastAccessAt,
		AccessCount: r.AccessCount, Score: r.Score, Source: r.Source,
	}
}

func (d recordDocument) toRecord() magray.MemoryRecord {
	return magray.MemoryRecord{
		ID: d.ID, Layer: magray.MemoryLayer(d.Layer), Text: d.Text, Embedding: d.Embedding, Kind: d.Kind,
		Tags: d.Tags, CreatedAt: d.CreatedAt, LastAccessAt: d.LastAccessAt,
		AccessCount: d.AccessCount, Score: d.Score, Source: d.Source,
	}
}

func ensureIndexes(ctx context.Context, coll *mongodriver.Collection) error {
	index := mongodriver.IndexModel{
		Keys: bson.D{{Key: "layer", Value: 1}},
	}
	_, err := coll.Indexes().CreateOne(ctx, index)
	return err
}
