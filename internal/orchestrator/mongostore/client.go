// Package mongostore persists Orchestrator-owned Workflow snapshots to
// MongoDB, grounded on internal/memory/mongo's client/store split (a thin
// Client wrapping the driver, a Store implementing the package's own
// interface atop it). SPEC_FULL.md names this pairing directly: MAGRAY's
// memory substrate and its workflow ledger share the same durable backend,
// go.mongodb.org/mongo-driver/v2, so a crashed process can recover
// in-flight workflows on restart instead of losing them.
package mongostore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/magray/magray/pkg/magray"
)

const (
	defaultCollection = "workflows"
	defaultTimeout    = 5 * time.Second
)

// Client exposes the Mongo operations Store needs: upserting a snapshot,
// loading one by ID, and listing every workflow not yet archived. It
// operates on magray.Workflow directly (rather than an exported document
// type) so a fake Client can be written against this package's tests
// without needing access to an internal bson shape.
type Client interface {
	Upsert(ctx context.Context, wf *magray.Workflow) error
	Load(ctx context.Context, id magray.WorkflowID) (*magray.Workflow, error)
	ListActive(ctx context.Context) ([]*magray.Workflow, error)
}

// ClientOptions configures the Mongo client implementation.
type ClientOptions struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

type client struct {
	coll    *mongodriver.Collection
	timeout time.Duration
}

// New returns a Client backed by the provided MongoDB client, ensuring the
// (state) index exists before returning so ListActive's filter is cheap.
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
	index := mongodriver.IndexModel{Keys: bson.D{{Key: "state", Value: 1}}}
	if _, err := coll.Indexes().CreateOne(ctx, index); err != nil {
		return nil, err
	}
	return &client{coll: coll, timeout: timeout}, nil
}

func (c *client) Upsert(ctx context.Context, wf *magray.Workflow) error {
	doc, err := toDocument(wf)
	if err != nil {
		return err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"_id": doc.ID}
	update := bson.M{"$set": doc}
	_, err = c.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (c *client) Load(ctx context.Context, id magray.WorkflowID) (*magray.Workflow, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	var doc workflowDocument
	if err := c.coll.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return doc.toWorkflow()
}

func (c *client) ListActive(ctx context.Context) ([]*magray.Workflow, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"state": bson.M{"$nin": bson.A{string(magray.WorkflowArchived)}}}
	cursor, err := c.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var docs []workflowDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*magray.Workflow, 0, len(docs))
	for _, d := range docs {
		wf, err := d.toWorkflow()
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, nil
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

// workflowDocument is the Mongo document shape for one Workflow snapshot.
// Intent/Plan/Result/Feedback are stored as opaque JSON blobs rather than
// mapped field-by-field: they are never queried by Mongo itself, only
// reloaded whole, so a full bson mapping of every nested ActionStep/
// ExecutionResult type would buy nothing a json.Marshal round-trip
// doesn't already give for free.
type workflowDocument struct {
	ID        string    `bson:"_id"`
	SessionID string    `bson:"session_id"`
	Utterance string    `bson:"utterance"`
	State     string    `bson:"state"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
	Intent    []byte    `bson:"intent,omitempty"`
	Plan      []byte    `bson:"plan,omitempty"`
	Result    []byte    `bson:"result,omitempty"`
	Feedback  []byte    `bson:"feedback,omitempty"`
}

func toDocument(wf *magray.Workflow) (workflowDocument, error) {
	doc := workflowDocument{
		ID:        string(wf.ID),
		SessionID: string(wf.Request.SessionID),
		Utterance: wf.Request.Utterance,
		State:     string(wf.State),
		CreatedAt: wf.CreatedAt,
		UpdatedAt: wf.UpdatedAt,
	}
	var err error
	if wf.Intent != nil {
		if doc.Intent, err = json.Marshal(wf.Intent); err != nil {
			return doc, err
		}
	}
	if wf.Plan != nil {
		if doc.Plan, err = json.Marshal(wf.Plan); err != nil {
			return doc, err
		}
	}
	if wf.Result != nil {
		if doc.Result, err = json.Marshal(wf.Result); err != nil {
			return doc, err
		}
	}
	if wf.Feedback != nil {
		if doc.Feedback, err = json.Marshal(wf.Feedback); err != nil {
			return doc, err
		}
	}
	return doc, nil
}

func (d workflowDocument) toWorkflow() (*magray.Workflow, error) {
	wf := &magray.Workflow{
		ID:        magray.WorkflowID(d.ID),
		Request:   magray.Request{SessionID: magray.SessionID(d.SessionID), Utterance: d.Utterance},
		State:     magray.WorkflowState(d.State),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if err := unmarshalIfSet(d.Intent, &wf.Intent); err != nil {
		return nil, err
	}
	if err := unmarshalIfSet(d.Plan, &wf.Plan); err != nil {
		return nil, err
	}
	if err := unmarshalIfSet(d.Result, &wf.Result); err != nil {
		return nil, err
	}
	if err := unmarshalIfSet(d.Feedback, &wf.Feedback); err != nil {
		return nil, err
	}
	return wf, nil
}

func unmarshalIfSet(data []byte, out any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
