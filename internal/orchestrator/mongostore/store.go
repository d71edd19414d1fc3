package mongostore

import (
	"context"

	"github.com/magray/magray/internal/orchestrator"
	"github.com/magray/magray/pkg/magray"
)

// Store implements orchestrator.WorkflowStore atop a Client, so
// Orchestrator.Run's transition events also persist a snapshot, letting a
// restarted magrayd process find and resume (or at least report on) any
// workflow that was mid-flight when it was killed.
type Store struct {
	client Client
}

// NewStore wraps client in a Store.
func NewStore(client Client) *Store {
	return &Store{client: client}
}

// NewStoreFromMongo is a convenience constructor mirroring
// internal/memory/mongo.NewStoreFromMongo: build the Client from
// clientOpts, then wrap it.
func NewStoreFromMongo(clientOpts ClientOptions) (*Store, error) {
	cli, err := New(clientOpts)
	if err != nil {
		return nil, err
	}
	return NewStore(cli), nil
}

// Save implements orchestrator.WorkflowStore.
func (s *Store) Save(ctx context.Context, wf *magray.Workflow) error {
	return s.client.Upsert(ctx, wf)
}

// Load returns the persisted snapshot for id, or nil if none exists.
func (s *Store) Load(ctx context.Context, id magray.WorkflowID) (*magray.Workflow, error) {
	return s.client.Load(ctx, id)
}

// ListActive returns every persisted workflow not yet in the Archived
// terminal state, for a restarted process to enumerate and report on.
func (s *Store) ListActive(ctx context.Context) ([]*magray.Workflow, error) {
	return s.client.ListActive(ctx)
}

var _ orchestrator.WorkflowStore = (*Store)(nil)
