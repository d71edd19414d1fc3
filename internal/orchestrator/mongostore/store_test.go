package mongostore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/magray/magray/internal/orchestrator/mongostore"
	"github.com/magray/magray/pkg/magray"
)

// fakeClient implements mongostore.Client entirely in process, letting
// store_test exercise Store's facade logic without a live MongoDB instance.
type fakeClient struct {
	workflows map[magray.WorkflowID]*magray.Workflow
}

func newFakeClient() *fakeClient {
	return &fakeClient{workflows: make(map[magray.WorkflowID]*magray.Workflow)}
}

func (f *fakeClient) Upsert(_ context.Context, wf *magray.Workflow) error {
	cp := *wf
	f.workflows[wf.ID] = &cp
	return nil
}

func (f *fakeClient) Load(_ context.Context, id magray.WorkflowID) (*magray.Workflow, error) {
	wf, ok := f.workflows[id]
	if !ok {
		return nil, nil
	}
	cp := *wf
	return &cp, nil
}

func (f *fakeClient) ListActive(_ context.Context) ([]*magray.Workflow, error) {
	var out []*magray.Workflow
	for _, wf := range f.workflows {
		if wf.State != magray.WorkflowArchived {
			cp := *wf
			out = append(out, &cp)
		}
	}
	return out, nil
}

var _ mongostore.Client = (*fakeClient)(nil)

func TestStoreSaveAndLoad(t *testing.T) {
	cli := newFakeClient()
	store := mongostore.NewStore(cli)

	wf := &magray.Workflow{
		ID:        "wf-1",
		Request:   magray.Request{SessionID: "s1", Utterance: "do a thing"},
		State:     magray.WorkflowExecuting,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, store.Save(context.Background(), wf))

	loaded, err := store.Load(context.Background(), "wf-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, magray.WorkflowExecuting, loaded.State)
	require.Equal(t, "do a thing", loaded.Request.Utterance)
}

func TestStoreLoadMissingReturnsNil(t *testing.T) {
	store := mongostore.NewStore(newFakeClient())
	loaded, err := store.Load(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestStoreListActiveExcludesArchived(t *testing.T) {
	cli := newFakeClient()
	store := mongostore.NewStore(cli)

	require.NoError(t, store.Save(context.Background(), &magray.Workflow{ID: "active", State: magray.WorkflowExecuting}))
	require.NoError(t, store.Save(context.Background(), &magray.Workflow{ID: "done", State: magray.WorkflowArchived}))

	active, err := store.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, magray.WorkflowID("active"), active[0].ID)
}
