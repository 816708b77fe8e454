package cot

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/Malowking/finrag/core/config"
	"github.com/Malowking/finrag/core/errors"
	"github.com/Malowking/finrag/core/vector_store"
	"github.com/Malowking/finrag/core/workflow"
	pkgSchema "github.com/Malowking/finrag/pkg/schema"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedCompleter 第一次调用时通知 entered，然后等待 release 或上下文取消
type gatedCompleter struct {
	entered chan struct{}
	release chan struct{}
}

func newGatedCompleter() *gatedCompleter {
	return &gatedCompleter{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (c *gatedCompleter) Complete(ctx context.Context, msgs []*schema.Message) (string, error) {
	select {
	case c.entered <- struct{}{}:
	default:
	}
	select {
	case <-c.release:
		return "fund", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type staticCompleter string

func (c staticCompleter) Complete(ctx context.Context, msgs []*schema.Message) (string, error) {
	return string(c), nil
}

type stubEmbedder struct{}

func (stubEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{1, 0}
	}
	return out, nil
}

type stubIndex struct{}

func (stubIndex) Name() string { return "fund_docs" }

func (stubIndex) Search(ctx context.Context, vector []float32, topK int) ([]*pkgSchema.Document, error) {
	return []*pkgSchema.Document{
		{ID: "1", Content: "Fund X NAV 12.5", MetaData: map[string]any{"source_url": "https://funds.example/fundx"}},
	}, nil
}

func install(t *testing.T, c workflow.Completer) {
	t.Helper()
	cfg := config.DefaultWorkflowConfig()
	cfg.VoteConcurrency = 1
	cfg.CallTimeout = 5 * time.Second
	w, err := workflow.New(context.Background(), workflow.Dependencies{
		Models:   workflow.SameModel(c),
		Embedder: stubEmbedder{},
		Indexes:  vector_store.NamespaceIndexes{"fund": stubIndex{}},
	}, cfg)
	require.NoError(t, err)

	prev := GetWorkflow()
	SetWorkflow(w)
	t.Cleanup(func() { SetWorkflow(prev) })
}

func TestRunAssignsThreadID(t *testing.T) {
	install(t, staticCompleter("fund"))

	state, err := Run(context.Background(), "", "What is the NAV of Fund X?")
	require.NoError(t, err)
	assert.NotEmpty(t, state.ThreadID)
	assert.True(t, state.Done)
	assert.Len(t, state.AllAnswers, len(state.Plan))
	assert.False(t, IsActive(state.ThreadID))
}

func TestRunWithoutWorkflow(t *testing.T) {
	prev := GetWorkflow()
	SetWorkflow(nil)
	defer SetWorkflow(prev)

	_, err := Run(context.Background(), "t-1", "q")
	assert.True(t, errors.HasCode(err, errors.ErrModelNotConfigured))
}

func TestRunRejectsConcurrentRunOnSameThread(t *testing.T) {
	gate := newGatedCompleter()
	install(t, gate)

	errCh := make(chan error, 1)
	go func() {
		_, err := Run(context.Background(), "thread-busy", "How risky is Fund X?")
		errCh <- err
	}()
	<-gate.entered
	assert.True(t, IsActive("thread-busy"))

	_, err := Run(context.Background(), "thread-busy", "another question")
	assert.True(t, errors.HasCode(err, errors.ErrRunAlreadyActive))

	close(gate.release)
	require.NoError(t, <-errCh)
	assert.False(t, IsActive("thread-busy"))
}

func TestCancelStopsActiveRun(t *testing.T) {
	gate := newGatedCompleter()
	install(t, gate)

	errCh := make(chan error, 1)
	go func() {
		_, err := Run(context.Background(), "thread-cancel", "How risky is Fund X?")
		errCh <- err
	}()
	<-gate.entered

	require.NoError(t, Cancel(context.Background(), "thread-cancel"))
	select {
	case err := <-errCh:
		assert.True(t, errors.HasCode(err, errors.ErrRunCancelled))
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}
	assert.False(t, IsActive("thread-cancel"))
}

func TestCancelUnknownThread(t *testing.T) {
	err := Cancel(context.Background(), "missing")
	assert.True(t, errors.HasCode(err, errors.ErrRunNotFound))
}

func TestStreamReleasesThreadAfterFinalSnapshot(t *testing.T) {
	install(t, staticCompleter("fund"))

	reader, threadID, err := Stream(context.Background(), "thread-stream", "What is the NAV of Fund X?")
	require.NoError(t, err)
	assert.Equal(t, "thread-stream", threadID)

	var last *workflow.Snapshot
	for {
		s, err := reader.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		last = s
	}
	require.NotNil(t, last)
	assert.True(t, last.Final)
	assert.Empty(t, last.Error)
	assert.False(t, IsActive("thread-stream"))
}

func TestProgressRequiresRedis(t *testing.T) {
	_, err := Progress(context.Background(), "thread-x")
	assert.True(t, errors.HasCode(err, errors.ErrOperationFailed))
}
