package workflow

import (
	"context"
	stdErrors "errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Malowking/finrag/core/common"
	"github.com/Malowking/finrag/core/config"
	"github.com/Malowking/finrag/core/errors"
	"github.com/Malowking/finrag/core/vector_store"
	pkgSchema "github.com/Malowking/finrag/pkg/schema"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/schema"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/gogf/gf/v2/os/glog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	g.Log().SetConfig(glog.Config{
		Flags:       glog.F_TIME_STD,
		Level:       glog.LEVEL_ALL,
		StdoutPrint: true,
	})
	os.Exit(m.Run())
}

// scriptedCompleter 按调用序号返回预设结果
type scriptedCompleter struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, msgs []*schema.Message) (string, error)
}

func (c *scriptedCompleter) Complete(ctx context.Context, msgs []*schema.Message) (string, error) {
	c.mu.Lock()
	i := c.calls
	c.calls++
	c.mu.Unlock()
	return c.fn(i, msgs)
}

func (c *scriptedCompleter) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func reply(text string) *scriptedCompleter {
	return &scriptedCompleter{fn: func(int, []*schema.Message) (string, error) { return text, nil }}
}

func replies(texts ...string) *scriptedCompleter {
	return &scriptedCompleter{fn: func(i int, _ []*schema.Message) (string, error) {
		return texts[i%len(texts)], nil
	}}
}

func failing(err error) *scriptedCompleter {
	return &scriptedCompleter{fn: func(int, []*schema.Message) (string, error) { return "", err }}
}

// echo 返回用户消息前加前缀
func echo(prefix string) *scriptedCompleter {
	return &scriptedCompleter{fn: func(_ int, msgs []*schema.Message) (string, error) {
		return prefix + msgs[len(msgs)-1].Content, nil
	}}
}

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{0.1, 0.2, 0.3}
	}
	return out, nil
}

type fakeIndex struct {
	name     string
	docs     func() []*pkgSchema.Document
	err      error
	searches int
	lastTopK int
}

func (f *fakeIndex) Name() string { return f.name }

func (f *fakeIndex) Search(ctx context.Context, vector []float32, topK int) ([]*pkgSchema.Document, error) {
	f.searches++
	f.lastTopK = topK
	if f.err != nil {
		return nil, f.err
	}
	return f.docs(), nil
}

type fakeReranker struct {
	err   error
	calls int
}

// Rerank 把输入倒序返回
func (f *fakeReranker) Rerank(ctx context.Context, query string, docs []string, topN int) ([]*common.RerankResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []*common.RerankResult
	for i := len(docs) - 1; i >= 0 && len(out) < topN; i-- {
		out = append(out, &common.RerankResult{Index: i, RelevanceScore: float64(i) / 10})
	}
	return out, nil
}

func fundDocs() []*pkgSchema.Document {
	return []*pkgSchema.Document{
		{ID: "1", Content: "Fund X risk: max drawdown -12% over one year", Score: 0.91, MetaData: map[string]any{
			"amc_name": "Alpha AMC", "short_code": "FUNDX", "max_drawdown_1y": "-12%",
			"source_name": "Fund X factsheet", "source_url": "https://funds.example/fundx",
		}},
		{ID: "2", Content: "Fund X sharpe ratio 0.8 and volatility", Score: 0.88, MetaData: map[string]any{
			"source_name": "Fund X factsheet (copy)", "source_url": "https://funds.example/fundx",
		}},
		{ID: "3", Content: "Peer funds risk comparison", Score: 0.70, MetaData: map[string]any{
			"source_file": "peers.pdf",
		}},
	}
}

type testEnv struct {
	models   Models
	embedder *fakeEmbedder
	fund     *fakeIndex
	economy  *fakeIndex
	reranker *fakeReranker
	cfg      config.WorkflowConfig
}

func newTestEnv() *testEnv {
	env := &testEnv{
		models: Models{
			Plan: reply(`{"steps":[{"step":"Find the risk metrics of Fund X","intent":"fund"},` +
				`{"step":"Compare Fund X risk with its peers","intent":"fund"}]}`),
			Step:      echo("cot: "),
			Rewrite:   echo("rewritten: "),
			Expand:    echo("expanded: "),
			Classify:  replies("fund", "fund", "economy", "unknown"),
			Condense:  reply("Fund X has a one-year max drawdown of -12% and a Sharpe ratio of 0.8."),
			Generate:  reply("Fund X carries moderate risk."),
			Summarize: reply("Fund X is a moderate-risk fund compared with its peers."),
		},
		embedder: &fakeEmbedder{},
		fund:     &fakeIndex{name: "fund_docs", docs: fundDocs},
		economy:  &fakeIndex{name: "economy_docs", docs: func() []*pkgSchema.Document { return nil }},
		reranker: &fakeReranker{},
		cfg:      config.DefaultWorkflowConfig(),
	}
	env.cfg.VoteConcurrency = 1
	env.cfg.CallTimeout = 5 * time.Second
	return env
}

func (e *testEnv) deps() Dependencies {
	return Dependencies{
		Models:   e.models,
		Embedder: e.embedder,
		Indexes: vector_store.NamespaceIndexes{
			string(IntentFund):    e.fund,
			string(IntentEconomy): e.economy,
		},
		Reranker: e.reranker,
	}
}

func (e *testEnv) workflow(t *testing.T) *Workflow {
	t.Helper()
	w, err := New(context.Background(), e.deps(), e.cfg)
	require.NoError(t, err)
	return w
}

func TestNewValidatesDependencies(t *testing.T) {
	env := newTestEnv()

	deps := env.deps()
	deps.Models.Classify = nil
	_, err := New(context.Background(), deps, env.cfg)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrModelNotConfigured))

	deps = env.deps()
	deps.Indexes = nil
	_, err = New(context.Background(), deps, env.cfg)
	assert.True(t, errors.HasCode(err, errors.ErrVectorStoreNotFound))

	cfg := env.cfg
	cfg.MaxIterations = 0
	_, err = New(context.Background(), env.deps(), cfg)
	assert.True(t, errors.HasCode(err, errors.ErrConfigInvalid))
}

func TestRunRejectsEmptyQuery(t *testing.T) {
	w := newTestEnv().workflow(t)
	_, err := w.Run(context.Background(), RunRequest{Query: "   "})
	assert.True(t, errors.HasCode(err, errors.ErrInvalidParameter))
}

func TestRunFundRiskScenario(t *testing.T) {
	env := newTestEnv()
	w := env.workflow(t)

	var snapshots []*Snapshot
	state, err := w.Run(context.Background(), RunRequest{
		ThreadID: "t-1",
		Query:    "What are the risks of Fund X?",
		Observer: func(s *Snapshot) { snapshots = append(snapshots, s) },
	})
	require.NoError(t, err)

	require.Len(t, state.Plan, 2)
	for _, step := range state.Plan {
		assert.Equal(t, IntentFund, step.Intent)
	}
	assert.Equal(t, 2, state.CurrentStep)
	require.Len(t, state.AllAnswers, 2)
	assert.Equal(t, 2, env.models.Generate.(*scriptedCompleter).Calls())
	assert.Equal(t, 8, env.models.Classify.(*scriptedCompleter).Calls())
	assert.Equal(t, 2, env.fund.searches)
	assert.Equal(t, 100, env.fund.lastTopK)
	assert.Equal(t, 0, env.economy.searches)
	assert.Equal(t, IntentFund, state.Namespace)

	for i, a := range state.AllAnswers {
		assert.Equal(t, i, a.Step)
		assert.False(t, a.Skipped)
		assert.NotEmpty(t, a.Answer)
		assert.True(t, strings.HasPrefix(a.RewrittenQuery, "rewritten: cot: "))
		require.Len(t, a.Sources, 2)
	}
	assert.Len(t, state.RewrittenQueries, 2)
	assert.True(t, state.Done)
	assert.Equal(t, "Fund X carries moderate risk.", state.Answer)

	assert.True(t, strings.HasPrefix(state.FinalSummary, "Fund X is a moderate-risk fund"))
	assert.Contains(t, state.FinalSummary, "Sources:")
	// 两个文档共用同一个 source_url，只保留一条
	assert.Equal(t, 1, strings.Count(state.FinalSummary, "- Fund X factsheet"))
	assert.Contains(t, state.FinalSummary, "- peers.pdf")

	// Plan + 2 * 8 + Summarize
	require.Len(t, snapshots, 18)
	assert.Equal(t, NodePlan, snapshots[0].Node)
	assert.Equal(t, NodeSummarize, snapshots[17].Node)
	generates := 0
	prevStep := 0
	for i, snap := range snapshots {
		assert.Equal(t, i+1, snap.Seq)
		assert.Equal(t, "t-1", snap.ThreadID)
		assert.GreaterOrEqual(t, snap.State.CurrentStep, prevStep)
		assert.LessOrEqual(t, snap.State.CurrentStep-prevStep, 1)
		if snap.Node == NodeGenerate {
			generates++
			assert.Equal(t, generates, snap.State.CurrentStep)
		}
		prevStep = snap.State.CurrentStep
	}
	assert.Equal(t, 2, generates)

	// 快照与最终状态互不影响
	snapshots[0].State.Plan[0].Step = "mutated"
	assert.NotEqual(t, "mutated", state.Plan[0].Step)
}

func TestRunPlanFallback(t *testing.T) {
	env := newTestEnv()
	env.models.Plan = reply("I cannot produce JSON today")
	env.models.Classify = reply("garbage")
	w := env.workflow(t)

	state, err := w.Run(context.Background(), RunRequest{Query: "hello"})
	require.NoError(t, err)

	assert.Equal(t, FallbackPlan(), state.Plan)
	require.Len(t, state.AllAnswers, 1)
	assert.Equal(t, IntentUnknown, state.Namespace)
	// unknown 未映射，回退到 fund 索引
	assert.Equal(t, 1, env.fund.searches)

	assert.True(t, hasWarning(state, NodePlan, "CoT planning failed"))
	assert.True(t, hasWarning(state, NodeClassify, "no valid namespace votes"))
}

func TestRunSkipsFailedStepAndContinues(t *testing.T) {
	env := newTestEnv()
	env.embedder.err = stdErrors.New("embedding service unavailable")
	w := env.workflow(t)

	state, err := w.Run(context.Background(), RunRequest{Query: "What are the risks of Fund X?"})
	require.NoError(t, err)

	require.Len(t, state.AllAnswers, len(state.Plan))
	for _, a := range state.AllAnswers {
		assert.True(t, a.Skipped)
		assert.Contains(t, a.Error, "embedding service unavailable")
		assert.Empty(t, a.Answer)
	}
	assert.Equal(t, 0, env.models.Generate.(*scriptedCompleter).Calls())
	assert.Equal(t, 0, env.models.Condense.(*scriptedCompleter).Calls())
	assert.True(t, hasWarning(state, NodeSearch, "embedding service unavailable"))
	assert.True(t, hasWarning(state, NodeGenerate, "skipped"))
	assert.NotContains(t, state.FinalSummary, "Sources:")
	assert.True(t, state.Done)
}

func TestRunDegradesQueryShaping(t *testing.T) {
	env := newTestEnv()
	env.models.Step = failing(stdErrors.New("timeout"))
	env.models.Rewrite = failing(stdErrors.New("timeout"))
	env.models.Expand = failing(stdErrors.New("timeout"))
	env.models.Summarize = failing(stdErrors.New("timeout"))
	w := env.workflow(t)

	state, err := w.Run(context.Background(), RunRequest{Query: "What are the risks of Fund X?"})
	require.NoError(t, err)

	require.Len(t, state.AllAnswers, 2)
	// 步骤文本直接作为查询
	assert.Equal(t, "Find the risk metrics of Fund X", state.AllAnswers[0].RewrittenQuery)
	assert.False(t, state.AllAnswers[0].Skipped)
	assert.Contains(t, state.FinalSummary, "Step 1 [fund]:")
	assert.Contains(t, state.FinalSummary, "Sources:")
	assert.True(t, hasWarning(state, NodeSummarize, "final summary failed"))
}

func TestRunIterationCeiling(t *testing.T) {
	env := newTestEnv()
	env.models.Plan = reply(`[{"step":"a","intent":"fund"},{"step":"b","intent":"fund"},{"step":"c","intent":"economy"}]`)
	env.cfg.MaxIterations = 2
	w := env.workflow(t)

	state, err := w.Run(context.Background(), RunRequest{Query: "three steps"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrIterationCeiling))
	require.NotNil(t, state)
	assert.Len(t, state.AllAnswers, 2)
	assert.False(t, state.Done)
	assert.Empty(t, state.FinalSummary)
}

func TestRunCancellationBetweenNodes(t *testing.T) {
	env := newTestEnv()
	w := env.workflow(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var last string
	state, err := w.Run(ctx, RunRequest{
		Query: "What are the risks of Fund X?",
		Observer: func(s *Snapshot) {
			last = s.Node
			if s.Node == NodeSearch {
				cancel()
			}
		},
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrRunCancelled))
	assert.Equal(t, NodeSearch, last)

	// 保留取消时的部分状态
	require.NotNil(t, state)
	assert.Len(t, state.Documents, 3)
	assert.Empty(t, state.AllAnswers)
	assert.Equal(t, 0, env.reranker.calls)
}

func TestNodeInvariantViolationIsFatal(t *testing.T) {
	w := newTestEnv().workflow(t)

	node := w.wrap("broken", func(ctx context.Context, s *RunState) (*RunState, error) {
		s.CurrentStep = -1
		return s, nil
	})
	_, err := node(context.Background(), NewRunState("", "q"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvariantViolation))

	panicking := w.wrap("panics", func(ctx context.Context, s *RunState) (*RunState, error) {
		panic("boom")
	})
	_, err = panicking(context.Background(), NewRunState("", "q"))
	assert.True(t, errors.HasCode(err, errors.ErrInvariantViolation))
}

func TestStreamEndsWithFinalSnapshot(t *testing.T) {
	w := newTestEnv().workflow(t)

	reader := w.Stream(context.Background(), RunRequest{ThreadID: "t-2", Query: "What are the risks of Fund X?"})
	defer reader.Close()

	var snapshots []*Snapshot
	for {
		snap, err := reader.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		snapshots = append(snapshots, snap)
	}

	require.Len(t, snapshots, 19)
	final := snapshots[len(snapshots)-1]
	assert.True(t, final.Final)
	assert.Empty(t, final.Error)
	assert.True(t, final.State.Done)
	assert.NotEmpty(t, final.State.FinalSummary)
}

func TestStreamReportsFatalError(t *testing.T) {
	env := newTestEnv()
	env.cfg.MaxIterations = 1
	w := env.workflow(t)

	reader := w.Stream(context.Background(), RunRequest{Query: "What are the risks of Fund X?"})
	defer reader.Close()

	var final *Snapshot
	for {
		snap, err := reader.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		final = snap
	}
	require.NotNil(t, final)
	assert.True(t, final.Final)
	assert.Contains(t, final.Error, "iteration ceiling")
	assert.Len(t, final.State.AllAnswers, 1)
}

func hasWarning(s *RunState, node, fragment string) bool {
	for _, m := range s.Messages {
		if m.Node == node && m.Warning && strings.Contains(m.Content, fragment) {
			return true
		}
	}
	return false
}
