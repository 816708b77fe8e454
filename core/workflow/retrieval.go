package workflow

import (
	"context"
	"fmt"

	"github.com/Malowking/finrag/core/common"
	"github.com/Malowking/finrag/core/errors"
	"github.com/Malowking/finrag/pkg/schema"
	"github.com/gogf/gf/v2/frame/g"
)

// search 向量化改写后的查询并在命名空间对应的索引中检索候选文档
func (w *Workflow) search(ctx context.Context, s *RunState) (*RunState, error) {
	if s.skipIteration() {
		return s, nil
	}

	namespace := s.Namespace
	if namespace == "" {
		namespace = IntentUnknown
	}
	index, resolved, ok := w.deps.Indexes.Lookup(string(namespace), w.cfg.FallbackNamespace)
	if !ok {
		w.failStep(ctx, s, NodeSearch, errors.Newf(errors.ErrVectorStoreNotFound,
			"no index for namespace %s and no fallback index %s", namespace, w.cfg.FallbackNamespace))
		return s, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
	defer cancel()

	vectors, err := w.deps.Embedder.EmbedStrings(callCtx, []string{s.RewrittenQuery})
	if err != nil {
		w.failStep(ctx, s, NodeSearch, errors.Wrap(errors.ErrEmbeddingFailed, err, "failed to embed query"))
		return s, nil
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		w.failStep(ctx, s, NodeSearch, errors.New(errors.ErrEmbeddingFailed, "embedder returned no vector"))
		return s, nil
	}

	docs, err := index.Search(callCtx, common.ToFloat32(vectors[0]), w.cfg.SearchTopK)
	if err != nil {
		w.failStep(ctx, s, NodeSearch, errors.Wrapf(errors.ErrVectorSearch, err, "search on %s failed", index.Name()))
		return s, nil
	}

	s.Documents = docs
	msg := fmt.Sprintf("🔎 Retrieved %d candidates from %s (%s)", len(docs), index.Name(), resolved)
	if resolved != string(namespace) {
		msg += fmt.Sprintf(", namespace %s is not mapped", namespace)
	}
	s.addMessage(NodeSearch, msg)
	g.Log().Debugf(ctx, "[%s] namespace=%s index=%s candidates=%d", NodeSearch, namespace, index.Name(), len(docs))
	return s, nil
}

// rerank 先用 BM25 预筛选，再用语义重排取前 N 个，语义重排失败时退回 BM25 顺序
func (w *Workflow) rerank(ctx context.Context, s *RunState) (*RunState, error) {
	if s.skipIteration() {
		return s, nil
	}
	if len(s.Documents) == 0 {
		s.warn(NodeRerank, "no documents to rerank")
		return s, nil
	}

	candidates := len(s.Documents)
	lexical := LexicalPrefilter(s.RewrittenQuery, s.Documents, w.cfg.LexicalTopN, w.bm25)

	if w.deps.Reranker == nil {
		s.Documents = truncateDocs(lexical, w.cfg.RerankTopN)
		s.addMessage(NodeRerank, fmt.Sprintf("✅ Reranked %d → %d (lexical)", candidates, len(s.Documents)))
		return s, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
	defer cancel()

	reranked, err := SemanticRerank(callCtx, w.deps.Reranker, s.RewrittenQuery, lexical, w.cfg.RerankTopN)
	if err != nil {
		s.Documents = truncateDocs(lexical, w.cfg.RerankTopN)
		w.degrade(ctx, s, NodeRerank, "semantic rerank failed, keeping the lexical order", err)
		return s, nil
	}

	s.Documents = reranked
	s.addMessage(NodeRerank, fmt.Sprintf("✅ Reranked %d → %d (lexical) → %d (semantic)", candidates, len(lexical), len(reranked)))
	return s, nil
}

// LexicalPrefilter 按 BM25 分数降序保留前 topN 个文档，同分保持原顺序
func LexicalPrefilter(query string, docs []*schema.Document, topN int, params common.BM25Parameters) []*schema.Document {
	if len(docs) == 0 {
		return []*schema.Document{}
	}
	contents := make([]string, len(docs))
	for i, doc := range docs {
		contents[i] = doc.Content
	}

	ranked := common.NewBM25Scorer(contents, params).Rank(query, topN)
	out := make([]*schema.Document, 0, len(ranked))
	for _, r := range ranked {
		doc := docs[r.Index]
		score := r.Score
		doc.LexicalScore = &score
		out = append(out, doc)
	}
	return out
}

// SemanticRerank 调用语义重排服务并按返回顺序取前 topN 个
func SemanticRerank(ctx context.Context, reranker SemanticReranker, query string, docs []*schema.Document, topN int) ([]*schema.Document, error) {
	if len(docs) == 0 {
		return []*schema.Document{}, nil
	}
	contents := make([]string, len(docs))
	for i, doc := range docs {
		contents[i] = doc.Content
	}

	results, err := reranker.Rerank(ctx, query, contents, topN)
	if err != nil {
		return nil, errors.Wrap(errors.ErrRerankFailed, err, "semantic rerank failed")
	}
	if len(results) == 0 {
		return nil, errors.New(errors.ErrRerankFailed, "semantic rerank returned no results")
	}

	out := make([]*schema.Document, 0, len(results))
	seen := make(map[int]bool, len(results))
	for _, r := range results {
		if r == nil || r.Index < 0 || r.Index >= len(docs) || seen[r.Index] {
			continue
		}
		seen[r.Index] = true
		doc := docs[r.Index]
		score := r.RelevanceScore
		doc.RerankScore = &score
		out = append(out, doc)
		if len(out) == topN {
			break
		}
	}
	if len(out) == 0 {
		return nil, errors.New(errors.ErrRerankFailed, "semantic rerank returned only invalid indexes")
	}
	return out, nil
}

func truncateDocs(docs []*schema.Document, n int) []*schema.Document {
	if n > 0 && len(docs) > n {
		return docs[:n]
	}
	return docs
}
