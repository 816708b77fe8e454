package workflow

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/Malowking/finrag/core/common"
	"github.com/Malowking/finrag/core/errors"
	"github.com/Malowking/finrag/pkg/schema"
	"github.com/gogf/gf/v2/util/gconv"
)

// CondensedSource 压缩后合成文档的来源标记
const CondensedSource = "summary_of_reranked_docs"

// condense 按命名空间模板渲染重排结果，合成为一篇带去重来源的摘要文档
func (w *Workflow) condense(ctx context.Context, s *RunState) (*RunState, error) {
	if s.skipIteration() {
		return s, nil
	}
	if len(s.Documents) == 0 {
		s.warn(NodeCondense, "no documents to condense after rerank")
		return s, nil
	}

	rendered := RenderDocuments(s.Namespace, s.Documents)
	summary, err := w.deps.Models.Condense.Complete(ctx, condenseMessages(s.RewrittenQuery, rendered))
	if err != nil {
		w.failStep(ctx, s, NodeCondense, errors.Wrap(errors.ErrCondenseFailed, err, "failed to condense documents"))
		return s, nil
	}

	sources := CollectSources(s.Documents)
	condensed := len(s.Documents)
	s.Documents = []*schema.Document{{
		Content: summary,
		MetaData: map[string]any{
			"source":    CondensedSource,
			"namespace": string(s.Namespace),
		},
		Sources: sources,
	}}
	s.addMessage(NodeCondense, fmt.Sprintf("📝 Condensed %d documents into one summary with %d sources", condensed, len(sources)))
	return s, nil
}

// RenderDocuments 把文档渲染成模型上下文
// fund 展示净值、收益和风险字段，economy 展示标题和日期，其余只展示正文
func RenderDocuments(namespace Intent, docs []*schema.Document) string {
	blocks := make([]string, 0, len(docs))
	for i, doc := range docs {
		meta := doc.MetaData
		var b strings.Builder
		switch namespace {
		case IntentFund:
			fmt.Fprintf(&b, "📄 Fund #%d\n", i+1)
			fmt.Fprintf(&b, "- AMC: %s\n", field(meta, "amc_name"))
			fmt.Fprintf(&b, "- Fund Code: %s\n", field(meta, "short_code"))
			fmt.Fprintf(&b, "- NAV: %s (as of %s)\n", field(meta, "nav"), field(meta, "nav_date"))
			fmt.Fprintf(&b, "- Return (1Y): %s\n", field(meta, "return_1y"))
			fmt.Fprintf(&b, "- Sharpe Ratio (1Y): %s\n", field(meta, "sharpe_ratio_1y"))
			fmt.Fprintf(&b, "- Max Drawdown (1Y): %s\n", field(meta, "max_drawdown_1y"))
			fmt.Fprintf(&b, "- Key Info: %s", doc.Content)
		case IntentEconomy:
			fmt.Fprintf(&b, "📄 Article #%d\n", i+1)
			fmt.Fprintf(&b, "- Headline: %s\n", field(meta, "article"))
			fmt.Fprintf(&b, "- Last Updated: %s\n", field(meta, "last_updated"))
			fmt.Fprintf(&b, "- Summary: %s", doc.Content)
		default:
			fmt.Fprintf(&b, "📄 Document #%d\n%s", i+1, doc.Content)
		}
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n\n")
}

func field(meta map[string]any, key string) string {
	if v, ok := meta[key]; ok && v != nil {
		if str := strings.TrimSpace(gconv.String(v)); str != "" {
			return str
		}
	}
	return "N/A"
}

// CollectSources 从文档元数据提取来源，按 source_url/source_file 去重并保持首次出现顺序
// 两者都缺失的来源按完整内容去重
func CollectSources(docs []*schema.Document) []schema.Source {
	var all []schema.Source
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		all = append(all, doc.Sources...)
		all = append(all, schema.SourceFromMetadata(doc.MetaData))
	}
	all = slices.DeleteFunc(all, schema.Source.IsEmpty)
	return common.RemoveDuplicates(all, func(src schema.Source) string {
		if key := src.Key(); key != "" {
			return key
		}
		return fmt.Sprintf("%+v", src)
	})
}
