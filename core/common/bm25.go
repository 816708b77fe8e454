package common

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// BM25Parameters K1 控制词频饱和，B 控制文档长度归一化
type BM25Parameters struct {
	K1 float64
	B  float64
}

// DefaultBM25Parameters K1=1.5, B=0.75
func DefaultBM25Parameters() BM25Parameters {
	return BM25Parameters{K1: 1.5, B: 0.75}
}

// BM25Scorer 在一次检索的候选集上打分，IDF 相对于该候选集计算
type BM25Scorer struct {
	params BM25Parameters
	docs   []bm25Doc
	df     map[string]int
	avgLen float64
}

type bm25Doc struct {
	tf     map[string]int
	length int
}

// BM25Ranked 候选集中的一个位置及其分数
type BM25Ranked struct {
	Index int
	Score float64
}

// NewBM25Scorer 对文档内容分词并统计词频
func NewBM25Scorer(contents []string, params BM25Parameters) *BM25Scorer {
	s := &BM25Scorer{
		params: params,
		docs:   make([]bm25Doc, len(contents)),
		df:     make(map[string]int),
	}

	total := 0
	for i, content := range contents {
		terms := Tokenize(content)
		tf := make(map[string]int, len(terms))
		for _, t := range terms {
			tf[t]++
		}
		for t := range tf {
			s.df[t]++
		}
		s.docs[i] = bm25Doc{tf: tf, length: len(terms)}
		total += len(terms)
	}
	if len(contents) > 0 {
		s.avgLen = float64(total) / float64(len(contents))
	}
	return s
}

// idf 使用 +1 平滑，保证常见词的权重不为负
func (s *BM25Scorer) idf(term string) float64 {
	n := float64(len(s.docs))
	df := float64(s.df[term])
	return math.Log(1 + (n-df+0.5)/(df+0.5))
}

// Score 按候选集顺序返回每个文档的分数
func (s *BM25Scorer) Score(query string) []float64 {
	scores := make([]float64, len(s.docs))
	if s.avgLen == 0 {
		return scores
	}

	terms := Tokenize(query)
	k1, b := s.params.K1, s.params.B
	for i, doc := range s.docs {
		norm := k1 * (1 - b + b*float64(doc.length)/s.avgLen)
		for _, t := range terms {
			tf := float64(doc.tf[t])
			if tf == 0 {
				continue
			}
			scores[i] += s.idf(t) * tf * (k1 + 1) / (tf + norm)
		}
	}
	return scores
}

// Rank 按分数降序返回前 topN 个位置，同分保持候选集顺序，topN <= 0 表示全部保留
func (s *BM25Scorer) Rank(query string, topN int) []BM25Ranked {
	scores := s.Score(query)
	ranked := make([]BM25Ranked, len(scores))
	for i, score := range scores {
		ranked[i] = BM25Ranked{Index: i, Score: score}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}

// Tokenize 转小写后按非字母数字字符切分
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
