package common

import (
	"testing"
)

func TestBM25BasicScoring(t *testing.T) {
	docs := []string{
		"The quick brown fox jumps over the lazy dog",
		"The lazy dog sleeps all day",
		"A quick brown fox is very fast",
		"The fox and the dog are friends",
	}

	scorer := NewBM25Scorer(docs, DefaultBM25Parameters())
	ranked := scorer.Rank("quick fox", 0)

	if len(ranked) != 4 {
		t.Errorf("Expected 4 results, got %d", len(ranked))
	}

	// Documents 0 and 2 contain both "quick" and "fox"
	if ranked[0].Index != 0 && ranked[0].Index != 2 {
		t.Errorf("Expected doc 0 or doc 2 to be ranked highest, got %d", ranked[0].Index)
	}

	if ranked[0].Score <= 0 {
		t.Errorf("Expected positive score for matching document")
	}
}

func TestBM25NoMatch(t *testing.T) {
	docs := []string{
		"The quick brown fox",
		"The lazy dog sleeps",
	}

	scorer := NewBM25Scorer(docs, DefaultBM25Parameters())

	for _, score := range scorer.Score("elephant zebra") {
		if score != 0 {
			t.Errorf("Expected score 0 for non-matching query, got %f", score)
		}
	}
}

func TestBM25RankTruncatesAndKeepsTiesStable(t *testing.T) {
	docs := make([]string, 60)
	for i := range docs {
		docs[i] = "unrelated filler text"
	}
	docs[42] = "fund risk drawdown"

	ranked := NewBM25Scorer(docs, DefaultBM25Parameters()).Rank("fund risk", 50)
	if len(ranked) != 50 {
		t.Fatalf("Expected 50 results, got %d", len(ranked))
	}
	if ranked[0].Index != 42 {
		t.Errorf("Expected doc 42 first, got %d", ranked[0].Index)
	}
	// 同分文档保持原始顺序
	for i := 2; i < len(ranked); i++ {
		if ranked[i].Index < ranked[i-1].Index {
			t.Errorf("Expected stable order for ties, got %d before %d", ranked[i-1].Index, ranked[i].Index)
		}
	}
}

func TestBM25EmptyCorpus(t *testing.T) {
	scorer := NewBM25Scorer(nil, DefaultBM25Parameters())
	if got := scorer.Rank("anything", 50); len(got) != 0 {
		t.Errorf("Expected no results for empty corpus, got %d", len(got))
	}

	// 全部为空文档时平均长度为 0，不能出现 NaN
	scores := NewBM25Scorer([]string{"", ""}, DefaultBM25Parameters()).Score("fund")
	for _, s := range scores {
		if s != 0 {
			t.Errorf("Expected zero score for empty documents, got %f", s)
		}
	}
}

func TestTokenize(t *testing.T) {
	tokens := Tokenize("Fund X's 1-Year Return: 12.5%")
	expected := []string{"fund", "x", "s", "1", "year", "return", "12", "5"}

	if len(tokens) != len(expected) {
		t.Fatalf("Expected %d tokens, got %d: %v", len(expected), len(tokens), tokens)
	}
	for i := range expected {
		if tokens[i] != expected[i] {
			t.Errorf("Token %d: expected %q, got %q", i, expected[i], tokens[i])
		}
	}
}
