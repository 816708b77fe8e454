package workflow

import (
	"context"
	"fmt"

	"github.com/Malowking/finrag/core/errors"
	"github.com/gogf/gf/v2/frame/g"
	"golang.org/x/sync/errgroup"
)

// classify 对改写后的查询做多次独立分类，按多数票决定检索的命名空间
func (w *Workflow) classify(ctx context.Context, s *RunState) (*RunState, error) {
	if s.skipIteration() {
		return s, nil
	}

	raw := w.collectVotes(ctx, s.RewrittenQuery)
	valid := make([]Intent, 0, len(raw))
	for _, vote := range raw {
		if intent, ok := ParseIntent(vote); ok {
			valid = append(valid, intent)
			namespaceVotes.WithLabelValues(string(intent)).Inc()
		} else {
			namespaceVotes.WithLabelValues("invalid").Inc()
		}
	}

	s.Votes = valid
	s.Namespace = AggregateVotes(raw)
	if len(valid) == 0 {
		stepFailures.WithLabelValues(NodeClassify).Inc()
		s.warn(NodeClassify, fmt.Sprintf("no valid namespace votes out of %d, defaulting to %s", len(raw), IntentUnknown))
		return s, nil
	}
	s.addMessage(NodeClassify, fmt.Sprintf("🗳️ Namespace votes: %v → %s", valid, s.Namespace))
	return s, nil
}

// collectVotes 并发发起分类调用，结果按调用序号保存，失败的调用记为空票
func (w *Workflow) collectVotes(ctx context.Context, query string) []string {
	votes := make([]string, w.cfg.Votes)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(w.cfg.VoteConcurrency)

	for i := range votes {
		eg.Go(func() error {
			answer, err := w.deps.Models.Classify.Complete(egCtx, classifyMessages(query))
			if err != nil {
				g.Log().Warningf(ctx, "[%s] vote %d counted as invalid: %v", NodeClassify, i+1,
					errors.Wrap(errors.ErrClassifyFailed, err, "vote completion failed"))
				return nil
			}
			votes[i] = answer
			return nil
		})
	}
	_ = eg.Wait()
	return votes
}

// AggregateVotes 在合法票中取多数，平票时取最先出现的，没有合法票时返回 unknown
func AggregateVotes(votes []string) Intent {
	counts := make(map[Intent]int)
	var order []Intent
	for _, vote := range votes {
		intent, ok := ParseIntent(vote)
		if !ok {
			continue
		}
		if counts[intent] == 0 {
			order = append(order, intent)
		}
		counts[intent]++
	}

	winner := IntentUnknown
	best := 0
	for _, intent := range order {
		if counts[intent] > best {
			winner = intent
			best = counts[intent]
		}
	}
	return winner
}
