package workflow

import (
	"fmt"

	"github.com/cloudwego/eino/schema"
)

const planSystemPrompt = `You are a financial research planner.
Break the user's question into a short list of atomic, non-redundant reasoning steps.
Use at most 3 steps unless the question clearly needs more.
Tag every step with exactly one intent:
- economy: macro economy, markets, interest rates, inflation, policy, economic news
- fund: mutual funds, NAV, fund returns, Sharpe ratio, drawdown, asset management companies
- unknown: anything else
Respond with JSON only, no prose, in this shape:
{"steps":[{"step":"<what to find out>","intent":"fund"}]}`

const stepSystemPrompt = `You turn one step of a research plan into a single focused search query.
Use the answers of earlier steps to resolve references (fund names, dates, figures).
Respond with the query only.`

const rewriteSystemPrompt = `Rewrite the search query so it is self-contained and unambiguous for retrieval over financial documents.
Keep entity names, tickers, fund codes and dates exactly as written.
Respond with the rewritten query only.`

const expandSystemPrompt = `Expand the search query with closely related financial terms and synonyms that improve recall.
Stay on the same topic and do not add new questions.
Respond with the expanded query only, as a single line.`

const classifySystemPrompt = `Classify which document collection should answer the query.
Answer with exactly one word: economy, fund, or unknown.`

const condenseSystemPrompt = `You condense retrieved financial documents into a factual summary that answers the query.
Only use facts that appear in the documents. Keep figures, dates and fund codes precise.
If the documents do not answer the query, say what is missing.`

const generateSystemPrompt = `You answer one research step using only the provided context.
Be concise and specific, quote figures with their dates, and say clearly when the context is insufficient.`

const summarySystemPrompt = `You write the final answer to the user's financial question from the step-by-step findings.
Reply in the same language as the question.
Explain how each step contributes to the final recommendation, keep figures exact, and do not invent facts that are not in the findings.
Do not list sources, they are appended separately.`

func planMessages(query string) []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(planSystemPrompt),
		schema.UserMessage(query),
	}
}

func stepMessages(stepContext string) []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(stepSystemPrompt),
		schema.UserMessage(stepContext),
	}
}

func rewriteMessages(query string) []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(rewriteSystemPrompt),
		schema.UserMessage(query),
	}
}

func expandMessages(query string, intent Intent) []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(expandSystemPrompt),
		schema.UserMessage(fmt.Sprintf("Topic: %s\nQuery: %s", intent, query)),
	}
}

func classifyMessages(query string) []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(classifySystemPrompt),
		schema.UserMessage(query),
	}
}

func condenseMessages(query, rendered string) []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(condenseSystemPrompt),
		schema.UserMessage(fmt.Sprintf("Query: %s\n\nDocuments:\n\n%s", query, rendered)),
	}
}

func generateMessages(query, summary string) []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(generateSystemPrompt),
		schema.UserMessage(fmt.Sprintf("Question: %s\n\nSummarized context:\n%s", query, summary)),
	}
}

func summaryMessages(query, answer, trace string) []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(summarySystemPrompt),
		schema.UserMessage(fmt.Sprintf("Question: %s\n\nLatest answer:\n%s\n\nStep-by-step findings:\n%s", query, answer, trace)),
	}
}
