package service

import (
	"fmt"
	"strings"

	"github.com/wayfarer-labs/wayfarer/internal/domain"
)

const summarySystemPrompt = `You are a context editor for a Vietnam travel assistant.
You will receive retrieved context passages and a traveler's question.
Rewrite the context as one concise paragraph:
- Restate the content briefly in your own words.
- Drop passages that are irrelevant to the question.
- Preserve every fact that names a concrete place, entity, date or season.
- Keep entity ids (such as ` + "`city_hanoi`" + `) attached to their facts.
If no context passages are provided, reply exactly:
"` + NoContextSummary + `"
Do not invent information that is not in the passages.`

const answerSystemPrompt = `You are an expert travel assistant for Vietnam.
Answer using only the context summary provided by the user.
Cite entity ids (such as ` + "`city_hanoi`" + `) in parentheses after place names.
If the summary does not contain enough information, say so and explain
what is missing. Do not make up information.
Format the final answer in Markdown.`

// AnswerPrompt is the structured reasoning sequence for the final
// generation call. Each field is one enumerated step; the model is
// instructed to work through them in order and surface only the answer.
type AnswerPrompt struct {
	Goal             string
	Context          string
	SufficiencyCheck string
	Plan             string
	Answer           string
}

// BuildSummaryPrompt renders the fast-path summarization request.
func BuildSummaryPrompt(query domain.Query, bundle domain.ContextBundle) []domain.ConversationTurn {
	var sb strings.Builder
	sb.WriteString("## QUESTION\n\n")
	sb.WriteString(query.Raw)
	sb.WriteString("\n\n## CONTEXT PASSAGES\n\n")

	if bundle.Empty() {
		sb.WriteString("(no passages were retrieved)\n")
	} else {
		for _, p := range bundle.Passages {
			sb.WriteString(fmt.Sprintf("- [%s] %s\n", p.Origin, p.Text))
		}
	}

	return []domain.ConversationTurn{
		{Role: domain.RoleSystem, Content: summarySystemPrompt},
		{Role: domain.RoleUser, Content: sb.String()},
	}
}

// BuildAnswerPrompt assembles the chain-of-thought structure from the
// query and the context summary.
func BuildAnswerPrompt(query domain.Query, summary domain.ContextSummary) AnswerPrompt {
	return AnswerPrompt{
		Goal:             fmt.Sprintf("Restate the traveler's goal in one sentence. Their question: %s", query.Raw),
		Context:          fmt.Sprintf("Review this context summary: %s", summary.Text),
		SufficiencyCheck: "Judge whether the summary is sufficient to answer the question. If not, note what is missing.",
		Plan:             "Form a short plan for the answer: which facts to use and in what order.",
		Answer:           "Write the final answer for the traveler. Only this section is shown to them.",
	}
}

// Turns renders the prompt as chat messages for the generation provider.
func (p AnswerPrompt) Turns() []domain.ConversationTurn {
	var sb strings.Builder
	sb.WriteString("Work through the following steps in order. Steps 1-4 are your private reasoning; keep them brief. Step 5 is the reply.\n\n")
	sb.WriteString("1. GOAL: " + p.Goal + "\n")
	sb.WriteString("2. CONTEXT: " + p.Context + "\n")
	sb.WriteString("3. SUFFICIENCY: " + p.SufficiencyCheck + "\n")
	sb.WriteString("4. PLAN: " + p.Plan + "\n")
	sb.WriteString("5. ANSWER: " + p.Answer + "\n")

	return []domain.ConversationTurn{
		{Role: domain.RoleSystem, Content: answerSystemPrompt},
		{Role: domain.RoleUser, Content: sb.String()},
	}
}
