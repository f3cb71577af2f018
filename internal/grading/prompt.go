// Package grading implements the Grader Invocation component:
// role-polymorphic prompt construction, a chat call with structured
// output, and the normalization pipeline that turns whatever the model
// returned into a validated model.GraderOutput.
package grading

import (
	"fmt"
	"strings"

	"github.com/examwright/examwright/internal/model"
)

// PeerOutputs carries the two prior grader results into an ARBITER
// invocation, along with the gap already computed by the divergence
// evaluator.
type PeerOutputs struct {
	A   model.GraderOutput
	B   model.GraderOutput
	Gap float64
}

const rolePreamble = `You are an expert evaluator grading a free-text exam answer.
Use the retrieved reference snippets as your primary source of truth, but
accept technically correct answers phrased differently than the snippets.
Penalize vague generalization and answers that restate the question
without substantive content. Think step by step and write your reasoning
before assigning any scores. Respond with a JSON object matching the
requested schema: {"reasoning": string, "criterion_scores": [{"criterion_name": string, "score": number, "feedback": string}], "total_score": number, "feedback_text": string, "confidence": number (optional)}.`

const arbiterPreamble = `You are an arbiter adjudicating a disagreement between two independent
graders of the same exam answer. Decide each criterion independently on
its own merits using the rubric and reference snippets; do not simply
average the two graders' scores. Respond with a JSON object matching the
requested schema: {"reasoning": string, "criterion_scores": [{"criterion_name": string, "score": number, "feedback": string}], "total_score": number, "feedback_text": string, "confidence": number (optional)}.`

// BuildPrompt renders the user-turn content for one grader invocation.
// sanitizedAnswer must already have passed through internal/security
// before reaching here.
func BuildPrompt(role model.Role, q model.Question, sanitizedAnswer string, snippets []model.Snippet, peers *PeerOutputs) string {
	var b strings.Builder

	if role == model.RoleArbiter {
		b.WriteString(arbiterPreamble)
	} else {
		b.WriteString(rolePreamble)
	}
	b.WriteString("\n\n")

	b.WriteString("Question:\n")
	b.WriteString(q.Statement)
	b.WriteString("\n\n")

	b.WriteString("Rubric (name | weight | max_score | description):\n")
	for _, c := range q.Rubric {
		fmt.Fprintf(&b, "%s | %v | %v | %s\n", c.Name, c.Weight, c.MaxScore, c.Description)
	}
	b.WriteString("\n")

	b.WriteString("Reference snippets:\n")
	if len(snippets) == 0 {
		b.WriteString("(none retrieved)\n")
	}
	for i, s := range snippets {
		page := ""
		if s.Page >= 0 {
			page = fmt.Sprintf(", page %d", s.Page)
		}
		fmt.Fprintf(&b, "[#%d] (%s%s) %s\n", i+1, s.Source, page, s.Content)
	}
	b.WriteString("\n")

	b.WriteString("Student answer:\n")
	b.WriteString(sanitizedAnswer)
	b.WriteString("\n")

	if role == model.RoleArbiter && peers != nil {
		b.WriteString("\nGrader A reasoning:\n")
		b.WriteString(peers.A.Reasoning)
		fmt.Fprintf(&b, "\nGrader A total: %v\n", peers.A.TotalScore)
		b.WriteString("\nGrader B reasoning:\n")
		b.WriteString(peers.B.Reasoning)
		fmt.Fprintf(&b, "\nGrader B total: %v\n", peers.B.TotalScore)
		fmt.Fprintf(&b, "\nGap between graders: %v\n", peers.Gap)
	}

	return b.String()
}

// Schema is the JSON Schema document sent with every structured request,
// matching the Grader Output shape.
var Schema = []byte(`{
	"type": "object",
	"properties": {
		"reasoning": {"type": "string"},
		"criterion_scores": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"criterion_name": {"type": "string"},
					"score": {"type": "number"},
					"feedback": {"type": "string"}
				},
				"required": ["criterion_name", "score"]
			}
		},
		"total_score": {"type": "number"},
		"feedback_text": {"type": "string"},
		"confidence": {"type": "number"}
	},
	"required": ["reasoning", "criterion_scores", "total_score"]
}`)
