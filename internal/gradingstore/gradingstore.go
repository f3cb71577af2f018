// Package gradingstore optionally persists completed Grading Records to
// Firestore for the external analytics collaborator. It is write-only:
// nothing inside the grading core ever reads a record back through
// this package, keeping the boundary between the core and analytics
// one-directional.
package gradingstore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	"github.com/examwright/examwright/internal/model"
)

// firestoreCriterionScore mirrors model.CriterionScore with tags.
type firestoreCriterionScore struct {
	CriterionName string  `firestore:"criterion_name"`
	Score         float64 `firestore:"score"`
	Feedback      string  `firestore:"feedback,omitempty"`
}

// firestoreGraderOutput mirrors model.GraderOutput with tags.
type firestoreGraderOutput struct {
	Role            string                    `firestore:"role"`
	Reasoning       string                    `firestore:"reasoning"`
	CriterionScores []firestoreCriterionScore `firestore:"criterion_scores"`
	TotalScore      float64                   `firestore:"total_score"`
	FeedbackText    string                    `firestore:"feedback_text,omitempty"`
	Confidence      *float64                  `firestore:"confidence,omitempty"`
}

// firestoreRecord mirrors model.GradingRecord with tags, dropping
// RetrievedSnippets: the analytics collaborator consumes grades and
// feedback, not the retrieval context that produced them.
type firestoreRecord struct {
	CorrelationID      string                  `firestore:"correlation_id"`
	QuestionID         string                  `firestore:"question_id"`
	StudentID          string                  `firestore:"student_id"`
	FinalGrade         float64                 `firestore:"final_grade"`
	GraderOutputs      []firestoreGraderOutput `firestore:"grader_outputs"`
	DivergenceDetected bool                    `firestore:"divergence_detected"`
	Gap                float64                 `firestore:"gap"`
	Warnings           []string                `firestore:"warnings,omitempty"`
	TotalWallSeconds   float64                 `firestore:"total_wall_seconds"`
}

func toFirestore(r model.GradingRecord) firestoreRecord {
	outputs := make([]firestoreGraderOutput, len(r.GraderOutputs))
	for i, o := range r.GraderOutputs {
		scores := make([]firestoreCriterionScore, len(o.CriterionScores))
		for j, cs := range o.CriterionScores {
			scores[j] = firestoreCriterionScore{
				CriterionName: cs.CriterionName,
				Score:         cs.Score,
				Feedback:      cs.Feedback,
			}
		}
		outputs[i] = firestoreGraderOutput{
			Role:            string(o.Role),
			Reasoning:       o.Reasoning,
			CriterionScores: scores,
			TotalScore:      o.TotalScore,
			FeedbackText:    o.FeedbackText,
			Confidence:      o.Confidence,
		}
	}
	return firestoreRecord{
		CorrelationID:      r.CorrelationID,
		QuestionID:         r.QuestionID,
		StudentID:          r.StudentID,
		FinalGrade:         r.FinalGrade,
		GraderOutputs:      outputs,
		DivergenceDetected: r.DivergenceDetected,
		Gap:                r.Gap,
		Warnings:           r.Warnings,
		TotalWallSeconds:   r.Timings.TotalWall.Seconds(),
	}
}

// Sink writes completed Grading Records to a Firestore collection, one
// document per correlation ID.
type Sink struct {
	client     *firestore.Client
	collection string
}

// New opens a Sink against the given project's Firestore.
func New(ctx context.Context, projectID, collection string) (*Sink, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("gradingstore: open firestore client: %w", err)
	}
	return &Sink{client: client, collection: collection}, nil
}

// Close releases the underlying Firestore client.
func (s *Sink) Close() error {
	return s.client.Close()
}

// Put persists one Grading Record, keyed by its correlation ID.
func (s *Sink) Put(ctx context.Context, record model.GradingRecord) error {
	doc := s.client.Collection(s.collection).Doc(record.CorrelationID)
	if _, err := doc.Set(ctx, toFirestore(record)); err != nil {
		return fmt.Errorf("gradingstore: put %s: %w", record.CorrelationID, err)
	}
	return nil
}
