// Package rubricstore loads Questions (a statement plus its rubric) from
// a YAML/JSON file or a Firestore document. It is a thin input-boundary
// loader, not a repository: it has no update or delete operations,
// mirroring how pkg/config.LoadConfig reads a file into a struct rather
// than exposing a CRUD surface.
package rubricstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/firestore"
	"gopkg.in/yaml.v3"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/examwright/examwright/internal/model"
)

// fileQuestion mirrors model.Question's fields with yaml/json tags, since
// model.Question itself carries no serialization tags.
type fileQuestion struct {
	ID        string                `yaml:"id" json:"id"`
	Statement string                `yaml:"statement" json:"statement"`
	Rubric    []fileRubricCriterion `yaml:"rubric" json:"rubric"`
	Metadata  fileMetadata          `yaml:"metadata" json:"metadata"`
}

type fileRubricCriterion struct {
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description" json:"description"`
	Weight      float64 `yaml:"weight" json:"weight"`
	MaxScore    float64 `yaml:"max_score" json:"max_score"`
}

type fileMetadata struct {
	Discipline string `yaml:"discipline" json:"discipline"`
	Topic      string `yaml:"topic" json:"topic"`
	Difficulty string `yaml:"difficulty" json:"difficulty"`
}

func (fq fileQuestion) toModel() model.Question {
	q := model.Question{
		ID:        fq.ID,
		Statement: fq.Statement,
		Metadata: model.QuestionMetadata{
			Discipline: fq.Metadata.Discipline,
			Topic:      fq.Metadata.Topic,
			Difficulty: model.Difficulty(fq.Metadata.Difficulty),
		},
	}
	q.Rubric = make([]model.RubricCriterion, len(fq.Rubric))
	for i, c := range fq.Rubric {
		q.Rubric[i] = model.RubricCriterion{
			Name:        c.Name,
			Description: c.Description,
			Weight:      c.Weight,
			MaxScore:    c.MaxScore,
		}
	}
	return q
}

// LoadFile reads a single Question from a YAML or JSON file, selecting
// the decoder by extension (.json vs. anything else treated as YAML; the
// YAML decoder also accepts JSON content).
func LoadFile(path string) (model.Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Question{}, fmt.Errorf("rubricstore: read %s: %w", path, err)
	}

	var fq fileQuestion
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, &fq); err != nil {
			return model.Question{}, fmt.Errorf("rubricstore: parse %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &fq); err != nil {
			return model.Question{}, fmt.Errorf("rubricstore: parse %s: %w", path, err)
		}
	}

	q := fq.toModel()
	if err := q.Validate(); err != nil {
		return model.Question{}, fmt.Errorf("rubricstore: %s: %w", path, err)
	}
	return q, nil
}

// Store loads Questions from a Firestore collection, one document per
// question keyed by question ID.
type Store struct {
	client     *firestore.Client
	collection string
}

// New opens a Store against the given project's Firestore, reading
// questions from collection.
func New(ctx context.Context, projectID, collection string) (*Store, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("rubricstore: open firestore client: %w", err)
	}
	return &Store{client: client, collection: collection}, nil
}

// Close releases the underlying Firestore client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Load fetches and validates the Question with the given ID.
func (s *Store) Load(ctx context.Context, questionID string) (model.Question, error) {
	doc, err := s.client.Collection(s.collection).Doc(questionID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return model.Question{}, fmt.Errorf("rubricstore: question %q not found", questionID)
		}
		return model.Question{}, fmt.Errorf("rubricstore: get %q: %w", questionID, err)
	}

	var fq fileQuestion
	if err := doc.DataTo(&fq); err != nil {
		return model.Question{}, fmt.Errorf("rubricstore: decode %q: %w", questionID, err)
	}
	if fq.ID == "" {
		fq.ID = questionID
	}

	q := fq.toModel()
	if err := q.Validate(); err != nil {
		return model.Question{}, fmt.Errorf("rubricstore: %q: %w", questionID, err)
	}
	return q, nil
}
