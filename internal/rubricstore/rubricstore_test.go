package rubricstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlQuestion = `
id: q-101
statement: "Explain the CAP theorem and its implications for distributed databases."
metadata:
  discipline: computer-science
  topic: distributed-systems
  difficulty: medium
rubric:
  - name: correctness
    description: states the theorem accurately
    weight: 6
    max_score: 6
  - name: clarity
    description: explanation is well organized
    weight: 4
    max_score: 4
`

const jsonQuestion = `{
  "id": "q-102",
  "statement": "Describe how a log-structured merge tree absorbs writes.",
  "metadata": {"discipline": "computer-science", "topic": "storage-engines", "difficulty": "hard"},
  "rubric": [
    {"name": "correctness", "description": "", "weight": 10, "max_score": 10}
  ]
}`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile_YAML(t *testing.T) {
	path := writeTemp(t, "q.yaml", yamlQuestion)

	q, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "q-101", q.ID)
	assert.Equal(t, "distributed-systems", q.Metadata.Topic)
	require.Len(t, q.Rubric, 2)
	assert.Equal(t, "clarity", q.Rubric[1].Name)
}

func TestLoadFile_JSON(t *testing.T) {
	path := writeTemp(t, "q.json", jsonQuestion)

	q, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "q-102", q.ID)
	require.Len(t, q.Rubric, 1)
	assert.Equal(t, 10.0, q.Rubric[0].MaxScore)
}

func TestLoadFile_InvalidQuestionFailsValidation(t *testing.T) {
	path := writeTemp(t, "bad.yaml", `
id: q-103
statement: "too short"
metadata:
  discipline: cs
  topic: t
rubric: []
`)

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statement must be at least 10 characters")
}

func TestLoadFile_MissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}
