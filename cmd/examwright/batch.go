package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/examwright/examwright/internal/batch"
	"github.com/examwright/examwright/internal/model"
	"github.com/examwright/examwright/internal/rubricstore"
)

// loadBatchTasks reads one question file plus a directory of per-student
// plain-text answer files (filename stem is taken as the student ID) and
// builds the batch.Task list the scheduler runs.
func loadBatchTasks(questionPath, answersDir string) ([]batch.Task, error) {
	q, err := rubricstore.LoadFile(questionPath)
	if err != nil {
		return nil, fmt.Errorf("load question: %w", err)
	}

	entries, err := os.ReadDir(answersDir)
	if err != nil {
		return nil, fmt.Errorf("read answers dir: %w", err)
	}

	var tasks []batch.Task
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		text, err := os.ReadFile(filepath.Join(answersDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read answer %s: %w", entry.Name(), err)
		}
		studentID := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		answer := model.StudentAnswer{StudentID: studentID, QuestionID: q.ID, Text: string(text)}.Trimmed()
		if err := answer.Validate(); err != nil {
			return nil, fmt.Errorf("answer %s: %w", entry.Name(), err)
		}
		tasks = append(tasks, batch.Task{Question: q, Answer: answer})
	}

	return tasks, nil
}

func newBatchCmd() *cobra.Command {
	var questionPath, answersDir, outPath string

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Grade every answer in a directory against one question, with bounded concurrency",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withSignalContext()
			defer cancel()

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			return runBatch(ctx, a, questionPath, answersDir, outPath)
		},
	}

	cmd.Flags().StringVar(&questionPath, "question", "", "path to a YAML/JSON question+rubric file")
	cmd.Flags().StringVar(&answersDir, "answers-dir", "", "directory of per-student plain-text answer files")
	cmd.Flags().StringVar(&outPath, "out", "", "write the batch results as JSON to this path instead of stdout")
	_ = cmd.MarkFlagRequired("question")
	_ = cmd.MarkFlagRequired("answers-dir")

	return cmd
}

// runBatch is factored out of newBatchCmd's RunE so the schedule
// subcommand's cron tick can reuse the exact same grading path.
func runBatch(ctx context.Context, a *app, questionPath, answersDir, outPath string) error {
	tasks, err := loadBatchTasks(questionPath, answersDir)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		a.log.Warnf("no answers found in %s, nothing to grade", answersDir)
		return nil
	}

	results, summary, err := a.scheduler.Run(ctx, tasks)
	if err != nil {
		return fmt.Errorf("batch: %w", err)
	}
	a.log.Infof("batch complete: total=%d succeeded=%d failed=%d", summary.Total, summary.Succeeded, summary.Failed)

	if a.gradingSink != nil {
		for _, r := range results {
			if r.Err != nil {
				continue
			}
			if err := a.gradingSink.Put(ctx, r.Record); err != nil {
				a.log.Warnf("failed to persist grading record %s: %v", r.Record.CorrelationID, err)
			}
		}
	}

	out := os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("open out file: %w", err)
		}
		defer f.Close()
		out = f
	}

	type jsonResult struct {
		Record model.GradingRecord `json:"record"`
		Error  string              `json:"error,omitempty"`
	}
	jsonResults := make([]jsonResult, len(results))
	for i, r := range results {
		jr := jsonResult{Record: r.Record}
		if r.Err != nil {
			jr.Error = r.Err.Error()
		}
		jsonResults[i] = jr
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Summary batch.Summary `json:"summary"`
		Results []jsonResult  `json:"results"`
	}{Summary: summary, Results: jsonResults})
}
