package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/examwright/examwright/internal/model"
	"github.com/examwright/examwright/internal/rubricstore"
)

func newGradeCmd() *cobra.Command {
	var questionPath, answerPath, studentID string

	cmd := &cobra.Command{
		Use:   "grade",
		Short: "Grade a single student answer against a question",
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

			q, err := rubricstore.LoadFile(questionPath)
			if err != nil {
				return fmt.Errorf("load question: %w", err)
			}

			answerText, err := os.ReadFile(answerPath)
			if err != nil {
				return fmt.Errorf("read answer file: %w", err)
			}

			answer := model.StudentAnswer{
				StudentID:  studentID,
				QuestionID: q.ID,
				Text:       string(answerText),
			}.Trimmed()
			if err := answer.Validate(); err != nil {
				return fmt.Errorf("invalid answer: %w", err)
			}

			record, err := a.orchestrator.Run(ctx, q, answer)
			if err != nil {
				return fmt.Errorf("grade: %w", err)
			}

			if a.gradingSink != nil {
				if err := a.gradingSink.Put(ctx, record); err != nil {
					a.log.Warnf("failed to persist grading record: %v", err)
				}
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(record)
		},
	}

	cmd.Flags().StringVar(&questionPath, "question", "", "path to a YAML/JSON question+rubric file")
	cmd.Flags().StringVar(&answerPath, "answer", "", "path to a plain-text file containing the student's answer")
	cmd.Flags().StringVar(&studentID, "student-id", "", "student identifier")
	_ = cmd.MarkFlagRequired("question")
	_ = cmd.MarkFlagRequired("answer")
	_ = cmd.MarkFlagRequired("student-id")

	return cmd
}
