package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"learnopt/internal/domain"
	"learnopt/internal/grading"
)

const defaultAnthropicModel = "claude-sonnet-4-5"
const digestMaxTokens = 1024

const digestSystemPrompt = `You summarize immersion grade reports for school coordinators.
Write two or three short sentences in plain English. Name the top performer of each department that has one.
Mention departments with no graded students. Do not invent numbers that are not in the data.`

// DigestInput is the data summarized for one generated file.
type DigestInput struct {
	File    domain.GeneratedFile
	Toppers grading.Toppers
	Summary []grading.DepartmentSummary
}

type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Summarizer writes short prose digests with the Anthropic Messages API.
type Summarizer struct {
	client anthropic.Client
	model  string
	logger *zap.Logger
}

func NewSummarizer(apiKey, model string, logger *zap.Logger, opts ...option.RequestOption) *Summarizer {
	if model == "" {
		model = defaultAnthropicModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Summarizer{
		client: anthropic.NewClient(opts...),
		model:  model,
		logger: logger,
	}
}

func buildDigestPrompt(in DigestInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\n", in.File.Filename)
	if in.File.School != "" {
		fmt.Fprintf(&b, "School: %s\n", in.File.School)
	}
	if in.File.Batch != "" {
		fmt.Fprintf(&b, "Batch: %s\n", in.File.Batch)
	}
	if in.File.DateOfImmersion != "" {
		fmt.Fprintf(&b, "Date of immersion: %s\n", in.File.DateOfImmersion)
	}
	b.WriteString("\nDepartments:\n")
	for _, s := range in.Summary {
		fmt.Fprintf(&b, "- %s: %d students, %d graded", s.Department, s.Students, s.Graded)
		if s.Graded > 0 {
			fmt.Fprintf(&b, ", average overall %.2f", s.Average)
		}
		if top, ok := in.Toppers.For(s.Department); ok {
			fmt.Fprintf(&b, ", top performer %s (%s)", top.FullName(), top.Overall)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Summarize returns a prose digest of in.
func (s *Summarizer) Summarize(ctx context.Context, in DigestInput) (string, Usage, error) {
	message, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: digestMaxTokens,
		System: []anthropic.TextBlockParam{
			{Text: digestSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildDigestPrompt(in))),
		},
	})
	if err != nil {
		s.logger.Warn("llm digest error", zap.String("file_id", in.File.ID), zap.Error(err))
		return "", Usage{}, fmt.Errorf("anthropic API error: %w", err)
	}
	usage := Usage{
		InputTokens:  message.Usage.InputTokens,
		OutputTokens: message.Usage.OutputTokens,
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			s.logger.Info("llm digest done",
				zap.String("file_id", in.File.ID),
				zap.Int("size", len(block.Text)),
				zap.Int64("tokens_in", usage.InputTokens),
				zap.Int64("tokens_out", usage.OutputTokens))
			return strings.TrimSpace(block.Text), usage, nil
		}
	}
	return "", usage, fmt.Errorf("no text content in Anthropic response")
}
