package slackbot

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"learnopt/internal/workbench"
)

// Poster is the part of *slack.Client the notifier needs.
type Poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Notifier posts workbench notices and watcher digests to one channel.
type Notifier struct {
	api      Poster
	channel  string
	minLevel workbench.NoticeLevel
	logger   *zap.Logger
}

// NewNotifier posts notices at or above minLevel to channel.
func NewNotifier(api Poster, channel string, minLevel workbench.NoticeLevel, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{api: api, channel: channel, minLevel: minLevel, logger: logger}
}

func FormatNotice(n workbench.Notice) string {
	icon := ":white_check_mark:"
	if n.Level == workbench.NoticeError {
		icon = ":warning:"
	}
	text := fmt.Sprintf("%s %s", icon, n.Text())
	if n.FileID != "" {
		text += fmt.Sprintf(" (file %s)", n.FileID)
	}
	if n.Level == workbench.NoticeError && n.RequestID != "" {
		text += fmt.Sprintf("\n_request id: %s_", n.RequestID)
	}
	return text
}

// Notify implements workbench.Notifier. Post failures are logged, never
// returned.
func (s *Notifier) Notify(ctx context.Context, n workbench.Notice) {
	if n.Level < s.minLevel {
		return
	}
	if err := s.post(ctx, FormatNotice(n)); err != nil {
		s.logger.Warn("slack notice post failed", zap.String("op", n.Op), zap.Error(err))
	}
}

// PostDigest posts a watcher digest.
func (s *Notifier) PostDigest(ctx context.Context, text string) error {
	return s.post(ctx, text)
}

func (s *Notifier) post(ctx context.Context, text string) error {
	_, ts, err := s.api.PostMessageContext(ctx, s.channel, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("slack post to %s: %w", s.channel, err)
	}
	s.logger.Debug("slack post done", zap.String("channel", s.channel), zap.String("ts", ts))
	return nil
}
