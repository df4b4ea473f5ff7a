package workbench

import (
	"context"

	"go.uber.org/zap"
)

type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeError
)

func (l NoticeLevel) String() string {
	if l == NoticeError {
		return "error"
	}
	return "info"
}

// Notice is a user-visible outcome of a remote operation.
type Notice struct {
	Level     NoticeLevel
	Op        string
	FileID    string
	RequestID string
	Message   string
}

// Text renders the notice for display. Failures read
// "Failed to <op>: <message>".
func (n Notice) Text() string {
	if n.Level == NoticeError {
		return "Failed to " + n.Op + ": " + n.Message
	}
	return n.Message
}

type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// LogNotifier writes notices to a zap logger.
type LogNotifier struct {
	Logger *zap.Logger
}

func (l LogNotifier) Notify(_ context.Context, n Notice) {
	if l.Logger == nil {
		return
	}
	fields := []zap.Field{
		zap.String("op", n.Op),
		zap.String("file_id", n.FileID),
		zap.String("request_id", n.RequestID),
	}
	if n.Level == NoticeError {
		l.Logger.Warn(n.Text(), fields...)
		return
	}
	l.Logger.Info(n.Text(), fields...)
}

// Notifiers fans a notice out to every notifier in order.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, n Notice) {
	for _, x := range ns {
		if x != nil {
			x.Notify(ctx, n)
		}
	}
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notice)

func (f NotifierFunc) Notify(ctx context.Context, n Notice) { f(ctx, n) }
