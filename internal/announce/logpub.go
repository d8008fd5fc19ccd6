package announce

import (
	"context"

	"crossbot/pkg/logx"
)

// LogPublisher writes announcements to the log instead of sending them.
// It backs dry runs.
type LogPublisher struct {
	log logx.Logger
}

func NewLogPublisher(log logx.Logger) *LogPublisher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, text string) error {
	p.log.Info("dry-run announcement", logx.String("text", text))
	return nil
}
