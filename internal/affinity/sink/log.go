package sink

import (
	"context"
	"log/slog"

	"github.com/kolkov/affinity/internal/affinity/listener"
	"github.com/kolkov/affinity/internal/affinity/report"
)

// Log writes each problem to a structured logger at the given level.
type Log struct {
	logger *slog.Logger
	level  slog.Level
}

var _ listener.Listener = (*Log)(nil)

// NewLog returns a listener logging to logger at level.
func NewLog(logger *slog.Logger, level slog.Level) *Log {
	return &Log{logger: logger, level: level}
}

// ProblemOccurred logs p with its first caller frame and the full report.
func (l *Log) ProblemOccurred(p report.Problem) {
	th := p.Thread()
	attrs := []slog.Attr{
		slog.String("problem_id", p.ID().String()),
		slog.Int64("goroutine", th.ID),
		slog.String("name", th.Name),
		slog.String("operation", p.Operation().String()),
	}
	if frames := p.StackTrace(); len(frames) > 0 {
		attrs = append(attrs,
			slog.String("file", frames[0].FileName),
			slog.Int("line", frames[0].LineNumber))
	}
	attrs = append(attrs, slog.String("report", p.String()))
	l.logger.LogAttrs(context.Background(), l.level, p.Description(), attrs...)
}

// Tee fans a problem out to several listeners in order. Nil entries are
// skipped.
func Tee(ls ...listener.Listener) listener.Listener {
	return listener.Func(func(p report.Problem) {
		for _, l := range ls {
			if l != nil {
				l.ProblemOccurred(p)
			}
		}
	})
}
