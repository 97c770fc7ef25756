package sinks

import (
	"context"

	"go.uber.org/zap"

	"warlane/server/logging"
)

// Zap bridges gameplay events into a zap logger so the event stream and
// process logs interleave in one place.
type Zap struct {
	logger *zap.Logger
}

// NewZap constructs a sink over the given zap logger.
func NewZap(logger *zap.Logger) *Zap {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Zap{logger: logger}
}

func (s *Zap) Write(event logging.Event) error {
	fields := []zap.Field{
		zap.Uint64("tick", event.Tick),
		zap.String("actor", string(event.Actor.Kind)+":"+event.Actor.ID),
		zap.String("category", event.Category),
	}
	if len(event.Targets) > 0 {
		ids := make([]string, 0, len(event.Targets))
		for _, t := range event.Targets {
			ids = append(ids, t.ID)
		}
		fields = append(fields, zap.Strings("targets", ids))
	}
	if event.Payload != nil {
		fields = append(fields, zap.Any("payload", event.Payload))
	}
	msg := string(event.Type)
	switch event.Severity {
	case logging.SeverityDebug:
		s.logger.Debug(msg, fields...)
	case logging.SeverityWarn:
		s.logger.Warn(msg, fields...)
	case logging.SeverityError:
		s.logger.Error(msg, fields...)
	default:
		s.logger.Info(msg, fields...)
	}
	return nil
}

func (s *Zap) Close(context.Context) error {
	// Sync surfaces spurious errors on stderr targets; callers own the
	// logger lifecycle.
	_ = s.logger.Sync()
	return nil
}
