package swap

import (
	"context"

	"go.uber.org/zap"

	"github.com/Checker-Finance/swap-engine/pkg/model"
)

// Fanout delivers each event to every sink. A failing sink is logged and
// does not stop delivery to the others.
type Fanout struct {
	logger *zap.Logger
	sinks  []EventSink
}

func NewFanout(logger *zap.Logger, sinks ...EventSink) *Fanout {
	var live []EventSink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return &Fanout{logger: logger, sinks: live}
}

func (f *Fanout) PublishSwapEvent(ctx context.Context, evt model.SwapEvent) error {
	if f == nil {
		return nil
	}
	for _, s := range f.sinks {
		if err := s.PublishSwapEvent(ctx, evt); err != nil {
			f.logger.Warn("swap.event_publish_failed",
				zap.String("type", string(evt.Type)),
				zap.String("swap_id", evt.SwapID.String()),
				zap.Error(err))
		}
	}
	return nil
}
