package graph

import (
	"context"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/ThesisGo/internal/logger"
)

type startKey struct{}

// LoggerCallback logs node timings of a graph run.
type LoggerCallback struct {
	log *logger.Logger
}

func NewLoggerCallback(log *logger.Logger) *LoggerCallback {
	if log == nil {
		log = logger.Get()
	}
	return &LoggerCallback{log: log}
}

func (cb *LoggerCallback) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	if info != nil {
		cb.log.Debugf("[Graph] %s started", info.Name)
	}
	return context.WithValue(ctx, startKey{}, time.Now())
}

func (cb *LoggerCallback) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	if info == nil {
		return ctx
	}
	if started, ok := ctx.Value(startKey{}).(time.Time); ok {
		cb.log.Debugf("[Graph] %s finished in %s", info.Name, time.Since(started).Round(time.Millisecond))
	}
	return ctx
}

func (cb *LoggerCallback) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	name := ""
	if info != nil {
		name = info.Name
	}
	cb.log.Warnf("[Graph] %s failed: %v", name, err)
	return ctx
}

func (cb *LoggerCallback) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo,
	input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	input.Close()
	return ctx
}

func (cb *LoggerCallback) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo,
	output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	output.Close()
	return ctx
}
