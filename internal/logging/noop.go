package logging

import "context"

type noop struct{}

// NewNoop returns a Logger that discards everything. Used where a logger is
// optional.
func NewNoop() Logger { return noop{} }

func (noop) Debug(context.Context, string, ...any) {}
func (noop) Info(context.Context, string, ...any)  {}
func (noop) Warn(context.Context, string, ...any)  {}
func (noop) Error(context.Context, string, ...any) {}
func (noop) With(...any) Logger                    { return noop{} }
