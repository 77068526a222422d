package wrap

import (
	"context"
	"errors"
)

// errorWithLogCtx carries the log context that was active where the error happened,
// so the log line written further up the stack still names the failing action.
type errorWithLogCtx struct {
	err    error
	logCtx LogCtx
}

func (e *errorWithLogCtx) Error() string {
	return e.err.Error()
}

func (e *errorWithLogCtx) Unwrap() error {
	return e.err
}

// Error wraps err with the current LogCtx from ctx. A nil err stays nil.
func Error(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	c, _ := ctx.Value(LogCtxKey).(LogCtx)
	return &errorWithLogCtx{
		err:    err,
		logCtx: c,
	}
}

// ErrorCtx returns ctx carrying the LogCtx captured in err, if any.
func ErrorCtx(ctx context.Context, err error) context.Context {
	var e *errorWithLogCtx
	if errors.As(err, &e) && e != nil {
		return context.WithValue(ctx, LogCtxKey, e.logCtx)
	}
	return ctx
}
