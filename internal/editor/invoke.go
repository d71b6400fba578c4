package editor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"playbookd/internal/playbook"
	logx "playbookd/pkg/logx"
)

// HandlerFunc runs one editor command.
type HandlerFunc func(ctx context.Context, req *Request) error

// slowCommand promotes the success log line so slow store or scheduler calls
// show up at the default level.
const slowCommand = 750 * time.Millisecond

// invoke runs cmd under its deadline. A panicking handler becomes an error
// reply instead of killing the dispatch worker.
func (e *Editor) invoke(ctx context.Context, cmd Command, req *Request) (err error) {
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = e.cfg.Timeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			req.Logger.Error("command panicked", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
		logOutcome(req, time.Since(start), err)
	}()
	return cmd.Handle(cctx, req)
}

// logOutcome picks the level from what went wrong: user mistakes are not
// warnings, store and scheduler failures are.
func logOutcome(req *Request, took time.Duration, err error) {
	fields := []logx.Field{logx.Int("args", len(req.Args)), logx.Duration("took", took)}
	var ue usageError
	switch {
	case err == nil && took >= slowCommand:
		req.Logger.Info("command slow", fields...)
	case err == nil:
		req.Logger.Debug("command ok", fields...)
	case errors.As(err, &ue), errors.Is(err, playbook.ErrNotFound),
		errors.Is(err, playbook.ErrInvalidSchedule), errors.Is(err, playbook.ErrNameRequired):
		req.Logger.Debug("command rejected", append(fields, logx.Err(err))...)
	default:
		req.Logger.Warn("command failed", append(fields, logx.Err(err))...)
	}
}
