package errutil

import (
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err at error level. Errors built with oops contribute their code and
// context as separate attributes so they stay queryable in structured output.
func LogError(logger *slog.Logger, msg string, err error, attrs ...any) {
	if logger == nil {
		logger = slog.Default()
	}

	if oopsErr, ok := oops.AsOops(err); ok {
		attrs = append(attrs, "error", oopsErr.Error())
		if code := oopsErr.Code(); code != nil {
			attrs = append(attrs, "code", code)
		}
		if ctx := oopsErr.Context(); len(ctx) > 0 {
			attrs = append(attrs, "context", ctx)
		}
		logger.Error(msg, attrs...)
		return
	}

	logger.Error(msg, append(attrs, "error", err)...)
}
