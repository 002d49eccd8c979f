package usecase

import (
	"fmt"
	"log/slog"
)

// recoverTask turns a panic in a background task into a log line and, when
// errp is set, an error for the caller.
func recoverTask(logger *slog.Logger, name string, errp *error) {
	r := recover()
	if r == nil {
		return
	}
	logger.Error("task panicked", "task", name, "panic", r)
	if errp != nil {
		*errp = fmt.Errorf("%s panicked: %v", name, r)
	}
}
