package orchestrator

import (
	"fmt"
	"log/slog"

	"github.com/panjf2000/ants/v2"
)

// antsLoggerAdapter adapts slog.Logger to ants.Logger interface.
type antsLoggerAdapter struct {
	logger *slog.Logger
}

var _ ants.Logger = (*antsLoggerAdapter)(nil)

func (al *antsLoggerAdapter) Printf(format string, args ...any) {
	al.logger.Debug(fmt.Sprintf(format, args...))
}
