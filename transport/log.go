package transport

import (
	"context"

	"github.com/mintel/lpipe/logger"
	"github.com/mintel/lpipe/route"
)

// LogPutter writes outbound records to the log instead of a queue. It
// serves RAW queues, which have no broker behind them.
type LogPutter struct {
	log *logger.Logger
}

// NewLogPutter creates a putter logging at info level.
func NewLogPutter(log *logger.Logger) *LogPutter {
	if log == nil {
		log = logger.Nop()
	}
	return &LogPutter{log: log.WithComponent("transport.log")}
}

// Put logs record.
func (p *LogPutter) Put(_ context.Context, queue route.Queue, record map[string]any) error {
	p.log.Info("Outbound record.", logger.Fields(
		logger.FieldQueue, queue.Destination(),
		"transport", queue.Transport.String(),
		"record", record,
	))
	return nil
}
