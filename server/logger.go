package server

import (
	"github.com/ThreeDotsLabs/watermill"
	log "github.com/inconshreveable/log15"
	"sort"
)

// watermillLogger routes watermill's internal logging through log15.
type watermillLogger struct {
	log log.Logger
}

func newWatermillLogger(logger log.Logger) watermill.LoggerAdapter {
	return watermillLogger{log: logger}
}

func logContext(fields watermill.LogFields) []interface{} {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ctx := make([]interface{}, 0, 2*len(keys))
	for _, k := range keys {
		ctx = append(ctx, k, fields[k])
	}
	return ctx
}

func (l watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.log.Error(msg, append(logContext(fields), "err", err)...)
}

func (l watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.log.Info(msg, logContext(fields)...)
}

func (l watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.log.Debug(msg, logContext(fields)...)
}

func (l watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.log.Debug(msg, logContext(fields)...)
}

func (l watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return watermillLogger{log: l.log.New(logContext(fields)...)}
}
