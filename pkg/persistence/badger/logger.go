package badger

import (
	"fmt"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// journalLogger routes badger's internal logging into the journal's zap logger. Badger reports
// routine compaction and value log activity at info, so those lines are demoted to debug.
type journalLogger struct {
	sugar *zap.SugaredLogger
}

var _ badgerdb.Logger = (*journalLogger)(nil)

func newJournalLogger(logger *zap.Logger) *journalLogger {
	return &journalLogger{sugar: logger.Named("badger").Sugar()}
}

func line(format string, args ...interface{}) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}

func (j *journalLogger) Errorf(format string, args ...interface{}) {
	j.sugar.Error(line(format, args...))
}

func (j *journalLogger) Warningf(format string, args ...interface{}) {
	j.sugar.Warn(line(format, args...))
}

func (j *journalLogger) Infof(format string, args ...interface{}) {
	j.sugar.Debug(line(format, args...))
}

func (j *journalLogger) Debugf(format string, args ...interface{}) {
	j.sugar.Debug(line(format, args...))
}
