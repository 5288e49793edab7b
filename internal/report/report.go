// Package report appends ranking results to a rotating JSON Lines file, one
// line per ranked entity.
package report

import (
	"log/slog"

	"docrank/internal/ranking"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Run identifies the ranking run the entries belong to.
type Run struct {
	ID       string
	Criteria ranking.RankCriteria
	Alpha    float64
	Rankings ranking.Rankings
}

// Repository stores ranking runs.
type Repository interface {
	Append(run Run)
	Close()
}

// JsonReportRepository writes runs through lumberjack, which rotates and
// compresses the file. Safe for concurrent use.
type JsonReportRepository struct {
	lumberjack *lumberjack.Logger
	logger     *slog.Logger
}

// NewJsonReportRepository opens (lazily) file. maxSize is in megabytes and
// maxBackups is the number of rotated files to keep.
func NewJsonReportRepository(file string, maxSize, maxBackups int) *JsonReportRepository {
	lj := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		Compress:   true,
	}
	return &JsonReportRepository{
		lumberjack: lj,
		logger:     slog.New(newLineHandler(lj)),
	}
}

// Append writes one line per entry, ranks ascending and entities by id.
func (r *JsonReportRepository) Append(run Run) {
	logger := r.logger.With(
		"run_id", run.ID,
		"metric", string(run.Criteria.Metric()),
		"ordering", string(run.Criteria.Ordering()),
		"alpha", run.Alpha,
	)

	for _, rank := range run.Rankings.Ranks() {
		for _, e := range run.Rankings[rank] {
			if e.Interval != nil {
				logger.Info("", "rank", rank, "entity_id", e.EntityID,
					"lower", e.Interval.Lower, "upper", e.Interval.Upper)
				continue
			}
			logger.Info("", "rank", rank, "entity_id", e.EntityID, "value", e.Value)
		}
	}
}

func (r *JsonReportRepository) Close() {
	if err := r.lumberjack.Close(); err != nil {
		slog.Warn("close report file", "error", err)
	}
}

// Discard is a Repository that drops every run.
type Discard struct{}

func (Discard) Append(Run) {}
func (Discard) Close()     {}
