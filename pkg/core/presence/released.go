package presence

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/omerharel/dutywatch/pkg/core/timerange"
)

// Releases sheet layout mirrors the task sheets: date, time, then one
// released person description per column.
const (
	releaseDateCol   = 0
	releaseTimeCol   = 1
	releaseNamesCol  = 2
	releaseFirstData = 1
)

// SheetReader reads the releases sheet.
type SheetReader interface {
	GetAllRows(ctx context.Context, sheet string) ([][]string, error)
}

// ReleaseSource reads time-bounded release windows from the releases
// sheet. At most one window is considered active: the first row whose
// interval contains now.
type ReleaseSource struct {
	store  SheetReader
	parser *timerange.Parser
	tab    string
	log    *zap.Logger
	now    func() time.Time
}

// NewReleaseSource creates a ReleaseSource over the given sheet.
func NewReleaseSource(store SheetReader, parser *timerange.Parser, tab string, log *zap.Logger) *ReleaseSource {
	return &ReleaseSource{
		store:  store,
		parser: parser,
		tab:    tab,
		log:    log,
		now:    time.Now,
	}
}

// Active returns the person descriptions of the currently active
// release window, or an empty list when no window contains now.
func (r *ReleaseSource) Active(ctx context.Context) ([]string, error) {
	rows, err := r.store.GetAllRows(ctx, r.tab)
	if err != nil {
		return nil, err
	}
	if len(rows) <= releaseFirstData {
		return []string{}, nil
	}

	now := r.now()
	for i, row := range rows[releaseFirstData:] {
		if len(row) <= releaseDateCol || row[releaseDateCol] == "" {
			continue
		}
		start, end, err := r.parser.Window(row[releaseDateCol], cellAt(row, releaseTimeCol))
		if err != nil {
			r.log.Warn("skipping unparsable release row",
				zap.Int("row", i+2),
				zap.Error(err))
			continue
		}
		if !timerange.Contains(start, end, now) {
			continue
		}

		released := make([]string, 0)
		for _, desc := range row[min(releaseNamesCol, len(row)):] {
			if desc != "" {
				released = append(released, desc)
			}
		}
		return released, nil
	}
	return []string{}, nil
}

func cellAt(row []string, col int) string {
	if col >= len(row) {
		return ""
	}
	return row[col]
}
