package pipeline

import (
	"github.com/craftbooks/invoice-ingest/constants"
	"github.com/craftbooks/invoice-ingest/internal/entity"
)

// ProgressFunc receives transient status updates during a single run.
type ProgressFunc func(entity.PipelineStatus)

// fixed milestones per stage; progress within a run only moves forward
const (
	progressUpload     = 10
	progressOCR        = 30
	progressExtraction = 40
	progressValidation = 50
	progressSupplier   = 70
	progressDuplicate  = 80
	progressImport     = 90
	progressComplete   = 100
)

// reporter clamps progress to be monotonically non-decreasing so observers
// can drive a progress bar directly.
type reporter struct {
	emit ProgressFunc
	last int
}

func newReporter(emit ProgressFunc) *reporter {
	if emit == nil {
		emit = func(entity.PipelineStatus) {}
	}
	return &reporter{emit: emit}
}

func (r *reporter) report(stage constants.Stage, progress int, message string, details any) {
	if progress < r.last {
		progress = r.last
	}
	r.last = progress
	r.emit(entity.PipelineStatus{
		Stage:    stage,
		Progress: progress,
		Message:  message,
		Details:  details,
	})
}
