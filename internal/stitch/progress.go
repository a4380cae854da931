package stitch

// Stage is a step of the stitching pipeline. Stages run in the order
// loading, processing, mixing, exporting.
type Stage string

const (
	StageLoading    Stage = "loading"
	StageProcessing Stage = "processing"
	StageMixing     Stage = "mixing"
	StageExporting  Stage = "exporting"
)

// Progress is reported to the caller as the pipeline advances.
type Progress struct {
	Stage   Stage  `json:"stage"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

// ProgressFunc receives progress events. It is called synchronously from
// the stitching goroutine, one event at a time.
type ProgressFunc func(Progress)

// Percent maps an event onto 0..100 across all stages. Loading covers 0-40,
// processing 40-70, mixing 70-85 and exporting 85-100.
func (p Progress) Percent() int {
	lo, hi := stageBounds(p.Stage)
	if p.Total <= 0 {
		return lo
	}
	cur := min(max(p.Current, 0), p.Total)
	return lo + (hi-lo)*cur/p.Total
}

func stageBounds(s Stage) (int, int) {
	switch s {
	case StageLoading:
		return 0, 40
	case StageProcessing:
		return 40, 70
	case StageMixing:
		return 70, 85
	case StageExporting:
		return 85, 100
	default:
		return 0, 0
	}
}
