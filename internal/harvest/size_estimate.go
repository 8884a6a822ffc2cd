package harvest

import "sra-harvest/internal/model"

// sizeEstimator accumulates expected download volume from catalog run-info
// rows. Rows missing a size contribute nothing, so the estimate is a floor.
type sizeEstimator struct {
	expectedBytes int64
}

func (e *sizeEstimator) add(cand model.Candidate) {
	if cand.SizeMB > 0 {
		e.expectedBytes += cand.SizeMB * 1024 * 1024
	}
}
