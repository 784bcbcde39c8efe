package preflight

import (
	"fmt"
	"syscall"
)

// MinFileDescriptors is the open-file limit below which the index cannot
// be opened reliably. Each extraction worker needs room on top of it for
// the PDF it reads and the segment files a commit opens.
const (
	MinFileDescriptors     = 256
	descriptorsPerWorker = 32
)

// CheckFileDescriptors checks the soft limit on open files against what
// workers parallel extractions need.
func (c *Checker) CheckFileDescriptors(workers int) CheckResult {
	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return CheckResult{
			Name:     "file_descriptors",
			Status:   StatusFail,
			Message:  fmt.Sprintf("failed to read open-file limit: %v", err),
			Required: true,
		}
	}
	return fileLimitResult(uint64(limit.Cur), workers)
}

func fileLimitResult(current uint64, workers int) CheckResult {
	result := CheckResult{
		Name:     "file_descriptors",
		Required: true,
	}

	need := uint64(MinFileDescriptors + max(workers, 1)*descriptorsPerWorker)
	result.Message = fmt.Sprintf("%d (need %d for %d workers)", current, need, max(workers, 1))
	switch {
	case current < MinFileDescriptors:
		result.Status = StatusFail
		result.Details = fmt.Sprintf("Run 'ulimit -n %d' before indexing", need)
	case current < need:
		result.Status = StatusWarn
		result.Details = fmt.Sprintf("Run 'ulimit -n %d' or lower index.workers", need)
	default:
		result.Status = StatusPass
	}
	return result
}
