package safety

import (
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/mem"
)

// Memory guard errors.
var (
	ErrFileTooLarge   = errors.New("file exceeds maximum size")
	ErrMemoryExceeded = errors.New("estimated memory exceeds available budget")
)

const (
	// expansionFactor approximates in-memory graph size per file byte.
	expansionFactor = 3.5
	// memoryBudget is the fraction of available memory a load may claim.
	memoryBudget = 0.7
	// maxFileBytes is the hard file-size cap.
	maxFileBytes = 500 * 1024 * 1024
	// minFreeBytes is the minimum free memory required to attempt a load.
	minFreeBytes = 256 * 1024 * 1024
)

// MemoryCheck is the outcome of a pre-flight feasibility check.
type MemoryCheck struct {
	FileBytes      uint64
	EstimatedBytes uint64
	AvailableBytes uint64
	Warnings       []string
}

// availableMemory is swappable in tests. A zero return with nil error means
// metrics are unavailable.
var availableMemory = func() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

// CheckMemory verifies that loading path fully into memory is feasible.
// With force set, violations degrade to warnings.
func CheckMemory(path string, force bool) (*MemoryCheck, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	check := &MemoryCheck{
		FileBytes:      uint64(info.Size()),
		EstimatedBytes: uint64(float64(info.Size()) * expansionFactor),
	}

	if check.FileBytes > maxFileBytes {
		if !force {
			return check, fmt.Errorf("%w: %s > %s", ErrFileTooLarge,
				humanize.Bytes(check.FileBytes), humanize.Bytes(maxFileBytes))
		}
		check.Warnings = append(check.Warnings, fmt.Sprintf(
			"file size %s exceeds the %s cap; continuing because --force is set",
			humanize.Bytes(check.FileBytes), humanize.Bytes(maxFileBytes)))
	}

	avail, err := availableMemory()
	if err != nil || avail == 0 {
		check.Warnings = append(check.Warnings,
			"memory metrics unavailable; skipping feasibility check")
		return check, nil
	}
	check.AvailableBytes = avail

	if avail < minFreeBytes {
		if !force {
			return check, fmt.Errorf("%w: only %s free, %s required", ErrMemoryExceeded,
				humanize.Bytes(avail), humanize.Bytes(minFreeBytes))
		}
		check.Warnings = append(check.Warnings, fmt.Sprintf(
			"only %s free memory; continuing because --force is set", humanize.Bytes(avail)))
		return check, nil
	}

	budget := uint64(float64(avail) * memoryBudget)
	if check.EstimatedBytes > budget {
		if !force {
			return check, fmt.Errorf("%w: estimated %s > budget %s (%.0f%% of %s available)",
				ErrMemoryExceeded, humanize.Bytes(check.EstimatedBytes),
				humanize.Bytes(budget), memoryBudget*100, humanize.Bytes(avail))
		}
		check.Warnings = append(check.Warnings, fmt.Sprintf(
			"estimated memory %s exceeds budget %s; continuing because --force is set",
			humanize.Bytes(check.EstimatedBytes), humanize.Bytes(budget)))
	}
	return check, nil
}
