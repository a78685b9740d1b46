package harness

import (
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

const BytesPerGigabyte = 1e9

type MemorySample struct {
	ResidentBytes uint64
	At            time.Time
}

func (s MemorySample) GB() float64 {
	return float64(s.ResidentBytes) / BytesPerGigabyte
}

type MemorySampler interface {
	Sample() (MemorySample, error)
}

// ProcessSampler reads the resident set size of the current process.
type ProcessSampler struct {
	proc *process.Process
}

// NewProcessSampler fails with KindEnvironmentUnavailable when the host
// cannot report process memory.
func NewProcessSampler() (*ProcessSampler, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, newError(KindEnvironmentUnavailable, "open process", err)
	}
	s := &ProcessSampler{proc: p}
	if _, err := s.Sample(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ProcessSampler) Sample() (MemorySample, error) {
	mi, err := s.proc.MemoryInfo()
	if err != nil {
		return MemorySample{}, newError(KindEnvironmentUnavailable, "read memory info", err)
	}
	return MemorySample{ResidentBytes: mi.RSS, At: time.Now()}, nil
}
