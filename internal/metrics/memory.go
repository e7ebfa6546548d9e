package metrics

import (
	"fmt"
	"os"

	"github.com/shirou/gopsutil/process"
)

// Sampler reports the current resident memory of the process.
type Sampler interface {
	RSS() (uint64, error)
}

// ProcessSampler samples a process's resident set size through gopsutil.
type ProcessSampler struct {
	proc *process.Process
}

// NewProcessSampler samples the current process.
func NewProcessSampler() (*ProcessSampler, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("opening process %d: %w", os.Getpid(), err)
	}
	return &ProcessSampler{proc: p}, nil
}

// RSS returns the resident set size in bytes.
func (s *ProcessSampler) RSS() (uint64, error) {
	info, err := s.proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return info.RSS, nil
}

// DefaultSampler returns a process sampler when the binary was built with
// memory sampling (-tags memsample) and nil otherwise.
func DefaultSampler() (Sampler, error) {
	if !MemorySampling {
		return nil, nil
	}
	s, err := NewProcessSampler()
	if err != nil {
		return nil, err
	}
	return s, nil
}
