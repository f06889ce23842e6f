package security

import (
	"context"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/linjianyan0229/linbot2/pkg/logger"
)

// Sampler periodically reads process statistics and feeds them into the
// resource monitor. Plugins run inside the host process, so each monitored
// plugin is attributed the process-wide figures; the limits then act as a
// whole-process circuit breaker.
type Sampler struct {
	monitor  *ResourceMonitor
	interval time.Duration
	logger   logger.Logger
}

// NewSampler creates a sampler feeding monitor every interval.
func NewSampler(monitor *ResourceMonitor, interval time.Duration, log logger.Logger) *Sampler {
	if log == nil {
		log = logger.NewNoop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sampler{monitor: monitor, interval: interval, logger: log.Named("sampler")}
}

// Run samples until the context is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		s.logger.Error("open own process for sampling", logger.Error(err))
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample(proc)
		}
	}
}

func (s *Sampler) sample(proc *process.Process) {
	var usage ResourceUsage

	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		usage.MemoryBytes = mem.RSS
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		usage.CPUPercent = cpu
	}
	if io, err := proc.IOCounters(); err == nil && io != nil {
		usage.FSReadBytes = io.ReadBytes
		usage.FSWriteBytes = io.WriteBytes
	}

	for _, name := range s.monitor.Monitored() {
		s.monitor.UpdateUsage(name, usage)
	}
}
