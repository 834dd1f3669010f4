// Package memstats reports the memory footprint of the running process.
package memstats

import (
	"fmt"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/process"
)

const mib = 1024 * 1024

// Snapshot holds memory usage information.
type Snapshot struct {
	// Go runtime
	HeapAllocMB  float64 `json:"heap_alloc_mb"`
	HeapSysMB    float64 `json:"heap_sys_mb"`
	StackMB      float64 `json:"stack_mb"`
	NumGoroutine int     `json:"goroutines"`

	// Process, as seen by the OS
	RSSMB float64 `json:"rss_mb"`
	VMSMB float64 `json:"vms_mb"`
}

// Read returns the current memory usage. When the OS process figures cannot
// be read the runtime figures are still returned alongside the error.
func Read() (*Snapshot, error) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	s := &Snapshot{
		HeapAllocMB:  float64(m.Alloc) / mib,
		HeapSysMB:    float64(m.Sys) / mib,
		StackMB:      float64(m.StackInuse) / mib,
		NumGoroutine: runtime.NumGoroutine(),
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return s, fmt.Errorf("memstats: %w", err)
	}
	info, err := proc.MemoryInfo()
	if err != nil {
		return s, fmt.Errorf("memstats: %w", err)
	}
	s.RSSMB = float64(info.RSS) / mib
	s.VMSMB = float64(info.VMS) / mib
	return s, nil
}

func (s *Snapshot) String() string {
	return fmt.Sprintf("RSS=%.1fMB VMS=%.1fMB HeapAlloc=%.1fMB HeapSys=%.1fMB Stack=%.1fMB Goroutines=%d",
		s.RSSMB, s.VMSMB, s.HeapAllocMB, s.HeapSysMB, s.StackMB, s.NumGoroutine)
}

// Summary returns the snapshot as a log-friendly string, or the error text.
func Summary() string {
	s, err := Read()
	if err != nil {
		return fmt.Sprintf("%s (%v)", s, err)
	}
	return s.String()
}
