// Package diagnostics inspects the host and the loaded configuration for the
// doctor command.
package diagnostics

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/jaypipes/ghw"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// System is a point-in-time view of the host. Fields that could not be read
// are left zero.
type System struct {
	OS         string `json:"os"`
	Arch       string `json:"arch"`
	GoVersion  string `json:"go_version"`
	Goroutines int    `json:"goroutines"`

	CPUModel   string  `json:"cpu_model,omitempty"`
	CPUCores   int     `json:"cpu_cores,omitempty"`
	CPUThreads int     `json:"cpu_threads,omitempty"`
	LoadAvg1   float64 `json:"load_avg_1,omitempty"`

	MemTotalMB     float64 `json:"mem_total_mb,omitempty"`
	MemAvailableMB float64 `json:"mem_available_mb,omitempty"`

	DiskPath    string  `json:"disk_path,omitempty"`
	DiskTotalGB float64 `json:"disk_total_gb,omitempty"`
	DiskFreeGB  float64 `json:"disk_free_gb,omitempty"`

	GPUs []string `json:"gpus,omitempty"`
}

// CollectSystem reads host information. diskPath selects the filesystem to
// report on; empty skips disk usage.
func CollectSystem(diskPath string) System {
	s := System{
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
	}

	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		s.CPUModel = strings.TrimSpace(infos[0].ModelName)
	}
	if n, err := cpu.Counts(false); err == nil {
		s.CPUCores = n
	}
	if n, err := cpu.Counts(true); err == nil {
		s.CPUThreads = n
	}
	if avg, err := load.Avg(); err == nil {
		s.LoadAvg1 = avg.Load1
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemTotalMB = float64(vm.Total) / (1 << 20)
		s.MemAvailableMB = float64(vm.Available) / (1 << 20)
	}
	if diskPath != "" {
		if u, err := disk.Usage(diskPath); err == nil {
			s.DiskPath = diskPath
			s.DiskTotalGB = float64(u.Total) / (1 << 30)
			s.DiskFreeGB = float64(u.Free) / (1 << 30)
		}
	}
	s.GPUs = gpus()
	return s
}

func gpus() []string {
	info, err := ghw.GPU()
	if err != nil || info == nil {
		return nil
	}
	var names []string
	for _, card := range info.GraphicsCards {
		name := ""
		if d := card.DeviceInfo; d != nil {
			if d.Vendor != nil {
				name = d.Vendor.Name
			}
			if d.Product != nil {
				name = strings.TrimSpace(name + " " + d.Product.Name)
			}
		}
		if name == "" {
			name = fmt.Sprintf("GPU %d", card.Index)
		}
		names = append(names, name)
	}
	return names
}
