package device

import (
	"os"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/sirupsen/logrus"

	"go-image-studio/internal/inference"
	"go-image-studio/internal/logger"
)

// Kind identifies the compute device class
type Kind string

const (
	KindAccelerated Kind = "accelerated"
	KindCPU         Kind = "cpu"
)

// Info describes the resolved compute device
type Info struct {
	Kind            Kind   `json:"kind"`
	Name            string `json:"name"`
	TotalMemory     uint64 `json:"total_memory"`
	AllocatedMemory uint64 `json:"allocated_memory"`
}

var (
	resolveOnce sync.Once
	resolved    Info
)

// Resolve picks the compute device for the process lifetime. The decision is
// made once and cached; device availability does not change at runtime.
// Resolution never fails: with no accelerator present the CPU kind is
// returned deterministically.
func Resolve(onnxLibraryPath string, forceCPU bool) Info {
	resolveOnce.Do(func() {
		resolved = resolve(onnxLibraryPath, forceCPU)
		logger.WithFields(logrus.Fields{
			"kind":         resolved.Kind,
			"name":         resolved.Name,
			"total_memory": resolved.TotalMemory,
		}).Info("Compute device resolved")
	})
	return resolved
}

// Snapshot returns the resolved device with a refreshed allocated-memory
// reading. Kind and name never change after Resolve.
func Snapshot() Info {
	info := resolved
	info.AllocatedMemory = allocatedMemory()
	return info
}

func resolve(onnxLibraryPath string, forceCPU bool) Info {
	info := Info{
		Kind:            KindCPU,
		Name:            cpuName(),
		TotalMemory:     totalMemory(),
		AllocatedMemory: allocatedMemory(),
	}

	if forceCPU {
		return info
	}

	if err := inference.EnsureEnvironment(onnxLibraryPath); err != nil {
		logger.WithError(err).Warn("ONNX Runtime unavailable, resolving to CPU device")
		return info
	}
	if inference.AcceleratorAvailable() {
		info.Kind = KindAccelerated
		info.Name = "CUDA"
	}
	return info
}

func cpuName() string {
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 && infos[0].ModelName != "" {
		return infos[0].ModelName
	}
	return runtime.GOARCH
}

func totalMemory() uint64 {
	if vm, err := mem.VirtualMemory(); err == nil {
		return vm.Total
	}
	return 0
}

func allocatedMemory() uint64 {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}
	if mi, err := proc.MemoryInfo(); err == nil && mi != nil {
		return mi.RSS
	}
	return 0
}
