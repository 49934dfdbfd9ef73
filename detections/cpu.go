package detections

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// CPUFeatures reports the vector extensions ONNX Runtime can use on this host.
type CPUFeatures struct {
	Arch   string `json:"arch"`
	AVX512 bool   `json:"avx512"`
	AVX2   bool   `json:"avx2"`
	SSE41  bool   `json:"sse41"`
	ASIMD  bool   `json:"asimd"`
	Cores  int    `json:"cores"`
}

func DetectCPUFeatures() CPUFeatures {
	return CPUFeatures{
		Arch:   runtime.GOARCH,
		AVX512: cpu.X86.HasAVX512F,
		AVX2:   cpu.X86.HasAVX2,
		SSE41:  cpu.X86.HasSSE41,
		ASIMD:  cpu.ARM64.HasASIMD,
		Cores:  runtime.NumCPU(),
	}
}

// sessionThreads splits cores between pooled sessions so a full pool does
// not oversubscribe the machine.
func sessionThreads(poolSize int) int {
	if poolSize < 1 {
		poolSize = 1
	}
	n := runtime.NumCPU() / poolSize
	if n < 1 {
		n = 1
	}
	return n
}
