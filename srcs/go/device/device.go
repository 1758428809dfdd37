package device

import "fmt"

type Type string

const (
	CPU  Type = "cpu"
	CUDA Type = "cuda"
)

type ID int

// Device is a compute device a worker can bind to.
type Device struct {
	ID          ID
	Brand       string
	UUID        string
	Type        Type
	MemoryBytes int64
}

func (d Device) String() string {
	if d.Type == CPU {
		return string(CPU)
	}
	return fmt.Sprintf("%s:%d", d.Type, d.ID)
}

// Select binds rank to accelerator min(rank, len(accelerators)-1), or to cpu
// when there is none.
func Select(rank int, accelerators []Device, cpu Device) Device {
	if len(accelerators) == 0 {
		return cpu
	}
	idx := rank
	if idx > len(accelerators)-1 {
		idx = len(accelerators) - 1
	}
	return accelerators[idx]
}
