package device

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"

	"github.com/lsds/moebench/srcs/go/log"
)

// https://devblogs.nvidia.com/cuda-pro-tip-control-gpu-visibility-cuda_visible_devices/
const cudaVisibleDevicesKey = `CUDA_VISIBLE_DEVICES`

var (
	lookupEnv = os.LookupEnv

	detectCudaGPUsArgs = []string{
		"nvidia-smi", "--query-gpu=index,name,uuid,memory.total", "--format=csv,noheader,nounits",
	}

	runNvidiaSMI = func() ([]byte, error) {
		// #nosec G204
		return exec.Command(detectCudaGPUsArgs[0], detectCudaGPUsArgs[1:]...).Output()
	}
)

// DetectAccelerators lists the CUDA devices visible to this process. A
// missing nvidia-smi means no accelerators.
func DetectAccelerators() ([]Device, error) {
	out, err := runNvidiaSMI()
	if execError, ok := err.(*exec.Error); ok && execError.Err == exec.ErrNotFound {
		return nil, nil
	} else if err != nil {
		log.Warnf("error while executing nvidia-smi to detect GPUs: %v", err)
		return nil, nil
	}
	visible, err := visibleDevices()
	if err != nil {
		return nil, err
	}
	return parseNvidiaSMI(out, visible)
}

// parseNvidiaSMI lists the GPUs in CUDA order: the order of visible when it
// is set, nvidia-smi's order otherwise.
func parseNvidiaSMI(out []byte, visible []int) ([]Device, error) {
	var all []Device
	byIndex := make(map[int]Device)
	r := csv.NewReader(strings.NewReader(string(out)))
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		switch {
		case err != nil:
			return nil, errors.Wrap(err, "error parsing output of nvidia-smi as CSV")
		case len(record) != 4:
			return nil, errors.New("error parsing output of nvidia-smi; GPU record should have exactly 4 fields")
		}
		index, err := strconv.Atoi(strings.TrimSpace(record[0]))
		if err != nil {
			return nil, errors.Wrap(err, "error parsing output of nvidia-smi; index of GPU cannot be converted to int")
		}
		mib, _ := strconv.ParseInt(strings.TrimSpace(record[3]), 10, 64)
		d := Device{
			Brand:       strings.TrimSpace(record[1]),
			UUID:        strings.TrimSpace(record[2]),
			Type:        CUDA,
			MemoryBytes: mib << 20,
		}
		all = append(all, d)
		byIndex[index] = d
	}
	if visible != nil {
		all = all[:0]
		for _, index := range visible {
			if d, ok := byIndex[index]; ok {
				all = append(all, d)
			}
		}
	}
	devices := make([]Device, 0, len(all))
	for i, d := range all {
		d.ID = ID(i)
		devices = append(devices, d)
	}
	return devices, nil
}

// visibleDevices returns nil when CUDA_VISIBLE_DEVICES is unset.
func visibleDevices() ([]int, error) {
	val, ok := lookupEnv(cudaVisibleDevicesKey)
	if !ok {
		return nil, nil
	}
	ids, err := parseCudaVisibleDevices(val)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid value of %s: %q", cudaVisibleDevicesKey, val)
	}
	if ids == nil {
		ids = []int{}
	}
	return ids, nil
}

var errInvalidCudaVisibleDevices = errors.New("invalid " + cudaVisibleDevicesKey)

func parseCudaVisibleDevices(val string) ([]int, error) {
	if len(val) == 0 {
		return nil, nil
	}
	parts := strings.Split(val, ",")
	set := make(map[int]struct{})
	var ids []int
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		if n < 0 {
			// devices after an invalid index are invisible
			break
		}
		if _, ok := set[n]; ok {
			return nil, errInvalidCudaVisibleDevices
		}
		set[n] = struct{}{}
		ids = append(ids, n)
	}
	return ids, nil
}

var (
	cpuInfo       = cpu.Info
	virtualMemory = mem.VirtualMemory
)

// DetectCPU describes the host as a single CPU device.
func DetectCPU() Device {
	d := Device{ID: 0, Brand: "cpu", Type: CPU}
	if infos, err := cpuInfo(); err == nil && len(infos) > 0 {
		d.UUID = infos[0].VendorID
		coreCounts := map[string]int32{}
		var names []string
		for _, entry := range infos {
			if _, ok := coreCounts[entry.ModelName]; !ok {
				names = append(names, entry.ModelName)
			}
			coreCounts[entry.ModelName] += entry.Cores
		}
		var brands []string
		for _, name := range names {
			brands = append(brands, fmt.Sprintf("%s x %d cores", name, coreCounts[name]))
		}
		d.Brand = strings.Join(brands, ", ")
	} else if err != nil {
		log.Debugf("error while gathering CPU info: %v", err)
	}
	if vm, err := virtualMemory(); err == nil {
		d.MemoryBytes = int64(vm.Total)
	}
	return d
}
