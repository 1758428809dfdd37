package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

const (
	// MPIPort is the fixed rendezvous port on loopback.
	MPIPort = 29500

	DefaultRendezvousHost = `127.0.0.1`

	DefaultRendezvousTimeout = 5 * time.Minute
)

// DefaultBucketBytes bounds the gradients reduced in one collective and so
// the largest payload a peer accepts.
const DefaultBucketBytes = 25 << 20

var (
	ConnRetryCount  = 500
	ConnRetryPeriod = 200 * time.Millisecond
)

// Set by external multi-process runners.
const (
	RankEnvKey       = `RANK`
	WorldSizeEnvKey  = `WORLD_SIZE`
	MasterAddrEnvKey = `MASTER_ADDR`
	MasterPortEnvKey = `MASTER_PORT`
)

// Set by the launcher on the workers it spawns.
const (
	RunIDEnvKey       = `MOEBENCH_RUN_ID`
	LocalIndexEnvKey  = `MOEBENCH_LOCAL_INDEX`
	DeviceCountEnvKey = `MOEBENCH_DEVICE_COUNT`
)

const (
	EnableStallDetectionEnvKey = `MOEBENCH_CONFIG_ENABLE_STALL_DETECTION`
	StallPeriodEnvKey          = `MOEBENCH_CONFIG_STALL_PERIOD`
	ConnRetryCountEnvKey       = `MOEBENCH_CONFIG_CONN_RETRY_COUNT`
	ConnRetryPeriodEnvKey      = `MOEBENCH_CONFIG_CONN_RETRY_PERIOD`
)

var ConfigEnvKeys = []string{
	EnableStallDetectionEnvKey,
	StallPeriodEnvKey,
	ConnRetryCountEnvKey,
	ConnRetryPeriodEnvKey,
}

var (
	EnableStallDetection = false
	StallPeriod          = 10 * time.Second
)

func init() {
	if val := os.Getenv(EnableStallDetectionEnvKey); len(val) > 0 {
		EnableStallDetection = isTrue(val)
	}
	if val := os.Getenv(StallPeriodEnvKey); len(val) > 0 {
		StallPeriod = mustParseDuration(StallPeriodEnvKey, val)
	}
	if val := os.Getenv(ConnRetryCountEnvKey); len(val) > 0 {
		if n, err := strconv.Atoi(val); err == nil && n >= 0 {
			ConnRetryCount = n
		}
	}
	if val := os.Getenv(ConnRetryPeriodEnvKey); len(val) > 0 {
		ConnRetryPeriod = mustParseDuration(ConnRetryPeriodEnvKey, val)
	}
}

func isTrue(val string) bool {
	return val == "true" || val == "1"
}

func mustParseDuration(key, val string) time.Duration {
	d, err := time.ParseDuration(val)
	if err != nil {
		panic(errors.Wrapf(err, "invalid %s", key))
	}
	return d
}

// ExternalRun describes a run whose processes were started by an external
// multi-process runner.
type ExternalRun struct {
	Rank       int
	WorldSize  int
	MasterAddr string
	MasterPort int
}

// ParseExternalRun reads RANK and WORLD_SIZE; ok is false if either is unset.
func ParseExternalRun(lookup func(string) (string, bool)) (*ExternalRun, bool, error) {
	rank, ok1 := lookup(RankEnvKey)
	size, ok2 := lookup(WorldSizeEnvKey)
	if !ok1 || !ok2 {
		return nil, false, nil
	}
	r := &ExternalRun{MasterAddr: DefaultRendezvousHost, MasterPort: MPIPort}
	var err error
	if r.Rank, err = strconv.Atoi(rank); err != nil {
		return nil, true, errors.Wrapf(err, "invalid %s", RankEnvKey)
	}
	if r.WorldSize, err = strconv.Atoi(size); err != nil {
		return nil, true, errors.Wrapf(err, "invalid %s", WorldSizeEnvKey)
	}
	if r.WorldSize <= 0 || r.Rank < 0 || r.Rank >= r.WorldSize {
		return nil, true, errors.Errorf("invalid rank %d for world size %d", r.Rank, r.WorldSize)
	}
	if val, ok := lookup(MasterAddrEnvKey); ok && len(val) > 0 {
		r.MasterAddr = val
	}
	if val, ok := lookup(MasterPortEnvKey); ok && len(val) > 0 {
		if r.MasterPort, err = strconv.Atoi(val); err != nil {
			return nil, true, errors.Wrapf(err, "invalid %s", MasterPortEnvKey)
		}
	}
	return r, true, nil
}

// SpawnedWorker is the identity the launcher hands to each worker it starts.
type SpawnedWorker struct {
	RunID       string
	LocalIndex  int
	DeviceCount int
}

func ParseSpawnedWorker(lookup func(string) (string, bool)) (*SpawnedWorker, bool, error) {
	idx, ok := lookup(LocalIndexEnvKey)
	if !ok {
		return nil, false, nil
	}
	w := &SpawnedWorker{}
	var err error
	if w.LocalIndex, err = strconv.Atoi(idx); err != nil {
		return nil, true, errors.Wrapf(err, "invalid %s", LocalIndexEnvKey)
	}
	count, _ := lookup(DeviceCountEnvKey)
	if w.DeviceCount, err = strconv.Atoi(count); err != nil {
		return nil, true, errors.Wrapf(err, "invalid %s", DeviceCountEnvKey)
	}
	if w.LocalIndex < 0 || w.LocalIndex >= w.DeviceCount {
		return nil, true, errors.Errorf("invalid local index %d for %d devices", w.LocalIndex, w.DeviceCount)
	}
	w.RunID, _ = lookup(RunIDEnvKey)
	return w, true, nil
}
