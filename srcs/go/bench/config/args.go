package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = `MOEBENCH_`

// Args are the command line arguments shared by the launcher and its workers.
type Args struct {
	ModelName         string
	Debug             bool
	MaxBatch          int
	BatchSize         int
	UseSyntheticData  bool
	DatasetDir        string
	NProcs            int
	Rendezvous        string
	RendezvousTimeout time.Duration
	Strategy          string
	GradDType         string
	LogInterval       int
	TraceDir          string
	LogDir            string
	MonitorPort       int
	ConfigFile        string
}

type configKey string

func (k configKey) EnvName() string {
	return EnvPrefix + strings.ReplaceAll(strings.ToUpper(string(k)), "-", "_")
}

func (k configKey) AccessPath() string {
	return strings.ReplaceAll(string(k), "-", "_")
}

const (
	keyModelName         configKey = "model-name"
	keyDebug             configKey = "debug"
	keyMaxBatch          configKey = "max-batch"
	keyBatchSize         configKey = "batch-size"
	keyUseSyntheticData  configKey = "use-synthetic-data"
	keyDatasetDir        configKey = "dataset-dir"
	keyNProcs            configKey = "nprocs"
	keyRendezvous        configKey = "rendezvous"
	keyRendezvousTimeout configKey = "rendezvous-timeout"
	keyStrategy          configKey = "strategy"
	keyGradDType         configKey = "grad-dtype"
	keyLogInterval       configKey = "log-interval"
	keyTraceDir          configKey = "trace-dir"
	keyLogDir            configKey = "logdir"
	keyMonitorPort       configKey = "monitor-port"
	keyConfig            configKey = "config"
)

// Registry binds flags, MOEBENCH_* environment variables and an optional
// config file. Precedence is flag > env > file > default.
type Registry struct {
	v *viper.Viper
}

func NewRegistry() *Registry {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	return &Registry{v: v}
}

func (r *Registry) bind(flags *pflag.FlagSet, k configKey, value interface{}) {
	_ = r.v.BindEnv(k.AccessPath(), k.EnvName())
	_ = r.v.BindPFlag(k.AccessPath(), flags.Lookup(string(k)))
	r.v.SetDefault(k.AccessPath(), value)
}

func (r *Registry) registerString(flags *pflag.FlagSet, k configKey, value, usage string) {
	flags.String(string(k), value, usage)
	r.bind(flags, k, value)
}

func (r *Registry) registerBool(flags *pflag.FlagSet, k configKey, value bool, usage string) {
	flags.Bool(string(k), value, usage)
	r.bind(flags, k, value)
}

func (r *Registry) registerInt(flags *pflag.FlagSet, k configKey, value int, usage string) {
	flags.Int(string(k), value, usage)
	r.bind(flags, k, value)
}

func (r *Registry) registerDuration(flags *pflag.FlagSet, k configKey, value time.Duration, usage string) {
	flags.Duration(string(k), value, usage)
	r.bind(flags, k, value)
}

// Register adds all benchmark flags to flags.
func (r *Registry) Register(flags *pflag.FlagSet) {
	r.registerString(flags, keyModelName, DefaultPreset, "preset name: "+strings.Join(PresetNames(), "|"))
	r.registerBool(flags, keyDebug, false, "enable debug logging")
	r.registerInt(flags, keyMaxBatch, 0, "max number of counted batches, 0 means the whole dataset")
	r.registerInt(flags, keyBatchSize, 0, "batch size, 0 means the preset value")
	r.registerBool(flags, keyUseSyntheticData, false, "use synthetic token batches")
	r.registerString(flags, keyDatasetDir, "", "directory containing wiki.train.tokens")
	r.registerInt(flags, keyNProcs, 0, "number of workers to spawn, 0 means one per device")
	r.registerString(flags, keyRendezvous, fmt.Sprintf("%s:%d", DefaultRendezvousHost, MPIPort), "rendezvous endpoint")
	r.registerDuration(flags, keyRendezvousTimeout, DefaultRendezvousTimeout, "rendezvous timeout")
	r.registerString(flags, keyStrategy, "star", "allreduce strategy: star|ring")
	r.registerString(flags, keyGradDType, "f32", "gradient wire type: f32|f16")
	r.registerInt(flags, keyLogInterval, 0, "log every n steps, 0 means the preset value")
	r.registerString(flags, keyTraceDir, ".", "directory for trace_<rank>.json")
	r.registerString(flags, keyLogDir, "", "tee worker output into this directory")
	r.registerInt(flags, keyMonitorPort, 0, "serve prometheus metrics on port+rank, 0 disables")
	r.registerString(flags, keyConfig, "", "optional config file")
}

// Load resolves the arguments after flags have been parsed.
func (r *Registry) Load() (*Args, error) {
	if file := r.v.GetString(keyConfig.AccessPath()); len(file) > 0 {
		r.v.SetConfigFile(file)
		if err := r.v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", file)
		}
	}
	a := &Args{
		ModelName:         r.v.GetString(keyModelName.AccessPath()),
		Debug:             r.v.GetBool(keyDebug.AccessPath()),
		MaxBatch:          r.v.GetInt(keyMaxBatch.AccessPath()),
		BatchSize:         r.v.GetInt(keyBatchSize.AccessPath()),
		UseSyntheticData:  r.v.GetBool(keyUseSyntheticData.AccessPath()),
		DatasetDir:        r.v.GetString(keyDatasetDir.AccessPath()),
		NProcs:            r.v.GetInt(keyNProcs.AccessPath()),
		Rendezvous:        r.v.GetString(keyRendezvous.AccessPath()),
		RendezvousTimeout: r.v.GetDuration(keyRendezvousTimeout.AccessPath()),
		Strategy:          r.v.GetString(keyStrategy.AccessPath()),
		GradDType:         r.v.GetString(keyGradDType.AccessPath()),
		LogInterval:       r.v.GetInt(keyLogInterval.AccessPath()),
		TraceDir:          r.v.GetString(keyTraceDir.AccessPath()),
		LogDir:            r.v.GetString(keyLogDir.AccessPath()),
		MonitorPort:       r.v.GetInt(keyMonitorPort.AccessPath()),
		ConfigFile:        r.v.GetString(keyConfig.AccessPath()),
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a Args) Validate() error {
	switch {
	case a.MaxBatch < 0:
		return &ConfigurationError{Reason: fmt.Sprintf("invalid max batch %d", a.MaxBatch)}
	case a.BatchSize < 0:
		return &ConfigurationError{Reason: fmt.Sprintf("invalid batch size %d", a.BatchSize)}
	case a.NProcs < 0:
		return &ConfigurationError{Reason: fmt.Sprintf("invalid nprocs %d", a.NProcs)}
	case a.LogInterval < 0:
		return &ConfigurationError{Reason: fmt.Sprintf("invalid log interval %d", a.LogInterval)}
	case a.RendezvousTimeout <= 0:
		return &ConfigurationError{Reason: "rendezvous timeout must be positive"}
	}
	switch a.Strategy {
	case "star", "ring":
	default:
		return &ConfigurationError{Reason: fmt.Sprintf("invalid strategy %q", a.Strategy)}
	}
	switch a.GradDType {
	case "f32", "f16":
	default:
		return &ConfigurationError{Reason: fmt.Sprintf("invalid grad dtype %q", a.GradDType)}
	}
	return nil
}

// Apply overrides the preset with the arguments that were set.
func (a Args) Apply(p Preset) (BenchmarkConfig, ModelSpec) {
	bc, spec := p.Benchmark, p.Model
	if a.BatchSize > 0 {
		bc.BatchSize = a.BatchSize
	}
	if a.LogInterval > 0 {
		bc.LogInterval = a.LogInterval
	}
	if a.UseSyntheticData {
		bc.Dataset.Synthetic = true
	}
	if len(a.DatasetDir) > 0 {
		bc.Dataset.Dir = a.DatasetDir
	}
	return bc, spec
}
