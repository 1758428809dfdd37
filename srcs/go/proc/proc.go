package proc

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
)

type Envs map[string]string

func Merge(e, f Envs) Envs {
	g := make(Envs)
	for k, v := range e {
		g[k] = v
	}
	for k, v := range f {
		g[k] = v
	}
	return g
}

// Proc is a worker process to be started on this host.
type Proc struct {
	Name   string
	Prog   string
	Args   []string
	Envs   Envs
	LogDir string
}

// Cmd builds the command; it is killed when ctx is done.
func (p Proc) Cmd(ctx context.Context) *exec.Cmd {
	cmd := exec.CommandContext(ctx, p.Prog, p.Args...)
	cmd.Env = updatedEnvFrom(p.Envs, os.Environ())
	return cmd
}

// Script renders p as a shell command for logging.
func (p Proc) Script() string {
	var b strings.Builder
	b.WriteString("env")
	var keys []string
	for k := range p.Envs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%q", k, p.Envs[k])
	}
	fmt.Fprintf(&b, " %s", p.Prog)
	for _, a := range p.Args {
		fmt.Fprintf(&b, " %s", a)
	}
	return b.String()
}

func parseEnv(kvs []string) Envs {
	envMap := make(Envs)
	for _, kv := range kvs {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}
	return envMap
}

func updatedEnvFrom(newValues Envs, oldEnvs []string) []string {
	envMap := Merge(parseEnv(oldEnvs), newValues)
	var envs []string
	for k, v := range envMap {
		envs = append(envs, k+"="+v)
	}
	sort.Strings(envs)
	return envs
}
