package arbiter

import (
	"bufio"
	"bytes"
	"context"
	"regexp"
	"strings"

	"github.com/turtacn/wmswitch/internal/candidate"
	"github.com/turtacn/wmswitch/internal/probe"
	"github.com/turtacn/wmswitch/pkg/logger"
)

// GPU is the detected graphics vendor.
type GPU int

const (
	GPUUnknown GPU = iota
	GPUVirtualBox
	GPUVMWare
	GPUIntel
	GPUAMD
	GPUNvidia
)

func (g GPU) String() string {
	return [...]string{"unknown", "virtualbox", "vmware", "intel", "amd", "nvidia"}[g]
}

var (
	aiglxError = regexp.MustCompile(`\(EE\)\s+AIGLX error`)
	driEnabled = regexp.MustCompile(`direct rendering: DRI\d+ enabled`)
	swrast     = regexp.MustCompile(`(?i)(loaded and initialized swrast|initialized driswrast)`)
)

// Checked in priority order; the first match wins.
var gpuPatterns = []struct {
	gpu GPU
	re  *regexp.Regexp
}{
	{GPUVirtualBox, regexp.MustCompile(`(?i)vga.*virtualbox`)},
	{GPUVMWare, regexp.MustCompile(`(?i)vga.*vmware`)},
	{GPUIntel, regexp.MustCompile(`(?i)vga.*intel`)},
	{GPUAMD, regexp.MustCompile(`(?i)vga.*\b(ati|amd)\b`)},
	{GPUNvidia, regexp.MustCompile(`(?i)vga.*nvidia`)},
}

// ClassifyGPU picks the vendor from lspci output.
func ClassifyGPU(lspci string) GPU {
	for _, p := range gpuPatterns {
		if p.re.MatchString(lspci) {
			return p.gpu
		}
	}
	return GPUUnknown
}

// DriverLoaded scans an X server log. It stops at the first AIGLX error,
// DRI success or software rasterizer line; a log without markers counts as loaded.
func DriverLoaded(xlog []byte) bool {
	sc := bufio.NewScanner(bytes.NewReader(xlog))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case aiglxError.MatchString(line):
			return false
		case driEnabled.MatchString(line):
			return true
		case swrast.MatchString(line):
			return false
		}
	}
	return true
}

// ParseModules returns the module names listed by lsmod.
func ParseModules(lsmod string) map[string]bool {
	mods := map[string]bool{}
	for _, line := range strings.Split(lsmod, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 || fields[0] == "Module" {
			continue
		}
		mods[fields[0]] = true
	}
	return mods
}

// EnvironmentCheck votes on graphics driver health and GPU vendor.
type EnvironmentCheck struct {
	deps *Deps
	vote candidate.Choice
	gpu  GPU
	env  map[string]string
}

func (r *EnvironmentCheck) String() string { return "environment" }

func (r *EnvironmentCheck) Evaluate(ctx context.Context, st *State) {
	log := logger.Log.With("rule", r.String())
	r.vote = st.Favored
	r.gpu = GPUUnknown
	r.env = map[string]string{}

	if !r.driverLoadedCorrectly() {
		log.Warn("Graphics driver not usable, voting fallback")
		r.vote = candidate.Fallback
		return
	}

	out, err := r.deps.Runner.Output(ctx, r.deps.Probes.LspciCommand)
	if err != nil {
		log.Warn("PCI probe failed", "err", err)
		return
	}
	r.gpu = ClassifyGPU(string(out))
	log.Info("Video environment", "gpu", r.gpu.String())

	out, err = r.deps.Runner.Output(ctx, r.deps.Probes.LsmodCommand)
	if err != nil {
		log.Warn("Module probe failed", "err", err)
		return
	}
	mods := ParseModules(string(out))

	switch {
	case r.gpu == GPUAMD && mods["fglrx"]:
		if r.vote == candidate.Primary {
			r.env["COGL_DRIVER"] = "gl"
		}
	case r.gpu == GPUVirtualBox && !mods["vboxvideo"]:
		log.Info("VirtualBox without vboxvideo, voting fallback")
		r.vote = candidate.Fallback
	case r.gpu == GPUVMWare && !mods["vmwgfx"]:
		log.Info("VMWare without vmwgfx, voting fallback")
		r.vote = candidate.Fallback
	}
}

func (r *EnvironmentCheck) driverLoadedCorrectly() bool {
	log := logger.Log.With("rule", r.String())
	screen := probe.ScreenFromDisplay(r.deps.Display)
	path, err := probe.LatestXorgLog(r.deps.FS, r.deps.Probes.XorgLogs, screen, r.deps.Home)
	if err != nil {
		log.Warn("No X server log found", "screen", screen)
		return false
	}
	data, err := r.deps.FS.ReadFile(path)
	if err != nil {
		log.Warn("Cannot read X server log", "path", path, "err", err)
		return false
	}
	ok := DriverLoaded(data)
	log.Info("Checked X server log", "path", path, "driver_ok", ok)
	return ok
}

func (r *EnvironmentCheck) Vote() candidate.Choice { return r.vote }

func (r *EnvironmentCheck) AdditionalEnv() map[string]string { return r.env }

// Personal.AI order the ending
