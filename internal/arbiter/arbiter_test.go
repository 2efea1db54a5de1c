package arbiter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/wmswitch/internal/candidate"
	"github.com/turtacn/wmswitch/internal/probe/probetest"
	"github.com/turtacn/wmswitch/pkg/protocol"
)

const (
	goodXorgLog = `[    12.345] (II) AIGLX: enabled GLX_MESA_copy_sub_buffer
[    12.350] (II) AIGLX: Loaded and initialized i965
[    12.351] (II) GLX: Initialized DRI2 GL provider for screen 0
[    12.352] (II) intel(0): direct rendering: DRI2 enabled
`
	intelLspci = `00:00.0 Host bridge: Intel Corporation Xeon E3-1200 v3 Processor DRAM Controller (rev 06)
00:02.0 VGA compatible controller: Intel Corporation Xeon E3-1200 v3 Processor Integrated Graphics Controller (rev 06)
`
	lsmodHeader = "Module                  Size  Used by\n"
)

type fakeConfig struct {
	allow   bool
	sel     string
	loadErr error
	loads   int
}

func (f *fakeConfig) Load() error              { f.loads++; return f.loadErr }
func (f *fakeConfig) AllowSwitch() bool        { return f.allow }
func (f *fakeConfig) CurrentSelection() string { return f.sel }

type detachRecorder struct {
	mu   sync.Mutex
	cmds [][]string
}

func (d *detachRecorder) detach(argv []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cmds = append(d.cmds, argv)
}

type host struct {
	deps    *Deps
	runner  *probetest.Runner
	fs      *probetest.FS
	config  *fakeConfig
	detach  *detachRecorder
	machine string
	archErr error
}

// newHost describes a healthy x86 desktop with an Intel GPU.
func newHost() *host {
	cfg := protocol.Default()
	h := &host{
		runner:  probetest.NewRunner(),
		fs:      probetest.NewFS(),
		config:  &fakeConfig{allow: true},
		detach:  &detachRecorder{},
		machine: "x86_64",
	}
	h.fs.Files["/var/log/Xorg.0.log"] = goodXorgLog
	h.fs.ModTimes["/var/log/Xorg.0.log"] = time.Now()
	h.runner.On(intelLspci, "lspci")
	h.runner.On(lsmodHeader+"i915                 1425408  3\n", "/sbin/lsmod")

	h.deps = &Deps{
		Runner:   h.runner,
		FS:       h.fs,
		Machine:  func() (string, error) { return h.machine, h.archErr },
		Detach:   h.detach.detach,
		Registry: candidate.NewRegistry(candidate.Candidate{Name: "deepin wm", ExecName: "deepin-wm"}, candidate.Candidate{Name: "deepin metacity", ExecName: "deepin-metacity"}),
		Config:   h.config,
		Display:  ":0",
		Home:     "/home/user",
		Probes:   cfg.Probes,
		Tuning:   cfg.Platform,
	}
	return h
}

func TestPermission_Allows(t *testing.T) {
	cases := []struct {
		perm Permission
		from candidate.Choice
		want bool
	}{
		{SwitchNone, candidate.Primary, false},
		{SwitchNone, candidate.Fallback, false},
		{SwitchBoth, candidate.Primary, true},
		{SwitchBoth, candidate.Fallback, true},
		{SwitchBoth, candidate.None, false},
		{SwitchToFallbackOnly, candidate.Primary, true},
		{SwitchToFallbackOnly, candidate.Fallback, false},
		{SwitchToPrimaryOnly, candidate.Fallback, true},
		{SwitchToPrimaryOnly, candidate.Primary, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.perm.Allows(c.from), "%s from %s", c.perm, c.from)
	}
}

func TestPlatformCheck_ArchitectureTable(t *testing.T) {
	cases := []struct {
		machine  string
		err      error
		favored  candidate.Choice
		wantVote candidate.Choice
		wantPerm Permission
	}{
		{"x86_64", nil, candidate.Fallback, candidate.Primary, SwitchBoth},
		{"i686", nil, candidate.Fallback, candidate.Primary, SwitchBoth},
		{"sw_64", nil, candidate.Primary, candidate.Fallback, SwitchNone},
		{"alpha", nil, candidate.Primary, candidate.Fallback, SwitchNone},
		{"mips64", nil, candidate.Fallback, candidate.Primary, SwitchBoth},
		{"aarch64", nil, candidate.Fallback, candidate.Primary, SwitchToFallbackOnly},
		{"riscv64", nil, candidate.Fallback, candidate.Fallback, SwitchToFallbackOnly},
		{"", errors.New("uname failed"), candidate.Primary, candidate.Primary, SwitchToFallbackOnly},
	}
	for _, c := range cases {
		h := newHost()
		h.machine, h.archErr = c.machine, c.err
		rule := &PlatformCheck{deps: h.deps}
		st := &State{Favored: c.favored, Permission: SwitchToFallbackOnly}

		rule.Evaluate(context.Background(), st)
		assert.Equal(t, c.wantVote, rule.Vote(), "vote for %q", c.machine)
		assert.Equal(t, c.wantPerm, st.Permission, "permission for %q", c.machine)
	}
}

func TestPlatformCheck_ShenweiTuning(t *testing.T) {
	h := newHost()
	h.machine = "sw_64"
	rule := &PlatformCheck{deps: h.deps}
	rule.Evaluate(context.Background(), &State{Favored: candidate.Primary, Permission: SwitchBoth})

	assert.Equal(t, map[string]string{"LIBGL_ALWAYS_SOFTWARE": "1", "NO_AT_BRIDGE": "1"}, rule.AdditionalEnv())
	require.Len(t, h.detach.cmds, 1)
	assert.Equal(t, []string{"gsettings", "set", "com.deepin.wrap.gnome.metacity", "reduced-resources", "true"}, h.detach.cmds[0])
}

func TestDriverLoaded(t *testing.T) {
	assert.True(t, DriverLoaded([]byte(goodXorgLog)))
	assert.True(t, DriverLoaded([]byte("(II) nothing relevant\n")))
	assert.False(t, DriverLoaded([]byte("(II) start\n(EE) AIGLX error: dlopen of r600_dri.so failed\n")))
	assert.False(t, DriverLoaded([]byte("(II) AIGLX: Loaded and initialized swrast\n")))

	// The first marker wins; later lines are ignored.
	assert.True(t, DriverLoaded([]byte("(II) radeon(0): direct rendering: DRI2 enabled\n(EE) AIGLX error: late\n")))
	assert.False(t, DriverLoaded([]byte("(EE) AIGLX error: early\n(II) radeon(0): direct rendering: DRI2 enabled\n")))
}

func TestClassifyGPU(t *testing.T) {
	assert.Equal(t, GPUIntel, ClassifyGPU(intelLspci))
	assert.Equal(t, GPUVirtualBox, ClassifyGPU("00:02.0 VGA compatible controller: InnoTek Systemberatung GmbH VirtualBox Graphics Adapter\n"))
	assert.Equal(t, GPUVMWare, ClassifyGPU("00:0f.0 VGA compatible controller: VMware SVGA II Adapter\n"))
	assert.Equal(t, GPUAMD, ClassifyGPU("01:00.0 VGA compatible controller: Advanced Micro Devices, Inc. [AMD/ATI] Caicos\n"))
	assert.Equal(t, GPUAMD, ClassifyGPU("01:00.0 VGA compatible controller: ATI Technologies Inc RV370 [Radeon X300]\n"))
	// "compatible" and "Corporation" contain "ati" but are not vendor names.
	assert.Equal(t, GPUNvidia, ClassifyGPU("01:00.0 VGA compatible controller: NVIDIA Corporation GK107\n"))
	assert.Equal(t, GPUUnknown, ClassifyGPU("00:1f.3 Audio device: Intel Corporation\n"))

	// VirtualBox outranks Intel when both appear.
	both := "00:02.0 VGA compatible controller: Intel Corporation HD\n00:03.0 VGA compatible controller: VirtualBox Graphics\n"
	assert.Equal(t, GPUVirtualBox, ClassifyGPU(both))
}

func TestEnvironmentCheck(t *testing.T) {
	vbox := "00:02.0 VGA compatible controller: InnoTek Systemberatung GmbH VirtualBox Graphics Adapter\n"
	amd := "01:00.0 VGA compatible controller: Advanced Micro Devices, Inc. [AMD/ATI] Caicos\n"

	cases := []struct {
		name     string
		setup    func(h *host)
		favored  candidate.Choice
		wantVote candidate.Choice
		wantEnv  map[string]string
	}{
		{
			name:     "healthy intel keeps favored",
			setup:    func(h *host) {},
			favored:  candidate.Primary,
			wantVote: candidate.Primary,
			wantEnv:  map[string]string{},
		},
		{
			name: "aiglx error votes fallback",
			setup: func(h *host) {
				h.fs.Files["/var/log/Xorg.0.log"] = "(EE) AIGLX error: Calling driver entry point failed\n"
			},
			favored:  candidate.Primary,
			wantVote: candidate.Fallback,
			wantEnv:  map[string]string{},
		},
		{
			name:     "missing log votes fallback",
			setup:    func(h *host) { delete(h.fs.Files, "/var/log/Xorg.0.log") },
			favored:  candidate.Primary,
			wantVote: candidate.Fallback,
			wantEnv:  map[string]string{},
		},
		{
			name:     "virtualbox without vboxvideo votes fallback",
			setup:    func(h *host) { h.runner.On(vbox, "lspci") },
			favored:  candidate.Primary,
			wantVote: candidate.Fallback,
			wantEnv:  map[string]string{},
		},
		{
			name: "virtualbox with vboxvideo keeps favored",
			setup: func(h *host) {
				h.runner.On(vbox, "lspci")
				h.runner.On(lsmodHeader+"vboxvideo 49152 2\n", "/sbin/lsmod")
			},
			favored:  candidate.Primary,
			wantVote: candidate.Primary,
			wantEnv:  map[string]string{},
		},
		{
			name: "vmware without vmwgfx votes fallback",
			setup: func(h *host) {
				h.runner.On("00:0f.0 VGA compatible controller: VMware SVGA II Adapter\n", "lspci")
			},
			favored:  candidate.Primary,
			wantVote: candidate.Fallback,
			wantEnv:  map[string]string{},
		},
		{
			name: "amd fglrx on primary adds cogl env",
			setup: func(h *host) {
				h.runner.On(amd, "lspci")
				h.runner.On(lsmodHeader+"fglrx 8675309 100\n", "/sbin/lsmod")
			},
			favored:  candidate.Primary,
			wantVote: candidate.Primary,
			wantEnv:  map[string]string{"COGL_DRIVER": "gl"},
		},
		{
			name: "amd fglrx on fallback adds nothing",
			setup: func(h *host) {
				h.runner.On(amd, "lspci")
				h.runner.On(lsmodHeader+"fglrx 8675309 100\n", "/sbin/lsmod")
			},
			favored:  candidate.Fallback,
			wantVote: candidate.Fallback,
			wantEnv:  map[string]string{},
		},
		{
			name:     "lspci failure abstains",
			setup:    func(h *host) { h.runner.Fail(errors.New("timeout"), "lspci") },
			favored:  candidate.Primary,
			wantVote: candidate.Primary,
			wantEnv:  map[string]string{},
		},
		{
			name: "lsmod failure skips module checks",
			setup: func(h *host) {
				h.runner.On(vbox, "lspci")
				h.runner.Fail(errors.New("timeout"), "/sbin/lsmod")
			},
			favored:  candidate.Primary,
			wantVote: candidate.Primary,
			wantEnv:  map[string]string{},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := newHost()
			c.setup(h)
			rule := &EnvironmentCheck{deps: h.deps}
			st := &State{Favored: c.favored, Permission: SwitchBoth}

			rule.Evaluate(context.Background(), st)
			assert.Equal(t, c.wantVote, rule.Vote())
			assert.Equal(t, c.wantEnv, rule.AdditionalEnv())
			assert.Equal(t, SwitchBoth, st.Permission)
		})
	}
}

func TestEnvironmentCheck_UsesNewestLogForScreen(t *testing.T) {
	h := newHost()
	h.deps.Display = ":1"
	h.fs.Files["/var/log/Xorg.1.log"] = goodXorgLog
	h.fs.ModTimes["/var/log/Xorg.1.log"] = time.Now().Add(-time.Hour)
	h.fs.Files["/home/user/.local/share/xorg/Xorg.1.log"] = "(EE) AIGLX error: newer session\n"
	h.fs.ModTimes["/home/user/.local/share/xorg/Xorg.1.log"] = time.Now()

	rule := &EnvironmentCheck{deps: h.deps}
	rule.Evaluate(context.Background(), &State{Favored: candidate.Primary, Permission: SwitchBoth})
	assert.Equal(t, candidate.Fallback, rule.Vote())
}

func TestPlatformOverrideCheck(t *testing.T) {
	t.Run("ignores mainstream architectures", func(t *testing.T) {
		h := newHost()
		rule := &PlatformOverrideCheck{deps: h.deps}
		st := &State{Favored: candidate.Fallback, Permission: SwitchBoth}
		rule.Evaluate(context.Background(), st)

		assert.Equal(t, candidate.Fallback, rule.Vote())
		assert.Equal(t, SwitchBoth, st.Permission)
		assert.NotContains(t, h.runner.Calls(), "xdriinfo driver 0")
	})

	t.Run("sysfs card with known driver overrides to primary", func(t *testing.T) {
		h := newHost()
		h.machine = "sw_64"
		h.fs.Files["/sys/class/drm/card0/device/enable"] = "0\n"
		h.fs.Files["/sys/class/drm/card1/device/enable"] = "1\n"
		h.fs.Links["/sys/class/drm/card1/device/driver"] = "../../../../bus/pci/drivers/radeon"

		rule := &PlatformOverrideCheck{deps: h.deps}
		st := &State{Favored: candidate.Fallback, Permission: SwitchNone}
		rule.Evaluate(context.Background(), st)

		assert.Equal(t, candidate.Primary, rule.Vote())
		assert.Equal(t, SwitchNone, st.Permission)
		assert.Empty(t, h.runner.Calls())
	})

	t.Run("permission denied falls back to dri info", func(t *testing.T) {
		h := newHost()
		h.machine = "sw_64"
		h.fs.Denied["/sys/class/drm/card0/device/enable"] = true
		h.runner.On("amdgpu\n", "xdriinfo", "driver", "0")

		rule := &PlatformOverrideCheck{deps: h.deps}
		st := &State{Favored: candidate.Fallback, Permission: SwitchNone}
		rule.Evaluate(context.Background(), st)

		assert.Equal(t, candidate.Primary, rule.Vote())
	})

	t.Run("no compatible card forbids switching", func(t *testing.T) {
		h := newHost()
		h.machine = "sw_64"
		h.fs.Files["/sys/class/drm/card0/device/enable"] = "1\n"
		h.fs.Links["/sys/class/drm/card0/device/driver"] = "../drivers/sw_gpu"

		rule := &PlatformOverrideCheck{deps: h.deps}
		st := &State{Favored: candidate.Fallback, Permission: SwitchBoth}
		rule.Evaluate(context.Background(), st)

		assert.Equal(t, candidate.Fallback, rule.Vote())
		assert.Equal(t, SwitchNone, st.Permission)
		assert.Empty(t, h.runner.Calls(), "readable sysfs must not consult xdriinfo")
	})

	t.Run("unknown dri driver forbids switching", func(t *testing.T) {
		h := newHost()
		h.machine = "sw_64"
		h.fs.Denied["/sys/class/drm/card0/device/enable"] = true
		h.runner.On("swrast\n", "xdriinfo", "driver", "0")

		rule := &PlatformOverrideCheck{deps: h.deps}
		st := &State{Favored: candidate.Fallback, Permission: SwitchBoth}
		rule.Evaluate(context.Background(), st)

		assert.Equal(t, candidate.Fallback, rule.Vote())
		assert.Equal(t, SwitchNone, st.Permission)
	})
}

func TestConfigCheck(t *testing.T) {
	t.Run("allow_switch false forces none", func(t *testing.T) {
		h := newHost()
		h.config.allow = false
		rule := &ConfigCheck{deps: h.deps}
		st := &State{Favored: candidate.Primary, Permission: SwitchBoth}
		rule.Evaluate(context.Background(), st)

		assert.Equal(t, SwitchNone, st.Permission)
		assert.Equal(t, candidate.Primary, rule.Vote())
		assert.Equal(t, 1, h.config.loads)
	})

	t.Run("last selection wins", func(t *testing.T) {
		h := newHost()
		h.config.sel = "deepin-metacity"
		rule := &ConfigCheck{deps: h.deps}
		st := &State{Favored: candidate.Primary, Permission: SwitchBoth}
		rule.Evaluate(context.Background(), st)

		assert.Equal(t, candidate.Fallback, rule.Vote())
		assert.Equal(t, SwitchBoth, st.Permission)
	})

	t.Run("unknown selection and load error keep favored", func(t *testing.T) {
		h := newHost()
		h.config.sel = "kwin"
		h.config.loadErr = errors.New("malformed")
		rule := &ConfigCheck{deps: h.deps}
		st := &State{Favored: candidate.Fallback, Permission: SwitchBoth}
		rule.Evaluate(context.Background(), st)

		assert.Equal(t, candidate.Fallback, rule.Vote())
		assert.Equal(t, SwitchBoth, st.Permission)
	})
}

func TestPipeline_HealthyX86(t *testing.T) {
	h := newHost()
	res := NewPipeline(DefaultRules(h.deps)).Run(context.Background())

	assert.Equal(t, candidate.Primary, res.Winner)
	assert.Equal(t, SwitchBoth, res.Permission)
	assert.Empty(t, res.EnvFor(candidate.Primary))
}

func TestPipeline_ConfigDisablesSwitching(t *testing.T) {
	h := newHost()
	h.config.allow = false
	h.config.sel = "deepin-metacity"
	res := NewPipeline(DefaultRules(h.deps)).Run(context.Background())

	assert.Equal(t, candidate.Fallback, res.Winner)
	assert.Equal(t, SwitchNone, res.Permission)
}

func TestPipeline_ShenweiWithoutCompatibleCard(t *testing.T) {
	h := newHost()
	h.machine = "sw_64"
	h.config.sel = "deepin-wm"
	res := NewPipeline(DefaultRules(h.deps)).Run(context.Background())

	// The user's choice still wins the vote, but switching stays disabled.
	assert.Equal(t, candidate.Primary, res.Winner)
	assert.Equal(t, SwitchNone, res.Permission)
	assert.Equal(t, "1", res.EnvFor(candidate.Fallback)["LIBGL_ALWAYS_SOFTWARE"])
}

func TestPipeline_Idempotent(t *testing.T) {
	h := newHost()
	h.runner.On("01:00.0 VGA compatible controller: Advanced Micro Devices, Inc. [AMD/ATI] Caicos\n", "lspci")
	h.runner.On(lsmodHeader+"fglrx 8675309 100\n", "/sbin/lsmod")
	p := NewPipeline(DefaultRules(h.deps))

	first := p.Run(context.Background())
	second := p.Run(context.Background())

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second run differs (-first +second):\n%s", diff)
	}
	assert.Equal(t, map[string]string{"COGL_DRIVER": "gl"}, second.EnvFor(candidate.Primary))
}

type stubRule struct {
	vote candidate.Choice
	env  map[string]string
	perm *Permission
	seen candidate.Choice
}

func (s *stubRule) Evaluate(_ context.Context, st *State) {
	s.seen = st.Favored
	if s.perm != nil {
		st.Permission = *s.perm
	}
}
func (s *stubRule) Vote() candidate.Choice           { return s.vote }
func (s *stubRule) AdditionalEnv() map[string]string { return s.env }

func TestPipeline_MergesEnvCumulatively(t *testing.T) {
	narrow := SwitchToPrimaryOnly
	a := &stubRule{vote: candidate.Primary, env: map[string]string{"A": "1"}}
	b := &stubRule{vote: candidate.None, env: map[string]string{"B": "2"}, perm: &narrow}
	c := &stubRule{vote: candidate.Fallback, env: map[string]string{"C": "3"}}
	d := &stubRule{vote: candidate.Fallback, env: map[string]string{"C": "4", "D": "5"}}

	res := NewPipeline(func() []Rule { return []Rule{a, b, c, d} }).Run(context.Background())

	assert.Equal(t, candidate.Fallback, res.Winner)
	assert.Equal(t, SwitchToPrimaryOnly, res.Permission)
	assert.Equal(t, map[string]string{"A": "1", "B": "2"}, res.EnvFor(candidate.Primary))
	assert.Equal(t, map[string]string{"C": "4", "D": "5"}, res.EnvFor(candidate.Fallback))
	assert.Equal(t, candidate.Primary, b.seen)
	assert.Equal(t, candidate.Fallback, d.seen)
}

func TestPipeline_AllAbstainDefaultsToPrimary(t *testing.T) {
	res := NewPipeline(func() []Rule {
		return []Rule{&stubRule{vote: candidate.None}, &stubRule{vote: candidate.None}}
	}).Run(context.Background())

	assert.Equal(t, candidate.Primary, res.Winner)
	assert.Equal(t, SwitchBoth, res.Permission)
}
