package arbiter

import (
	"context"
	"errors"
	"io/fs"
	"maps"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/turtacn/wmswitch/internal/candidate"
	"github.com/turtacn/wmswitch/internal/probe"
	"github.com/turtacn/wmswitch/pkg/logger"
)

// PlatformCheck votes by CPU architecture.
type PlatformCheck struct {
	deps *Deps
	vote candidate.Choice
	env  map[string]string
}

func (r *PlatformCheck) String() string { return "platform" }

func (r *PlatformCheck) Evaluate(ctx context.Context, st *State) {
	log := logger.Log.With("rule", r.String())
	r.vote = st.Favored
	r.env = nil

	machine, err := r.deps.Machine()
	if err != nil {
		log.Warn("Architecture probe failed, abstaining", "err", err)
		return
	}
	arch := probe.ClassifyArch(machine)
	log.Info("Machine detected", "machine", machine, "family", arch.String())

	switch arch {
	case probe.ArchX86:
		r.vote = candidate.Primary
		st.Permission = SwitchBoth
	case probe.ArchShenwei:
		r.vote = candidate.Fallback
		st.Permission = SwitchNone
		r.env = maps.Clone(r.deps.Tuning.FallbackEnv)
		if r.deps.Detach != nil {
			r.deps.Detach(r.deps.Tuning.ReduceAnimations)
		}
	case probe.ArchMIPS:
		r.vote = candidate.Primary
		st.Permission = SwitchBoth
	case probe.ArchARM:
		r.vote = candidate.Primary
	}
}

func (r *PlatformCheck) Vote() candidate.Choice { return r.vote }

func (r *PlatformCheck) AdditionalEnv() map[string]string { return r.env }

const maxDRMCards = 4

// PlatformOverrideCheck lets a shenwei host with a known-good GPU driver run
// the primary candidate. Without one, switching is disabled outright.
type PlatformOverrideCheck struct {
	deps *Deps
	vote candidate.Choice
}

func (r *PlatformOverrideCheck) String() string { return "platform-override" }

func (r *PlatformOverrideCheck) Evaluate(ctx context.Context, st *State) {
	log := logger.Log.With("rule", r.String())
	r.vote = st.Favored

	machine, err := r.deps.Machine()
	if err != nil || probe.ClassifyArch(machine) != probe.ArchShenwei {
		return
	}

	found, unreadable := r.sysfsMatch()
	if !found && unreadable {
		log.Info("DRM sysfs unreadable, asking DRI info tool")
		found = r.driInfoMatch(ctx)
	}

	if found {
		log.Info("Compatible GPU found, overriding to primary")
		r.vote = candidate.Primary
		return
	}
	log.Info("No compatible GPU, switching disabled")
	st.Permission = SwitchNone
}

func (r *PlatformOverrideCheck) Vote() candidate.Choice { return r.vote }

func (r *PlatformOverrideCheck) AdditionalEnv() map[string]string { return nil }

func (r *PlatformOverrideCheck) knownGood(driver string) bool {
	return slices.Contains(r.deps.Tuning.KnownGoodDrivers, strings.TrimSpace(driver))
}

// sysfsMatch looks for an enabled card driven by a known-good driver.
// unreadable is set when any attribute failed for a reason other than absence.
func (r *PlatformOverrideCheck) sysfsMatch() (found, unreadable bool) {
	root := r.deps.Probes.DRMRoot
	for i := 0; i < maxDRMCards; i++ {
		dev := filepath.Join(root, "card"+strconv.Itoa(i), "device")

		data, err := r.deps.FS.ReadFile(filepath.Join(dev, "enable"))
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				unreadable = true
			}
			continue
		}
		if strings.TrimSpace(string(data)) != "1" {
			continue
		}

		link, err := r.deps.FS.Readlink(filepath.Join(dev, "driver"))
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				unreadable = true
			}
			continue
		}
		if r.knownGood(filepath.Base(link)) {
			return true, unreadable
		}
	}
	return false, unreadable
}

func (r *PlatformOverrideCheck) driInfoMatch(ctx context.Context) bool {
	out, err := r.deps.Runner.Output(ctx, r.deps.Probes.DRIInfo)
	if err != nil {
		logger.Log.Warn("DRI info probe failed", "rule", r.String(), "err", err)
		return false
	}
	return r.knownGood(string(out))
}

// Personal.AI order the ending
