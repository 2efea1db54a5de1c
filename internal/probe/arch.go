package probe

import (
	"regexp"
	"strings"
)

// Arch is the architecture family relevant to window manager selection.
type Arch int

const (
	ArchUnknown Arch = iota
	ArchX86
	ArchShenwei
	ArchMIPS
	ArchARM
)

func (a Arch) String() string {
	switch a {
	case ArchX86:
		return "x86"
	case ArchShenwei:
		return "shenwei"
	case ArchMIPS:
		return "mips"
	case ArchARM:
		return "arm"
	default:
		return "unknown"
	}
}

var x86Pattern = regexp.MustCompile(`(?i)^(x86.*|i[3-6]86|ia64|amd64)$`)

// ClassifyArch maps a machine name to its family.
func ClassifyArch(machine string) Arch {
	m := strings.ToLower(strings.TrimSpace(machine))
	switch {
	case m == "":
		return ArchUnknown
	case x86Pattern.MatchString(m):
		return ArchX86
	case strings.Contains(m, "alpha"), strings.Contains(m, "sw_64"):
		return ArchShenwei
	case strings.Contains(m, "mips"):
		return ArchMIPS
	case strings.HasPrefix(m, "arm"), strings.HasPrefix(m, "aarch64"):
		return ArchARM
	default:
		return ArchUnknown
	}
}

// Personal.AI order the ending
