package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/turtacn/wmswitch/internal/arbiter"
	"github.com/turtacn/wmswitch/internal/candidate"
	"github.com/turtacn/wmswitch/pkg/logger"
	"github.com/turtacn/wmswitch/pkg/protocol"
)

var (
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0")).Width(12)
	winnerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	blockedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	plainStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	reportBox    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func newArbitrateCmd(o *rootOptions) *cobra.Command {
	var apply bool
	cmd := &cobra.Command{
		Use:   "arbitrate",
		Short: "Run the decision rules once and print the outcome",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := protocol.Load(o.configPath)
			if err != nil {
				return fmt.Errorf("reading settings: %w", err)
			}
			o.quietLogger(cmd)

			timing, err := cfg.Timing.Durations()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			reg := registryFor(cfg)
			deps := arbiter.NewDeps(cfg, reg, st, timing.ProbeTimeout)
			if !apply {
				deps.Detach = func(argv []string) {
					logger.Log.Info("Skipping platform tweak", "cmd", argv)
				}
			}

			res := arbiter.NewPipeline(arbiter.DefaultRules(deps)).Run(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), renderReport(reg, res))
			return nil
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "also run platform tweaks such as reduced animations")
	return cmd
}

func renderReport(reg *candidate.Registry, res arbiter.Result) string {
	row := func(label, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
	}

	w := reg.Get(res.Winner)
	permStyle := plainStyle
	if res.Permission == arbiter.SwitchNone {
		permStyle = blockedStyle
	}

	lines := []string{
		titleStyle.Render("Arbitration"),
		row("winner", winnerStyle.Render(fmt.Sprintf("%s (%s)", w.Name, w.ExecName))),
		row("switching", permStyle.Render(res.Permission.String())),
	}
	for _, c := range []candidate.Choice{candidate.Primary, candidate.Fallback} {
		cand := reg.Get(c)
		env := (&candidate.Candidate{Env: res.EnvFor(c)}).EnvList()
		overlay := "-"
		if len(env) > 0 {
			overlay = strings.Join(env, " ")
		}
		lines = append(lines, row(c.String(), plainStyle.Render(cand.ExecName+"  env: "+overlay)))
	}
	return reportBox.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// Personal.AI order the ending
