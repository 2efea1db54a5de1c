package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/turtacn/wmswitch/internal/trigger"
	"github.com/turtacn/wmswitch/pkg/consts"
)

func newStatusCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show what the running daemon supervises",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.loadQuiet(cmd)
			if err != nil {
				return err
			}
			path := resolveSocket(o.socket, cfg.Trigger.SocketPath)
			if path == "" {
				return errors.New("status needs the toggle socket, which is disabled")
			}
			rep, err := trigger.QueryStatus(cmd.Context(), path, consts.DefaultSocketTimeout)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderStatus(rep))
			return nil
		},
	}
}

func renderStatus(rep trigger.StatusReport) string {
	row := func(label, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
	}

	stateStyle := winnerStyle
	if rep.State != string(consts.StateRunning) {
		stateStyle = blockedStyle
	}
	current := rep.Current
	if rep.Exec != "" {
		current += " (" + rep.Exec + ")"
	}
	pid := "-"
	if rep.Pid != 0 {
		pid = strconv.Itoa(rep.Pid)
	}

	return reportBox.Render(lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Supervisor"),
		row("state", stateStyle.Render(rep.State)),
		row("current", plainStyle.Render(current)),
		row("pid", plainStyle.Render(pid)),
		row("vote", plainStyle.Render(rep.InitialVote)),
		row("switching", plainStyle.Render(rep.Permission)),
		row("spawns", plainStyle.Render(strconv.Itoa(rep.Spawns))),
	))
}

// Personal.AI order the ending
