package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/turtacn/wmswitch/internal/candidate"
	"github.com/turtacn/wmswitch/pkg/protocol"
)

func newConfigCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or edit the persisted switcher state",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get",
			Short: "Print the persisted state",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := o.loadQuiet(cmd)
				if err != nil {
					return err
				}
				st, err := openStore(cfg)
				if err != nil {
					return err
				}
				last := st.CurrentSelection()
				if last == "" {
					last = "-"
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "path:         %s\n", st.Path())
				fmt.Fprintf(out, "allow_switch: %t\n", st.AllowSwitch())
				fmt.Fprintf(out, "last_wm:      %s\n", last)
				return nil
			},
		},
		&cobra.Command{
			Use:   "allow-switch <true|false>",
			Short: "Enable or disable runtime switching",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				allow, err := strconv.ParseBool(args[0])
				if err != nil {
					return fmt.Errorf("allow-switch: %w", err)
				}
				cfg, err := o.loadQuiet(cmd)
				if err != nil {
					return err
				}
				st, err := openStore(cfg)
				if err != nil {
					return err
				}
				return st.SetAllowSwitch(allow)
			},
		},
		&cobra.Command{
			Use:   "select <primary|fallback|exec>",
			Short: "Record the window manager to prefer on next start",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := o.loadQuiet(cmd)
				if err != nil {
					return err
				}
				reg := registryFor(cfg)
				c := selectionFor(reg, args[0])
				if c.IsNone() {
					return fmt.Errorf("unknown window manager %q", args[0])
				}
				st, err := openStore(cfg)
				if err != nil {
					return err
				}
				exec := reg.Get(c).ExecName
				if err := st.RecordSelection(exec); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "selected %s\n", exec)
				return nil
			},
		},
	)
	return cmd
}

func (o *rootOptions) loadQuiet(cmd *cobra.Command) (*protocol.Config, error) {
	cfg, err := protocol.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	o.quietLogger(cmd)
	return cfg, nil
}

func selectionFor(reg *candidate.Registry, name string) candidate.Choice {
	switch name {
	case candidate.Primary.String():
		return candidate.Primary
	case candidate.Fallback.String():
		return candidate.Fallback
	}
	return reg.Lookup(name)
}

// Personal.AI order the ending
