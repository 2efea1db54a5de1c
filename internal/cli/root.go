package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/turtacn/wmswitch/internal/candidate"
	"github.com/turtacn/wmswitch/internal/orchestrator"
	"github.com/turtacn/wmswitch/internal/store"
	"github.com/turtacn/wmswitch/internal/trigger"
	"github.com/turtacn/wmswitch/pkg/consts"
	"github.com/turtacn/wmswitch/pkg/logger"
	"github.com/turtacn/wmswitch/pkg/protocol"
)

type rootOptions struct {
	configPath string
	logLevel   string
	socket     string
}

// NewRootCmd builds the wmswitch command tree.
func NewRootCmd() *cobra.Command {
	o := &rootOptions{}
	root := &cobra.Command{
		Use:           "wmswitch",
		Short:         "wmswitch: window manager arbitration and supervision",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&o.configPath, "config", "c", consts.DefaultSettingsPath, "settings file path")
	root.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "override observability.log_level")
	root.PersistentFlags().StringVar(&o.socket, "socket", "", "toggle socket path (\"off\" disables)")

	root.AddCommand(newRunCmd(o), newToggleCmd(o), newArbitrateCmd(o), newConfigCmd(o), newStatusCmd(o))
	return root
}

func newRunCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Arbitrate, launch the window manager and supervise it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := protocol.Load(o.configPath)
			if err != nil {
				return fmt.Errorf("reading settings: %w", err)
			}
			logger.InitLogger(o.level(cfg))
			cfg.Trigger.SocketPath = resolveSocket(o.socket, cfg.Trigger.SocketPath)

			logger.Log.Info("Booting wmswitch",
				"primary", cfg.Candidates.Primary.Exec,
				"fallback", cfg.Candidates.Fallback.Exec,
				"socket", cfg.Trigger.SocketPath)

			engine, err := orchestrator.NewEngine(cfg)
			if err != nil {
				return err
			}
			return engine.Run(cmd.Context())
		},
	}
}

func newToggleCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle",
		Short: "Ask the running daemon to switch window manager",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := protocol.Load(o.configPath)
			if err != nil {
				return fmt.Errorf("reading settings: %w", err)
			}
			o.quietLogger(cmd)

			ctx := cmd.Context()
			if path := resolveSocket(o.socket, cfg.Trigger.SocketPath); path != "" {
				reply, err := trigger.SendToggle(ctx, path, consts.DefaultSocketTimeout)
				if err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "toggle accepted (%s)\n", reply.ID)
					return nil
				}
				if reply.Error != "" {
					return err
				}
				logger.Log.Info("Socket unreachable, trying D-Bus", "path", path, "err", err)
			}

			if err := trigger.CallToggle(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "toggle requested over D-Bus")
			return nil
		},
	}
}

func (o *rootOptions) level(cfg *protocol.Config) string {
	if o.logLevel != "" {
		return o.logLevel
	}
	return cfg.Observability.LogLevel
}

// quietLogger sends records of interactive commands to stderr as text,
// warnings only unless --log-level says otherwise.
func (o *rootOptions) quietLogger(cmd *cobra.Command) {
	level := o.logLevel
	if level == "" {
		level = "warn"
	}
	logger.Log = logger.New(cmd.ErrOrStderr(), level, "text")
}

// resolveSocket picks the toggle socket: flag, then $WMSWITCH_SOCK, then
// settings, then $XDG_RUNTIME_DIR/wmswitch.sock. "off" disables it.
func resolveSocket(flag, configured string) string {
	path := flag
	if path == "" {
		path = os.Getenv(consts.EnvSocketPath)
	}
	if path == "" {
		path = configured
	}
	if path == "off" {
		return ""
	}
	if path != "" {
		return os.ExpandEnv(path)
	}
	if dir := os.Getenv(consts.EnvXDGRuntimeDir); dir != "" {
		return filepath.Join(dir, consts.DefaultSocketName)
	}
	return ""
}

func registryFor(cfg *protocol.Config) *candidate.Registry {
	return candidate.NewRegistry(
		candidate.Candidate{Name: cfg.Candidates.Primary.Name, ExecName: cfg.Candidates.Primary.Exec},
		candidate.Candidate{Name: cfg.Candidates.Fallback.Name, ExecName: cfg.Candidates.Fallback.Exec},
	)
}

// openStore loads the persisted state. Load errors are logged; the store
// still works on defaults.
func openStore(cfg *protocol.Config) (*store.Store, error) {
	userPath := cfg.Store.UserPath
	if userPath == "" {
		var err error
		if userPath, err = store.DefaultUserPath(); err != nil {
			return nil, err
		}
	}
	st := store.New(userPath, cfg.Store.GlobalPath)
	if err := st.Load(); err != nil {
		logger.Log.Warn("Config load failed, using defaults", "path", userPath, "err", err)
	}
	return st, nil
}

// Execute runs the command line and returns the first error.
func Execute(version string) error {
	root := NewRootCmd()
	root.Version = version
	return root.ExecuteContext(context.Background())
}

// Personal.AI order the ending
