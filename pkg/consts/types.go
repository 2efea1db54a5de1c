package consts

import "time"

// SupervisorState defines the lifecycle state of the supervised window manager slot.
type SupervisorState string

const (
	StateIdle       SupervisorState = "IDLE"       // No process tracked as running
	StateRunning    SupervisorState = "RUNNING"    // A candidate process is owned
	StateRespawning SupervisorState = "RESPAWNING" // Crash, toggle or health check pending a new spawn
)

// Supervisor events fired on the state machine.
const (
	EventSpawned   = "spawned"
	EventExited    = "exited"
	EventToggled   = "toggled"
	EventExhausted = "exhausted" // neither candidate executable
	EventRevived   = "revived"   // health tick relaunch
)

// Default timings, mirrored by the settings file.
const (
	DefaultCheckPeriod   = 1000 * time.Millisecond
	DefaultStartupDelay  = 500 * time.Millisecond
	DefaultRespawnDelay  = 500 * time.Millisecond
	DefaultNotifyDelay   = 600 * time.Millisecond
	DefaultProbeTimeout  = 3 * time.Second
	DefaultWatchDebounce = 500 * time.Millisecond
	DefaultSocketTimeout = 2 * time.Second
)

// ReplaceFlag is passed to every candidate so it supplants a running window manager.
const ReplaceFlag = "--replace"

// D-Bus names of the toggle service.
const (
	DBusService   = "com.deepin.wm_switcher"
	DBusPath      = "/com/deepin/wm_switcher"
	DBusInterface = "com.deepin.wm_switcher"
	DBusMethod    = "requestSwitchWM"
)

// Well-known paths.
const (
	DefaultSettingsPath    = "/etc/wmswitch/wmswitch.yaml"
	DefaultGlobalStatePath = "/etc/deepin-wm-switcher/config.json"
	DefaultUserStateSubdir = "deepin/deepin-wm-switcher"
	DefaultStateFileName   = "config.json"
	DefaultSocketName      = "wmswitch.sock"
	DefaultNotifyCommand   = "/usr/lib/deepin-daemon/dde-osd"
)

// Environment variables consulted by the daemon.
const (
	EnvDisplay       = "DISPLAY"
	EnvXDGConfigHome = "XDG_CONFIG_HOME"
	EnvXDGRuntimeDir = "XDG_RUNTIME_DIR"
	EnvSocketPath    = "WMSWITCH_SOCK"
)

// Personal.AI order the ending
