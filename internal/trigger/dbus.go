package trigger

import (
	"context"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/turtacn/wmswitch/pkg/consts"
	wmerrors "github.com/turtacn/wmswitch/pkg/errors"
	"github.com/turtacn/wmswitch/pkg/logger"
)

// DBusService owns com.deepin.wm_switcher on the session bus and exposes
// requestSwitchWM.
type DBusService struct {
	connect func() (*dbus.Conn, error)
}

func NewDBusService() *DBusService {
	return &DBusService{connect: func() (*dbus.Conn, error) { return dbus.ConnectSessionBus() }}
}

func (d *DBusService) Name() string { return "dbus" }

type switcher struct {
	toggle func()
}

// RequestSwitchWM is exported on the bus as requestSwitchWM.
func (s *switcher) RequestSwitchWM() *dbus.Error {
	logger.Log.Info("D-Bus: toggle requested")
	s.toggle()
	return nil
}

func introspection() *introspect.Node {
	return &introspect.Node{
		Name: consts.DBusPath,
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    consts.DBusInterface,
				Methods: []introspect.Method{{Name: consts.DBusMethod}},
			},
		},
	}
}

func (d *DBusService) Run(ctx context.Context, toggle func()) error {
	conn, err := d.connect()
	if err != nil {
		return wmerrors.New(wmerrors.ErrCodeTriggerFailed, "dbus", "session bus unavailable", err)
	}
	defer conn.Close()

	path := dbus.ObjectPath(consts.DBusPath)
	mapping := map[string]string{"RequestSwitchWM": consts.DBusMethod}
	if err := conn.ExportWithMap(&switcher{toggle: toggle}, mapping, path, consts.DBusInterface); err != nil {
		return wmerrors.New(wmerrors.ErrCodeTriggerFailed, "dbus", "export failed", err)
	}
	if err := conn.Export(introspect.NewIntrospectable(introspection()), path, "org.freedesktop.DBus.Introspectable"); err != nil {
		return wmerrors.New(wmerrors.ErrCodeTriggerFailed, "dbus", "export introspection failed", err)
	}

	reply, err := conn.RequestName(consts.DBusService, dbus.NameFlagDoNotQueue)
	if err != nil {
		return wmerrors.New(wmerrors.ErrCodeTriggerFailed, "dbus", "request name failed", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return wmerrors.New(wmerrors.ErrCodeTriggerFailed, "dbus", consts.DBusService+" already owned", nil)
	}
	logger.Log.Info("D-Bus: service registered", "name", consts.DBusService)

	<-ctx.Done()
	conn.ReleaseName(consts.DBusService)
	return nil
}

// CallToggle invokes requestSwitchWM on the running daemon.
func CallToggle(ctx context.Context) error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return wmerrors.New(wmerrors.ErrCodeTriggerFailed, "toggle", "session bus unavailable", err)
	}
	defer conn.Close()

	obj := conn.Object(consts.DBusService, dbus.ObjectPath(consts.DBusPath))
	call := obj.CallWithContext(ctx, consts.DBusInterface+"."+consts.DBusMethod, 0)
	if call.Err != nil {
		return wmerrors.New(wmerrors.ErrCodeTriggerFailed, "toggle", "requestSwitchWM failed", call.Err)
	}
	return nil
}

// Personal.AI order the ending
