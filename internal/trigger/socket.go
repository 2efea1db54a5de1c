package trigger

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	wmerrors "github.com/turtacn/wmswitch/pkg/errors"
	"github.com/turtacn/wmswitch/pkg/logger"
)

// Actions accepted on the socket.
const (
	ActionToggle = "toggle"
	ActionStatus = "status"
)

// Request is one JSON line sent by a client.
type Request struct {
	Action string `json:"action"`
}

// StatusReport is the daemon's supervision state as sent over the socket.
type StatusReport struct {
	State       string `json:"state"`
	Current     string `json:"current"`
	Exec        string `json:"exec,omitempty"`
	InitialVote string `json:"initial_vote"`
	Permission  string `json:"permission"`
	Pid         int    `json:"pid"`
	Spawns      int    `json:"spawns"`
}

// Reply answers a Request. ID identifies the request in the daemon log.
type Reply struct {
	OK     bool          `json:"ok"`
	ID     string        `json:"id"`
	Error  string        `json:"error,omitempty"`
	Status *StatusReport `json:"status,omitempty"`
}

// StatusFunc reports the current state. It may block until ctx is done.
type StatusFunc func(ctx context.Context) (StatusReport, error)

// SocketListener accepts toggle and status requests on a unix domain socket.
type SocketListener struct {
	path    string
	timeout time.Duration
	status  StatusFunc
	log     logger.Logger
}

func NewSocketListener(path string, timeout time.Duration) *SocketListener {
	return &SocketListener{path: path, timeout: timeout, log: logger.Log.With("source", "socket")}
}

// WithStatus enables the status action.
func (s *SocketListener) WithStatus(f StatusFunc) *SocketListener {
	s.status = f
	return s
}

func (s *SocketListener) Name() string { return "socket" }

// prepare binds the socket, replacing a stale file but refusing to steal one
// that another daemon still answers on.
func (s *SocketListener) prepare() (net.Listener, error) {
	if _, err := os.Stat(s.path); err == nil {
		if c, err := net.DialTimeout("unix", s.path, s.timeout); err == nil {
			c.Close()
			return nil, wmerrors.New(wmerrors.ErrCodeTriggerFailed, "socket", s.path+" is in use by another daemon", nil)
		}
		os.Remove(s.path)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return nil, wmerrors.New(wmerrors.ErrCodeTriggerFailed, "socket", "cannot create socket dir", err)
	}
	l, err := net.Listen("unix", s.path)
	if err != nil {
		return nil, wmerrors.New(wmerrors.ErrCodeTriggerFailed, "socket", "listen failed", err)
	}
	os.Chmod(s.path, 0o600)
	return l, nil
}

func (s *SocketListener) Run(ctx context.Context, toggle func()) error {
	l, activated := activatedListener(s.path)
	if !activated {
		var err error
		if l, err = s.prepare(); err != nil {
			return err
		}
		defer os.Remove(s.path)
	}

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	s.log.Info("Listening for toggle requests", "path", s.path)
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return wmerrors.New(wmerrors.ErrCodeTriggerFailed, "socket", "accept failed", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serve(conn, toggle)
		}()
	}
}

func (s *SocketListener) serve(conn net.Conn, toggle func()) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(s.timeout))

	reply := Reply{ID: uuid.NewString()}
	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		s.log.Warn("Malformed request", "id", reply.ID, "err", err)
		reply.Error = "malformed request"
	} else {
		switch req.Action {
		case ActionToggle:
			s.log.Info("Toggle requested", "id", reply.ID)
			toggle()
			reply.OK = true
		case ActionStatus:
			s.reportStatus(&reply)
		default:
			reply.Error = "unknown action " + req.Action
		}
	}
	if err := json.NewEncoder(conn).Encode(reply); err != nil {
		s.log.Debug("Reply not delivered", "id", reply.ID, "err", err)
	}
}

func (s *SocketListener) reportStatus(reply *Reply) {
	if s.status == nil {
		reply.Error = "status not available"
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	st, err := s.status(ctx)
	if err != nil {
		reply.Error = err.Error()
		return
	}
	reply.Status = &st
	reply.OK = true
}

// SendToggle asks the daemon listening on path to toggle.
func SendToggle(ctx context.Context, path string, timeout time.Duration) (Reply, error) {
	return request(ctx, path, timeout, ActionToggle)
}

// QueryStatus asks the daemon listening on path for its state.
func QueryStatus(ctx context.Context, path string, timeout time.Duration) (StatusReport, error) {
	reply, err := request(ctx, path, timeout, ActionStatus)
	if err != nil {
		return StatusReport{}, err
	}
	if reply.Status == nil {
		return StatusReport{}, wmerrors.New(wmerrors.ErrCodeTriggerFailed, ActionStatus, "empty status reply", nil)
	}
	return *reply.Status, nil
}

func request(ctx context.Context, path string, timeout time.Duration, action string) (Reply, error) {
	var reply Reply
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return reply, wmerrors.New(wmerrors.ErrCodeTriggerFailed, action, "daemon not reachable at "+path, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout))

	if err := json.NewEncoder(conn).Encode(Request{Action: action}); err != nil {
		return reply, wmerrors.New(wmerrors.ErrCodeTriggerFailed, action, "send failed", err)
	}
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return reply, wmerrors.New(wmerrors.ErrCodeTriggerFailed, action, "no reply", err)
	}
	if !reply.OK {
		return reply, wmerrors.New(wmerrors.ErrCodeTriggerFailed, action, reply.Error, nil)
	}
	return reply, nil
}

// Personal.AI order the ending
