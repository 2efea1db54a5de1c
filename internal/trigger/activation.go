package trigger

import (
	"net"
	"os"
	"strconv"

	"github.com/turtacn/wmswitch/pkg/logger"
	"golang.org/x/sys/unix"
)

// Service manager socket activation (sd_listen_fds protocol).
const (
	envListenFDs   = "LISTEN_FDS"
	envListenPID   = "LISTEN_PID"
	listenFDsStart = 3
)

func isSocket(fd int) bool {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return false
	}
	return st.Mode&unix.S_IFMT == unix.S_IFSOCK
}

// activatedListener claims a unix listener for path passed in by the
// service manager. The activation variables are cleared either way so the
// window manager we launch does not inherit them.
func activatedListener(path string) (net.Listener, bool) {
	fds := os.Getenv(envListenFDs)
	if fds == "" {
		return nil, false
	}
	pid, err := strconv.Atoi(os.Getenv(envListenPID))
	if err != nil || pid != os.Getpid() {
		return nil, false
	}
	os.Unsetenv(envListenFDs)
	os.Unsetenv(envListenPID)

	count, err := strconv.Atoi(fds)
	if err != nil || count <= 0 {
		return nil, false
	}

	var claimed net.Listener
	for fd := listenFDsStart; fd < listenFDsStart+count; fd++ {
		if !isSocket(fd) {
			logger.Log.Warn("Activation: fd is not a socket, skipping", "fd", fd)
			continue
		}
		unix.CloseOnExec(fd)
		f := os.NewFile(uintptr(fd), "activated")
		l, err := net.FileListener(f)
		f.Close()
		if err != nil {
			logger.Log.Warn("Activation: cannot use fd", "fd", fd, "err", err)
			continue
		}
		if _, ok := l.(*net.UnixListener); ok && claimed == nil && l.Addr().String() == path {
			logger.Log.Info("Activation: claimed socket", "path", path, "fd", fd)
			claimed = l
			continue
		}
		l.Close()
	}
	return claimed, claimed != nil
}

// Personal.AI order the ending
