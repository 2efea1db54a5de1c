package trigger

import (
	"context"
	"os"
	"os/signal"

	"github.com/turtacn/wmswitch/pkg/logger"
	"golang.org/x/sys/unix"
)

// SignalSource turns SIGUSR1 into a toggle request.
type SignalSource struct {
	sig os.Signal
}

func NewSignalSource() *SignalSource {
	return &SignalSource{sig: unix.SIGUSR1}
}

func (s *SignalSource) Name() string { return "signal" }

func (s *SignalSource) Run(ctx context.Context, toggle func()) error {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, s.sig)
	defer signal.Stop(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-ch:
			logger.Log.Info("Signal: toggle requested", "signal", sig.String())
			toggle()
		}
	}
}

// Personal.AI order the ending
