package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"minesim-session-go/internal/logging"
	"minesim-session-go/internal/models"
)

// SignalPhases maps the POSIX signals a supervising shell can send to the
// agent onto lifecycle phases.
var SignalPhases = map[os.Signal]models.LifecyclePhase{
	syscall.SIGUSR1: models.PhaseBackground,
	syscall.SIGUSR2: models.PhaseActive,
	syscall.SIGTSTP: models.PhaseInactive,
	syscall.SIGCONT: models.PhaseActive,
}

// SignalSource feeds an Observer from process signals.
type SignalSource struct {
	observer *Observer
	logger   *zap.Logger
}

// NewSignalSource creates a SignalSource that emits on observer.
func NewSignalSource(observer *Observer, logger *zap.Logger) *SignalSource {
	return &SignalSource{observer: observer, logger: logging.OrNop(logger)}
}

// Run relays signals until ctx is done.
func (s *SignalSource) Run(ctx context.Context) {
	sigs := make([]os.Signal, 0, len(SignalPhases))
	for sig := range SignalPhases {
		sigs = append(sigs, sig)
	}
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, sigs...)
	defer signal.Stop(ch)

	s.relay(ctx, ch)
}

func (s *SignalSource) relay(ctx context.Context, ch <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-ch:
			phase, ok := SignalPhases[sig]
			if !ok {
				continue
			}
			s.logger.Debug("Lifecycle signal", zap.String("signal", sig.String()), zap.String("phase", string(phase)))
			s.observer.Emit(phase)
		}
	}
}
