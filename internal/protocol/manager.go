package protocol

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/memohai/replyd/internal/logger"
)

// Manager wraps a Machine for one reply. It stops accepting responses once FAILED or END
// is reached and runs END right after FAILED.
type Manager struct {
	mu       sync.Mutex
	machine  *Machine
	finished bool
	ended    bool
	logger   *slog.Logger
}

// NewManager creates a manager for one reply driven by h.
func NewManager(log *slog.Logger, h Handler) *Manager {
	l := logger.Component(log, "reply_protocol")
	return &Manager{
		machine: NewMachine(h, logInvalid(l)),
		logger:  l,
	}
}

// HandleResponse applies one transition. It returns false when the response was dropped because
// the reply is finished, or rejected as an illegal transition (with a *TransitionError).
// A callback error is returned with accepted=true since the state did change.
func (m *Manager) HandleResponse(ctx context.Context, data ReplyStateData) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.finished {
		m.logger.Debug("dropped response after reply finished", slog.String("step", data.Step.String()))
		return false, nil
	}
	err := m.machine.Transition(ctx, data)
	var te *TransitionError
	if errors.As(err, &te) {
		return false, err
	}
	if err != nil {
		m.logger.Warn("reply callback failed", slog.String("step", data.Step.String()), slog.Any("error", err))
	}

	switch data.Step {
	case StepFailed:
		m.finished = true
		if endErr := m.endLocked(ctx); endErr != nil {
			err = errors.Join(err, endErr)
		}
	case StepEnd:
		m.finished = true
		m.ended = true
	}
	return true, err
}

// IsFinished reports whether FAILED or END has been reached.
func (m *Manager) IsFinished() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finished
}

// State returns the current lifecycle state.
func (m *Manager) State() Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.machine.State()
}

// ForceEnd terminates the reply abnormally: FAILED then END, or only END when SUCCESS was
// already reached. Later calls are no-ops.
func (m *Manager) ForceEnd(ctx context.Context, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ended {
		return nil
	}
	m.finished = true

	var errs []error
	if st := m.machine.State(); st != StepSuccess && st != StepFailed {
		if err := m.machine.Transition(ctx, Failed(cause)); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.endLocked(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (m *Manager) endLocked(ctx context.Context) error {
	if m.ended {
		return nil
	}
	m.ended = true
	err := m.machine.Transition(ctx, End())
	if err != nil {
		m.logger.Warn("reply end callback failed", slog.Any("error", err))
	}
	return err
}
