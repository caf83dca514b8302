package sync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/devilkun/joplin/internal/events"
	"github.com/devilkun/joplin/internal/lock"
	"github.com/devilkun/joplin/internal/model"
)

const lockRefreshInterval = 1 * time.Minute

// Synchronizer is the core orchestrator (spec section 4.1). One
// Synchronizer instance enforces "at most one run in_progress" on
// itself; running two targets concurrently means constructing two
// Synchronizers.
type Synchronizer struct {
	cfg    Config
	logger *slog.Logger

	mu          sync.Mutex
	state       model.RunState
	cancelling  bool
	report      model.Report
	activeLock  *lock.Lock
	targetLocked bool // set when auto-refresh observes lock loss
}

// New returns a Synchronizer over cfg.
func New(cfg Config, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Synchronizer{cfg: cfg, logger: logger, state: model.StateIdle}
}

// State returns the current run state.
func (s *Synchronizer) State() model.RunState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Start runs the sync protocol. Only one call may be in_progress at a
// time; a concurrent call returns ErrAlreadyStarted immediately.
func (s *Synchronizer) Start(ctx context.Context, opts Options) (model.SyncContext, error) {
	if err := s.enter(); err != nil {
		return model.SyncContext{}, err
	}

	out, err := s.run(ctx, opts)

	s.leave()

	if err != nil && opts.ThrowOnError {
		return out, err
	}

	return out, nil
}

func (s *Synchronizer) enter() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == model.StateInProgress {
		return ErrAlreadyStarted
	}

	s.state = model.StateInProgress
	s.cancelling = false
	s.targetLocked = false
	s.report = model.Report{StartTime: time.Now(), State: model.StateInProgress}

	return nil
}

func (s *Synchronizer) leave() {
	s.mu.Lock()
	s.state = model.StateIdle
	s.cancelling = false
	s.report.State = model.StateIdle
	s.report.CompletedTime = time.Now()
	s.mu.Unlock()
}

// Cancel is idempotent: it sets the cancelling flag and returns once the
// run has fully completed. It does not touch the download queue itself;
// the queue is stopped when the DELTA loop sees the flag and returns.
func (s *Synchronizer) Cancel(ctx context.Context) error {
	s.mu.Lock()
	if s.state == model.StateIdle {
		s.mu.Unlock()
		return nil
	}
	s.cancelling = true
	s.report.Cancelling = true
	s.mu.Unlock()

	return s.WaitForSyncToFinish(ctx)
}

// WaitForSyncToFinish polls the run state at 1-second intervals,
// returning when it becomes idle (spec section 4.1).
func (s *Synchronizer) WaitForSyncToFinish(ctx context.Context) error {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		if s.State() == model.StateIdle {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Synchronizer) isCancelling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cancelling
}

// snapshot returns a Report copy and dispatches SYNC_REPORT_UPDATE.
func (s *Synchronizer) snapshot(opts Options) model.Report {
	s.mu.Lock()
	snap := s.report.Snapshot()
	s.mu.Unlock()

	if opts.OnProgress != nil {
		opts.OnProgress(snap)
	}

	s.dispatch(events.Event{Kind: events.KindReportUpdate, Report: snap})

	return snap
}

func (s *Synchronizer) record(kind model.ActionKind) {
	s.mu.Lock()
	s.report.RecordAction(kind)
	s.mu.Unlock()
}

func (s *Synchronizer) addError(msg string) {
	s.mu.Lock()
	s.report.AddError(msg)
	s.mu.Unlock()
}

func (s *Synchronizer) dispatch(e events.Event) {
	if s.cfg.Dispatcher != nil {
		s.cfg.Dispatcher.Dispatch(e)
	}
}

// run executes the acquire-lock/run-phases/release-lock sequence. The
// outer cleanup (release lock, stop auto-refresh, dispatch
// SYNC_COMPLETED, return to idle) always happens regardless of how the
// phases end — mirrored by the defer block below, per spec section 7
// "Cleanup guarantees".
func (s *Synchronizer) run(ctx context.Context, opts Options) (out model.SyncContext, runErr error) {
	s.dispatch(events.Event{Kind: events.KindStarted})

	ran := map[string]bool{}

	defer func() {
		s.releaseLock(ctx)

		withErrors := runErr != nil || len(s.report.Errors) > 0
		isFullSync := ran["update_remote"] && ran["delete_remote"] && ran["delta"]

		s.dispatch(events.Event{Kind: events.KindCompleted, IsFullSync: isFullSync, WithErrors: withErrors})
	}()

	l, err := s.acquireLock(ctx)
	if err != nil {
		s.handleTopLevelError(err)
		return model.SyncContext{}, s.maybeThrow(opts, err)
	}

	s.activeLock = l

	if opts.hasStep("update_remote") {
		ran["update_remote"] = true

		if err := s.runUpload(ctx, opts); err != nil {
			s.handleTopLevelError(err)
			if classifyError(err) == tierFatal {
				return opts.Context, s.maybeThrow(opts, err)
			}
		}
	}

	if s.isCancelling() {
		return opts.Context, nil
	}

	if opts.hasStep("delete_remote") {
		ran["delete_remote"] = true

		if err := s.runDeleteRemote(ctx, opts); err != nil {
			s.handleTopLevelError(err)
			if classifyError(err) == tierFatal {
				return opts.Context, s.maybeThrow(opts, err)
			}
		}
	}

	if s.isCancelling() {
		return opts.Context, nil
	}

	if opts.hasStep("delta") {
		ran["delta"] = true

		newCtx, err := s.runDelta(ctx, opts)
		if err != nil {
			s.handleTopLevelError(err)
			if classifyError(err) == tierFatal {
				return opts.Context, s.maybeThrow(opts, err)
			}
		}

		out = newCtx
	} else {
		out = opts.Context
	}

	s.snapshot(opts)

	return out, nil
}

func (s *Synchronizer) maybeThrow(opts Options, err error) error {
	if opts.ThrowOnError {
		return err
	}

	return nil
}

// handleTopLevelError implements the Classification policy of spec
// section 7.
func (s *Synchronizer) handleTopLevelError(err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, ErrFailSafe):
		s.logger.Info("delta fail-safe triggered", slog.String("error", err.Error()))
		s.addError(err.Error())
	case errors.Is(err, lock.ErrLockError):
		s.logger.Info("lock error", slog.String("error", err.Error()))
		s.addError(err.Error())
		s.logger.Debug("recent requests", slog.Any("requests", s.cfg.Client.LastRequests()))
	case errors.Is(err, ErrCannotEncryptEncrypted), errors.Is(err, ErrNoActiveMasterKey),
		errors.Is(err, ErrProcessingPathTwice):
		s.logger.Info("non-fatal condition", slog.String("error", err.Error()))
	case errors.Is(err, ErrUnknownItemType):
		s.addError("please upgrade: unknown item type encountered")
		s.logger.Error("unknown item type", slog.String("error", err.Error()))
	default:
		s.logger.Error("sync run error", slog.String("error", err.Error()))
		s.addError(err.Error())
	}
}

func (s *Synchronizer) acquireLock(ctx context.Context) (*lock.Lock, error) {
	l, err := s.cfg.Locks.AcquireLock(ctx, lock.KindSync, s.cfg.AppType, s.cfg.ClientID)
	if err != nil {
		return nil, err
	}

	s.cfg.Locks.StartAutoLockRefresh(l, lockRefreshInterval, func(refreshErr error) {
		s.mu.Lock()
		s.targetLocked = true
		s.cancelling = true
		s.mu.Unlock()

		s.logger.Warn("sync lock refresh failed, cancelling run", slog.String("error", refreshErr.Error()))
	})

	return l, nil
}

func (s *Synchronizer) releaseLock(ctx context.Context) {
	if s.activeLock == nil {
		return
	}

	if err := s.cfg.Locks.ReleaseLock(ctx, s.activeLock); err != nil {
		s.logger.Warn("failed to release sync lock", slog.String("error", err.Error()))
	}

	s.activeLock = nil
}

// checkLockStatus re-examines err for lock loss, wrapping it per spec
// section 7 "Re-wrapping under lock loss" when the target is flagged.
func (s *Synchronizer) checkLockStatus(err error) error {
	s.mu.Lock()
	locked := s.targetLocked
	s.mu.Unlock()

	if !locked || err == nil {
		return err
	}

	return wrapLockLoss(err, lock.Status(lock.ErrSyncLockGone))
}
