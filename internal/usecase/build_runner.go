package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	applogger "FinFeat/pkg/logger"
)

var (
	ErrUnknownFamily   = errors.New("unknown family")
	ErrBuildInProgress = errors.New("build already running")
)

// Locker is the distributed lock subset of cache.Service. The run id is
// the lock token; Unlock only releases a lock its token still holds.
type Locker interface {
	TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, token string) error
}

// FamilyBuilder builds one family dataset.
type FamilyBuilder interface {
	Build(ctx context.Context, cfg BuildConfig) (*BuildResult, error)
}

// Run states.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// RunStatus is the last known build of a family.
type RunStatus struct {
	RunID      string       `json:"run_id"`
	Family     string       `json:"family"`
	State      string       `json:"state"`
	Error      string       `json:"error,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	Result     *BuildResult `json:"-"`
}

// BuildRunner serialises builds per family with a lock and runs them
// in the background or in order.
type BuildRunner struct {
	builder FamilyBuilder
	locks   Locker
	configs map[string]BuildConfig
	order   []string
	lockTTL time.Duration
	log     *applogger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	status map[string]RunStatus
}

// NewBuildRunner creates a runner over cfgs. lockTTL bounds how long a
// crashed build can hold its family.
func NewBuildRunner(builder FamilyBuilder, locks Locker, cfgs []BuildConfig, lockTTL time.Duration, log *applogger.Logger) *BuildRunner {
	if log == nil {
		log = applogger.Nop()
	}
	if lockTTL <= 0 {
		lockTTL = time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &BuildRunner{
		builder: builder,
		locks:   locks,
		configs: make(map[string]BuildConfig, len(cfgs)),
		lockTTL: lockTTL,
		log:     log.With("build_runner"),
		ctx:     ctx,
		cancel:  cancel,
		status:  make(map[string]RunStatus),
	}
	for _, c := range cfgs {
		if _, dup := r.configs[c.Family]; !dup {
			r.order = append(r.order, c.Family)
		}
		r.configs[c.Family] = c
	}
	return r
}

// Families returns the configured family names in config order.
func (r *BuildRunner) Families() []string {
	return append([]string(nil), r.order...)
}

// Config returns the build config of a family.
func (r *BuildRunner) Config(family string) (BuildConfig, bool) {
	c, ok := r.configs[family]
	return c, ok
}

func lockKey(family string) string { return "build:" + family }

// Submit starts a background build and returns its run id.
func (r *BuildRunner) Submit(ctx context.Context, family string) (string, error) {
	cfg, ok := r.configs[family]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownFamily, family)
	}
	if err := r.ctx.Err(); err != nil {
		return "", err
	}
	cfg.RunID = uuid.NewString()
	got, err := r.locks.TryLock(ctx, lockKey(family), cfg.RunID, r.lockTTL)
	if err != nil {
		return "", fmt.Errorf("lock %s: %w", family, err)
	}
	if !got {
		return "", fmt.Errorf("%w: %s", ErrBuildInProgress, family)
	}

	r.setStatus(RunStatus{RunID: cfg.RunID, Family: family, State: RunRunning, StartedAt: time.Now().UTC()})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_, _ = r.runLocked(r.ctx, cfg)
	}()
	return cfg.RunID, nil
}

// Run builds one family synchronously under its lock.
func (r *BuildRunner) Run(ctx context.Context, family string) (*BuildResult, error) {
	cfg, ok := r.configs[family]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFamily, family)
	}
	cfg.RunID = uuid.NewString()
	got, err := r.locks.TryLock(ctx, lockKey(family), cfg.RunID, r.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", family, err)
	}
	if !got {
		return nil, fmt.Errorf("%w: %s", ErrBuildInProgress, family)
	}
	r.setStatus(RunStatus{RunID: cfg.RunID, Family: family, State: RunRunning, StartedAt: time.Now().UTC()})
	return r.runLocked(ctx, cfg)
}

// RunAll builds every family in order, skipping families already locked.
func (r *BuildRunner) RunAll(ctx context.Context) error {
	var errs []error
	for _, family := range r.order {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		_, err := r.Run(ctx, family)
		if errors.Is(err, ErrBuildInProgress) {
			r.log.Warn("build already running, skipping", applogger.String("family", family))
			continue
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// runLocked builds cfg and releases the family lock.
func (r *BuildRunner) runLocked(ctx context.Context, cfg BuildConfig) (*BuildResult, error) {
	defer func() {
		// the build ctx may be cancelled already
		uctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.locks.Unlock(uctx, lockKey(cfg.Family), cfg.RunID); err != nil {
			r.log.Warn("unlock failed, lock expired or taken over",
				applogger.String("family", cfg.Family),
				applogger.String("run_id", cfg.RunID),
				applogger.Error(err),
			)
		}
	}()

	res, err := r.builder.Build(ctx, cfg)
	st, _ := r.Status(cfg.Family)
	now := time.Now().UTC()
	st.FinishedAt = &now
	st.Result = res
	if err != nil {
		st.State = RunFailed
		st.Error = err.Error()
		r.log.Error("build failed",
			applogger.String("family", cfg.Family),
			applogger.String("run_id", cfg.RunID),
			applogger.Error(err),
		)
	} else {
		st.State = RunSucceeded
	}
	r.setStatus(st)
	return res, err
}

// Status returns the latest run of a family.
func (r *BuildRunner) Status(family string) (RunStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.status[family]
	return st, ok
}

// Statuses returns the latest run of every family that has run, by name.
func (r *BuildRunner) Statuses() []RunStatus {
	r.mu.RLock()
	out := make([]RunStatus, 0, len(r.status))
	for _, st := range r.status {
		out = append(out, st)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Family < out[j].Family })
	return out
}

func (r *BuildRunner) setStatus(st RunStatus) {
	r.mu.Lock()
	r.status[st.Family] = st
	r.mu.Unlock()
}

// Shutdown waits for background builds; when ctx expires first the
// builds are cancelled.
func (r *BuildRunner) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}
