package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/buildium/internal/config"
	"github.com/dshills/buildium/internal/host"
	"github.com/dshills/buildium/internal/integration/process"
	"github.com/dshills/buildium/internal/integration/task"
)

// State is the state of the Builder.
type State int

const (
	// StateIdle means no build is running or pending.
	StateIdle State = iota
	// StateConfirming means the user is being asked about unsaved editors.
	StateConfirming
	// StateRunning means a build occupies the slot.
	StateRunning
	// StateAborting means the running build was asked to stop.
	StateAborting
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfirming:
		return "confirming"
	case StateRunning:
		return "running"
	case StateAborting:
		return "aborting"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Source is what asked for a build.
type Source string

const (
	// SourceTrigger is an explicit build command or a target's own command.
	SourceTrigger Source = "trigger"
	// SourceSave is a build started because an editor was saved.
	SourceSave Source = "save"
	// SourceSelect is a build started by selecting a new active target.
	SourceSelect Source = "select"
)

// Outcome describes a finished build attempt.
type Outcome struct {
	ID     string
	Source Source
	Root   string
	Target task.Target

	// ExitCode is -1 when the process was killed by a signal or never ran.
	ExitCode int
	Success  bool
	Aborted  bool

	Matches []task.Match
	Stdout  string
	Stderr  string
	Elapsed time.Duration

	// Err is set when the build could not start.
	Err error
}

type request struct {
	source  Source
	command string
}

// running is the occupant of the single build slot. Fields other than the
// ones set before the slot is published are guarded by Builder.mu.
type running struct {
	id      string
	req     request
	ctx     context.Context
	cancel  context.CancelFunc
	started time.Time

	root    string
	target  task.Target
	cmd     command
	title   string
	capture *task.Capture
	proc    *process.Process
	busy    bool
	aborted bool

	// cancelPre stops a preBuild hook that is still running.
	cancelPre context.CancelFunc
}

// Builder runs one build at a time for the active target of the active
// project root.
//
// A build request while a build is running aborts the running build and
// starts once its process has exited. Only the most recent request waits;
// earlier ones are dropped. Stop escalates through the target's
// termination-signal queue, one signal per call.
type Builder struct {
	mu         sync.Mutex
	slot       *running
	next       *request
	confirming int
	confirmSeq uint64
	confirmEnd context.CancelFunc
	hideTimer  *time.Timer
	idle       chan struct{}
	idleClosed bool
	closed     bool

	listenerID uint64
	listeners  map[uint64]func(Outcome)

	manager    *task.Manager
	matcher    *task.Matcher
	supervisor *process.Supervisor
	subst      *task.Substituter
	host       host.Host
	settings   *config.Store
	functions  *task.FunctionRegistry
	environ    func() []string
	logger     *slog.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	bg          sync.WaitGroup
	unsubscribe []func()
}

// Option configures a Builder.
type Option func(*Builder)

// WithHost sets the host collaborators.
func WithHost(h host.Host) Option {
	return func(b *Builder) {
		b.host = h
	}
}

// WithSettings sets the settings store.
func WithSettings(s *config.Store) Option {
	return func(b *Builder) {
		b.settings = s
	}
}

// WithFunctions sets the registry that resolves functionMatch names.
func WithFunctions(r *task.FunctionRegistry) Option {
	return func(b *Builder) {
		b.functions = r
	}
}

// WithEnviron replaces os.Environ as the base environment of builds.
func WithEnviron(fn func() []string) Option {
	return func(b *Builder) {
		b.environ = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = l
	}
}

// New creates a Builder for the targets of manager. The Builder owns the
// manager from here on and closes it in Close.
func New(manager *task.Manager, opts ...Option) *Builder {
	b := &Builder{
		manager:   manager,
		listeners: make(map[uint64]func(Outcome)),
		idle:      make(chan struct{}),
		environ:   os.Environ,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.host = b.host.WithDefaults()
	if b.settings == nil {
		b.settings = config.NewStore(config.Default())
	}
	if b.functions == nil {
		b.functions = task.NewFunctionRegistry()
	}
	b.logger = b.logger.With("component", "builder")
	b.ctx, b.cancel = context.WithCancel(context.Background())

	close(b.idle)
	b.idleClosed = true

	b.matcher = task.NewMatcher(
		task.WithMatchTimeout(b.settings.Get().MatchTimeout.Std()),
		task.WithFunctions(b.functions),
		task.WithOpener(b.host.Opener),
		task.WithMatcherLogger(b.logger),
	)
	b.supervisor = process.NewSupervisor(
		process.WithMaxProcesses(1),
		process.WithProcessExitCallback(b.processExited),
		process.WithLogger(b.logger),
	)
	b.subst = &task.Substituter{
		Editor:   b.host.Editor,
		Branches: b.host.Branches,
		Roots:    manager.Roots,
		Environ:  b.environ,
	}

	b.unsubscribe = append(b.unsubscribe,
		manager.OnActiveTargetChanged(b.activeTargetChanged),
		manager.OnTrigger(func(commandName string) {
			b.buildAsync(SourceTrigger, commandName)
		}),
		manager.OnRefreshComplete(b.UpdateStatusBar),
		manager.OnRootRemoved(b.rootRemoved),
		b.matcher.OnMatched(func(m task.Match) {
			if m.Text != "" {
				b.host.Log.ScrollTo(m.Text)
			}
		}),
		b.settings.Subscribe(b.settingsChanged),
	)
	return b
}

// Manager returns the target manager.
func (b *Builder) Manager() *task.Manager { return b.manager }

// Matcher returns the matcher holding the matches of the last build.
func (b *Builder) Matcher() *task.Matcher { return b.matcher }

// Functions returns the registry used for functionMatch names.
func (b *Builder) Functions() *task.FunctionRegistry { return b.functions }

// State returns the current state.
func (b *Builder) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.slot != nil && b.slot.aborted:
		return StateAborting
	case b.slot != nil:
		return StateRunning
	case b.confirming > 0:
		return StateConfirming
	default:
		return StateIdle
	}
}

// OnFinished registers fn to run after every build attempt, including ones
// that failed to start.
func (b *Builder) OnFinished(fn func(Outcome)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.listenerID
	b.listenerID++
	b.listeners[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

// Wait blocks until no build is running, queued or awaiting confirmation.
func (b *Builder) Wait(ctx context.Context) error {
	b.mu.Lock()
	idle := b.idle
	b.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Build requests a build of the target registered as commandName, or of
// the active target when commandName is empty or unknown.
//
// Unsaved editors are saved, or the user is asked first unless SaveOnBuild
// is set. If a build is running it is aborted and this request is queued
// to start after its process exited; Build then returns nil right away.
// Otherwise Build returns once the process was spawned, or with the error
// that prevented it. Errors are also reported to the host notifier.
func (b *Builder) Build(ctx context.Context, source Source, commandName string) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.stopHideTimerLocked()
	b.mu.Unlock()

	proceed, err := b.confirmSave(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		b.logger.Debug("build canceled at save confirmation", "source", source)
		return nil
	}

	req := request{source: source, command: commandName}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	if b.slot != nil {
		b.next = &req
		b.mu.Unlock()
		b.logger.Debug("build queued behind running build", "source", source, "command", commandName)
		b.abort()
		return nil
	}
	rb := b.occupyLocked(req)
	b.mu.Unlock()

	return b.start(ctx, rb)
}

// EditorSaved builds the active target when BuildOnSave is set.
func (b *Builder) EditorSaved(ctx context.Context) error {
	if !b.settings.Get().BuildOnSave {
		return nil
	}
	return b.Build(ctx, SourceSave, "")
}

// Stop drops any queued build and sends the next signal of the running
// build's termination queue. It returns the signal sent; sent is false when
// nothing was running or the queue is exhausted.
func (b *Builder) Stop() (sig syscall.Signal, sent bool) {
	b.mu.Lock()
	b.next = nil
	b.stopHideTimerLocked()
	busy := b.slot != nil
	b.syncIdleLocked()
	b.mu.Unlock()

	if !busy {
		b.host.Log.Reset()
		return 0, false
	}
	return b.abort()
}

// NextMatch opens the match after the last opened one.
func (b *Builder) NextMatch() error {
	return b.reportMatchError(b.matcher.GotoNext())
}

// FirstMatch opens the first match of the last build.
func (b *Builder) FirstMatch() error {
	return b.reportMatchError(b.matcher.GotoFirst())
}

func (b *Builder) reportMatchError(err error) error {
	if err != nil {
		b.host.Notifier.Notify(host.Notification{
			Level:  host.LevelError,
			Title:  "Error matching failed!",
			Detail: err.Error(),
		})
	}
	return err
}

// UpdateStatusBar shows the active target of the active root.
func (b *Builder) UpdateStatusBar() {
	root, ok := task.ActiveRoot(b.host.Editor, b.manager.Roots())
	if !ok {
		return
	}
	if t, ok := b.manager.ActiveTarget(root); ok {
		b.host.StatusBar.SetTarget(t.Name)
	}
}

// Close kills the running build, drops queued work, and tears down the
// target manager.
func (b *Builder) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.next = nil
	b.stopHideTimerLocked()
	if b.confirmEnd != nil {
		b.confirmEnd()
	}
	var id string
	if b.slot != nil {
		id = b.slot.id
	}
	unsubscribe := b.unsubscribe
	b.unsubscribe = nil
	b.mu.Unlock()

	b.cancel()
	if id != "" {
		if err := b.supervisor.Kill(id); err != nil && !errors.Is(err, process.ErrProcessNotFound) {
			b.logger.Debug("kill on close", "error", err)
		}
	}
	b.bg.Wait()
	b.supervisor.Shutdown(0)

	for _, fn := range unsubscribe {
		fn()
	}
	b.host.Linter.Dispose()
	return b.manager.Close()
}

func (b *Builder) activeTargetChanged(_ string, t task.Target) {
	b.host.StatusBar.SetTarget(t.Name)
	if b.settings.Get().SelectTriggers {
		b.buildAsync(SourceSelect, "")
	}
}

// rootRemoved aborts the running build when it belongs to root.
func (b *Builder) rootRemoved(root string) {
	b.mu.Lock()
	rb := b.slot
	match := rb != nil && rb.root == root
	if match {
		b.next = nil
	}
	b.mu.Unlock()

	if match {
		b.logger.Info("aborting build of removed root", "root", root)
		b.abort()
	}
}

func (b *Builder) settingsChanged(prev, next config.Settings) {
	if next.PanelVisibility == config.PanelHidden && prev.PanelVisibility != config.PanelHidden {
		b.host.Log.Hide()
	}
}

// buildAsync runs Build on a goroutine tracked by Close.
func (b *Builder) buildAsync(source Source, commandName string) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.bg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.bg.Done()
		if err := b.Build(b.ctx, source, commandName); err != nil {
			b.logger.Debug("build request failed", "source", source, "error", err)
		}
	}()
}

// confirmSave handles unsaved editors and reports whether to go on.
func (b *Builder) confirmSave(ctx context.Context) (bool, error) {
	editors := b.host.Editors.Unsaved()
	if len(editors) == 0 {
		return true, nil
	}
	if b.settings.Get().SaveOnBuild {
		b.save(editors)
		return true, nil
	}

	paths := make([]string, len(editors))
	for i, e := range editors {
		paths[i] = e.Path()
	}

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b.mu.Lock()
	// A newer request replaces a pending question.
	if b.confirmEnd != nil {
		b.confirmEnd()
	}
	b.confirmSeq++
	seq := b.confirmSeq
	b.confirmEnd = cancel
	b.confirming++
	b.syncIdleLocked()
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.confirming--
		if b.confirmSeq == seq {
			b.confirmEnd = nil
		}
		b.syncIdleLocked()
		b.mu.Unlock()
	}()

	choice, err := b.host.SaveConfirmer.ConfirmSave(cctx, paths)
	if err != nil {
		if cctx.Err() != nil {
			return false, nil
		}
		return false, fmt.Errorf("confirm save: %w", err)
	}

	switch choice {
	case host.SaveAndBuild:
		b.save(editors)
		return true, nil
	case host.BuildWithoutSave:
		return true, nil
	default:
		return false, nil
	}
}

func (b *Builder) save(editors []host.UnsavedEditor) {
	for _, e := range editors {
		if err := e.Save(); err != nil {
			b.logger.Warn("save before build failed", "path", e.Path(), "error", err)
			b.host.Notifier.Notify(host.Notification{
				Level:  host.LevelWarning,
				Title:  "Unable to save " + e.Path(),
				Detail: err.Error(),
			})
		}
	}
}

// occupyLocked puts a new build into the empty slot.
func (b *Builder) occupyLocked(req request) *running {
	ctx, cancel := context.WithCancel(b.ctx)
	rb := &running{
		id:      uuid.NewString(),
		req:     req,
		ctx:     ctx,
		cancel:  cancel,
		started: time.Now(),
	}
	b.slot = rb
	b.bg.Add(1)
	b.syncIdleLocked()
	return rb
}

// release empties the slot and starts the queued build, if any.
func (b *Builder) release(rb *running) {
	rb.cancel()

	b.mu.Lock()
	if b.slot == rb {
		b.slot = nil
	}
	var nrb *running
	var next request
	if b.next != nil && !b.closed {
		next = *b.next
		nrb = b.occupyLocked(next)
	}
	b.next = nil
	b.syncIdleLocked()
	b.mu.Unlock()
	b.bg.Done()

	if nrb != nil {
		b.logger.Debug("starting queued build", "source", next.source, "command", next.command)
		_ = b.start(b.ctx, nrb)
	}
}

// abort stops the running build: a build still in its preBuild hook is
// canceled, a spawned process gets the next signal of its queue.
func (b *Builder) abort() (syscall.Signal, bool) {
	b.mu.Lock()
	rb := b.slot
	if rb == nil {
		b.mu.Unlock()
		return 0, false
	}
	first := !rb.aborted
	rb.aborted = true
	proc := rb.proc
	cancelPre := rb.cancelPre
	b.mu.Unlock()

	if first {
		b.host.Log.BuildAbortInitiated()
	}
	if proc == nil {
		if cancelPre != nil {
			cancelPre()
		}
		return 0, false
	}

	sig, sent, err := proc.SendNextSignal()
	if err != nil {
		b.logger.Debug("signal build process", "signal", sig, "error", err)
	}
	if sent {
		b.logger.Info("signaled build process", "id", rb.id, "signal", sig.String())
	}
	return sig, sent
}

func (b *Builder) stopHideTimerLocked() {
	if b.hideTimer != nil {
		b.hideTimer.Stop()
		b.hideTimer = nil
	}
}

// syncIdleLocked keeps the idle channel closed exactly while nothing is
// running, queued or being confirmed.
func (b *Builder) syncIdleLocked() {
	idle := b.slot == nil && b.next == nil && b.confirming == 0
	switch {
	case idle && !b.idleClosed:
		close(b.idle)
		b.idleClosed = true
	case !idle && b.idleClosed:
		b.idle = make(chan struct{})
		b.idleClosed = false
	}
}

func (b *Builder) emit(o Outcome) {
	b.mu.Lock()
	ids := make([]uint64, 0, len(b.listeners))
	for id := range b.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(Outcome), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, b.listeners[id])
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(o)
	}
}

// Succeeded decides the result of a build: a zero exit code, and with
// matchedErrorFails no match of the error kind.
func Succeeded(exitCode int, matches []task.Match, matchedErrorFails bool) bool {
	if exitCode != 0 {
		return false
	}
	if !matchedErrorFails {
		return true
	}
	for _, m := range matches {
		if task.IsErrorKind(m.Kind) {
			return false
		}
	}
	return true
}
