package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/buildium/internal/config"
	"github.com/dshills/buildium/internal/config/loader"
	"github.com/dshills/buildium/internal/host"
)

// TriggerCommandPrefix prefixes the command generated for a target that has
// a keymap but no command name.
const TriggerCommandPrefix = "build:trigger:"

// pathTarget is the state the manager keeps for one project root.
// Fields other than regMu-guarded ones are protected by Manager.mu.
type pathTarget struct {
	root      string
	loading   int
	targets   []Target
	active    string
	instances []instance

	regMu     sync.Mutex
	disposers []func()
	removed   bool
}

type instance struct {
	provider    Provider
	unsubscribe func()
}

type factoryEntry struct {
	id uint64
	fn ProviderFactory
}

// Manager owns the targets of every project root. It refreshes roots
// concurrently, keeps one active target per root and registers the host
// commands and keymaps targets declare.
//
// Readers always see the last completed refresh of a root.
type Manager struct {
	mu        sync.RWMutex
	roots     []string
	paths     map[string]*pathTarget
	factories []factoryEntry
	nextID    uint64
	closed    bool

	host     host.Host
	settings *config.Store
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup
	busyID atomic.Uint64

	refreshed listenerSet[func()]
	activated listenerSet[func(root string, t Target)]
	triggered listenerSet[func(commandName string)]
	removed   listenerSet[func(root string)]
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithHost sets the host collaborators used for notifications, the busy
// indicator, commands and keymaps.
func WithHost(h host.Host) ManagerOption {
	return func(m *Manager) {
		m.host = h
	}
}

// WithSettings sets the settings store.
func WithSettings(s *config.Store) ManagerOption {
	return func(m *Manager) {
		m.settings = s
	}
}

// WithManagerLogger sets the logger.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager creates a manager without roots or providers.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		paths:  make(map[string]*pathTarget),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.host = m.host.WithDefaults()
	if m.settings == nil {
		m.settings = config.NewStore(config.Default())
	}
	m.logger = m.logger.With("component", "target-manager")
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// RegisterProvider adds a provider factory and refreshes every root in
// the background. The returned function removes the factory and refreshes
// again.
func (m *Manager) RegisterProvider(f ProviderFactory) (unregister func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.factories = append(m.factories, factoryEntry{id: id, fn: f})
	m.mu.Unlock()

	m.refreshAsync()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.factories = slices.DeleteFunc(m.factories, func(e factoryEntry) bool {
				return e.id == id
			})
			m.mu.Unlock()
			m.refreshAsync()
		})
	}
}

// Roots returns the project roots in workspace order.
func (m *Manager) Roots() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.roots)
}

// SetRoots replaces the set of project roots. Removed roots are torn down
// and announced through OnRootRemoved; added roots are refreshed before
// SetRoots returns.
func (m *Manager) SetRoots(ctx context.Context, roots []string) error {
	next := normalizeRoots(roots)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	var added []string
	for _, r := range next {
		if _, ok := m.paths[r]; !ok {
			m.paths[r] = &pathTarget{root: r}
			added = append(added, r)
		}
	}
	var gone []*pathTarget
	for _, r := range m.roots {
		if !slices.Contains(next, r) {
			gone = append(gone, m.paths[r])
			delete(m.paths, r)
		}
	}
	m.roots = next
	m.mu.Unlock()

	for _, pt := range gone {
		m.teardown(pt)
		m.logger.Debug("root removed", "root", pt.root)
		for _, fn := range m.removed.snapshot() {
			fn(pt.root)
		}
	}

	if len(added) == 0 {
		return nil
	}
	return m.RefreshTargets(ctx, added...)
}

// AddRoot adds one project root and refreshes it.
func (m *Manager) AddRoot(ctx context.Context, root string) error {
	roots := m.Roots()
	if slices.Contains(roots, filepath.Clean(root)) {
		return nil
	}
	return m.SetRoots(ctx, append(roots, root))
}

// RemoveRoot drops one project root.
func (m *Manager) RemoveRoot(root string) error {
	root = filepath.Clean(root)
	roots := slices.DeleteFunc(m.Roots(), func(r string) bool { return r == root })
	return m.SetRoots(context.Background(), roots)
}

// RefreshTargets reloads the targets of the given roots, or of every root
// when none are given. Roots refresh concurrently and one refresh-complete
// event is emitted after all of them settled. Provider failures are
// reported to the host and do not fail the refresh.
func (m *Manager) RefreshTargets(ctx context.Context, roots ...string) error {
	if m.isClosed() {
		return ErrManagerClosed
	}
	if len(roots) == 0 {
		roots = m.Roots()
	} else {
		roots = normalizeRoots(roots)
	}
	if len(roots) == 0 {
		return nil
	}

	busyID := fmt.Sprintf("refresh-targets-%d", m.busyID.Add(1))
	m.host.Busy.Begin(busyID, "Refreshing targets for "+strings.Join(roots, ","))

	g, gctx := errgroup.WithContext(ctx)
	for _, root := range roots {
		g.Go(func() error {
			return m.refreshRoot(gctx, root)
		})
	}
	err := g.Wait()

	for _, fn := range m.refreshed.snapshot() {
		fn()
	}
	m.host.Busy.End(busyID, err == nil)

	if err == nil && m.settings.Get().NotificationOnRefresh {
		m.notifyRefreshed(roots)
	}
	return err
}

func (m *Manager) refreshRoot(ctx context.Context, root string) error {
	m.mu.Lock()
	pt, ok := m.paths[root]
	if !ok {
		m.mu.Unlock()
		m.logger.Debug("refresh skipped for unknown root", "root", root)
		return nil
	}
	pt.loading++
	factories := slices.Clone(m.factories)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		pt.loading--
		m.mu.Unlock()
	}()

	instances := m.instantiate(ctx, root, factories)
	if !m.adopt(pt, instances) {
		return nil
	}

	results := make([][]Target, len(instances))
	var g errgroup.Group
	for i, inst := range instances {
		g.Go(func() error {
			targets, err := m.settingsOf(ctx, inst.provider, root)
			if err != nil {
				m.reportProviderError(inst.provider.Name(), root, err)
			}
			results[i] = targets
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	var targets []Target
	for i, ts := range results {
		for _, t := range ts {
			if t.Provider == "" {
				t.Provider = instances[i].provider.Name()
			}
			targets = append(targets, ApplyDefaults(root, t))
		}
	}
	targets = Uniquify(targets)
	for i := range targets {
		if targets[i].Keymap != "" && targets[i].CommandName == "" {
			targets[i].CommandName = TriggerCommandPrefix + targets[i].Name
		}
	}

	m.mu.Lock()
	if m.paths[root] != pt {
		m.mu.Unlock()
		return nil
	}
	pt.targets = targets
	if !containsTarget(targets, pt.active) {
		pt.active = ""
		if len(targets) > 0 {
			pt.active = targets[0].Name
		}
	}
	m.mu.Unlock()

	m.register(pt, targets)
	m.logger.Debug("targets refreshed", "root", root, "targets", len(targets))
	return nil
}

// instantiate creates one provider per factory and keeps the eligible ones.
func (m *Manager) instantiate(ctx context.Context, root string, factories []factoryEntry) []instance {
	var out []instance
	for _, f := range factories {
		p, ok := m.eligible(ctx, f.fn, root)
		if !ok {
			continue
		}
		unsub := p.OnRefresh(func() {
			m.logger.Debug("provider requested refresh", "provider", p.Name(), "root", root)
			m.refreshAsync(root)
		})
		out = append(out, instance{provider: p, unsubscribe: unsub})
	}
	return out
}

func (m *Manager) eligible(ctx context.Context, f ProviderFactory, root string) (p Provider, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.reportProviderError("unknown", root, fmt.Errorf("panic: %v", r))
			if p != nil {
				closeQuietly(m.logger, p)
			}
			p, ok = nil, false
		}
	}()
	p = f(root)
	if p == nil {
		return nil, false
	}
	if !p.IsEligible(ctx) {
		closeQuietly(m.logger, p)
		return nil, false
	}
	return p, true
}

// adopt installs instances as the current providers of pt and closes the
// previous ones. It reports false when pt was removed in the meantime.
func (m *Manager) adopt(pt *pathTarget, instances []instance) bool {
	m.mu.Lock()
	if m.closed || m.paths[pt.root] != pt {
		m.mu.Unlock()
		m.closeInstances(instances)
		return false
	}
	old := pt.instances
	pt.instances = instances
	m.mu.Unlock()

	m.closeInstances(old)
	return true
}

func (m *Manager) settingsOf(ctx context.Context, p Provider, root string) (targets []Target, err error) {
	defer func() {
		if r := recover(); r != nil {
			targets = nil
			err = &ProviderError{Provider: p.Name(), Root: root, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return p.Settings(ctx)
}

// register replaces the host commands and keymaps of pt.
func (m *Manager) register(pt *pathTarget, targets []Target) {
	pt.regMu.Lock()
	defer pt.regMu.Unlock()

	for _, dispose := range pt.disposers {
		dispose()
	}
	pt.disposers = nil
	if pt.removed {
		return
	}

	for _, t := range targets {
		if t.CommandName == "" {
			continue
		}
		name := t.CommandName
		pt.disposers = append(pt.disposers, m.host.Commands.Register(name, func() {
			m.trigger(name)
		}))
		if t.Keymap != "" {
			pt.disposers = append(pt.disposers, m.host.Keymaps.Bind(t.Keymap, name))
		}
	}
}

func (m *Manager) trigger(commandName string) {
	m.logger.Debug("command triggered", "command", commandName)
	for _, fn := range m.triggered.snapshot() {
		fn(commandName)
	}
}

func (m *Manager) reportProviderError(provider, root string, err error) {
	m.logger.Warn("provider failed", "provider", provider, "root", root, "error", err)
	for _, e := range flatten(err) {
		var parseErr *loader.ParseError
		if errors.As(e, &parseErr) {
			m.host.Notifier.Notify(host.Notification{
				Level:  host.LevelError,
				Title:  "Invalid build file.",
				Detail: "You have a syntax error in your build file: " + parseErr.Error(),
			})
			continue
		}
		m.host.Notifier.Notify(host.Notification{
			Level:  host.LevelError,
			Title:  fmt.Sprintf("Ooops. Something went wrong in the %s build provider.", provider),
			Detail: e.Error(),
		})
	}
}

func (m *Manager) notifyRefreshed(roots []string) {
	m.mu.RLock()
	rows := make([]string, 0, len(roots))
	for _, root := range roots {
		pt, ok := m.paths[root]
		if !ok {
			rows = append(rows, fmt.Sprintf("Targets %s no longer exists. Is build deactivated?", root))
			continue
		}
		rows = append(rows, fmt.Sprintf("%d targets at: %s", len(pt.targets), root))
	}
	m.mu.RUnlock()

	m.host.Notifier.Notify(host.Notification{
		Level:  host.LevelInfo,
		Title:  "Build targets parsed.",
		Detail: strings.Join(rows, "\n"),
	})
}

// refreshAsync refreshes roots on a background goroutine tracked by Wait.
func (m *Manager) refreshAsync(roots ...string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.bg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.bg.Done()
		if err := m.RefreshTargets(m.ctx, roots...); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrManagerClosed) {
			m.logger.Warn("background refresh failed", "roots", roots, "error", err)
		}
	}()
}

// Targets returns the targets of root, refreshing once when it has none.
func (m *Manager) Targets(ctx context.Context, root string) ([]Target, error) {
	root = filepath.Clean(root)
	targets, err := m.snapshot(root)
	if err != nil || len(targets) > 0 {
		return targets, err
	}
	if err := m.RefreshTargets(ctx, root); err != nil {
		return nil, err
	}
	return m.snapshot(root)
}

func (m *Manager) snapshot(root string) ([]Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pt, ok := m.paths[root]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoot, root)
	}
	out := make([]Target, len(pt.targets))
	for i, t := range pt.targets {
		out[i] = t.Clone()
	}
	return out, nil
}

// ActiveTarget returns the active target of root.
func (m *Manager) ActiveTarget(root string) (Target, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pt, ok := m.paths[filepath.Clean(root)]
	if !ok {
		return Target{}, false
	}
	for _, t := range pt.targets {
		if t.Name == pt.active {
			return t.Clone(), true
		}
	}
	return Target{}, false
}

// SetActiveTarget selects name as the active target of root and notifies
// OnActiveTargetChanged listeners.
func (m *Manager) SetActiveTarget(root, name string) error {
	root = filepath.Clean(root)

	m.mu.Lock()
	pt, ok := m.paths[root]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownRoot, root)
	}
	idx := slices.IndexFunc(pt.targets, func(t Target) bool { return t.Name == name })
	if idx < 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTarget, name)
	}
	pt.active = name
	selected := pt.targets[idx].Clone()
	m.mu.Unlock()

	for _, fn := range m.activated.snapshot() {
		fn(root, selected)
	}
	return nil
}

// IsLoading reports whether a refresh of root is in flight.
func (m *Manager) IsLoading(root string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pt, ok := m.paths[filepath.Clean(root)]
	return ok && pt.loading > 0
}

// OnRefreshComplete registers fn to run after every RefreshTargets.
func (m *Manager) OnRefreshComplete(fn func()) (unsubscribe func()) {
	return m.refreshed.add(fn)
}

// OnActiveTargetChanged registers fn to run after SetActiveTarget.
func (m *Manager) OnActiveTargetChanged(fn func(root string, t Target)) (unsubscribe func()) {
	return m.activated.add(fn)
}

// OnTrigger registers fn to run when a target's host command is dispatched.
func (m *Manager) OnTrigger(fn func(commandName string)) (unsubscribe func()) {
	return m.triggered.add(fn)
}

// OnRootRemoved registers fn to run after a root was torn down.
func (m *Manager) OnRootRemoved(fn func(root string)) (unsubscribe func()) {
	return m.removed.add(fn)
}

// Wait blocks until background refreshes started by providers or
// registrations have finished.
func (m *Manager) Wait() {
	m.bg.Wait()
}

// Close stops background refreshes and tears down every root.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.bg.Wait()

	m.mu.Lock()
	paths := make([]*pathTarget, 0, len(m.paths))
	for _, pt := range m.paths {
		paths = append(paths, pt)
	}
	m.paths = make(map[string]*pathTarget)
	m.roots = nil
	m.mu.Unlock()

	for _, pt := range paths {
		m.teardown(pt)
	}
	return nil
}

// teardown closes the providers of pt and disposes its registrations.
func (m *Manager) teardown(pt *pathTarget) {
	m.mu.Lock()
	instances := pt.instances
	pt.instances = nil
	m.mu.Unlock()
	m.closeInstances(instances)

	pt.regMu.Lock()
	pt.removed = true
	disposers := pt.disposers
	pt.disposers = nil
	pt.regMu.Unlock()
	for _, dispose := range disposers {
		dispose()
	}
}

func (m *Manager) closeInstances(instances []instance) {
	for _, inst := range instances {
		if inst.unsubscribe != nil {
			inst.unsubscribe()
		}
		closeQuietly(m.logger, inst.provider)
	}
}

func (m *Manager) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

func closeQuietly(logger *slog.Logger, p Provider) {
	if err := p.Close(); err != nil {
		logger.Warn("provider close failed", "provider", p.Name(), "error", err)
	}
}

func containsTarget(targets []Target, name string) bool {
	if name == "" {
		return false
	}
	return slices.ContainsFunc(targets, func(t Target) bool { return t.Name == name })
}

func normalizeRoots(roots []string) []string {
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		r = filepath.Clean(r)
		if !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	return out
}

// flatten splits errors joined with errors.Join.
func flatten(err error) []error {
	var pe *ProviderError
	if errors.As(err, &pe) {
		err = pe.Err
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range joined.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	return []error{err}
}
