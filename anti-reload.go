// Package antireload keeps a paginated list view in place across
// navigations away from it and back.
//
// A Coordinator lives for one page load. On creation it decides whether the
// load is a return from navigation; while returning, its Transport serves
// previously fetched list pages from a persisted cache and its restoration
// loop scrolls the viewport back to the saved offset as those pages render.
// A detected full reload wipes all persisted state instead.
package antireload

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/always-cache/anti-reload/cache"
	navstate "github.com/always-cache/anti-reload/pkg/nav-state"
	rules "github.com/always-cache/anti-reload/pkg/request-rules"
	restore "github.com/always-cache/anti-reload/pkg/scroll-restore"
	"github.com/always-cache/anti-reload/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrNoStore    = errors.New("anti-reload: store is required")
	ErrNoViewport = errors.New("anti-reload: viewport is required")
)

const flagValue = "true"

type Coordinator struct {
	id        string
	store     store.Store
	cache     *cache.Cache
	machine   *navstate.Machine
	loop      *restore.Loop
	viewport  restore.Viewport
	clock     navstate.Clock
	log       zerolog.Logger
	scrollKey string
	flagKey   string
	ttl       time.Duration
	resources rules.Rules
	tracked   func() bool
	departure []string
	popDelay  time.Duration
	debounce  time.Duration
	onFetch   func(FetchEvent)
	reload    bool

	// serializes load-mutate-save of the response cache
	cacheMutex sync.Mutex

	mutex       sync.Mutex
	scrollTimer navstate.Timer
	popTimer    navstate.Timer
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	closed      bool
}

// New initializes the coordinator for a new page load.
func New(config Config) (*Coordinator, error) {
	if config.Store == nil {
		return nil, ErrNoStore
	}
	if config.Viewport == nil {
		return nil, ErrNoViewport
	}

	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}

	id := uuid.NewString()
	logger = logger.With().Str("load", id).Logger()

	c := &Coordinator{
		id:        id,
		store:     config.Store,
		viewport:  config.Viewport,
		clock:     config.Clock,
		log:       logger,
		scrollKey: config.ScrollKey,
		flagKey:   config.FlagKey,
		ttl:       config.TTL,
		resources: config.Resources,
		tracked:   config.Tracked,
		departure: config.DepartureLinks,
		popDelay:  config.PopStateDelay,
		debounce:  config.ScrollDebounce,
		onFetch:   config.OnFetch,
	}
	if c.clock == nil {
		c.clock = navstate.SystemClock{}
	}
	if c.scrollKey == "" {
		c.scrollKey = DefaultScrollKey
	}
	if c.flagKey == "" {
		c.flagKey = DefaultFlagKey
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.resources == nil {
		c.resources = rules.DefaultResources
	}
	if c.tracked == nil {
		c.tracked = func() bool { return true }
	}
	if c.departure == nil {
		c.departure = DefaultDepartureLinks
	}
	if c.popDelay <= 0 {
		c.popDelay = DefaultPopStateDelay
	}
	if c.debounce <= 0 {
		c.debounce = DefaultScrollDebounce
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	cacheKey := config.CacheKey
	if cacheKey == "" {
		cacheKey = DefaultCacheKey
	}
	c.cache = cache.New(cache.Config{
		Store:      config.Store,
		Key:        cacheKey,
		MaxEntries: config.MaxEntries,
		Version:    config.CacheVersion,
		Compress:   config.Compress,
		Logger:     &logger,
		Now:        c.clock.Now,
	})
	c.machine = navstate.New(navstate.Config{
		Window: config.Window,
		Grace:  config.Grace,
		Clock:  c.clock,
		Logger: &logger,
	})
	c.loop = restore.NewLoop(restore.Config{
		Tolerance: config.Tolerance,
		MaxWait:   config.MaxWait,
		Clock:     c.clock,
		Frames:    config.Frames,
		Logger:    &logger,
	})

	c.reload = c.isReload(config.IsReload)
	if c.reload {
		c.log.Info().Msg("Page reload detected, clearing saved state")
		if err := c.store.Remove(c.scrollKey, c.flagKey, cacheKey); err != nil {
			c.log.Warn().Err(err).Msg("Could not clear saved state")
		}
		c.machine.StartFresh()
	} else {
		c.checkNavigationFlag()
	}

	c.log.Info().Str("state", c.machine.State().String()).Msg("Initialized")
	return c, nil
}

func (c *Coordinator) isReload(classify func() (bool, error)) bool {
	if classify == nil {
		return false
	}
	reload, err := classify()
	if err != nil {
		c.log.Debug().Err(err).Msg("Could not classify page load, assuming navigation")
		return false
	}
	return reload
}

func (c *Coordinator) checkNavigationFlag() {
	flag, ok, err := c.store.Get(c.flagKey)
	if err != nil {
		c.log.Warn().Err(err).Msg("Could not read navigation flag")
		return
	}
	if !ok || flag != flagValue || !c.tracked() {
		return
	}
	if err := c.store.Remove(c.flagKey); err != nil {
		c.log.Warn().Err(err).Msg("Could not clear navigation flag")
	}
	c.machine.Return()
	c.log.Info().Msg("Returning from navigation")
}

// ID returns the page load ID.
func (c *Coordinator) ID() string {
	return c.id
}

// Machine returns the navigation state machine of this page load.
func (c *Coordinator) Machine() *navstate.Machine {
	return c.machine
}

// SaveViewState saves the current viewport and marks the departure,
// if the page is tracked.
func (c *Coordinator) SaveViewState() error {
	if !c.tracked() {
		return nil
	}
	if err := c.writeViewState(); err != nil {
		return err
	}
	return c.store.Set(c.flagKey, flagValue)
}

func (c *Coordinator) writeViewState() error {
	vs := ViewState{
		ScrollOffset:        c.viewport.Offset(),
		ContentExtentAtSave: c.viewport.ContentExtent(),
		TS:                  c.clock.Now().UnixMilli(),
	}
	return c.store.Set(c.scrollKey, vs.String())
}

// LoadViewState reads the saved view state.
func (c *Coordinator) LoadViewState() (ViewState, bool, error) {
	s, ok, err := c.store.Get(c.scrollKey)
	if err != nil || !ok || s == "" {
		return ViewState{}, false, err
	}
	vs, err := parseViewState(s)
	if err != nil {
		return ViewState{}, false, err
	}
	return vs, true, nil
}

// OnLinkActivate saves the view state when href leads to a detail page.
func (c *Coordinator) OnLinkActivate(href string) {
	for _, d := range c.departure {
		if strings.Contains(href, d) {
			c.save("link")
			return
		}
	}
}

// OnPageHide saves the view state.
func (c *Coordinator) OnPageHide() {
	c.save("pagehide")
}

// OnPageShow is called when the page becomes visible. persisted is true when
// it was restored from the back/forward cache.
func (c *Coordinator) OnPageShow(persisted bool) {
	if persisted {
		c.log.Info().Msg("Restored from back/forward cache")
	}
}

// OnPopState handles an in-page back/forward navigation: the returning
// window starts over and a restoration is scheduled.
func (c *Coordinator) OnPopState() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return
	}
	c.machine.Return()
	c.log.Info().Msg("Back/forward navigation detected")
	if c.popTimer != nil {
		c.popTimer.Stop()
	}
	c.popTimer = c.clock.AfterFunc(c.popDelay, func() {
		c.goRestore()
	})
}

// OnScroll saves the scroll offset once scrolling has been quiet for the
// debounce period. The navigation flag is not touched.
func (c *Coordinator) OnScroll() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed || !c.tracked() {
		return
	}
	if c.scrollTimer != nil {
		c.scrollTimer.Stop()
	}
	c.scrollTimer = c.clock.AfterFunc(c.debounce, func() {
		if !c.machine.SavingAllowed() {
			return
		}
		if err := c.writeViewState(); err != nil {
			c.log.Warn().Err(err).Msg("Could not save scroll offset")
		}
	})
}

// OnReady is called once the page content is ready. When returning, it starts
// the restoration in the background.
func (c *Coordinator) OnReady() {
	if c.machine.State() == navstate.Returning {
		c.goRestore()
	}
}

func (c *Coordinator) goRestore() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.Restore(c.ctx)
	}()
}

// Restore runs the restoration of the current return and blocks until it
// ends. It returns false when no restoration was allowed, because the page
// is not returning, or one already ran or is running.
func (c *Coordinator) Restore(ctx context.Context) (restore.Result, bool) {
	if !c.tracked() {
		return restore.Result{}, false
	}
	ticket, ok := c.machine.BeginRestore(ctx)
	if !ok {
		return restore.Result{}, false
	}

	vs, found, err := c.LoadViewState()
	if err != nil {
		c.log.Warn().Err(err).Msg("Could not read saved view state")
	}
	if !found {
		c.machine.ReleaseRestore(ticket)
		return restore.Result{Outcome: restore.Skipped}, true
	}

	res := c.loop.Run(ticket.Context(), c.viewport, vs.ScrollOffset)
	switch res.Outcome {
	case restore.Converged, restore.TimedOut:
		c.machine.FinishRestore(ticket)
	default:
		c.machine.ReleaseRestore(ticket)
	}
	return res, true
}

// Snapshot is the diagnostic view of a coordinator.
type Snapshot struct {
	Load      string            `json:"load"`
	Reload    bool              `json:"reload"`
	Machine   navstate.Snapshot `json:"machine"`
	ViewState *ViewState        `json:"viewState,omitempty"`
	Cached    []string          `json:"cached"`
}

func (c *Coordinator) Snapshot() Snapshot {
	s := Snapshot{
		Load:    c.id,
		Reload:  c.reload,
		Machine: c.machine.Snapshot(),
	}
	if vs, ok, _ := c.LoadViewState(); ok {
		s.ViewState = &vs
	}
	c.cacheMutex.Lock()
	lru, _ := c.cache.Load()
	c.cacheMutex.Unlock()
	s.Cached = lru.Identities()
	return s
}

// Close stops the timers and any running restoration, and waits for
// background work to end. The store is not closed.
func (c *Coordinator) Close() {
	c.mutex.Lock()
	c.closed = true
	if c.scrollTimer != nil {
		c.scrollTimer.Stop()
	}
	if c.popTimer != nil {
		c.popTimer.Stop()
	}
	c.cancel()
	c.mutex.Unlock()

	c.machine.Close()
	c.wg.Wait()
}

func (c *Coordinator) save(trigger string) {
	if err := c.SaveViewState(); err != nil {
		c.log.Warn().Err(err).Str("trigger", trigger).Msg("Could not save view state")
		return
	}
	c.log.Debug().Str("trigger", trigger).Msg("Saved view state")
}
