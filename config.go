package antireload

import (
	"time"

	"github.com/always-cache/anti-reload/cache"
	navstate "github.com/always-cache/anti-reload/pkg/nav-state"
	rules "github.com/always-cache/anti-reload/pkg/request-rules"
	restore "github.com/always-cache/anti-reload/pkg/scroll-restore"
	"github.com/always-cache/anti-reload/store"
	"github.com/rs/zerolog"
)

const (
	DefaultScrollKey      = "anti_reload_scroll"
	DefaultFlagKey        = "anti_reload_navigated_away"
	DefaultCacheKey       = cache.DefaultKey
	DefaultTTL            = 10 * time.Minute
	DefaultPopStateDelay  = 100 * time.Millisecond
	DefaultScrollDebounce = 500 * time.Millisecond
)

// DefaultDepartureLinks are the link targets that count as leaving the list
// for a detail page.
var DefaultDepartureLinks = []string{"/artworks/", "/users/"}

type Config struct {
	// Persisted store for view state, navigation flag and response cache.
	// Required.
	Store store.Store
	// Page viewport that is saved and restored. Required.
	Viewport restore.Viewport

	// Storage keys. Each defaults to its Default*Key constant.
	ScrollKey string
	FlagKey   string
	CacheKey  string

	// Returning window and grace period. See navstate.Config.
	Window time.Duration
	Grace  time.Duration
	// Maximum age of a cached response served while returning.
	// Defaults to DefaultTTL.
	TTL time.Duration

	// Cache bounds and format. See cache.Config.
	MaxEntries   int
	CacheVersion int
	Compress     bool

	// Requests whose responses are cached. Defaults to rules.DefaultResources.
	Resources rules.Rules
	// Tracked reports whether the current page is the tracked list page.
	// Nil means always.
	Tracked func() bool
	// Link targets that trigger a save on activation.
	// Defaults to DefaultDepartureLinks.
	DepartureLinks []string
	// IsReload classifies the page load. Nil, or an error, means not a reload.
	IsReload func() (bool, error)

	// Restoration loop settings. See restore.Config.
	Tolerance float64
	MaxWait   time.Duration
	Frames    restore.Frames

	// Delay between a back/forward signal and the restoration it triggers.
	// Defaults to DefaultPopStateDelay.
	PopStateDelay time.Duration
	// Quiet period after the last scroll before the offset is saved.
	// Defaults to DefaultScrollDebounce.
	ScrollDebounce time.Duration

	// Optional callback for every tracked request, after it was served.
	OnFetch func(FetchEvent)

	// Defaults to navstate.SystemClock.
	Clock navstate.Clock
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
}

// FetchEvent describes a tracked request handled by the transport.
type FetchEvent struct {
	Identity string
	// Cached is true when the response was served from the cache.
	Cached bool
	// Stored is true when a live response was written to the cache.
	Stored     bool
	StatusCode int
}
