package main

import (
	"encoding/json"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"sync"

	antireload "github.com/always-cache/anti-reload"
	"github.com/always-cache/anti-reload/store"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// harness is a headless page in front of the origin. Each simulated page
// load gets a new coordinator; proxied requests go through its transport.
type harness struct {
	config    Config
	store     store.Store
	transport http.RoundTripper
	log       zerolog.Logger
	proxy     *httputil.ReverseProxy

	mutex    sync.Mutex
	coord    *antireload.Coordinator
	viewport *viewport
	page     *url.URL
}

func newHarness(config Config, s store.Store, origin *url.URL, transport http.RoundTripper, logger zerolog.Logger) *harness {
	h := &harness{
		config:    config,
		store:     s,
		transport: antireload.RateLimit(transport, config.OriginRPS, 1),
		log:       logger,
	}
	h.proxy = &httputil.ReverseProxy{
		Director:  createDirector(origin.Scheme, origin.Host),
		Transport: roundTripperFunc(h.roundTrip),
	}
	return h
}

func createDirector(scheme, host string) func(req *http.Request) {
	return func(req *http.Request) {
		req.URL.Scheme = scheme
		req.URL.Host = host
		req.Host = host
	}
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func (h *harness) roundTrip(r *http.Request) (*http.Response, error) {
	h.mutex.Lock()
	coord := h.coord
	h.mutex.Unlock()
	if coord == nil {
		return h.transport.RoundTrip(r)
	}
	return coord.Transport(h.transport).RoundTrip(r)
}

func (h *harness) router() http.Handler {
	r := chi.NewRouter()
	r.Route("/-/navigation", func(r chi.Router) {
		r.Post("/load", h.handleLoad)
		r.Post("/depart", h.handleDepart)
		r.Post("/popstate", h.handlePopState)
		r.Post("/scroll", h.handleScroll)
		r.Get("/state", h.handleState)
	})
	r.Handle("/*", h.proxy)
	return r
}

// load starts a new simulated page load, ending the previous one.
func (h *harness) load(page string, reload bool) error {
	pageURL, err := url.Parse(page)
	if err != nil {
		return err
	}
	vp := newViewport(h.config.ViewportHeight)
	pageHeight := h.config.PageHeight
	pages := h.config.Pages
	logger := h.log

	coord, err := antireload.New(antireload.Config{
		Store:      h.store,
		Viewport:   vp,
		Window:     h.config.Window,
		TTL:        h.config.TTL,
		MaxEntries: h.config.MaxEntries,
		Compress:   h.config.Compress,
		Resources:  h.config.Resources,
		Tracked:    func() bool { return pages.MatchURL(pageURL) },
		IsReload:   func() (bool, error) { return reload, nil },
		OnFetch: func(e antireload.FetchEvent) {
			if e.Cached || (e.StatusCode >= 200 && e.StatusCode < 300) {
				vp.grow(pageHeight)
			}
		},
		Logger: &logger,
	})
	if err != nil {
		return err
	}

	h.mutex.Lock()
	previous := h.coord
	h.coord, h.viewport, h.page = coord, vp, pageURL
	h.mutex.Unlock()

	if previous != nil {
		previous.Close()
	}
	coord.OnPageShow(false)
	coord.OnReady()
	return nil
}

func (h *harness) current() (*antireload.Coordinator, *viewport) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.coord, h.viewport
}

// noPage answers control requests that arrive when no page is loaded.
func noPage(w http.ResponseWriter) {
	http.Error(w, "no page loaded", http.StatusServiceUnavailable)
}

func (h *harness) close() {
	h.mutex.Lock()
	coord := h.coord
	h.coord = nil
	h.mutex.Unlock()
	if coord != nil {
		coord.Close()
	}
}

func (h *harness) handleLoad(w http.ResponseWriter, r *http.Request) {
	page := r.URL.Query().Get("page")
	if page == "" {
		page = "/discovery"
	}
	reload, _ := strconv.ParseBool(r.URL.Query().Get("reload"))
	if err := h.load(page, reload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.handleState(w, r)
}

type departRequest struct {
	Offset float64 `json:"offset"`
	Extent float64 `json:"extent"`
	// Link the user activated. Without one the page is hidden instead.
	Href string `json:"href"`
}

func (h *harness) handleDepart(w http.ResponseWriter, r *http.Request) {
	var req departRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	coord, vp := h.current()
	if coord == nil {
		noPage(w)
		return
	}
	vp.set(req.Offset, req.Extent)
	if req.Href != "" {
		coord.OnLinkActivate(req.Href)
	} else {
		coord.OnPageHide()
	}
	h.handleState(w, r)
}

func (h *harness) handlePopState(w http.ResponseWriter, r *http.Request) {
	coord, _ := h.current()
	if coord == nil {
		noPage(w)
		return
	}
	coord.OnPopState()
	h.handleState(w, r)
}

type scrollRequest struct {
	Offset float64 `json:"offset"`
}

func (h *harness) handleScroll(w http.ResponseWriter, r *http.Request) {
	var req scrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	coord, vp := h.current()
	if coord == nil {
		noPage(w)
		return
	}
	vp.set(req.Offset, 0)
	coord.OnScroll()
	w.WriteHeader(http.StatusAccepted)
}

type stateResponse struct {
	Page        string              `json:"page"`
	Coordinator antireload.Snapshot `json:"coordinator"`
	Viewport    viewportState       `json:"viewport"`
}

func (h *harness) handleState(w http.ResponseWriter, r *http.Request) {
	h.mutex.Lock()
	coord, vp, page := h.coord, h.viewport, h.page
	h.mutex.Unlock()
	if coord == nil {
		noPage(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stateResponse{
		Page:        page.String(),
		Coordinator: coord.Snapshot(),
		Viewport:    vp.state(),
	}); err != nil {
		h.log.Error().Err(err).Msg("Could not write state")
	}
}
