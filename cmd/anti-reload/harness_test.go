package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/always-cache/anti-reload/store"
	"github.com/rs/zerolog"
)

type snapshot struct {
	Page        string `json:"page"`
	Coordinator struct {
		Reload  bool `json:"reload"`
		Machine struct {
			State string `json:"state"`
		} `json:"machine"`
		ViewState *struct {
			ScrollOffset float64 `json:"scrollOffset"`
		} `json:"viewState"`
		Cached []string `json:"cached"`
	} `json:"coordinator"`
	Viewport viewportState `json:"viewport"`
}

func setup(t *testing.T) (*httptest.Server, *int, *sync.Mutex) {
	t.Helper()
	var mutex sync.Mutex
	hits := 0
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mutex.Lock()
		hits++
		mutex.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(fmt.Sprintf(`{"path":%q}`, r.URL.RequestURI())))
	}))
	t.Cleanup(origin.Close)

	originURL, _ := url.Parse(origin.URL)
	config := defaultConfig()
	config.Origin = origin.URL
	logger := zerolog.Nop()
	h := newHarness(config, store.NewMemStore(), originURL, http.DefaultTransport, logger)
	if err := h.load("/discovery", false); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(h.close)

	srv := httptest.NewServer(h.router())
	t.Cleanup(srv.Close)
	return srv, &hits, &mutex
}

func post(t *testing.T, url, body string) snapshot {
	t.Helper()
	res, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	var s snapshot
	if err := json.NewDecoder(res.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	return s
}

func fetch(t *testing.T, url string) *http.Response {
	t.Helper()
	res, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	io.ReadAll(res.Body)
	res.Body.Close()
	return res
}

func TestHarnessReturnServesFromCache(t *testing.T) {
	srv, hits, mutex := setup(t)
	list := srv.URL + "/ajax/discovery/artworks?mode=all"

	if res := fetch(t, list); res.Header.Get("Cache-Status") != "Anti-Reload; fwd=bypass; stored" {
		t.Fatalf("Cache-Status is %s", res.Header.Get("Cache-Status"))
	}

	s := post(t, srv.URL+"/-/navigation/depart", `{"offset":1000,"extent":5000,"href":"/artworks/1"}`)
	if s.Coordinator.ViewState == nil || s.Coordinator.ViewState.ScrollOffset != 1000 {
		t.Fatalf("View state is %+v", s.Coordinator.ViewState)
	}

	s = post(t, srv.URL+"/-/navigation/load?page=/discovery", "")
	if s.Coordinator.Machine.State != "returning" {
		t.Fatalf("State is %s", s.Coordinator.Machine.State)
	}
	if len(s.Coordinator.Cached) != 1 {
		t.Fatalf("Cached is %v", s.Coordinator.Cached)
	}

	res := fetch(t, list)
	if cs := res.Header.Get("Cache-Status"); !strings.HasPrefix(cs, "Anti-Reload; hit") {
		t.Fatalf("Cache-Status is %s", cs)
	}
	mutex.Lock()
	defer mutex.Unlock()
	if *hits != 1 {
		t.Fatalf("Origin hit %d times", *hits)
	}
}

func TestHarnessReload(t *testing.T) {
	srv, _, _ := setup(t)
	fetch(t, srv.URL+"/ajax/discovery/artworks?mode=all")
	post(t, srv.URL+"/-/navigation/depart", `{"offset":1000,"extent":5000}`)

	s := post(t, srv.URL+"/-/navigation/load?reload=true", "")
	if !s.Coordinator.Reload || s.Coordinator.Machine.State != "fresh-start" {
		t.Fatalf("Snapshot is %+v", s.Coordinator)
	}
	if len(s.Coordinator.Cached) != 0 || s.Coordinator.ViewState != nil {
		t.Fatalf("State survived the reload: %+v", s.Coordinator)
	}
}

func TestHarnessUntrackedPage(t *testing.T) {
	srv, _, _ := setup(t)
	s := post(t, srv.URL+"/-/navigation/load?page=/artworks/1", "")
	if s.Page != "/artworks/1" {
		t.Fatalf("Page is %s", s.Page)
	}
	s = post(t, srv.URL+"/-/navigation/depart", `{"offset":1000,"extent":5000,"href":"/users/1"}`)
	if s.Coordinator.ViewState != nil {
		t.Fatal("View state saved off the tracked page")
	}
}

func TestHarnessProxiesOtherRequests(t *testing.T) {
	srv, hits, mutex := setup(t)
	res := fetch(t, srv.URL+"/ajax/user/extra")
	if res.StatusCode != 200 || res.Header.Get("Cache-Status") != "" {
		t.Fatalf("Response %d %v", res.StatusCode, res.Header)
	}
	mutex.Lock()
	defer mutex.Unlock()
	if *hits != 1 {
		t.Fatalf("Origin hit %d times", *hits)
	}
}

func TestViewportClamps(t *testing.T) {
	vp := newViewport(800)
	vp.ScrollTo(5000)
	if vp.Offset() != 0 {
		t.Fatalf("Offset is %v", vp.Offset())
	}
	vp.grow(3000)
	vp.ScrollTo(5000)
	if vp.Offset() != 3000 {
		t.Fatalf("Offset is %v", vp.Offset())
	}
	vp.set(100, 9000)
	if s := vp.state(); s.Offset != 100 || s.Extent != 9000 {
		t.Fatalf("State is %+v", s)
	}
}

func TestHarnessClosedPage(t *testing.T) {
	config := defaultConfig()
	config.Origin = "http://origin.invalid"
	originURL, _ := url.Parse(config.Origin)
	h := newHarness(config, store.NewMemStore(), originURL, http.DefaultTransport, zerolog.Nop())
	if err := h.load("/discovery", false); err != nil {
		t.Fatal(err)
	}
	h.close()

	srv := httptest.NewServer(h.router())
	defer srv.Close()
	for _, path := range []string{"depart", "popstate", "scroll"} {
		res, err := http.Post(srv.URL+"/-/navigation/"+path, "application/json", strings.NewReader(`{"offset":100}`))
		if err != nil {
			t.Fatal(err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("%s returned %d", path, res.StatusCode)
		}
	}
	res := fetch(t, srv.URL+"/-/navigation/state")
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("state returned %d", res.StatusCode)
	}
}
