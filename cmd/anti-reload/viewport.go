package main

import "sync"

// viewport simulates the browser viewport of the proxied page. Its content
// grows by one page height for every list response the page receives.
type viewport struct {
	mutex  sync.Mutex
	offset float64
	height float64
	extent float64
}

func newViewport(height float64) *viewport {
	return &viewport{height: height, extent: height}
}

func (v *viewport) ScrollTo(offset float64) error {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	v.offset = clamp(offset, 0, v.extent-v.height)
	return nil
}

func (v *viewport) Offset() float64 {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	return v.offset
}

func (v *viewport) Height() float64 {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	return v.height
}

func (v *viewport) ContentExtent() float64 {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	return v.extent
}

func (v *viewport) grow(by float64) {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	v.extent += by
}

// set places the viewport as reported by a client. A zero extent keeps the
// current one.
func (v *viewport) set(offset, extent float64) {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	if extent > 0 {
		v.extent = extent
	}
	v.offset = clamp(offset, 0, v.extent-v.height)
}

type viewportState struct {
	Offset float64 `json:"offset"`
	Height float64 `json:"height"`
	Extent float64 `json:"extent"`
}

func (v *viewport) state() viewportState {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	return viewportState{Offset: v.offset, Height: v.height, Extent: v.extent}
}

func clamp(x, lo, hi float64) float64 {
	if x > hi {
		x = hi
	}
	if x < lo {
		x = lo
	}
	return x
}
