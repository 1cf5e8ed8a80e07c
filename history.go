package antireload

// History is the in-page navigation primitive.
type History interface {
	PushState(state any, title, url string) error
	ReplaceState(state any, title, url string) error
}

type history struct {
	c    *Coordinator
	next History
}

// WrapHistory returns a History that saves the view state before each
// navigation it delegates to next. A failed save never blocks the navigation.
func (c *Coordinator) WrapHistory(next History) History {
	return &history{c: c, next: next}
}

func (h *history) PushState(state any, title, url string) error {
	h.c.save("pushState")
	return h.next.PushState(state, title, url)
}

func (h *history) ReplaceState(state any, title, url string) error {
	h.c.save("replaceState")
	return h.next.ReplaceState(state, title, url)
}
