package antireload

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ViewState is the saved position of the list view.
type ViewState struct {
	ScrollOffset        float64 `json:"scrollOffset"`
	ContentExtentAtSave float64 `json:"contentExtentAtSave"`
	// Unix milliseconds.
	TS int64 `json:"ts"`
}

// storedViewState also accepts the field names of older saves.
type storedViewState struct {
	ScrollOffset        *float64 `json:"scrollOffset"`
	ContentExtentAtSave *float64 `json:"contentExtentAtSave"`
	TS                  int64    `json:"ts"`
	ScrollY             *float64 `json:"scrollY"`
	ScrollHeight        *float64 `json:"scrollHeight"`
}

// parseViewState reads a saved view state. A bare number is read as the
// scroll offset.
func parseViewState(s string) (ViewState, error) {
	var stored storedViewState
	if err := json.Unmarshal([]byte(s), &stored); err != nil {
		offset, perr := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if perr != nil {
			return ViewState{}, fmt.Errorf("parse view state: %w", err)
		}
		return ViewState{ScrollOffset: offset}, nil
	}
	vs := ViewState{TS: stored.TS}
	switch {
	case stored.ScrollOffset != nil:
		vs.ScrollOffset = *stored.ScrollOffset
	case stored.ScrollY != nil:
		vs.ScrollOffset = *stored.ScrollY
	}
	switch {
	case stored.ContentExtentAtSave != nil:
		vs.ContentExtentAtSave = *stored.ContentExtentAtSave
	case stored.ScrollHeight != nil:
		vs.ContentExtentAtSave = *stored.ScrollHeight
	}
	return vs, nil
}

func (vs ViewState) String() string {
	b, _ := json.Marshal(vs)
	return string(b)
}
