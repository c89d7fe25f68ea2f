package run

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrRunIDAlreadySet is returned when SetID is called after the id was fixed.
var ErrRunIDAlreadySet = errors.New("run id already set")

// Holder keeps the identity of the current run. The id can be set once,
// typically by the runner that continues a session in another process.
// Reading it before it was set generates a new time-based id.
type Holder struct {
	mu  sync.Mutex
	id  string
	run *Run
}

// Default is the holder of this process.
var Default = &Holder{}

// SetID fixes the run id. It can only be called once, and not after the id
// was generated by ID.
func (h *Holder) SetID(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.id != "" {
		return fmt.Errorf("%w: %s", ErrRunIDAlreadySet, h.id)
	}
	h.id = id
	return nil
}

// ID returns the run id, generating one on first use.
func (h *Holder) ID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.idLocked()
}

func (h *Holder) idLocked() string {
	if h.id == "" {
		id, err := uuid.NewUUID()
		if err != nil {
			id = uuid.New()
		}
		h.id = id.String()
	}
	return h.id
}

// Run returns the run for the current id. It is created on first use.
func (h *Holder) Run() *Run {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.idLocked()
	if h.run == nil || h.run.ID != id {
		h.run = New(id)
	}
	return h.run
}
