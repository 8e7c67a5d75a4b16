package layers

import (
	"context"
	"fmt"
	"sync"
)

// MemorySurface keeps attached layers in memory. It backs headless rendering (export,
// wasm) and tests.
type MemorySurface struct {
	layers map[Handle]Layer
	next   uint64
	mu     sync.Mutex
}

// NewMemorySurface creates an empty surface.
func NewMemorySurface() *MemorySurface {
	return &MemorySurface{layers: make(map[Handle]Layer)}
}

// Attach stores the layer.
func (s *MemorySurface) Attach(_ context.Context, l Layer) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	h := Handle(fmt.Sprintf("%s-%d", l.Key, s.next))
	s.layers[h] = l
	return h, nil
}

// Detach removes the layer. Unknown handles are an error.
func (s *MemorySurface) Detach(_ context.Context, h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.layers[h]; !ok {
		return fmt.Errorf("unknown layer handle %s", h)
	}
	delete(s.layers, h)
	return nil
}

// ByKey returns every attached layer of a key.
func (s *MemorySurface) ByKey(key Key) []Layer {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Layer
	for _, l := range s.layers {
		if l.Key == key {
			out = append(out, l)
		}
	}
	return out
}

// Layer returns the single attached layer of a key.
func (s *MemorySurface) Layer(key Key) (Layer, bool) {
	ls := s.ByKey(key)
	if len(ls) != 1 {
		return Layer{}, false
	}
	return ls[0], true
}

// Len returns the number of attached layers.
func (s *MemorySurface) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.layers)
}
