package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/versecue/pkg/provider/llm"
	"github.com/MrWong99/versecue/pkg/provider/lyrics"
	"github.com/MrWong99/versecue/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	llm         map[string]func(ProviderEntry) (llm.Provider, error)
	stt         map[string]func(ProviderEntry) (stt.Provider, error)
	transcriber map[string]func(ProviderEntry) (stt.Transcriber, error)
	lyrics      map[string]func(ProviderEntry) (lyrics.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:         make(map[string]func(ProviderEntry) (llm.Provider, error)),
		stt:         make(map[string]func(ProviderEntry) (stt.Provider, error)),
		transcriber: make(map[string]func(ProviderEntry) (stt.Transcriber, error)),
		lyrics:      make(map[string]func(ProviderEntry) (lyrics.Provider, error)),
	}
}

// RegisterLLM registers an LLM provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	register(r, r.llm, name, factory)
}

// RegisterSTT registers a streaming STT provider factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	register(r, r.stt, name, factory)
}

// RegisterTranscriber registers a batch transcriber factory under name.
func (r *Registry) RegisterTranscriber(name string, factory func(ProviderEntry) (stt.Transcriber, error)) {
	register(r, r.transcriber, name, factory)
}

// RegisterLyrics registers a lyric search provider factory under name.
func (r *Registry) RegisterLyrics(name string, factory func(ProviderEntry) (lyrics.Provider, error)) {
	register(r, r.lyrics, name, factory)
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return create(r, r.llm, "llm", entry)
}

// CreateSTT instantiates a streaming STT provider.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	return create(r, r.stt, "stt", entry)
}

// CreateTranscriber instantiates a batch transcriber.
func (r *Registry) CreateTranscriber(entry ProviderEntry) (stt.Transcriber, error) {
	return create(r, r.transcriber, "transcriber", entry)
}

// CreateLyrics instantiates a lyric search provider.
func (r *Registry) CreateLyrics(entry ProviderEntry) (lyrics.Provider, error) {
	return create(r, r.lyrics, "lyrics", entry)
}

func register[T any](r *Registry, m map[string]func(ProviderEntry) (T, error), name string, factory func(ProviderEntry) (T, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m[name] = factory
}

func create[T any](r *Registry, m map[string]func(ProviderEntry) (T, error), kind string, entry ProviderEntry) (T, error) {
	r.mu.RLock()
	factory, ok := m[entry.Name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, entry.Name)
	}
	return factory(entry)
}
