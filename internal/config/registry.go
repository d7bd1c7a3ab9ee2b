package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rnmehta/dinevox/pkg/provider/embeddings"
	"github.com/rnmehta/dinevox/pkg/provider/llm"
	"github.com/rnmehta/dinevox/pkg/provider/stt"
	"github.com/rnmehta/dinevox/pkg/provider/tts"
	"github.com/rnmehta/dinevox/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// kindRegistry holds the factories of one provider kind. Registering a name
// twice overwrites the earlier factory.
type kindRegistry[T any] struct {
	mu        sync.RWMutex
	kind      string
	factories map[string]func(ProviderEntry) (T, error)
}

func newKindRegistry[T any](kind string) kindRegistry[T] {
	return kindRegistry[T]{kind: kind, factories: make(map[string]func(ProviderEntry) (T, error))}
}

func (k *kindRegistry[T]) register(name string, factory func(ProviderEntry) (T, error)) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.factories[name] = factory
}

func (k *kindRegistry[T]) create(entry ProviderEntry) (T, error) {
	k.mu.RLock()
	factory, ok := k.factories[entry.Name]
	k.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, k.kind, entry.Name)
	}
	return factory(entry)
}

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	llm        kindRegistry[llm.Provider]
	stt        kindRegistry[stt.Provider]
	tts        kindRegistry[tts.Provider]
	embeddings kindRegistry[embeddings.Provider]
	vad        kindRegistry[vad.Engine]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:        newKindRegistry[llm.Provider]("llm"),
		stt:        newKindRegistry[stt.Provider]("stt"),
		tts:        newKindRegistry[tts.Provider]("tts"),
		embeddings: newKindRegistry[embeddings.Provider]("embeddings"),
		vad:        newKindRegistry[vad.Engine]("vad"),
	}
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.llm.register(name, factory)
}

// RegisterSTT registers an STT provider factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.stt.register(name, factory)
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.tts.register(name, factory)
}

// RegisterEmbeddings registers an embeddings provider factory under name.
func (r *Registry) RegisterEmbeddings(name string, factory func(ProviderEntry) (embeddings.Provider, error)) {
	r.embeddings.register(name, factory)
}

// RegisterVAD registers a VAD engine factory under name.
func (r *Registry) RegisterVAD(name string, factory func(ProviderEntry) (vad.Engine, error)) {
	r.vad.register(name, factory)
}

// CreateLLM instantiates the LLM provider registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has that name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return r.llm.create(entry)
}

// CreateSTT instantiates the STT provider registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	return r.stt.create(entry)
}

// CreateTTS instantiates the TTS provider registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	return r.tts.create(entry)
}

// CreateEmbeddings instantiates the embeddings provider registered under entry.Name.
func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embeddings.Provider, error) {
	return r.embeddings.create(entry)
}

// CreateVAD instantiates the VAD engine registered under entry.Name.
func (r *Registry) CreateVAD(entry ProviderEntry) (vad.Engine, error) {
	return r.vad.create(entry)
}
