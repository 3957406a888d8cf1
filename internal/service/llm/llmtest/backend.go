package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/mirror-persona/backend/internal/service/llm"
)

// Backend is an llm.Backend wired to scripted models.
type Backend struct {
	Chat    *Model
	Vision  *Model
	PingErr error
}

// NewBackend returns a Backend with empty scripts on both models.
func NewBackend() *Backend {
	return &Backend{Chat: NewModel(), Vision: NewModel()}
}

func (b *Backend) Name() string                     { return "test" }
func (b *Backend) ChatModel() model.BaseChatModel   { return b.Chat }
func (b *Backend) VisionModel() model.BaseChatModel { return b.Vision }
func (b *Backend) Ping(context.Context) error       { return b.PingErr }

// Factory hands out one shared Backend and remembers the keys it was given.
type Factory struct {
	Backend *Backend
	OpenErr error

	mu   sync.Mutex
	keys []string
}

// NewFactory returns a Factory around backend.
func NewFactory(backend *Backend) *Factory {
	return &Factory{Backend: backend}
}

func (f *Factory) Open(_ context.Context, apiKey string) (llm.Backend, error) {
	f.mu.Lock()
	f.keys = append(f.keys, apiKey)
	f.mu.Unlock()

	if strings.TrimSpace(apiKey) == "" {
		return nil, llm.ErrCredentialRequired
	}
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	return f.Backend, nil
}

// Keys lists every key passed to Open.
func (f *Factory) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}
