// Package ollama embeds text through a local Ollama server, keeping
// menu-item vectorisation on-premise for deployments that cannot send
// dish names and caller phrases to a hosted API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rnmehta/dinevox/pkg/provider/embeddings"
)

// DefaultBaseURL is where a stock Ollama install listens.
const DefaultBaseURL = "http://localhost:11434"

// dimsByModel covers the embedding models the deployment docs recommend.
// Model names are matched as substrings so tagged variants like
// "nomic-embed-text:latest" resolve too. Anything else gets measured with
// a one-off request on first use.
var dimsByModel = map[string]int{
	"nomic-embed-text":  768,
	"mxbai-embed-large": 1024,
	"all-minilm":        384,
}

func lookupDims(model string) int {
	lower := strings.ToLower(model)
	for name, dims := range dimsByModel {
		if strings.Contains(lower, name) {
			return dims
		}
	}
	return 0
}

var _ embeddings.Provider = (*Provider)(nil)

// Provider talks to the Ollama /api/embed endpoint. Safe for concurrent
// use.
type Provider struct {
	baseURL string
	model   string
	client  *http.Client

	dims       int
	detectOnce sync.Once
}

// Option configures a Provider.
type Option func(*Provider)

// WithTimeout bounds each embedding request. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.client.Timeout = d }
}

// WithDimensions pins the vector width, bypassing both the model table
// and the auto-detection request.
func WithDimensions(dims int) Option {
	return func(p *Provider) { p.dims = dims }
}

// New returns a Provider for the given server and model. An empty
// baseURL selects DefaultBaseURL; model must not be empty.
func New(baseURL, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama embeddings: model must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	p := &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	if p.dims == 0 {
		p.dims = lookupDims(model)
	}
	return p, nil
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.post(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: embed: %w", err)
	}
	return vecs[0], nil
}

// EmbedBatch implements embeddings.Provider. Vectors come back in input
// order, one per text.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := p.post(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: embed batch: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("ollama embeddings: embed batch: sent %d texts, got %d vectors", len(texts), len(vecs))
	}
	return vecs, nil
}

// Dimensions implements embeddings.Provider. A model missing from the
// table costs one throwaway request the first time; if the server is
// unreachable the result stays 0, so pin WithDimensions for servers that
// may be down at startup.
func (p *Provider) Dimensions() int {
	if p.dims != 0 {
		return p.dims
	}
	p.detectOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if vecs, err := p.post(ctx, []string{"x"}); err == nil {
			p.dims = len(vecs[0])
		}
	})
	return p.dims
}

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return p.model }

// post sends one /api/embed request and guarantees a non-empty vector
// slice on success.
func (p *Provider) post(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(struct {
		Model string   `json:"model"`
		Input []string `json:"input"`
	}{p.model, texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post /api/embed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("server returned %s: %s", resp.Status, bytes.TrimSpace(msg))
	}

	var out struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings in response")
	}
	return out.Embeddings, nil
}
