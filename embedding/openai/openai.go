// Package openai implements embedding.Embedder on the OpenAI Embeddings API.
package openai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/vitalplane/agentmem/core"
)

// Config configures the OpenAI embedder.
type Config struct {
	// APIKey is the OpenAI API key. Required.
	APIKey string

	// Model is the embedding model name. Defaults to text-embedding-3-small.
	Model string

	// BaseURL overrides the API endpoint for compatible providers.
	BaseURL string

	// Dimensions is the vector size produced by the model. Defaults to 1536.
	Dimensions int
}

// Client calls the OpenAI Embeddings API.
type Client struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

// New creates an OpenAI embedder.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, core.NewOpError("embedding.openai", core.ErrInvalidInput)
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}
	dims := cfg.Dimensions
	if dims == 0 {
		dims = 1536
	}

	return &Client{
		client:     openai.NewClientWithConfig(oc),
		model:      openai.EmbeddingModel(model),
		dimensions: dims,
	}, nil
}

// Embed converts text to a vector. Fails closed: any provider error or empty
// response is returned as an error so callers can omit the memory fetch.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: c.model,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrEmbeddingFailed, err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty response", core.ErrEmbeddingFailed)
	}
	return resp.Data[0].Embedding, nil
}

// Dimensions returns the embedding vector size.
func (c *Client) Dimensions() int {
	return c.dimensions
}
