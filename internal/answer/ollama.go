package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	stamerrors "github.com/stamzoek/stamzoek/internal/errors"
)

const (
	// DefaultModel is the default answering model.
	DefaultModel = "llama3.1"

	// DefaultHost is the default Ollama endpoint.
	DefaultHost = "http://localhost:11434"

	// defaultTimeout bounds a single generation. Genealogical answers
	// over a full context window can take a while on local hardware.
	defaultTimeout = 120 * time.Second
)

// promptTemplate instructs the model to stay inside the retrieved
// context. Source coordinates in the context blocks let it cite pages
// and entry codes.
const promptTemplate = `You are a genealogical research assistant. Answer the question using only the numbered source passages below. Each passage is headed with its document, page and family entry code; cite these when you state a fact. People with the same name but different entry codes are different individuals. If the passages do not contain the answer, say so.

Sources:
%s

Question: %s

Answer:`

// OllamaConfig configures the Ollama answering collaborator.
type OllamaConfig struct {
	Host    string
	Model   string
	Timeout time.Duration
}

// Ollama answers questions through a local Ollama generate endpoint.
type Ollama struct {
	host   string
	model  string
	client *http.Client
}

// NewOllama creates an Ollama answering collaborator.
func NewOllama(cfg OllamaConfig) *Ollama {
	host := strings.TrimSuffix(cfg.Host, "/")
	if host == "" {
		host = DefaultHost
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Ollama{
		host:   host,
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Answer implements Collaborator.
func (o *Ollama) Answer(ctx context.Context, question, contextWindow string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", stamerrors.New(stamerrors.ErrCodeQueryEmpty, "question is empty")
	}

	body, err := json.Marshal(generateRequest{
		Model:  o.model,
		Prompt: fmt.Sprintf(promptTemplate, contextWindow, question),
	})
	if err != nil {
		return "", stamerrors.Wrap(err, stamerrors.ErrCodeAnswerFailed, "marshal generate request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", stamerrors.Wrap(err, stamerrors.ErrCodeAnswerFailed, "create generate request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", stamerrors.Wrap(err, stamerrors.ErrCodeAnswerFailed, "call answering model")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", stamerrors.New(stamerrors.ErrCodeAnswerFailed,
			fmt.Sprintf("answering model returned status %d", resp.StatusCode))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", stamerrors.Wrap(err, stamerrors.ErrCodeAnswerFailed, "decode generate response")
	}
	return strings.TrimSpace(out.Response), nil
}

// Model implements Collaborator.
func (o *Ollama) Model() string { return o.model }

// Available implements Collaborator.
func (o *Ollama) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
