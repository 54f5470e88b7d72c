package answer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stamerrors "github.com/stamzoek/stamzoek/internal/errors"
)

func fakeOllama(t *testing.T, status int, response string) (*httptest.Server, *generateRequest) {
	t.Helper()
	var captured generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.WriteHeader(http.StatusOK)
		case "/api/generate":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(generateResponse{Response: response, Done: true})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func TestOllama_Answer(t *testing.T) {
	srv, captured := fakeOllama(t, http.StatusOK, "Jan de Vries married Maria Jansen in 1887 (p.3, II.1.a).")
	o := NewOllama(OllamaConfig{Host: srv.URL, Model: "llama3.1"})

	answer, err := o.Answer(context.Background(),
		"When did Jan de Vries marry?",
		"[doc-1 p.3 II.1.a]\nJan de Vries married Maria Jansen in 1887 in Utrecht.\n")
	require.NoError(t, err)

	assert.Contains(t, answer, "1887")
	assert.Equal(t, "llama3.1", captured.Model)
	assert.False(t, captured.Stream)
	// The prompt carries both the context block and the question.
	assert.Contains(t, captured.Prompt, "II.1.a")
	assert.Contains(t, captured.Prompt, "When did Jan de Vries marry?")
}

func TestOllama_AnswerServerError(t *testing.T) {
	srv, _ := fakeOllama(t, http.StatusInternalServerError, "")
	o := NewOllama(OllamaConfig{Host: srv.URL})

	_, err := o.Answer(context.Background(), "who?", "context")
	require.Error(t, err)
	assert.Equal(t, stamerrors.ErrCodeAnswerFailed, stamerrors.GetCode(err))
	assert.True(t, stamerrors.IsRetryable(err))
}

func TestOllama_EmptyQuestion(t *testing.T) {
	o := NewOllama(OllamaConfig{})
	_, err := o.Answer(context.Background(), "  ", "context")
	require.Error(t, err)
	assert.Equal(t, stamerrors.ErrCodeQueryEmpty, stamerrors.GetCode(err))
}

func TestOllama_Available(t *testing.T) {
	srv, _ := fakeOllama(t, http.StatusOK, "")
	assert.True(t, NewOllama(OllamaConfig{Host: srv.URL}).Available(context.Background()))

	down := NewOllama(OllamaConfig{Host: "http://127.0.0.1:1"})
	assert.False(t, down.Available(context.Background()))
}
