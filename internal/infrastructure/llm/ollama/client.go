package ollama

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/sumflow/internal/infrastructure/resilience"
)

// Options configures the generation client.
type Options struct {
	Model              string
	ConnectTimeout     time.Duration
	ReadTimeout        time.Duration
	Temperature        float64
	NumCtx             int
	ResilienceExecutor *resilience.Executor
}

// Client talks to the Ollama chat and generate endpoints.
type Client struct {
	baseURL    string
	model      string
	options    map[string]any
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL string, opts Options) *Client {
	connect := opts.ConnectTimeout
	if connect <= 0 {
		connect = 30 * time.Second
	}
	read := opts.ReadTimeout
	if read <= 0 {
		read = 420 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}).DialContext
	transport.ResponseHeaderTimeout = read

	options := map[string]any{"temperature": opts.Temperature}
	if opts.NumCtx > 0 {
		options["num_ctx"] = opts.NumCtx
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   opts.Model,
		options: options,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   connect + read,
		},
		executor: opts.ResilienceExecutor,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat sends a system+user exchange to /api/chat and returns the assistant content.
func (c *Client) Chat(ctx context.Context, system, prompt string) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if strings.TrimSpace(system) != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	reqBody := map[string]any{
		"model":    c.model,
		"messages": messages,
		"stream":   false,
		"options":  c.options,
	}

	var response struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.call(ctx, "/api/chat", reqBody, &response, "chat"); err != nil {
		return "", err
	}

	content := strings.TrimSpace(response.Message.Content)
	if content == "" && len(response.Choices) > 0 {
		content = strings.TrimSpace(response.Choices[0].Message.Content)
	}
	return content, nil
}

// Generate sends a single prompt to /api/generate.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":   c.model,
		"prompt":  prompt,
		"stream":  false,
		"options": c.options,
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := c.call(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func (c *Client) call(ctx context.Context, path string, payload any, out any, operation string) error {
	started := time.Now()
	fn := func(callCtx context.Context) error {
		return c.postJSON(callCtx, path, payload, out, operation)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "ollama."+operation, fn, classifyOllamaError)
	} else {
		err = fn(ctx)
	}

	elapsed := time.Since(started)
	if err != nil {
		slog.Warn("llm_call_failed",
			"operation", operation,
			"model", c.model,
			"elapsed_ms", elapsed.Milliseconds(),
			"error", err,
		)
		return wrapCallError("ollama "+operation, err)
	}
	slog.Debug("llm_call",
		"operation", operation,
		"model", c.model,
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return nil
}
