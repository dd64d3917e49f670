package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/macaron-software/agentcore/internal/httpclient"
)

// HTTPChatProvider is an OpenAI-compatible chat-completions provider
// adapter. The wire format (chat/completions with SSE streaming deltas
// and a tool_calls array) is shared by every OpenAI-compatible backend.
type HTTPChatProvider struct {
	id      string
	baseURL string
	apiKey  string
	model   string
	limits  ProviderLimits
	client  *httpclient.Client
}

// NewHTTPChatProvider constructs an OpenAI-compatible provider adapter.
func NewHTTPChatProvider(id, baseURL, apiKey, model string, limits ProviderLimits) *HTTPChatProvider {
	return &HTTPChatProvider{
		id:      id,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		limits:  limits,
		client:  httpclient.NewClient(120 * time.Second),
	}
}

func (p *HTTPChatProvider) ID() string            { return p.id }
func (p *HTTPChatProvider) Limits() ProviderLimits { return p.limits }

type chatMessageWire struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	ToolCalls  []toolCallWire `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type toolCallWire struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function toolFunctionWire `json:"function"`
}

type toolFunctionWire struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type toolSchemaWire struct {
	Type     string             `json:"type"`
	Function toolFunctionSchema `json:"function"`
}

type toolFunctionSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type chatRequestWire struct {
	Model       string            `json:"model"`
	Messages    []chatMessageWire `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float64           `json:"temperature"`
	Stream      bool              `json:"stream"`
	Tools       []toolSchemaWire  `json:"tools,omitempty"`
}

type chatStreamChunkWire struct {
	Choices []struct {
		Delta struct {
			Content   string         `json:"content"`
			ToolCalls []toolCallWire `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (p *HTTPChatProvider) buildRequest(req CompletionRequest) chatRequestWire {
	msgs := make([]chatMessageWire, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, chatMessageWire{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID})
	}
	temp := req.Temperature
	if !p.limits.AcceptsTemperature {
		// silently coerced to the provider's default.
		temp = p.limits.DefaultTemperature
	}
	tools := make([]toolSchemaWire, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, toolSchemaWire{
			Type: "function",
			Function: toolFunctionSchema{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	model := req.Model
	if model == "" {
		model = p.model
	}
	return chatRequestWire{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: temp,
		Stream:      true,
		Tools:       tools,
	}
}

// Send issues a streaming chat-completion call. The returned channel is
// always closed; its terminal element carries Usage or Err.
func (p *HTTPChatProvider) Send(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	wire := p.buildRequest(req)
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("gateway: encode request: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gateway: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	start := time.Now()
	resp, err := p.client.Do(ctx, httpReq)
	if err != nil {
		var retryable *httpclient.RetryableError
		if errors.As(err, &retryable) {
			if retryable.StatusCode == http.StatusTooManyRequests {
				return nil, &RateLimitError{Err: err}
			}
			return nil, &RetriableTransientError{Err: err}
		}
		return nil, err
	}

	out := make(chan StreamChunk, 64)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		var inputTokens, outputTokens int
		var pendingToolCalls []ToolCallRequest
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			select {
			case <-ctx.Done():
				out <- StreamChunk{Done: true, Err: ctx.Err()}
				return
			default:
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				break
			}

			var chunk chatStreamChunkWire
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				continue
			}
			if chunk.Usage != nil {
				inputTokens = chunk.Usage.PromptTokens
				outputTokens = chunk.Usage.CompletionTokens
			}
			for _, c := range chunk.Choices {
				if c.Delta.Content != "" {
					out <- StreamChunk{TextDelta: c.Delta.Content}
				}
				for _, tc := range c.Delta.ToolCalls {
					pendingToolCalls = append(pendingToolCalls, ToolCallRequest{
						ID:        tc.ID,
						Name:      tc.Function.Name,
						Arguments: []byte(tc.Function.Arguments),
					})
				}
			}
		}
		if err := scanner.Err(); err != nil {
			out <- StreamChunk{Done: true, Err: &RetriableTransientError{Err: err}}
			return
		}

		usage := &CompletionUsage{
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
			DurationMS:   time.Since(start).Milliseconds(),
			ProviderID:   p.id,
			ModelID:      wire.Model,
		}
		out <- StreamChunk{Done: true, ToolCalls: pendingToolCalls, Usage: usage}
	}()

	return out, nil
}
