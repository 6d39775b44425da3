package judge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientValidation(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		config   ClientConfig
		wantErr  string
	}{
		{
			name:     "missing API key",
			provider: "openai",
			config:   ClientConfig{Model: "gpt-4o-mini"},
			wantErr:  "API key",
		},
		{
			name:     "missing model",
			provider: "openai",
			config:   ClientConfig{APIKey: "sk-test"},
			wantErr:  "model is required",
		},
		{
			name:     "unknown provider",
			provider: "cohere",
			config:   ClientConfig{APIKey: "key", Model: "command"},
			wantErr:  "unknown judge provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.provider, tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewClientRegisteredProviders(t *testing.T) {
	for _, provider := range []string{"openai", "anthropic"} {
		t.Run(provider, func(t *testing.T) {
			client, err := NewClient(provider, ClientConfig{
				APIKey: "test-key",
				Model:  "test-model",
			})
			require.NoError(t, err)
			assert.Equal(t, "test-model", client.GetModel())
		})
	}
}

func TestClientMiddlewareOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next CoreJudge) CoreJudge {
			return &MockCoreJudge{
				DoFunc: func(ctx context.Context, prompt string, _ int) (string, error) {
					order = append(order, name)
					response, _, _, err := next.DoRequest(ctx, prompt, nil)
					return response, err
				},
			}
		}
	}

	mock := &MockCoreJudge{Response: "done"}
	client := NewClientFromCore(mock, tag("outer"), tag("inner"))

	response, err := client.Complete(context.Background(), "prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, "done", response)
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestClientCompleteWithUsage(t *testing.T) {
	mock := &MockCoreJudge{Response: "answer", TokensIn: 42, TokensOut: 7}
	client := NewClientFromCore(mock)

	response, tokensIn, tokensOut, err := client.CompleteWithUsage(context.Background(), "prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, "answer", response)
	assert.Equal(t, 42, tokensIn)
	assert.Equal(t, 7, tokensOut)
}

func TestSimpleTokenEstimator(t *testing.T) {
	client := NewClientFromCore(&MockCoreJudge{})

	count, err := client.EstimateTokens("abcdefgh")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = client.EstimateTokens("")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestTimeoutMiddleware(t *testing.T) {
	mock := &MockCoreJudge{
		DoFunc: func(ctx context.Context, _ string, _ int) (string, error) {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Second):
				return "too late", nil
			}
		},
	}
	client := NewClientFromCore(mock, TimeoutMiddleware(10*time.Millisecond))

	_, err := client.Complete(context.Background(), "prompt", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimitMiddlewarePacing(t *testing.T) {
	mock := &MockCoreJudge{Response: "ok"}
	// 100 rps with burst 1 forces roughly 10ms between calls.
	client := NewClientFromCore(mock, RateLimitMiddleware(100, 1))

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.Complete(context.Background(), "prompt", nil)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
	assert.Equal(t, 3, mock.Calls())
}
