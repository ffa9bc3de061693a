package mock

import (
	"context"

	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/pkg/models"
)

// MockClient satisfies models.LLMClient for testing.
type MockClient struct {
	Model_        string
	ValidateFunc  func(ctx context.Context) error
	SentimentFunc func(ctx context.Context, brand, text string) (int, error)
	SalienceFunc  func(ctx context.Context, brand, text string) (int, error)
}

func (m *MockClient) Model() string {
	if m.Model_ == "" {
		return "mock-model"
	}
	return m.Model_
}

func (m *MockClient) ValidateKey(ctx context.Context) error {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx)
	}
	return nil
}

func (m *MockClient) Sentiment(ctx context.Context, brand, text string) (int, error) {
	if m.SentimentFunc != nil {
		return m.SentimentFunc(ctx, brand, text)
	}
	return 50, nil
}

func (m *MockClient) Salience(ctx context.Context, brand, text string) (int, error) {
	if m.SalienceFunc != nil {
		return m.SalienceFunc(ctx, brand, text)
	}
	return 0, nil
}

// NewFailingClient returns a MockClient whose scoring calls always return err.
func NewFailingClient(err error) *MockClient {
	return &MockClient{
		Model_: "mock-failing",
		SentimentFunc: func(context.Context, string, string) (int, error) {
			return 0, err
		},
		SalienceFunc: func(context.Context, string, string) (int, error) {
			return 0, err
		},
	}
}

var _ models.LLMClient = (*MockClient)(nil)
