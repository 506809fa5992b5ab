package provider

import (
	"context"
	"encoding/json"
	"fmt"
)

const mockDimension = 8

// MockProvider 确定性的离线提供方，用于本地开发和测试
type MockProvider struct{}

// NewMockProvider 创建 mock 提供方
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// Name 返回提供方名称
func (p *MockProvider) Name() string {
	return "mock"
}

// Embed 生成确定性向量：同一文本永远得到同一向量
func (p *MockProvider) Embed(ctx context.Context, req *EmbedRequest) (*EmbedResponse, error) {
	if len(req.Texts) == 0 {
		return nil, fmt.Errorf("texts cannot be empty")
	}

	vectors := make([][]float32, len(req.Texts))
	for i, text := range req.Texts {
		seed := len(text) % 10
		vec := make([]float32, mockDimension)
		for j := range vec {
			vec[j] = float32(seed+j) / 10
		}
		vectors[i] = vec
	}

	return &EmbedResponse{Vectors: vectors, Model: "mock-embedding", Dimension: mockDimension}, nil
}

// Generate 返回固定结构的 JSON 回答
func (p *MockProvider) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	payload := map[string]any{
		"answer":    "Mock answer generated offline.",
		"citations": []any{},
	}
	text, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal mock response: %w", err)
	}
	return &GenerateResponse{Text: string(text), Model: "mock-generate"}, nil
}
