// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package llm

// ServiceConfig holds the connection settings for one model service.
type ServiceConfig struct {
	Name         string `json:"name"`
	DefaultModel string `json:"defaultModel"`
	APIURL       string `json:"apiURL"`
	APIKey       string `json:"apiKey"`

	Region             string `json:"region"`
	AWSAccessKeyID     string `json:"awsAccessKeyID"`
	AWSSecretAccessKey string `json:"awsSecretAccessKey"`

	InputTokenLimit         int `json:"inputTokenLimit"`
	OutputTokenLimit        int `json:"outputTokenLimit"`
	StreamingTimeoutSeconds int `json:"streamingTimeoutSeconds"`
}

// KnowledgeBaseConfig identifies the managed knowledge base that backs
// retrieve and generate requests.
type KnowledgeBaseConfig struct {
	KnowledgeBaseID string `json:"knowledgeBaseID"`
	ModelArn        string `json:"modelArn"`
	NumberOfResults int    `json:"numberOfResults"`
}

// LanguageModelConfig is the per request model configuration.
type LanguageModelConfig struct {
	Model              string
	MaxGeneratedTokens int
}

// LanguageModelOption defines a function that configures a LanguageModelConfig
type LanguageModelOption func(*LanguageModelConfig)

// WithModel overrides the model used for a request.
func WithModel(model string) LanguageModelOption {
	return func(cfg *LanguageModelConfig) {
		cfg.Model = model
	}
}

// WithMaxGeneratedTokens overrides the output token limit for a request.
func WithMaxGeneratedTokens(maxTokens int) LanguageModelOption {
	return func(cfg *LanguageModelConfig) {
		cfg.MaxGeneratedTokens = maxTokens
	}
}
