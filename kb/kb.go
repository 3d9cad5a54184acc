// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package kb queries an Amazon Bedrock knowledge base through the managed
// retrieve and generate API and converts its responses into typed records.
package kb

import (
	"context"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
	"github.com/aws/smithy-go/auth/bearer"
	"github.com/pkg/errors"

	"github.com/mattermost/bedrock-kb-client/llm"
	"github.com/mattermost/bedrock-kb-client/logger"
	"github.com/mattermost/bedrock-kb-client/metrics"
)

const DefaultNumberOfResults = 5

// Session carries the retrieve and generate session across calls so follow-up
// questions keep their conversational context. The zero value starts a new
// session; the service fills in ID with the first answer. Sessions are owned
// by the caller, never stored in the client.
type Session struct {
	ID string
}

type Client struct {
	client          *bedrockagentruntime.Client
	knowledgeBaseID string
	modelArn        string
	numberOfResults int32
	log             logger.Logger
	llmMetrics      metrics.LLMetrics
}

func New(llmService llm.ServiceConfig, kbConfig llm.KnowledgeBaseConfig, httpClient *http.Client, log logger.Logger, llmMetrics metrics.LLMetrics) (*Client, error) {
	if kbConfig.KnowledgeBaseID == "" {
		return nil, errors.New("knowledge base ID is required")
	}
	if kbConfig.ModelArn == "" {
		return nil, errors.New("knowledge base model ARN is required")
	}

	configOpts := []func(*config.LoadOptions) error{
		config.WithRegion(llmService.Region),
		config.WithHTTPClient(httpClient),
	}

	// Same authentication priority as the runtime client: IAM credentials >
	// Bearer token (API key) > default credential chain.
	var clientOpts []func(*bedrockagentruntime.Options)

	if llmService.AWSAccessKeyID != "" && llmService.AWSSecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			aws.NewCredentialsCache(
				credentials.NewStaticCredentialsProvider(
					llmService.AWSAccessKeyID,
					llmService.AWSSecretAccessKey,
					"",
				),
			),
		))
	} else if llmService.APIKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(aws.AnonymousCredentials{}))

		clientOpts = append(clientOpts, func(o *bedrockagentruntime.Options) {
			o.Credentials = aws.AnonymousCredentials{}
			o.BearerAuthTokenProvider = bearer.TokenProviderFunc(func(ctx context.Context) (bearer.Token, error) {
				return bearer.Token{Value: llmService.APIKey}, nil
			})
			o.AuthSchemePreference = []string{"httpBearerAuth"}
		})
	}

	cfg, err := config.LoadDefaultConfig(context.Background(), configOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	if llmService.APIURL != "" {
		clientOpts = append(clientOpts, func(o *bedrockagentruntime.Options) {
			o.BaseEndpoint = aws.String(llmService.APIURL)
		})
	}

	numberOfResults := kbConfig.NumberOfResults
	if numberOfResults <= 0 {
		numberOfResults = DefaultNumberOfResults
	}
	if numberOfResults > 100 {
		return nil, errors.Errorf("number of results %d exceeds the API maximum of 100", numberOfResults)
	}

	return &Client{
		client:          bedrockagentruntime.NewFromConfig(cfg, clientOpts...),
		knowledgeBaseID: kbConfig.KnowledgeBaseID,
		modelArn:        kbConfig.ModelArn,
		numberOfResults: int32(numberOfResults), //nolint:gosec // G115: Range checked above
		log:             log,
		llmMetrics:      llmMetrics,
	}, nil
}

// RetrieveAndGenerate sends the query to the knowledge base and returns the
// generated answer with its citations. When session is non-nil the call joins
// that session and the session ID from the response is written back to it.
func (c *Client) RetrieveAndGenerate(ctx context.Context, query string, session *Session) (*Answer, error) {
	if query == "" {
		return nil, errors.New("query must not be empty")
	}

	params := &bedrockagentruntime.RetrieveAndGenerateInput{
		Input: &types.RetrieveAndGenerateInput{
			Text: aws.String(query),
		},
		RetrieveAndGenerateConfiguration: &types.RetrieveAndGenerateConfiguration{
			Type: types.RetrieveAndGenerateTypeKnowledgeBase,
			KnowledgeBaseConfiguration: &types.KnowledgeBaseRetrieveAndGenerateConfiguration{
				KnowledgeBaseId: aws.String(c.knowledgeBaseID),
				ModelArn:        aws.String(c.modelArn),
				RetrievalConfiguration: &types.KnowledgeBaseRetrievalConfiguration{
					VectorSearchConfiguration: &types.KnowledgeBaseVectorSearchConfiguration{
						NumberOfResults: aws.Int32(c.numberOfResults),
					},
				},
			},
		},
	}
	if session != nil && session.ID != "" {
		params.SessionId = aws.String(session.ID)
	}

	if c.llmMetrics != nil {
		c.llmMetrics.IncrementLLMRequests()
	}

	resp, err := c.client.RetrieveAndGenerate(ctx, params)
	if err != nil {
		if c.llmMetrics != nil {
			c.llmMetrics.IncrementLLMErrors()
		}
		return nil, errors.Wrap(err, "retrieve and generate request failed")
	}

	answer, err := answerFromResponse(resp, c.log)
	if err != nil {
		return nil, err
	}

	if session != nil {
		session.ID = answer.SessionID
	}

	if c.log != nil {
		c.log.Debug("knowledge base answered",
			"knowledge_base_id", c.knowledgeBaseID,
			"session_id", answer.SessionID,
			"citations", len(answer.Citations),
		)
	}

	return answer, nil
}
