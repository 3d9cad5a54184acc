// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mattermost/bedrock-kb-client/bedrock"
	"github.com/mattermost/bedrock-kb-client/citations"
	"github.com/mattermost/bedrock-kb-client/config"
	"github.com/mattermost/bedrock-kb-client/kb"
	"github.com/mattermost/bedrock-kb-client/llm"
	"github.com/mattermost/bedrock-kb-client/logger"
	"github.com/mattermost/bedrock-kb-client/metrics"
)

const version = "0.1.0"

const defaultStreamingTimeoutSeconds = 120

var (
	configPath string
	logLevel   string

	// Flags for ask command
	sessionID  string
	plain      bool
	numResults int

	// Flags for chat command
	systemPrompt string
	model        string
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "kbquery",
		Short: "Query an Amazon Bedrock knowledge base from the command line",
		Long: `kbquery asks questions against a Bedrock knowledge base using the managed
retrieve and generate API, annotates the answers with inline citation markers,
and can also hold a plain Converse API conversation with a Bedrock model.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the JSON configuration file (environment variables fill any gaps)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	var askCmd = &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the knowledge base a question and print the cited answer",
		Long: `Ask sends the question through the retrieve and generate API, splices
citation markers into the generated answer, and prints the answer followed by
the numbered reference lines.`,
		Example: `  kbquery ask "How should I diversify my portfolio?"
  kbquery ask --session 0910c59d "And how often should I rebalance?"
  kbquery ask --plain "What is a bond ladder?"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), args[0])
		},
	}
	askCmd.Flags().StringVar(&sessionID, "session", "", "Continue an existing retrieve and generate session")
	askCmd.Flags().BoolVar(&plain, "plain", false, "Print the answer without citation markers")
	askCmd.Flags().IntVar(&numResults, "num-results", 0, "Number of passages to retrieve (default from configuration)")

	var chatCmd = &cobra.Command{
		Use:   "chat <message...>",
		Short: "Send one message to a Bedrock model over the Converse API",
		Example: `  kbquery chat "Explain dollar cost averaging"
  kbquery chat --system "Answer like a pirate" "What is compound interest?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(strings.Join(args, " "))
		},
	}
	chatCmd.Flags().StringVar(&systemPrompt, "system", "", "System prompt for the conversation")
	chatCmd.Flags().StringVar(&model, "model", "", "Model ID override")

	rootCmd.AddCommand(askCmd, chatCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type app struct {
	cfg     *config.Config
	service llm.ServiceConfig
	log     logger.Logger
	metrics metrics.Metrics
}

func setup() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	service, err := cfg.DefaultService()
	if err != nil {
		return nil, err
	}

	level := logLevel
	if level == "" {
		level = cfg.LogLevel
	}

	return &app{
		cfg:     cfg,
		service: service,
		log:     logger.New(os.Stderr, level),
		metrics: metrics.NewMetrics(metrics.InstanceInfo{Version: version}),
	}, nil
}

func (a *app) httpClient() *http.Client {
	timeout := a.service.StreamingTimeoutSeconds
	if timeout <= 0 {
		timeout = defaultStreamingTimeoutSeconds
	}
	return &http.Client{Timeout: time.Duration(timeout) * time.Second}
}

func runAsk(ctx context.Context, question string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	if err := a.cfg.ValidateKnowledgeBase(); err != nil {
		return err
	}

	kbConfig := a.cfg.KnowledgeBase
	if numResults > 0 {
		kbConfig.NumberOfResults = numResults
	}

	client, err := kb.New(a.service, kbConfig, a.httpClient(), a.log, a.metrics.GetMetricsForAIService(a.service.Name))
	if err != nil {
		return err
	}

	requestID := uuid.New().String()
	a.log.Info("asking knowledge base",
		"request_id", requestID,
		"knowledge_base_id", kbConfig.KnowledgeBaseID,
		"session_id", sessionID,
	)

	session := &kb.Session{ID: sessionID}
	answer, err := client.RetrieveAndGenerate(ctx, question, session)
	if err != nil {
		a.log.Error("knowledge base query failed", "request_id", requestID, "error", err)
		return err
	}

	annotated, err := citations.Annotate(answer.Text, answer.Citations)
	if err != nil {
		a.log.Error("citation annotation failed", "request_id", requestID, "error", err)
		return err
	}
	a.metrics.ObserveAnnotatedAnswer(len(annotated.ReferenceLines))

	if plain {
		fmt.Println(citations.StripMarkers(annotated.Text))
	} else {
		fmt.Println(annotated.Text)
	}

	if len(annotated.ReferenceLines) > 0 {
		fmt.Println()
		fmt.Println(strings.Join(annotated.ReferenceLines, "\n"))
	}

	a.log.Info("answer printed",
		"request_id", requestID,
		"session_id", session.ID,
		"references", len(annotated.ReferenceLines),
	)
	fmt.Fprintf(os.Stderr, "\nSession: %s (pass --session to continue)\n", session.ID)

	return nil
}

func runChat(message string) error {
	a, err := setup()
	if err != nil {
		return err
	}

	client, err := bedrock.New(a.service, a.httpClient())
	if err != nil {
		return err
	}

	var posts []llm.Post
	if systemPrompt != "" {
		posts = append(posts, llm.Post{Role: llm.PostRoleSystem, Message: systemPrompt})
	}
	posts = append(posts, llm.Post{Role: llm.PostRoleUser, Message: message})

	var opts []llm.LanguageModelOption
	if model != "" {
		opts = append(opts, llm.WithModel(model))
	}

	requestID := uuid.New().String()
	a.log.Info("starting conversation",
		"request_id", requestID,
		"model", client.GetDefaultConfig().Model,
		"input_tokens_estimate", client.CountTokens(message),
	)

	if a.cfg.EnableLLMTrace {
		for i, post := range posts {
			a.log.Debug("llm request post", "request_id", requestID, "index", i, "role", string(post.Role), "message", post.Message)
		}
	}

	serviceMetrics := a.metrics.GetMetricsForAIService(a.service.Name)
	serviceMetrics.IncrementLLMRequests()

	result, err := client.ChatCompletion(llm.CompletionRequest{Posts: posts}, opts...)
	if err != nil {
		serviceMetrics.IncrementLLMErrors()
		return err
	}

	for event := range result.Stream {
		switch event.Type {
		case llm.EventTypeText:
			if chunk, ok := event.Value.(string); ok {
				fmt.Print(chunk)
			}
		case llm.EventTypeUsage:
			if usage, ok := event.Value.(llm.TokenUsage); ok {
				a.metrics.ObserveTokenUsage(a.service.Name, usage.InputTokens, usage.OutputTokens)
				a.log.Debug("token usage",
					"request_id", requestID,
					"input_tokens", usage.InputTokens,
					"output_tokens", usage.OutputTokens,
				)
			}
		case llm.EventTypeError:
			serviceMetrics.IncrementLLMErrors()
			if streamErr, ok := event.Value.(error); ok {
				return streamErr
			}
			return fmt.Errorf("model stream failed")
		case llm.EventTypeEnd:
			fmt.Println()
		}
	}

	return nil
}
