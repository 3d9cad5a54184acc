// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package bedrock

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattermost/bedrock-kb-client/llm"
)

func TestConversationToMessages(t *testing.T) {
	t.Run("system and user messages", func(t *testing.T) {
		posts := []llm.Post{
			{Role: llm.PostRoleSystem, Message: "You are a helpful assistant."},
			{Role: llm.PostRoleUser, Message: "Hello!"},
		}

		system, messages := conversationToMessages(posts)

		require.Len(t, system, 1)
		require.Len(t, messages, 1)

		// Check system message
		systemText, ok := system[0].(*types.SystemContentBlockMemberText)
		require.True(t, ok)
		assert.Equal(t, "You are a helpful assistant.", systemText.Value)

		// Check user message
		assert.Equal(t, types.ConversationRoleUser, messages[0].Role)
		require.Len(t, messages[0].Content, 1)
		contentText, ok := messages[0].Content[0].(*types.ContentBlockMemberText)
		require.True(t, ok)
		assert.Equal(t, "Hello!", contentText.Value)
	})

	t.Run("alternating user and assistant messages", func(t *testing.T) {
		posts := []llm.Post{
			{Role: llm.PostRoleUser, Message: "Hello!"},
			{Role: llm.PostRoleBot, Message: "Hi there!"},
			{Role: llm.PostRoleUser, Message: "How are you?"},
			{Role: llm.PostRoleBot, Message: "I'm doing well!"},
		}

		system, messages := conversationToMessages(posts)

		require.Len(t, system, 0)
		require.Len(t, messages, 4)

		assert.Equal(t, types.ConversationRoleUser, messages[0].Role)
		assert.Equal(t, types.ConversationRoleAssistant, messages[1].Role)
		assert.Equal(t, types.ConversationRoleUser, messages[2].Role)
		assert.Equal(t, types.ConversationRoleAssistant, messages[3].Role)
	})

	t.Run("consecutive same-role messages are merged", func(t *testing.T) {
		posts := []llm.Post{
			{Role: llm.PostRoleUser, Message: "Hello!"},
			{Role: llm.PostRoleUser, Message: "Anyone there?"},
		}

		system, messages := conversationToMessages(posts)

		require.Len(t, system, 0)
		require.Len(t, messages, 1)

		assert.Equal(t, types.ConversationRoleUser, messages[0].Role)
		require.Len(t, messages[0].Content, 2)
	})

	t.Run("unknown roles are skipped", func(t *testing.T) {
		posts := []llm.Post{
			{Role: "moderator", Message: "should be dropped"},
			{Role: llm.PostRoleUser, Message: "Hello!"},
		}

		system, messages := conversationToMessages(posts)

		require.Len(t, system, 0)
		require.Len(t, messages, 1)
		require.Len(t, messages[0].Content, 1)
	})
}

func TestGetDefaultConfig(t *testing.T) {
	b := &Bedrock{defaultModel: "test-model", outputTokenLimit: 4096}
	config := b.GetDefaultConfig()
	assert.Equal(t, "test-model", config.Model)
	assert.Equal(t, 4096, config.MaxGeneratedTokens)

	b2 := &Bedrock{defaultModel: "test-model", outputTokenLimit: 0}
	config2 := b2.GetDefaultConfig()
	assert.Equal(t, DefaultMaxTokens, config2.MaxGeneratedTokens)
}

func TestCreateConfig(t *testing.T) {
	b := &Bedrock{defaultModel: "default-model", outputTokenLimit: 1024}

	cfg := b.createConfig([]llm.LanguageModelOption{
		llm.WithModel("override-model"),
		llm.WithMaxGeneratedTokens(256),
	})

	assert.Equal(t, "override-model", cfg.Model)
	assert.Equal(t, 256, cfg.MaxGeneratedTokens)
}

func TestInputTokenLimit(t *testing.T) {
	// Custom limit takes precedence
	b := &Bedrock{inputTokenLimit: 150000}
	assert.Equal(t, 150000, b.InputTokenLimit())

	// Default limit when not configured
	b2 := &Bedrock{inputTokenLimit: 0}
	assert.Equal(t, 200000, b2.InputTokenLimit())
}

func TestCountTokens(t *testing.T) {
	b := &Bedrock{}

	// CountTokens uses: (len(text)/4.0 + len(Fields)/0.75) / 2.0
	assert.Equal(t, 0, b.CountTokens(""))
	assert.Equal(t, 2, b.CountTokens("Hello world"))
	assert.Equal(t, 12, b.CountTokens("This is a longer piece of text with more words"))
}
