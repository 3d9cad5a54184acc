// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package llm

// PostRole identifies who authored a post in the conversation.
type PostRole string

const (
	PostRoleSystem PostRole = "system"
	PostRoleUser   PostRole = "user"
	PostRoleBot    PostRole = "assistant"
)

// Post represents a single message in the conversation
type Post struct {
	Role    PostRole `json:"role"`
	Message string   `json:"message"`
}

// CompletionRequest represents a completion request
type CompletionRequest struct {
	Posts []Post `json:"posts"`
}
