// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package config

import "github.com/pkg/errors"

// Validate checks the parts of the configuration every command needs.
func (c *Config) Validate() error {
	if len(c.Services) == 0 {
		return errors.New("at least one service must be configured")
	}

	seen := make(map[string]bool, len(c.Services))
	for _, service := range c.Services {
		if service.Name == "" {
			return errors.New("every service needs a name")
		}
		if seen[service.Name] {
			return errors.Errorf("duplicate service name %q", service.Name)
		}
		seen[service.Name] = true

		if service.Region == "" {
			return errors.Errorf("service %q has no AWS region", service.Name)
		}
		if service.AWSAccessKeyID != "" && service.AWSSecretAccessKey == "" {
			return errors.Errorf("service %q has an access key ID but no secret access key", service.Name)
		}
	}

	if c.DefaultServiceName != "" && !seen[c.DefaultServiceName] {
		return errors.Errorf("default service %q is not configured", c.DefaultServiceName)
	}

	return nil
}

// ValidateKnowledgeBase checks the fields the ask command needs on top of
// Validate.
func (c *Config) ValidateKnowledgeBase() error {
	if c.KnowledgeBase.KnowledgeBaseID == "" {
		return errors.New("knowledge base ID is not configured (set knowledgeBase.knowledgeBaseID or BEDROCK_KB_ID)")
	}
	if c.KnowledgeBase.ModelArn == "" {
		return errors.New("knowledge base model ARN is not configured (set knowledgeBase.modelArn or BEDROCK_KB_MODEL_ARN)")
	}
	if c.KnowledgeBase.NumberOfResults < 0 {
		return errors.New("knowledge base numberOfResults must not be negative")
	}
	return nil
}
