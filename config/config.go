// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/mattermost/bedrock-kb-client/llm"
)

type Config struct {
	Services           []llm.ServiceConfig     `json:"services"`
	KnowledgeBase      llm.KnowledgeBaseConfig `json:"knowledgeBase"`
	DefaultServiceName string                  `json:"defaultServiceName"`
	LogLevel           string                  `json:"logLevel"`
	EnableLLMTrace     bool                    `json:"enableLLMTrace"`
}

func (c *Config) Clone() *Config {
	clone, err := DeepCopyJSON(*c)
	if err != nil {
		panic(fmt.Sprintf("failed to clone configuration: %v", err))
	}

	return &clone
}

// GetServiceByName returns the service configuration for the given name
func (c *Config) GetServiceByName(name string) (llm.ServiceConfig, bool) {
	for i := range c.Services {
		if c.Services[i].Name == name {
			return c.Services[i], true
		}
	}
	return llm.ServiceConfig{}, false
}

// DefaultService resolves the configured default service, falling back to the
// only service when just one is configured.
func (c *Config) DefaultService() (llm.ServiceConfig, error) {
	if c.DefaultServiceName != "" {
		service, ok := c.GetServiceByName(c.DefaultServiceName)
		if !ok {
			return llm.ServiceConfig{}, errors.Errorf("default service %q is not configured", c.DefaultServiceName)
		}
		return service, nil
	}
	if len(c.Services) == 1 {
		return c.Services[0], nil
	}
	return llm.ServiceConfig{}, errors.New("no default service configured")
}

// Load reads the configuration file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config file %s", path)
		}
	}

	cfg.applyEnvironment()

	return cfg, nil
}

// applyEnvironment overlays environment variables onto the file configuration.
// When no service is configured at all, a single service named "bedrock" is
// synthesized from the environment.
func (c *Config) applyEnvironment() {
	if len(c.Services) == 0 {
		c.Services = []llm.ServiceConfig{{Name: "bedrock"}}
		c.DefaultServiceName = "bedrock"
	}

	for i := range c.Services {
		service := &c.Services[i]
		if v := os.Getenv("AWS_REGION"); v != "" && service.Region == "" {
			service.Region = v
		}
		if v := os.Getenv("BEDROCK_MODEL_ID"); v != "" && service.DefaultModel == "" {
			service.DefaultModel = v
		}
	}

	if v := os.Getenv("BEDROCK_KB_ID"); v != "" && c.KnowledgeBase.KnowledgeBaseID == "" {
		c.KnowledgeBase.KnowledgeBaseID = v
	}
	if v := os.Getenv("BEDROCK_KB_MODEL_ARN"); v != "" && c.KnowledgeBase.ModelArn == "" {
		c.KnowledgeBase.ModelArn = v
	}
	if v := os.Getenv("BEDROCK_KB_NUM_RESULTS"); v != "" && c.KnowledgeBase.NumberOfResults == 0 {
		if n, err := strconv.Atoi(v); err == nil {
			c.KnowledgeBase.NumberOfResults = n
		}
	}
}

func DeepCopyJSON[T any](origin T) (T, error) {
	var copied T

	data, err := json.Marshal(origin)
	if err != nil {
		return copied, err
	}
	if err := json.Unmarshal(data, &copied); err != nil {
		return copied, err
	}

	return copied, nil
}
