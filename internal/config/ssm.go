package config

import (
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/aws/aws-sdk-go/service/ssm/ssmiface"
)

// NewSSMClient creates an SSM client from the default AWS session chain.
func NewSSMClient(region string) (ssmiface.SSMAPI, error) {
	cfg := aws.NewConfig()
	if region != "" {
		cfg = cfg.WithRegion(region)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return ssm.New(sess), nil
}

// ApplySSMSecrets overrides secret fields with parameters stored under
// cfg.SSMParameterPrefix, e.g. /concierge/prod/verify-token.
// Parameters that are absent leave the environment value untouched.
func ApplySSMSecrets(cfg *Config, svc ssmiface.SSMAPI) error {
	if cfg.SSMParameterPrefix == "" {
		return nil
	}

	values := make(map[string]string)
	input := &ssm.GetParametersByPathInput{
		Path:           aws.String(cfg.SSMParameterPrefix),
		WithDecryption: aws.Bool(true),
		Recursive:      aws.Bool(false),
	}
	err := svc.GetParametersByPathPages(input, func(page *ssm.GetParametersByPathOutput, lastPage bool) bool {
		for _, p := range page.Parameters {
			if p == nil || p.Name == nil || p.Value == nil {
				continue
			}
			values[path.Base(*p.Name)] = strings.TrimSpace(*p.Value)
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("failed to get parameters under %s: %w", cfg.SSMParameterPrefix, err)
	}

	targets := map[string]*string{
		"verify-token":    &cfg.VerifyToken,
		"whatsapp-token":  &cfg.WhatsAppToken,
		"phone-number-id": &cfg.PhoneNumberID,
		"app-secret":      &cfg.AppSecret,
		"openai-api-key":  &cfg.OpenAIAPIKey,
		"database-url":    &cfg.DatabaseURL,
	}
	for name, field := range targets {
		if v, ok := values[name]; ok && v != "" {
			*field = v
		}
	}
	if v, ok := values["gemini-api-keys"]; ok && v != "" {
		cfg.GeminiAPIKeys = splitCSV(v)
	}

	return nil
}

// Load reads the environment, overlays SSM secrets when a prefix is set and
// validates the result.
func Load() (*Config, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.SSMParameterPrefix == "" {
		return cfg, nil
	}

	svc, err := NewSSMClient(cfg.AWSRegion)
	if err != nil {
		return nil, err
	}
	if err := finishWithSSM(cfg, svc); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finishWithSSM applies the overlay, then settles defaults that depend on
// secrets and validates.
func finishWithSSM(cfg *Config, svc ssmiface.SSMAPI) error {
	if err := ApplySSMSecrets(cfg, svc); err != nil {
		return err
	}
	cfg.resolveStoreBackend()
	return cfg.Validate()
}
