// Package secrets resolves credentials stored in AWS Secrets Manager.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

var ErrEmptySecret = errors.New("secret has no string value")

// API is the subset of the Secrets Manager client used here.
type API interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type Provider struct {
	api API
}

// NewProvider loads the default AWS configuration (env, shared config,
// instance role).
func NewProvider(ctx context.Context) (*Provider, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewProviderWithAPI(secretsmanager.NewFromConfig(cfg)), nil
}

func NewProviderWithAPI(api API) *Provider {
	return &Provider{api: api}
}

// Password returns the secret's string value. A JSON object secret is
// accepted too, in which case its "password" field is used.
func (p *Provider) Password(ctx context.Context, secretID string) (string, error) {
	out, err := p.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", fmt.Errorf("get secret %s: %w", secretID, err)
	}
	value := strings.TrimSpace(aws.ToString(out.SecretString))
	if value == "" {
		return "", ErrEmptySecret
	}

	if strings.HasPrefix(value, "{") {
		var obj struct {
			Password string `json:"password"`
		}
		if err := json.Unmarshal([]byte(value), &obj); err != nil {
			return "", fmt.Errorf("decode secret %s: %w", secretID, err)
		}
		if obj.Password == "" {
			return "", ErrEmptySecret
		}
		return obj.Password, nil
	}
	return value, nil
}
