package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// SecretsManagerAPI is the subset of *secretsmanager.Client used here.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManager resolves secret names (or ARNs) through AWS Secrets Manager.
type SecretsManager struct {
	client SecretsManagerAPI
}

// NewSecretsManager wraps a Secrets Manager client, typically
// secretsmanager.NewFromConfig(awsCfg).
func NewSecretsManager(client SecretsManagerAPI) *SecretsManager {
	return &SecretsManager{client: client}
}

// GetSecret fetches the current version of the secret.
//
// Generated secrets are plain strings. A secret stored as a JSON object with
// exactly one string field (the console's key/value form) is unwrapped to
// that value.
func (s *SecretsManager) GetSecret(ctx context.Context, name string) ([]byte, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		var rnf *types.ResourceNotFoundException
		if errors.As(err, &rnf) {
			return nil, fmt.Errorf("secrets: %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("secrets: fetching %q: %w", name, err)
	}

	var raw []byte
	switch {
	case out.SecretString != nil:
		raw = []byte(*out.SecretString)
	case len(out.SecretBinary) > 0:
		raw = out.SecretBinary
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("secrets: %q is empty: %w", name, ErrNotFound)
	}

	return unwrapSingleField(raw), nil
}

func unwrapSingleField(raw []byte) []byte {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil || len(obj) != 1 {
		return raw
	}
	for _, v := range obj {
		if s, ok := v.(string); ok && s != "" {
			return []byte(s)
		}
	}
	return raw
}
