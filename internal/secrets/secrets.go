package secrets

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// Store fetches a named secret blob. The production implementation is AWS
// Secrets Manager; tests substitute a stub.
type Store interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// Name builds the per-environment, per-component secret name,
// e.g. "signalscore/prod/engine".
func Name(service, env, component string) string {
	return fmt.Sprintf("%s/%s/%s", service, env, component)
}

type Manager struct {
	client *secretsmanager.Client
}

func NewManager(ctx context.Context) (*Manager, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Manager{client: secretsmanager.NewFromConfig(awsCfg)}, nil
}

func (m *Manager) Fetch(ctx context.Context, name string) ([]byte, error) {
	out, err := m.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &name,
	})
	if err != nil {
		return nil, fmt.Errorf("get secret %q: %w", name, err)
	}
	if out.SecretString != nil {
		return []byte(*out.SecretString), nil
	}
	return out.SecretBinary, nil
}
