// Package secrets loads service credentials from HashiCorp Vault at
// startup. With Vault disabled the config/env values are used as-is.
package secrets

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault/api"

	"kcu-coach-engine/config"
)

// Secrets holds the credentials this service needs at runtime.
type Secrets struct {
	MarketAPIKey string
	JWTSecret    string
}

// Client wraps the HashiCorp Vault client for startup secret loading.
type Client struct {
	client *api.Client
	config config.VaultConfig
}

// NewClient creates a Vault client. With Vault disabled it returns a
// client whose Load yields empty secrets.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{client: client, config: cfg}, nil
}

// Load reads the service secrets from the KV v2 engine. Missing fields
// come back empty so config/env values stay in effect.
func (c *Client) Load(ctx context.Context) (Secrets, error) {
	if !c.config.Enabled {
		return Secrets{}, nil
	}

	path := fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)

	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return Secrets{}, fmt.Errorf("failed to read secrets from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return Secrets{}, fmt.Errorf("no secret found at %s", path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return Secrets{}, fmt.Errorf("unexpected secret format at %s", path)
	}

	return Secrets{
		MarketAPIKey: stringField(data, "market_api_key"),
		JWTSecret:    stringField(data, "jwt_secret"),
	}, nil
}

func stringField(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
