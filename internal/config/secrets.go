package config

import (
	"context"
	"fmt"
	"os"
	"time"

	vault "github.com/hashicorp/vault/api"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// VaultConfig describes the optional Vault source for exchange credentials.
type VaultConfig struct {
	Enabled    bool
	Address    string
	Token      string
	MountPath  string // default "secret"
	SecretPath string // e.g. "perptrader/production"
}

// VaultClient wraps the HashiCorp Vault client for secrets management.
type VaultClient struct {
	client *vault.Client
	config VaultConfig
}

// NewVaultClient creates a token-authenticated Vault client.
func NewVaultClient(cfg VaultConfig) (*VaultClient, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("vault is not enabled in configuration")
	}

	vaultCfg := vault.DefaultConfig()
	vaultCfg.Address = cfg.Address

	client, err := vault.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if cfg.Token == "" {
		cfg.Token = os.Getenv("VAULT_TOKEN")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("VAULT_TOKEN not set for token authentication")
	}
	client.SetToken(cfg.Token)

	log.Info().
		Str("address", cfg.Address).
		Str("secret_path", cfg.SecretPath).
		Msg("Vault client initialized")

	return &VaultClient{client: client, config: cfg}, nil
}

// GetSecret retrieves a secret map from Vault. The path is relative to the
// configured SecretPath; KV v2 nesting is unwrapped.
func (vc *VaultClient) GetSecret(ctx context.Context, path string) (map[string]interface{}, error) {
	fullPath := fmt.Sprintf("%s/data/%s/%s", vc.config.MountPath, vc.config.SecretPath, path)

	secret, err := vc.client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret from Vault: %w", err)
	}
	if secret == nil {
		return nil, fmt.Errorf("secret not found at path: %s", fullPath)
	}

	if data, ok := secret.Data["data"].(map[string]interface{}); ok {
		return data, nil
	}
	return secret.Data, nil
}

// GetSecretString retrieves a single string value from Vault.
func (vc *VaultClient) GetSecretString(ctx context.Context, path string, key string) (string, error) {
	data, err := vc.GetSecret(ctx, path)
	if err != nil {
		return "", err
	}
	value, ok := data[key].(string)
	if !ok {
		return "", fmt.Errorf("secret key %q not found or not a string at path: %s", key, path)
	}
	return value, nil
}

// loadVaultCredentials fetches exchange API credentials from Vault when
// VAULT_ADDR is configured. Returns empty strings when Vault is not in use.
func loadVaultCredentials(v *viper.Viper, exchange string) (key, secret string, err error) {
	addr := v.GetString("vault_addr")
	if addr == "" {
		return "", "", nil
	}

	vc, err := NewVaultClient(VaultConfig{
		Enabled:    true,
		Address:    addr,
		Token:      v.GetString("vault_token"),
		MountPath:  getOrDefault(v, "vault_mount_path", "secret"),
		SecretPath: getOrDefault(v, "vault_secret_path", "perptrader"),
	})
	if err != nil {
		return "", "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	key, err = vc.GetSecretString(ctx, "exchange", exchange+"_api_key")
	if err != nil {
		return "", "", err
	}
	secret, err = vc.GetSecretString(ctx, "exchange", exchange+"_api_secret")
	if err != nil {
		return "", "", err
	}
	return key, secret, nil
}

func getOrDefault(v *viper.Viper, key, def string) string {
	if s := v.GetString(key); s != "" {
		return s
	}
	return def
}
