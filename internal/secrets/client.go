// Package secrets retrieves exchange API credentials for live
// tick-source adapters from HashiCorp Vault, grounded on the teacher's
// internal/vault/client.go. This bot is single-tenant (one operator, one
// set of exchange credentials per source) so the teacher's per-user KV
// layout collapses to one credential per source ID.
package secrets

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"polybot/internal/logging"
)

// Config mirrors the fields of the teacher's config.VaultConfig that
// this single-tenant client actually needs.
type Config struct {
	Enabled    bool
	Address    string
	Token      string
	MountPath  string // KV v2 mount, e.g. "secret"
	SecretPath string // e.g. "polybot/sources"
	TLSEnabled bool
	CACert     string
}

// Credentials is an exchange API key pair for a single live tick
// source.
type Credentials struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	Exchange  string `json:"exchange"`
}

// Client wraps the HashiCorp Vault client. When disabled, it serves
// credentials from an in-process cache only, matching the teacher's
// development/testing posture for VaultConfig.Enabled == false.
type Client struct {
	client *api.Client
	config Config

	mu    sync.RWMutex
	cache map[string]Credentials
}

// NewClient builds a Client. With Config.Enabled == false, no network
// connection is attempted and the client serves purely from whatever is
// seeded into its cache via Put.
func NewClient(cfg Config) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg, cache: make(map[string]Credentials)}, nil
	}

	vaultCfg := api.DefaultConfig()
	vaultCfg.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		if err := vaultCfg.ConfigureTLS(&api.TLSConfig{CACert: cfg.CACert}); err != nil {
			return nil, fmt.Errorf("secrets: configure tls: %w", err)
		}
	}

	client, err := api.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("secrets: new vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{client: client, config: cfg, cache: make(map[string]Credentials)}, nil
}

func (c *Client) path(sourceID string) string {
	return fmt.Sprintf("%s/data/%s/%s", c.config.MountPath, c.config.SecretPath, sourceID)
}

// Put seeds or overwrites a source's credentials in Vault (or, when
// disabled, the local cache only).
func (c *Client) Put(ctx context.Context, sourceID string, creds Credentials) error {
	if !c.config.Enabled {
		c.mu.Lock()
		c.cache[sourceID] = creds
		c.mu.Unlock()
		return nil
	}

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"api_key":    creds.APIKey,
			"api_secret": creds.APISecret,
			"exchange":   creds.Exchange,
		},
	}
	if _, err := c.client.Logical().WriteWithContext(ctx, c.path(sourceID), secretData); err != nil {
		return fmt.Errorf("secrets: write %s: %w", sourceID, err)
	}

	c.mu.Lock()
	c.cache[sourceID] = creds
	c.mu.Unlock()
	return nil
}

// Get returns a source's credentials, checking the local cache before
// round-tripping to Vault.
func (c *Client) Get(ctx context.Context, sourceID string) (Credentials, error) {
	c.mu.RLock()
	if creds, ok := c.cache[sourceID]; ok {
		c.mu.RUnlock()
		return creds, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return Credentials{}, fmt.Errorf("secrets: no credentials cached for %q and vault is disabled", sourceID)
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.path(sourceID))
	if err != nil {
		return Credentials{}, fmt.Errorf("secrets: read %s: %w", sourceID, err)
	}
	if secret == nil || secret.Data == nil {
		return Credentials{}, fmt.Errorf("secrets: no credentials found for %q", sourceID)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return Credentials{}, fmt.Errorf("secrets: unexpected secret shape for %q", sourceID)
	}

	creds := Credentials{
		APIKey:    stringField(data, "api_key"),
		APISecret: stringField(data, "api_secret"),
		Exchange:  stringField(data, "exchange"),
	}

	c.mu.Lock()
	c.cache[sourceID] = creds
	c.mu.Unlock()

	logging.WithComponent("secrets").Info("loaded exchange credentials", "source_id", sourceID, "exchange", creds.Exchange)
	return creds, nil
}

func stringField(data map[string]interface{}, key string) string {
	if v, ok := data[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
