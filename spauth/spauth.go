package spauth

import (
	"fmt"
	"os"

	"github.com/koltyakov/gosip"
	"github.com/koltyakov/gosip/auth/azurecert"
)

// AuthRequiredError signals that no credential is registered for a tenant
// domain. The orchestrator uses it to skip every pair touching that domain
// instead of failing them one by one.
type AuthRequiredError struct {
	Domain string
}

func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf("authentication required for domain %s: no credential registered", e.Domain)
}

// Config holds the app-only certificate auth settings for one site.
type Config struct {
	SiteURL      string
	TenantID     string
	ClientID     string
	CertPath     string
	CertPassword string
}

// FromEnv builds a single-site config from environment variables. Used by
// the one-site commands (permission audit, navigation); multi-tenant runs
// resolve configs from the credential registry instead.
func FromEnv(siteURL string) (Config, error) {
	cfg := Config{
		SiteURL:      siteURL,
		TenantID:     os.Getenv("SP_TENANT_ID"),
		ClientID:     os.Getenv("SP_CLIENT_ID"),
		CertPath:     os.Getenv("SP_CERT_PATH"),
		CertPassword: os.Getenv("SP_CERT_PASSWORD"),
	}
	if cfg.SiteURL == "" {
		cfg.SiteURL = os.Getenv("SP_SITE_URL")
	}

	if cfg.SiteURL == "" || cfg.TenantID == "" || cfg.ClientID == "" || cfg.CertPath == "" {
		return cfg, fmt.Errorf("missing required configuration: SP_SITE_URL, SP_TENANT_ID, SP_CLIENT_ID, SP_CERT_PATH")
	}
	return cfg, nil
}

// NewClient creates an authenticated gosip client for the configured site.
func NewClient(cfg Config) (*gosip.SPClient, error) {
	ac := &azurecert.AuthCnfg{
		SiteURL:  cfg.SiteURL,
		TenantID: cfg.TenantID,
		ClientID: cfg.ClientID,
		CertPath: cfg.CertPath,
		CertPass: cfg.CertPassword,
	}
	client := &gosip.SPClient{AuthCnfg: ac}
	return client, nil
}
