package store

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Credential holds the app-only certificate material for one tenant domain.
// Registered per domain, not per site: every site under
// contoso.sharepoint.com authenticates with the contoso entry.
type Credential struct {
	Domain       string `json:"domain"` // e.g. "contoso.sharepoint.com"
	TenantID     string `json:"tenant_id"`
	ClientID     string `json:"client_id"`
	CertPath     string `json:"cert_path"`
	CertPassword string `json:"cert_password"`
}

// Validate checks the credential carries enough to authenticate.
func (c Credential) Validate() error {
	if c.Domain == "" {
		return fmt.Errorf("credential missing domain")
	}
	if c.TenantID == "" {
		return fmt.Errorf("credential for %s missing tenant_id", c.Domain)
	}
	if c.ClientID == "" {
		return fmt.Errorf("credential for %s missing client_id", c.Domain)
	}
	if c.CertPath == "" {
		return fmt.Errorf("credential for %s missing cert_path", c.Domain)
	}
	return nil
}

// CredentialStore is the in-memory registry of tenant credentials, keyed by
// lowercase domain.
type CredentialStore struct {
	byDomain map[string]Credential
}

type credentialFile struct {
	Credentials []Credential `json:"credentials"`
}

// LoadCredentialStore reads the credential registry from a JSON file.
func LoadCredentialStore(path string) (*CredentialStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	var file credentialFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode credentials file: %w", err)
	}

	return NewCredentialStore(file.Credentials)
}

// NewCredentialStore builds a registry from validated credentials.
func NewCredentialStore(creds []Credential) (*CredentialStore, error) {
	byDomain := make(map[string]Credential, len(creds))
	for _, cred := range creds {
		if err := cred.Validate(); err != nil {
			return nil, err
		}
		byDomain[strings.ToLower(cred.Domain)] = cred
	}
	return &CredentialStore{byDomain: byDomain}, nil
}

// ForDomain looks up the credential for a tenant domain.
func (s *CredentialStore) ForDomain(domain string) (Credential, bool) {
	cred, ok := s.byDomain[strings.ToLower(domain)]
	return cred, ok
}

// ForURL resolves the tenant domain of a site URL and looks up its
// credential.
func (s *CredentialStore) ForURL(siteURL string) (Credential, bool) {
	domain, err := DomainOf(siteURL)
	if err != nil {
		return Credential{}, false
	}
	return s.ForDomain(domain)
}

// DomainOf extracts the tenant domain (hostname) from a site URL.
func DomainOf(siteURL string) (string, error) {
	u, err := url.Parse(siteURL)
	if err != nil {
		return "", fmt.Errorf("parse site URL %q: %w", siteURL, err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("site URL %q has no host", siteURL)
	}
	return host, nil
}
