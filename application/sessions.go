package application

import (
	"context"
	"strings"
	"sync"

	"github.com/koltyakov/gosip/api"

	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/domain/task"
	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/infrastructure/spclient"
	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/infrastructure/spcollect"
	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/infrastructure/store"
	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/logging"
	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/spauth"
)

// Session bundles the per-site access objects one side of a pair needs.
type Session struct {
	Client  spcollect.SiteAPI
	Fetcher spcollect.ItemEnumerator
	Checker spcollect.FlagChecker
}

// SessionFactory resolves a site URL into an authenticated session. A site
// whose tenant domain has no registered credential yields
// *spauth.AuthRequiredError.
type SessionFactory interface {
	SessionFor(ctx context.Context, siteURL string) (*Session, error)
}

// GosipSessionFactory builds gosip-backed sessions from the credential
// registry. Sessions are cached per site so the two or more pairs touching
// the same site share one authenticated client.
type GosipSessionFactory struct {
	creds  *store.CredentialStore
	params *task.TaskParameters
	logger *logging.Logger

	mu        sync.Mutex
	cache     map[string]*Session
	executors []*spclient.ThrottleExecutor
}

// NewGosipSessionFactory creates a session factory.
func NewGosipSessionFactory(creds *store.CredentialStore, params *task.TaskParameters, logger *logging.Logger) *GosipSessionFactory {
	if params == nil {
		params = task.DefaultParameters()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &GosipSessionFactory{
		creds:  creds,
		params: params,
		logger: logger,
		cache:  make(map[string]*Session),
	}
}

// SessionFor resolves or builds the session for a site URL.
func (f *GosipSessionFactory) SessionFor(ctx context.Context, siteURL string) (*Session, error) {
	key := strings.ToLower(strings.TrimRight(siteURL, "/"))

	f.mu.Lock()
	defer f.mu.Unlock()
	if session, ok := f.cache[key]; ok {
		return session, nil
	}

	cred, ok := f.creds.ForURL(siteURL)
	if !ok {
		domain, err := store.DomainOf(siteURL)
		if err != nil {
			domain = siteURL
		}
		return nil, &spauth.AuthRequiredError{Domain: domain}
	}

	authClient, err := spauth.NewClient(spauth.Config{
		SiteURL:      siteURL,
		TenantID:     cred.TenantID,
		ClientID:     cred.ClientID,
		CertPath:     cred.CertPath,
		CertPassword: cred.CertPassword,
	})
	if err != nil {
		return nil, err
	}

	exec := spclient.NewThrottleExecutor(
		authClient,
		spclient.DefaultRetryPolicy(f.params.MaxRetries),
		f.params.RequestsPerSecond,
		f.logger)
	f.executors = append(f.executors, exec)

	session := &Session{
		Client:  spclient.NewGosipSiteClient(api.NewSP(authClient), authClient, f.logger),
		Fetcher: spclient.NewPagedListFetcher(exec, siteURL, f.logger),
		Checker: spclient.NewBatchPropertyChecker(exec, siteURL, f.params.CheckBatchSize, f.logger),
	}
	f.cache[key] = session

	f.logger.Debug("Opened site session", "site", siteURL, "domain", cred.Domain)
	return session, nil
}

// ThrottleRetries sums the throttle waits across every session's executor.
func (f *GosipSessionFactory) ThrottleRetries() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for _, exec := range f.executors {
		total += exec.RetryCount()
	}
	return total
}
