// Package hostingtest provides an in-memory hosting.Provider for tests.
package hostingtest

import (
	"context"
	"sync"

	"gitlab.bluewillows.net/root/domainsync/pkg/domain"
	"gitlab.bluewillows.net/root/domainsync/pkg/hosting"
)

// Fake is a concurrency-safe in-memory hosting provider. Error hooks are
// consulted before the state is touched.
type Fake struct {
	mu sync.Mutex

	view    hosting.View
	deploy  *hosting.DeployInfo
	ssl     *hosting.SSLInfo
	added   []string
	removed []string
	calls   map[string]int

	// AddAliasFn, when set, is called before AddAlias mutates the view.
	AddAliasFn func(ctx context.Context, d string) error
	// SiteViewErr, DeployErr, SSLErr and PingErr are returned by the
	// corresponding methods when non-nil.
	SiteViewErr error
	DeployErr   error
	SSLErr      error
	PingErr     error
}

var _ hosting.Provider = (*Fake)(nil)

// New returns a Fake for siteID with the given primary domain and aliases.
func New(siteID, primary string, aliases ...string) *Fake {
	return &Fake{
		view: hosting.View{
			SiteID:        siteID,
			Name:          siteID,
			URL:           "http://" + siteID + ".hosting.test",
			SSLURL:        "https://" + siteID + ".hosting.test",
			PrimaryDomain: primary,
			AliasDomains:  append([]string(nil), aliases...),
			SSLState:      hosting.SSLNone,
		},
		calls: make(map[string]int),
	}
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) SiteView(_ context.Context, _ string) (hosting.View, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["site view"]++
	if f.SiteViewErr != nil {
		return hosting.View{}, f.SiteViewErr
	}
	v := f.view
	v.AliasDomains = append([]string(nil), f.view.AliasDomains...)
	return v, nil
}

func (f *Fake) AddAlias(ctx context.Context, _ string, d string) error {
	f.mu.Lock()
	hook := f.AddAliasFn
	f.calls["add alias"]++
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, d); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	d = domain.Normalize(d)
	if f.view.Has(d) {
		return nil
	}
	f.view.AliasDomains = append(f.view.AliasDomains, d)
	f.added = append(f.added, d)
	return nil
}

func (f *Fake) RemoveAlias(_ context.Context, _ string, d string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["remove alias"]++
	d = domain.Normalize(d)
	if f.view.PrimaryDomain == d {
		f.view.PrimaryDomain = ""
		f.removed = append(f.removed, d)
		return nil
	}
	kept := f.view.AliasDomains[:0]
	for _, a := range f.view.AliasDomains {
		if a == d {
			f.removed = append(f.removed, d)
			continue
		}
		kept = append(kept, a)
	}
	f.view.AliasDomains = kept
	return nil
}

func (f *Fake) LatestDeploy(_ context.Context, _ string) (*hosting.DeployInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeployErr != nil {
		return nil, f.DeployErr
	}
	return f.deploy, nil
}

func (f *Fake) SSLInfo(_ context.Context, _ string) (*hosting.SSLInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SSLErr != nil {
		return nil, f.SSLErr
	}
	return f.ssl, nil
}

func (f *Fake) Ping(_ context.Context) error {
	return f.PingErr
}

// SetDeploy sets the deploy returned by LatestDeploy.
func (f *Fake) SetDeploy(d *hosting.DeployInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deploy = d
}

// SetSSL sets the certificate returned by SSLInfo and the view SSL state.
func (f *Fake) SetSSL(info *hosting.SSLInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ssl = info
	f.view.SSLState = hosting.SSLNone
	if info != nil {
		f.view.SSLState = info.State
	}
}

// Added returns the domains AddAlias actually attached.
func (f *Fake) Added() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.added...)
}

// Removed returns the domains RemoveAlias actually detached.
func (f *Fake) Removed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removed...)
}

// Calls returns how many times operation was invoked.
func (f *Fake) Calls(operation string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[operation]
}

// ProviderError returns a *domain.ProviderError with the given status.
func ProviderError(status int) error {
	return &domain.ProviderError{Provider: "fake", Operation: "test", StatusCode: status}
}
