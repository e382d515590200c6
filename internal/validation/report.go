package validation

import (
	"time"

	"gitlab.bluewillows.net/root/domainsync/pkg/dnscheck"
	"gitlab.bluewillows.net/root/domainsync/pkg/hosting"
)

// OverallStatus is the health verdict of a validation pass.
type OverallStatus string

const (
	StatusHealthy OverallStatus = "healthy"
	StatusWarning OverallStatus = "warning"
	StatusError   OverallStatus = "error"
)

func (s OverallStatus) rank() int {
	switch s {
	case StatusError:
		return 2
	case StatusWarning:
		return 1
	default:
		return 0
	}
}

// escalate returns the more severe of s and to. A verdict never improves.
func (s OverallStatus) escalate(to OverallStatus) OverallStatus {
	if to.rank() > s.rank() {
		return to
	}
	return s
}

// Check names reported in Report.ChecksRun.
const (
	CheckHosting = "hosting"
	CheckRouting = "routing"
	CheckSSL     = "ssl"
	CheckDNS     = "dns"
)

// HostingReport is the hosting registration sub-report.
type HostingReport struct {
	SiteID        string               `json:"siteId"`
	SiteName      string               `json:"siteName,omitempty"`
	DomainStatus  hosting.DomainStatus `json:"domainStatus"`
	PrimaryDomain string               `json:"primaryDomain,omitempty"`
	AliasCount    int                  `json:"aliasCount"`
	Error         string               `json:"error,omitempty"`
}

// Endpoints are the routing URLs derived for a domain.
type Endpoints struct {
	Production string `json:"production"`
	Fallback   string `json:"fallback,omitempty"`
	API        string `json:"api"`
	Admin      string `json:"admin"`
}

// RoutingReport is the deploy and routing sub-report.
type RoutingReport struct {
	DeployID    string     `json:"deployId,omitempty"`
	DeployState string     `json:"deployState,omitempty"`
	DeployedAt  *time.Time `json:"deployedAt,omitempty"`
	Endpoints   Endpoints  `json:"endpoints"`
	Error       string     `json:"error,omitempty"`
}

// SSLReport is the certificate sub-report.
type SSLReport struct {
	HasCertificate bool             `json:"hasCertificate"`
	State          hosting.SSLState `json:"state"`
	ForceHTTPS     bool             `json:"forceHttps"`
	ExpiresAt      *time.Time       `json:"expiresAt,omitempty"`
	Error          string           `json:"error,omitempty"`
}

// DNSReport is the DNS sub-report.
type DNSReport struct {
	dnscheck.Result
	Error string `json:"error,omitempty"`
}

// Report is the holistic validation result for one domain. Reports are
// built per call and never cached.
type Report struct {
	ValidationID    string         `json:"validationId"`
	Domain          string         `json:"domain"`
	OverallStatus   OverallStatus  `json:"overallStatus"`
	Issues          []string       `json:"issues"`
	Recommendations []string       `json:"recommendations"`
	Hosting         *HostingReport `json:"hosting,omitempty"`
	Routing         *RoutingReport `json:"routing,omitempty"`
	SSL             *SSLReport     `json:"ssl,omitempty"`
	DNS             *DNSReport     `json:"dns,omitempty"`
	ChecksRun       []string       `json:"checksRun"`
	DurationMs      int64          `json:"durationMs"`
	CompletedAt     time.Time      `json:"completedAt"`
}

func (r *Report) addIssue(status OverallStatus, issue string, recommendations ...string) {
	r.OverallStatus = r.OverallStatus.escalate(status)
	r.Issues = append(r.Issues, issue)
	r.Recommendations = append(r.Recommendations, recommendations...)
}
