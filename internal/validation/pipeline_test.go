package validation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gitlab.bluewillows.net/root/domainsync/pkg/dnscheck"
	"gitlab.bluewillows.net/root/domainsync/pkg/domain"
	"gitlab.bluewillows.net/root/domainsync/pkg/hosting"
	"gitlab.bluewillows.net/root/domainsync/pkg/hosting/hostingtest"
)

type stubDNS struct {
	result dnscheck.Result
	err    error
}

func (s *stubDNS) Name() string { return "stub" }

func (s *stubDNS) Validate(context.Context, string) (dnscheck.Result, error) {
	return s.result, s.err
}

func contains(list []string, sub string) bool {
	for _, s := range list {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func TestValidate_RejectsMalformedDomain(t *testing.T) {
	p := New(hostingtest.New("site", ""), "site")
	for _, raw := range []string{"", "https://", "  www. "} {
		if _, err := p.Validate(context.Background(), raw, DefaultOptions()); !domain.IsValidation(err) {
			t.Errorf("Validate(%q) expected validation error, got %v", raw, err)
		}
	}
}

func TestValidate_PrimaryWithProvisioningSSL(t *testing.T) {
	fake := hostingtest.New("site", "d.com")
	fake.SetSSL(&hosting.SSLInfo{State: hosting.SSLProvisioning})
	p := New(fake, "site")

	report, err := p.Validate(context.Background(), "https://www.D.com/", DefaultOptions())
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if report.Domain != "d.com" {
		t.Errorf("Domain = %q", report.Domain)
	}
	if report.OverallStatus != StatusWarning {
		t.Errorf("OverallStatus = %q, want warning", report.OverallStatus)
	}
	if !contains(report.Issues, IssueSSLProvisioning) {
		t.Errorf("expected SSL provisioning issue, got %v", report.Issues)
	}
	if report.Hosting.DomainStatus != hosting.DomainPrimary {
		t.Errorf("DomainStatus = %q, want primary", report.Hosting.DomainStatus)
	}
	if report.SSL == nil || report.SSL.ForceHTTPS {
		t.Errorf("expected force_https false while provisioning, got %+v", report.SSL)
	}
}

func TestValidate_HealthyAlias(t *testing.T) {
	fake := hostingtest.New("site", "example.com", "blog.example.com")
	fake.SetSSL(&hosting.SSLInfo{State: hosting.SSLLive})
	fake.SetDeploy(&hosting.DeployInfo{ID: "dep-1", State: "ready", SSLURL: "https://dep-1--site.hosting.test", CreatedAt: time.Now()})
	p := New(fake, "site")

	report, err := p.Validate(context.Background(), "blog.example.com", DefaultOptions())
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if report.OverallStatus != StatusHealthy {
		t.Errorf("OverallStatus = %q, issues %v", report.OverallStatus, report.Issues)
	}
	if len(report.Recommendations) != 1 || report.Recommendations[0] != RecommendConfigurationValid {
		t.Errorf("Recommendations = %v", report.Recommendations)
	}
	if report.Hosting.DomainStatus != hosting.DomainAlias {
		t.Errorf("DomainStatus = %q, want alias", report.Hosting.DomainStatus)
	}
	if !report.SSL.ForceHTTPS {
		t.Error("expected force_https with live certificate")
	}

	want := Endpoints{
		Production: "https://blog.example.com",
		Fallback:   "https://dep-1--site.hosting.test",
		API:        "https://blog.example.com/api",
		Admin:      "https://blog.example.com/admin",
	}
	if report.Routing == nil || report.Routing.Endpoints != want {
		t.Errorf("Endpoints = %+v, want %+v", report.Routing, want)
	}
	if report.ValidationID == "" || report.CompletedAt.IsZero() {
		t.Error("expected report metadata")
	}
	if strings.Join(report.ChecksRun, ",") != "hosting,routing,ssl" {
		t.Errorf("ChecksRun = %v", report.ChecksRun)
	}
	if report.DNS != nil {
		t.Error("DNS must not run by default")
	}
}

func TestValidate_NotRegistered(t *testing.T) {
	p := New(hostingtest.New("site", "example.com"), "site")

	report, err := p.Validate(context.Background(), "shop.example.com", Options{})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if report.OverallStatus != StatusError {
		t.Errorf("OverallStatus = %q, want error", report.OverallStatus)
	}
	if !contains(report.Issues, IssueNotRegistered) || !contains(report.Recommendations, RecommendRegister) {
		t.Errorf("unexpected report: %+v", report)
	}
	if report.Routing != nil || report.SSL != nil {
		t.Error("sub-checks that were not requested must be nil")
	}
}

func TestValidate_HostingFailureDegradesIndependently(t *testing.T) {
	fake := hostingtest.New("site", "example.com")
	fake.SiteViewErr = hostingtest.ProviderError(503)
	fake.SetSSL(&hosting.SSLInfo{State: hosting.SSLLive})
	p := New(fake, "site")

	report, err := p.Validate(context.Background(), "example.com", DefaultOptions())
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if report.Hosting.Error == "" {
		t.Error("expected hosting sub-report error")
	}
	if report.Hosting.DomainStatus != hosting.DomainNotFound {
		t.Errorf("DomainStatus = %q, want not_found", report.Hosting.DomainStatus)
	}
	if report.OverallStatus != StatusError {
		t.Errorf("OverallStatus = %q, want error", report.OverallStatus)
	}
	if contains(report.Issues, IssueNotRegistered) || contains(report.Recommendations, RecommendRegister) {
		t.Errorf("lookup failure reported as unregistered: %v", report.Issues)
	}
	if len(report.Issues) == 0 || !strings.HasPrefix(report.Issues[0], "hosting lookup failed") {
		t.Errorf("Issues = %v, want hosting lookup failure", report.Issues)
	}
	if !contains(report.Recommendations, RecommendRetryLookup) {
		t.Errorf("Recommendations = %v, want %q", report.Recommendations, RecommendRetryLookup)
	}
	if report.SSL == nil || !report.SSL.ForceHTTPS {
		t.Error("SSL check should still run after hosting failure")
	}
}

func TestValidate_SubCheckErrorsRecorded(t *testing.T) {
	fake := hostingtest.New("site", "example.com")
	fake.DeployErr = errors.New("deploy api down")
	fake.SSLErr = errors.New("ssl api down")
	p := New(fake, "site")

	report, err := p.Validate(context.Background(), "example.com", DefaultOptions())
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if report.Routing.Error == "" || report.SSL.Error == "" {
		t.Errorf("expected sub-report errors, got routing=%+v ssl=%+v", report.Routing, report.SSL)
	}
	if report.OverallStatus != StatusHealthy {
		t.Errorf("OverallStatus = %q, want healthy", report.OverallStatus)
	}
	if report.Routing.Endpoints.Fallback != "https://site.hosting.test" {
		t.Errorf("expected site URL fallback, got %q", report.Routing.Endpoints.Fallback)
	}
}

func TestValidate_DNS(t *testing.T) {
	tests := []struct {
		name       string
		dns        dnscheck.Validator
		wantStatus OverallStatus
		wantIssue  string
		wantRec    string
	}{
		{
			name:       "not configured is advisory",
			dns:        nil,
			wantStatus: StatusHealthy,
			wantRec:    "DNS provider not configured",
		},
		{
			name:       "unreachable is advisory",
			dns:        &stubDNS{err: errors.New("connection refused")},
			wantStatus: StatusHealthy,
			wantRec:    "DNS provider unavailable",
		},
		{
			name: "invalid records warn",
			dns: &stubDNS{result: dnscheck.Result{
				Provider:        "stub",
				Issues:          []string{"no CNAME record found for example.com"},
				Recommendations: []string{"create a CNAME record"},
			}},
			wantStatus: StatusWarning,
			wantIssue:  "no CNAME record found",
			wantRec:    "create a CNAME record",
		},
		{
			name:       "valid records",
			dns:        &stubDNS{result: dnscheck.Result{Provider: "stub", IsValid: true}},
			wantStatus: StatusHealthy,
			wantRec:    RecommendConfigurationValid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(hostingtest.New("site", "example.com"), "site", WithDNSValidator(tt.dns))

			report, err := p.Validate(context.Background(), "example.com", Options{IncludeDNS: true})
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if report.DNS == nil {
				t.Fatal("expected DNS sub-report")
			}
			if report.OverallStatus != tt.wantStatus {
				t.Errorf("OverallStatus = %q, want %q", report.OverallStatus, tt.wantStatus)
			}
			if tt.wantIssue != "" && !contains(report.Issues, tt.wantIssue) {
				t.Errorf("Issues = %v, want %q", report.Issues, tt.wantIssue)
			}
			if tt.wantRec != "" && !contains(report.Recommendations, tt.wantRec) {
				t.Errorf("Recommendations = %v, want %q", report.Recommendations, tt.wantRec)
			}
		})
	}
}

func TestValidate_ErrorNeverDowngraded(t *testing.T) {
	fake := hostingtest.New("site", "other.com")
	fake.SetSSL(&hosting.SSLInfo{State: hosting.SSLProvisioning})
	p := New(fake, "site", WithDNSValidator(&stubDNS{result: dnscheck.Result{Issues: []string{"bad"}}}))

	report, err := p.Validate(context.Background(), "example.com", Options{IncludeDNS: true, IncludeSSL: true})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if report.OverallStatus != StatusError {
		t.Errorf("OverallStatus = %q, want error", report.OverallStatus)
	}
	if len(report.Issues) != 3 {
		t.Errorf("expected hosting, dns and ssl issues, got %v", report.Issues)
	}
}

func TestOverallStatus_Escalate(t *testing.T) {
	all := []OverallStatus{StatusHealthy, StatusWarning, StatusError}
	for _, from := range all {
		for _, to := range all {
			got := from.escalate(to)
			if got.rank() < from.rank() {
				t.Errorf("%s.escalate(%s) = %s downgraded", from, to, got)
			}
			if got.rank() < to.rank() {
				t.Errorf("%s.escalate(%s) = %s below requested", from, to, got)
			}
		}
	}
}
