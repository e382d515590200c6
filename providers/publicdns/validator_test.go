package publicdns

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/miekg/dns"

	"gitlab.bluewillows.net/root/domainsync/pkg/domain"
)

const testTarget = "domains.example-hosting.net"

// zoneData maps "name|type" to answer RRs in presentation format.
type zoneData map[string][]string

// startResolver runs a local UDP DNS server answering from data and
// returns its address.
func startResolver(t *testing.T, data zoneData, rcode int) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	handler := dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(req)
		m.Rcode = rcode
		q := req.Question[0]
		key := strings.ToLower(q.Name) + "|" + dns.TypeToString[q.Qtype]
		for _, s := range data[key] {
			rr, err := dns.NewRR(s)
			if err != nil {
				t.Errorf("bad test RR %q: %v", s, err)
				continue
			}
			m.Answer = append(m.Answer, rr)
		}
		_ = w.WriteMsg(m)
	})

	started := make(chan struct{})
	server := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() {
		_ = server.ActivateAndServe()
	}()
	<-started
	t.Cleanup(func() { _ = server.Shutdown() })

	return pc.LocalAddr().String()
}

func newTestValidator(t *testing.T, addr string) *Validator {
	t.Helper()
	v, err := New(Config{Resolver: addr, Target: testTarget, Timeout: time.Second})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return v
}

func TestNew_RequiresTarget(t *testing.T) {
	if _, err := New(Config{}); !domain.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestValidate_DirectCNAME(t *testing.T) {
	addr := startResolver(t, zoneData{
		"blog.example.com.|CNAME": {"blog.example.com. 300 IN CNAME domains.example-hosting.net."},
	}, dns.RcodeSuccess)
	v := newTestValidator(t, addr)

	res, err := v.Validate(context.Background(), "blog.example.com")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !res.IsValid || len(res.Issues) != 0 {
		t.Errorf("expected valid result, got %+v", res)
	}
	if len(res.Records) != 1 || res.Records[0].Content != testTarget {
		t.Errorf("unexpected chain: %+v", res.Records)
	}
}

func TestValidate_FollowsChain(t *testing.T) {
	addr := startResolver(t, zoneData{
		"shop.example.com.|CNAME": {"shop.example.com. 300 IN CNAME edge.example.com."},
		"edge.example.com.|CNAME": {"edge.example.com. 300 IN CNAME lb.example.net."},
		"lb.example.net.|CNAME":   {"lb.example.net. 300 IN CNAME Domains.Example-Hosting.net."},
		"shop.example.com.|A":     {"shop.example.com. 300 IN A 192.0.2.10"},
	}, dns.RcodeSuccess)
	v := newTestValidator(t, addr)

	res, err := v.Validate(context.Background(), "shop.example.com")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !res.IsValid {
		t.Errorf("expected chain to reach target, got %+v", res)
	}
	if len(res.Records) != 3 {
		t.Errorf("expected 3 hops, got %d", len(res.Records))
	}
}

func TestValidate_HopLimit(t *testing.T) {
	data := zoneData{}
	for i := 0; i < 10; i++ {
		from := "h" + string(rune('a'+i)) + ".example.com."
		to := "h" + string(rune('a'+i+1)) + ".example.com."
		data[from+"|CNAME"] = []string{from + " 300 IN CNAME " + to}
	}
	data["hk.example.com.|CNAME"] = []string{"hk.example.com. 300 IN CNAME " + testTarget + "."}
	addr := startResolver(t, data, dns.RcodeSuccess)
	v := newTestValidator(t, addr)

	res, err := v.Validate(context.Background(), "ha.example.com")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if res.IsValid {
		t.Error("expected chain beyond hop limit to be invalid")
	}
	cnames := 0
	for _, r := range res.Records {
		if r.Type == "CNAME" {
			cnames++
		}
	}
	if cnames != DefaultMaxHops {
		t.Errorf("expected %d CNAME hops recorded, got %d", DefaultMaxHops, cnames)
	}
}

func TestValidate_CloudflareProxied(t *testing.T) {
	addr := startResolver(t, zoneData{
		"blog.example.com.|A": {"blog.example.com. 300 IN A 104.21.5.7"},
	}, dns.RcodeSuccess)
	v := newTestValidator(t, addr)

	res, err := v.Validate(context.Background(), "blog.example.com")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !res.IsValid {
		t.Error("expected proxied domain to be accepted")
	}
	if len(res.Recommendations) != 1 || !strings.Contains(res.Recommendations[0], "proxied through Cloudflare") {
		t.Errorf("unexpected recommendations: %v", res.Recommendations)
	}
}

func TestValidate_WrongAddress(t *testing.T) {
	addr := startResolver(t, zoneData{
		"blog.example.com.|A": {"blog.example.com. 300 IN A 192.0.2.55"},
	}, dns.RcodeSuccess)
	v := newTestValidator(t, addr)

	res, err := v.Validate(context.Background(), "blog.example.com")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if res.IsValid {
		t.Error("expected foreign address to be invalid")
	}
	if len(res.Issues) != 1 || !strings.Contains(res.Issues[0], "192.0.2.55") {
		t.Errorf("unexpected issues: %v", res.Issues)
	}
}

func TestValidate_ApexUsesWWW(t *testing.T) {
	addr := startResolver(t, zoneData{
		"www.example.com.|CNAME": {"www.example.com. 300 IN CNAME domains.example-hosting.net."},
	}, dns.RcodeSuccess)
	v := newTestValidator(t, addr)

	res, err := v.Validate(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !res.IsValid {
		t.Errorf("expected apex with valid www CNAME to pass, got %+v", res)
	}
	if len(res.Recommendations) != 1 {
		t.Errorf("expected apex recommendation, got %v", res.Recommendations)
	}
}

func TestValidate_NXDomain(t *testing.T) {
	addr := startResolver(t, zoneData{}, dns.RcodeNameError)
	v := newTestValidator(t, addr)

	res, err := v.Validate(context.Background(), "missing.example.com")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if res.IsValid || len(res.Issues) != 1 || !strings.Contains(res.Issues[0], "does not resolve") {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestValidate_ServerFailure(t *testing.T) {
	addr := startResolver(t, zoneData{}, dns.RcodeServerFailure)
	v := newTestValidator(t, addr)

	_, err := v.Validate(context.Background(), "blog.example.com")
	var pe *domain.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pe.Provider != "public" {
		t.Errorf("unexpected provider %q", pe.Provider)
	}
}

func TestIsCloudflare(t *testing.T) {
	v, err := New(Config{Target: testTarget})
	if err != nil {
		t.Fatal(err)
	}
	if v.resolver != DefaultResolver || v.maxHops != DefaultMaxHops {
		t.Errorf("unexpected defaults: %s %d", v.resolver, v.maxHops)
	}

	tests := map[string]bool{
		"104.16.0.1":   true,
		"104.31.255.1": true,
		"172.67.1.1":   true,
		"131.0.73.9":   true,
		"8.8.8.8":      false,
		"192.0.2.1":    false,
	}
	for ip, want := range tests {
		if got := isCloudflare(netip.MustParseAddr(ip)); got != want {
			t.Errorf("isCloudflare(%s) = %v, want %v", ip, got, want)
		}
	}
}
