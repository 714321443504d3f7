package blocklist

import (
	"strings"
	"testing"
)

func TestExactMatch(t *testing.T) {
	b := NewBuilder()
	b.add(entry{domain: "ads.example.com"})
	bl := b.Build()

	if !bl.blocked.matches("ads.example.com") {
		t.Error("expected ads.example.com to be blocked")
	}
	if bl.blocked.matches("example.com") {
		t.Error("did not expect example.com to be blocked")
	}
}

func TestWildcardMatch(t *testing.T) {
	b := NewBuilder()
	b.add(entry{domain: "example.com", wildcard: true})
	bl := b.Build()

	if !bl.blocked.matches("www.example.com") {
		t.Error("expected www.example.com to match wildcard *.example.com")
	}
	if !bl.blocked.matches("a.b.example.com") {
		t.Error("expected a.b.example.com to match wildcard *.example.com")
	}
	if bl.blocked.matches("example.com") {
		t.Error("wildcard should not match the bare registered domain")
	}
}

func TestAllowlistOverridesBlocked(t *testing.T) {
	b := NewBuilder()
	b.add(entry{domain: "example.com", wildcard: true})
	b.add(entry{domain: "good.example.com", allow: true})
	bl := b.Build()

	m := &Manager{}
	m.current.Store(bl)

	if m.IsBlocked("good.example.com") {
		t.Error("expected allowlisted domain to not be blocked")
	}
	if !m.IsBlocked("bad.example.com") {
		t.Error("expected non-allowlisted subdomain to remain blocked")
	}
}

func TestBuilderDedupesSubdomainOfBlockedParent(t *testing.T) {
	b := NewBuilder()
	b.add(entry{domain: "example.com"})
	b.add(entry{domain: "ads.example.com"})
	bl := b.Build()

	if bl.stats.DedupedBySuffix != 1 {
		t.Errorf("expected 1 deduped entry, got %d", bl.stats.DedupedBySuffix)
	}
	if !bl.blocked.matches("ads.example.com") {
		t.Error("subdomain of a blocked parent should still match")
	}
}

func TestBuilderPrunesExistingSubdomainsWhenParentAdded(t *testing.T) {
	b := NewBuilder()
	b.add(entry{domain: "ads.example.com"})
	b.add(entry{domain: "example.com"})
	bl := b.Build()

	if bl.stats.PrunedBySuffix != 1 {
		t.Errorf("expected 1 pruned entry, got %d", bl.stats.PrunedBySuffix)
	}
	if !bl.blocked.matches("ads.example.com") {
		t.Error("subdomain should still match via the parent block")
	}
	if !bl.blocked.matches("example.com") {
		t.Error("parent domain should be blocked")
	}
}

func TestParseHostsFormat(t *testing.T) {
	src := "0.0.0.0 ads.example.com\n127.0.0.1 tracker.example.net\n1.2.3.4 real-server.example.org\n"
	entries, err := parseFile(strings.NewReader(src), FormatHosts)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries (real-server skipped), got %d", len(entries))
	}
}

func TestParseAdBlockFormat(t *testing.T) {
	src := "||ads.example.com^\n@@||good.example.com^\n! comment\n"
	entries, err := parseFile(strings.NewReader(src), FormatAdBlock)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].allow {
		t.Error("first entry should be a block, not an allow")
	}
	if !entries[1].allow {
		t.Error("second entry (@@) should be an allow")
	}
}

func TestParseDNSMasqFormat(t *testing.T) {
	entries, err := parseFile(strings.NewReader("address=/ads.example.com/0.0.0.0\n"), FormatDNSMasq)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].domain != "ads.example.com" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestParseUnboundFormat(t *testing.T) {
	entries, err := parseFile(strings.NewReader(`local-zone: "ads.example.com." always_nxdomain`+"\n"), FormatUnbound)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].domain != "ads.example.com" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestParsePiHoleFormat(t *testing.T) {
	src := "ads.example.com\n^ads\\.tracker\\..*$\n"
	entries, err := parseFile(strings.NewReader(src), FormatPiHole)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].domain != "ads.example.com" {
		t.Fatalf("expected 1 plain-domain entry, got %+v", entries)
	}
}

func TestManagerReloadFromSources(t *testing.T) {
	m := NewManager()
	if m.IsBlocked("ads.example.com") {
		t.Error("empty manager should not block anything")
	}
}

func TestRegistrableDomain(t *testing.T) {
	cases := map[string]string{
		"ads.sub.example.co.uk": "example.co.uk",
		"example.com":           "example.com",
		"www.example.com":       "example.com",
	}
	for in, want := range cases {
		if got := registrableDomain(in); got != want {
			t.Errorf("registrableDomain(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWildcardsDisabled(t *testing.T) {
	b := NewBuilder()
	b.EnableWildcards = false
	b.add(entry{domain: "ads.net", wildcard: true})
	b.add(entry{domain: "example.com"})
	bl := b.Build()

	if bl.blocked.matches("x.ads.net") {
		t.Error("wildcard entry should be dropped when wildcards are disabled")
	}
	if !bl.blocked.matches("example.com") {
		t.Error("exact entries must still block with wildcards disabled")
	}
	if b.stats.WildcardsSkipped != 1 {
		t.Errorf("expected 1 skipped wildcard, got %d", b.stats.WildcardsSkipped)
	}
}
