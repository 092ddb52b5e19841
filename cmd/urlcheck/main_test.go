package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/scheott/safe/check"
	"github.com/scheott/safe/reputation"
	"github.com/scheott/safe/tier1"
)

func TestReadURLs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	content := "# suspicious links from the inbox\nchase.tk\n\n  https://example.org/a  \n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := readURLs(path, []string{"g00gle.com"})
	if err != nil {
		t.Fatalf("readURLs: %v", err)
	}
	want := []string{"g00gle.com", "chase.tk", "https://example.org/a"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("readURLs = %v, want %v", got, want)
	}

	if _, err := readURLs(filepath.Join(t.TempDir(), "missing.txt"), nil); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestPrintResult(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	printResult(&buf, check.Response{
		URL:           "chase.tk",
		NormalizedURL: "http://chase.tk/",
		Verdict:       reputation.VerdictDanger,
		Score:         6,
		Reasons:       []string{"brand_impersonation_high_risk", "suspicious_domain"},
		Summary:       "Appears to impersonate chase.com",
		Tier1:         &check.Tier1Outcome{Review: &tier1.Review{Verdict: reputation.VerdictDanger, Explanation: "Fake bank login."}},
	})

	out := buf.String()
	for _, want := range []string{"DANGER", "6  http://chase.tk/", "Appears to impersonate chase.com", "brand_impersonation_high_risk, suspicious_domain", "tier-1: danger, Fake bank login."} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
