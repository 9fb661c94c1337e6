package web

import "testing"

func TestValidateURLForSSRFRejectsNonHTTP(t *testing.T) {
	if err := validateURLForSSRF("ftp://example.com"); err == nil {
		t.Fatalf("expected scheme rejection")
	}
}

func TestValidateURLForSSRFRejectsLocalhost(t *testing.T) {
	if err := validateURLForSSRF("http://localhost/admin"); err == nil {
		t.Fatalf("expected localhost rejection")
	}
	if err := validateURLForSSRF("http://sub.localhost/admin"); err == nil {
		t.Fatalf("expected *.localhost rejection")
	}
}

func TestValidateURLForSSRFAllowsPublicHost(t *testing.T) {
	if err := validateURLForSSRF("https://example.com/page"); err != nil {
		t.Fatalf("unexpected rejection of public host: %v", err)
	}
}

func TestValidateURLForSSRFRejectsMissingHostname(t *testing.T) {
	if err := validateURLForSSRF("http://"); err == nil {
		t.Fatalf("expected missing-hostname rejection")
	}
}
