package url

import (
	"errors"
	"testing"
)

func TestCheckRefusesPrivateTargets(t *testing.T) {
	blocked := []string{
		"http://localhost/admin",
		"http://127.0.0.1:8080/",
		"http://[::1]/",
		"http://0.0.0.0/",
		"http://10.0.0.5/internal",
		"http://172.16.0.1/",
		"http://192.168.1.1/router",
		"http://169.254.169.254/latest/meta-data",
		"http://metadata.google.internal/computeMetadata/v1/",
		"file:///etc/passwd",
		"ftp://example.com/file",
	}

	for _, rawURL := range blocked {
		if err := Check(rawURL, false); err == nil {
			t.Errorf("expected refusal for %s", rawURL)
		}
	}
}

func TestCheckMetadataAlwaysRefused(t *testing.T) {
	// Metadata endpoints stay blocked even when private IPs are allowed.
	for _, rawURL := range []string{
		"http://169.254.169.254/latest/meta-data",
		"http://metadata.google.internal/",
		"http://METADATA.GOOG/",
	} {
		err := Check(rawURL, true)
		if err == nil {
			t.Fatalf("expected refusal for %s with allowPrivate=true", rawURL)
		}
		var refusal *RefusalError
		if !errors.As(err, &refusal) {
			t.Errorf("expected RefusalError for %s, got %T", rawURL, err)
		}
	}
}

func TestCheckAllowPrivate(t *testing.T) {
	for _, rawURL := range []string{
		"http://localhost:9000/",
		"http://127.0.0.1/",
		"http://192.168.0.10/",
	} {
		if err := Check(rawURL, true); err != nil {
			t.Errorf("expected %s admitted with allowPrivate=true, got %v", rawURL, err)
		}
	}
}

func TestCheckPublicIPLiteral(t *testing.T) {
	if err := Check("http://93.184.216.34/", false); err != nil {
		t.Errorf("expected public IP admitted, got %v", err)
	}
}

func TestCheckReservedIP(t *testing.T) {
	if err := Check("http://240.0.0.1/", false); err == nil {
		t.Error("expected refusal for reserved range IP")
	}
}

func TestParseAndValidate(t *testing.T) {
	tests := []struct {
		rawURL  string
		wantErr bool
	}{
		{"https://example.com/page", false},
		{"http://example.com", false},
		{"", true},
		{"example.com/page", true},
		{"gopher://example.com", true},
	}

	for _, tt := range tests {
		_, err := ParseAndValidate(tt.rawURL)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAndValidate(%q) error = %v, wantErr %v", tt.rawURL, err, tt.wantErr)
		}
	}
}

func TestExtractHost(t *testing.T) {
	host, err := ExtractHost("https://example.com:8443/path")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if host != "example.com:8443" {
		t.Errorf("expected example.com:8443, got %s", host)
	}
}
