package otel

import (
	"context"
	"testing"
)

func TestNewProviders_EmptyEndpointIsNoOp(t *testing.T) {
	p, err := NewProviders(context.Background(), "", "claims-api", false)
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	if p.TracerProvider == nil || p.MeterProvider == nil || p.LoggerProvider == nil {
		t.Fatal("no-op providers must still be non-nil")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		in           string
		wantTarget   string
		wantInsecure bool
		wantErr      bool
	}{
		{"collector:4317", "collector:4317", true, false},
		{"http://collector:4317", "collector:4317", true, false},
		{"https://collector:4317", "collector:4317", false, false},
		{"https://collector:4317/v1/traces", "collector:4317", false, false},
		{"http://", "", false, true},
	}
	for _, tt := range tests {
		target, insecure, err := parseEndpoint(tt.in, false)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseEndpoint(%q): want error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseEndpoint(%q): %v", tt.in, err)
			continue
		}
		if target != tt.wantTarget || insecure != tt.wantInsecure {
			t.Errorf("parseEndpoint(%q) = %q insecure=%v, want %q insecure=%v", tt.in, target, insecure, tt.wantTarget, tt.wantInsecure)
		}
	}
}

func TestParseEndpoint_InsecureOverride(t *testing.T) {
	_, insecure, err := parseEndpoint("https://collector:4317", true)
	if err != nil {
		t.Fatalf("parseEndpoint: %v", err)
	}
	if !insecure {
		t.Fatal("override must force insecure even for https endpoints")
	}
}
