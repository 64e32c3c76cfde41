package validation

import (
	"strings"
	"testing"
)

func TestEndpointValidatorDefaults(t *testing.T) {
	v := NewEndpointValidator()
	if v.AllowLocal {
		t.Error("expected local endpoints to be rejected by default")
	}
	if !v.RequireHTTPS {
		t.Error("expected https to be required by default")
	}
	if v.MaxLength != 2048 {
		t.Errorf("expected MaxLength 2048, got %d", v.MaxLength)
	}
}

func TestEndpointValidatorValidate(t *testing.T) {
	tests := []struct {
		name      string
		validator *EndpointValidator
		input     string
		want      string
		errSubstr string
	}{
		{
			name:      "joke endpoint",
			validator: NewEndpointValidator(),
			input:     "https://official-joke-api.appspot.com/jokes/random",
			want:      "https://official-joke-api.appspot.com/jokes/random",
		},
		{
			name:      "missing scheme defaults to https",
			validator: NewEndpointValidator(),
			input:     "  project.supabase.co ",
			want:      "https://project.supabase.co",
		},
		{
			name:      "fragment dropped",
			validator: NewEndpointValidator(),
			input:     "https://ipapi.co/json#top",
			want:      "https://ipapi.co/json",
		},
		{
			name:      "empty",
			validator: NewEndpointValidator(),
			input:     "   ",
			errSubstr: "cannot be empty",
		},
		{
			name:      "plain http remote",
			validator: NewEndpointValidator(),
			input:     "http://official-joke-api.appspot.com/jokes/random",
			errSubstr: "must use https",
		},
		{
			name:      "ftp scheme",
			validator: NewEndpointValidator(),
			input:     "ftp://files.example.org",
			errSubstr: "http or https",
		},
		{
			name:      "localhost rejected",
			validator: NewEndpointValidator(),
			input:     "http://localhost:8787",
			errSubstr: "not permitted",
		},
		{
			name:      "private ip rejected",
			validator: NewEndpointValidator(),
			input:     "https://192.168.1.10/api",
			errSubstr: "not permitted",
		},
		{
			name:      "credentials rejected",
			validator: NewEndpointValidator(),
			input:     "https://user:pw@project.supabase.co",
			errSubstr: "credentials",
		},
		{
			name:      "traversal rejected",
			validator: NewEndpointValidator(),
			input:     "https://project.supabase.co/../etc",
			errSubstr: "'..'",
		},
		{
			name:      "markup rejected",
			validator: NewEndpointValidator(),
			input:     "https://project.supabase.co/<script>",
			errSubstr: "invalid characters",
		},
		{
			name:      "local stand-in over http",
			validator: NewLocalEndpointValidator(),
			input:     "http://127.0.0.1:8787",
			want:      "http://127.0.0.1:8787",
		},
		{
			name:      "local validator still checks scheme",
			validator: NewLocalEndpointValidator(),
			input:     "file:///etc/passwd",
			errSubstr: "http or https",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.validator.Validate(tt.input)
			if tt.errSubstr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q, got %q", tt.errSubstr, got)
				}
				if !strings.Contains(err.Error(), tt.errSubstr) {
					t.Errorf("expected error containing %q, got %v", tt.errSubstr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestEndpointValidatorMaxLength(t *testing.T) {
	v := NewEndpointValidator()
	long := "https://example.org/" + strings.Repeat("a", 2100)
	if _, err := v.Validate(long); err == nil {
		t.Error("expected overlong endpoint to be rejected")
	}
}

func TestIsLocalHost(t *testing.T) {
	local := []string{"localhost", "api.localhost", "127.0.0.1", "::1", "10.0.0.4", "172.16.2.1", "192.168.0.1", "169.254.1.1", "0.0.0.0", "fd00::1"}
	for _, h := range local {
		if !isLocalHost(h) {
			t.Errorf("expected %s to be local", h)
		}
	}
	remote := []string{"official-joke-api.appspot.com", "8.8.8.8", "2001:4860:4860::8888"}
	for _, h := range remote {
		if isLocalHost(h) {
			t.Errorf("expected %s not to be local", h)
		}
	}
}
