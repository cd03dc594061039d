package apikey

import (
	"strings"
	"testing"
)

func TestGenerateAndVerify(t *testing.T) {
	key, hash, err := GenerateKey(Prefix, "secret")
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	if !strings.HasPrefix(key, "pk_app_") || len(key) != len("pk_app_")+48 {
		t.Errorf("Unexpected key format %q", key)
	}

	tests := []struct {
		name   string
		key    string
		secret string
		want   bool
	}{
		{"valid", key, "secret", true},
		{"wrong secret", key, "other", false},
		{"wrong prefix", strings.Replace(key, "pk_app", "sk_app", 1), "secret", false},
		{"tampered", key + "0", "secret", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Verify(tt.key, Prefix, hash, tt.secret); got != tt.want {
				t.Errorf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMask(t *testing.T) {
	if got := Mask("pk_app_0123456789abcdef"); got != "pk_app_********cdef" {
		t.Errorf("Mask() = %q", got)
	}
	if got := Mask("short"); got != "short" {
		t.Errorf("Mask() without separator = %q", got)
	}
}
