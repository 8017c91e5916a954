package service

import "testing"

func TestJWKSHealthPath(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://idp.local/realms/refood/protocol/openid-connect/certs", "/realms/refood/protocol/openid-connect/certs"},
		{"https://idp.local", "/health"},
		{"://bad", "/health"},
	}
	for _, tt := range tests {
		if got := jwksHealthPath(tt.url); got != tt.want {
			t.Errorf("jwksHealthPath(%q) = %q, ожидалось %q", tt.url, got, tt.want)
		}
	}
}

func TestNewDephealthService_RequiresDB(t *testing.T) {
	if _, err := NewDephealthService(DephealthConfig{ServiceID: "report-module"}, discardLogger()); err == nil {
		t.Error("ожидалась ошибка без *sql.DB")
	}
}
