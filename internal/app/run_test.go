package app

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func restoreDefaultLogger(t *testing.T) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

// TestRun_ServeCommand_FailsWithoutDatabase はDBに接続できない場合にserveが起動前にエラーを返すことを検証する。
func TestRun_ServeCommand_FailsWithoutDatabase(t *testing.T) {
	setTestEnv(t)
	restoreDefaultLogger(t)

	err := Run(io.Discard, []string{"serve"})
	if err == nil {
		t.Fatal("Run(serve) should fail when the database is unreachable")
	}
	if !strings.Contains(err.Error(), "failed to connect to database") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRun_DefaultCommand_IsServe(t *testing.T) {
	setTestEnv(t)
	restoreDefaultLogger(t)

	if err := Run(io.Discard, []string{}); err == nil {
		t.Fatal("Run([]) should fail when the database is unreachable")
	}
}

func TestRun_SeedCommand_RequiresAdminCredentials(t *testing.T) {
	setTestEnv(t)
	restoreDefaultLogger(t)
	t.Setenv("ADMIN_EMAIL", "")
	t.Setenv("ADMIN_PASSWORD", "")

	err := Run(io.Discard, []string{"seed"})
	if err == nil || !strings.Contains(err.Error(), "ADMIN_EMAIL") {
		t.Fatalf("err = %v, want missing admin credentials", err)
	}
}

func TestRun_WithMissingEnv_ReturnsError(t *testing.T) {
	clearRequiredEnv(t)
	restoreDefaultLogger(t)

	if err := Run(io.Discard, []string{"serve"}); err == nil {
		t.Fatal("Run with missing env should return error")
	}
}

func TestRun_Healthcheck(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"healthy", http.StatusOK, false},
		{"unavailable", http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/health" {
					t.Errorf("path = %q, want /health", r.URL.Path)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, port, err := net.SplitHostPort(srv.Listener.Addr().String())
			if err != nil {
				t.Fatal(err)
			}
			t.Setenv("SERVER_PORT", port)

			err = Run(io.Discard, []string{"healthcheck"})
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
