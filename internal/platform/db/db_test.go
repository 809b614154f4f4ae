package db

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestExtractTenantID_Priority(t *testing.T) {
	e := echo.New()

	t.Run("jwt claim wins", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/?tenant_id=query_tenant", nil)
		req.Header.Set("X-Tenant-ID", "header_tenant")
		c := e.NewContext(req, httptest.NewRecorder())
		c.Set("jwt_tenant_id", "jwt_tenant")

		if got := extractTenantID(c, "default"); got != "jwt_tenant" {
			t.Errorf("expected jwt_tenant, got %s", got)
		}
	})

	t.Run("header over query", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/?tenant_id=query_tenant", nil)
		req.Header.Set("X-Tenant-ID", "header_tenant")
		c := e.NewContext(req, httptest.NewRecorder())

		if got := extractTenantID(c, "default"); got != "header_tenant" {
			t.Errorf("expected header_tenant, got %s", got)
		}
	})

	t.Run("default when nothing set", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		c := e.NewContext(req, httptest.NewRecorder())

		if got := extractTenantID(c, "default"); got != "default" {
			t.Errorf("expected default, got %s", got)
		}
	})
}

func TestTenantFromContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), TenantIDKey, "clinic_a")
	if got := TenantFromContext(ctx); got != "clinic_a" {
		t.Errorf("expected clinic_a, got %s", got)
	}
	if got := TenantFromContext(context.Background()); got != "" {
		t.Errorf("expected empty string, got %s", got)
	}
}

func TestCreateTenantSchema_InvalidID(t *testing.T) {
	if err := CreateTenantSchema(context.Background(), nil, "invalid-id!", ""); err == nil {
		t.Error("expected error for invalid tenant ID")
	}
}

func TestTxFromContext_Nil(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Error("expected nil tx from empty context")
	}
}

func TestTxFromContext_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), DBTxKey, "not-a-tx")
	if tx := TxFromContext(ctx); tx != nil {
		t.Error("expected nil tx for wrong stored type")
	}
}

func TestWithTx_NoConnection(t *testing.T) {
	_, _, err := WithTx(context.Background())
	if err == nil {
		t.Fatal("expected error when no connection in context")
	}
	if err.Error() != "no database connection in context" {
		t.Errorf("unexpected error message: %s", err.Error())
	}
}

func TestRunInTx_NoConnection(t *testing.T) {
	called := false
	err := RunInTx(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatal("expected error when no connection in context")
	}
	if called {
		t.Error("fn must not run when the transaction cannot begin")
	}
}

func TestLoadMigrations_OrderAndFiltering(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"002_consent.sql": "CREATE TABLE consent (id uuid);",
		"001_users.sql":   "CREATE TABLE account (id uuid);",
		"notes.txt":       "not a migration",
		"README.sql":      "no numeric prefix",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	m := NewMigrator(nil, dir)
	migrations, err := m.LoadMigrations()
	if err != nil {
		t.Fatal(err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[1].Version != 2 {
		t.Errorf("migrations out of order: %+v", migrations)
	}
	if migrations[0].Name != "001_users.sql" {
		t.Errorf("unexpected first migration: %s", migrations[0].Name)
	}
}

func TestLoadMigrations_MissingDir(t *testing.T) {
	m := NewMigrator(nil, "/nonexistent/migrations")
	if _, err := m.LoadMigrations(); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestPoolStats_Healthy(t *testing.T) {
	stats := &PoolStats{TotalConns: 5, MaxConns: 20, Healthy: true}
	if !stats.Healthy {
		t.Error("expected healthy")
	}
	empty := &PoolStats{}
	if empty.Healthy {
		t.Error("expected unhealthy for zero conns")
	}
}
