package cardsuitecli

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joho/godotenv"
)

func TestExecuteUsage(t *testing.T) {
	cases := [][]string{
		nil,
		{"bogus"},
		{"run"},
		{"assets"},
		{"assets", "clean"},
	}
	for _, args := range cases {
		if err := Execute(args); !errors.Is(err, ErrUsage) {
			t.Fatalf("Execute(%q) = %v, want ErrUsage", args, err)
		}
	}
}

func TestSetupRejectsShortAdminPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	err := Execute([]string{"setup", "--admin-password", "short-pass", "--env-file", path})
	if err == nil || !strings.Contains(err.Error(), "12") {
		t.Fatalf("err = %v, want minimum length error", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("env file written despite invalid password")
	}
}

func TestSetupWritesEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := Execute([]string{"setup", "--admin-username", "root", "--admin-password", "correct-horse-battery", "--env-file", path}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	values, err := godotenv.Read(path)
	if err != nil {
		t.Fatalf("read env: %v", err)
	}
	if values["ADMIN_USERNAME"] != "root" || values["ADMIN_PASSWORD"] != "correct-horse-battery" {
		t.Fatalf("admin credentials = %q/%q", values["ADMIN_USERNAME"], values["ADMIN_PASSWORD"])
	}
	if values["ADMIN_API_BASE_URL"] != "http://localhost:8081" || values["CSRF_KEY"] == "" {
		t.Fatalf("env = %v", values)
	}

	err = Execute([]string{"setup", "--admin-password", "correct-horse-battery", "--env-file", path})
	if err == nil || !strings.Contains(err.Error(), "--force") {
		t.Fatalf("second setup err = %v, want a --force hint", err)
	}
	if err := Execute([]string{"setup", "--admin-password", "another-long-password", "--env-file", path, "--force"}); err != nil {
		t.Fatalf("forced setup: %v", err)
	}
}

func TestTailwindReleaseAssetName(t *testing.T) {
	name, err := tailwindReleaseAssetName("linux", "amd64")
	if err != nil || name != "tailwindcss-linux-x64" {
		t.Fatalf("linux/amd64 = %q, %v", name, err)
	}
	if _, err := tailwindReleaseAssetName("plan9", "386"); err == nil {
		t.Fatal("expected unsupported platform error")
	}
}

func TestDashboardCSSArgs(t *testing.T) {
	build := dashboardCSS()
	args := strings.Join(build.args(), " ")
	if !strings.Contains(args, filepath.Join("internal", "dashboard", "static", "app.css")) || !strings.HasSuffix(args, "--minify") {
		t.Fatalf("args = %s", args)
	}
	build.Watch = true
	if !strings.HasSuffix(strings.Join(build.args(), " "), "--watch") {
		t.Fatal("watch build should not minify")
	}
}
