package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hwuu/sitepush/internal/config"
)

func TestSaveAndLoadCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials")

	cred := &config.Credentials{Username: "su357282", Password: "pa=ss word"}
	if err := config.SaveCredentialsTo(path, cred); err != nil {
		t.Fatalf("SaveCredentialsTo failed: %v", err)
	}

	// 验证文件权限为 600
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected permission 0600, got %04o", perm)
	}

	loaded, err := config.LoadCredentialsFrom(path)
	if err != nil {
		t.Fatalf("LoadCredentialsFrom failed: %v", err)
	}
	if *loaded != *cred {
		t.Errorf("got %+v, want %+v", loaded, cred)
	}
}

func TestLoadCredentials_NotFound(t *testing.T) {
	_, err := config.LoadCredentialsFrom(filepath.Join(t.TempDir(), "nonexistent"))
	if !errors.Is(err, config.ErrCredentialsNotFound) {
		t.Errorf("expected ErrCredentialsNotFound, got %v", err)
	}
}

func TestLoadCredentials_MissingPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials")
	os.WriteFile(path, []byte("# 主机账号\nusername=deploy\n\n"), 0600)

	if _, err := config.LoadCredentialsFrom(path); err == nil {
		t.Error("expected error for missing password")
	}
}

func TestResolveCredentials_EnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials")
	os.WriteFile(path, []byte("username=deploy\npassword=from-file\n"), 0600)
	t.Setenv(config.PasswordEnvVar, "from-env")

	cred, err := config.ResolveCredentials(path)
	if err != nil {
		t.Fatalf("ResolveCredentials failed: %v", err)
	}
	if cred.Username != "deploy" || cred.Password != "from-env" {
		t.Errorf("got %+v", cred)
	}
}

func TestResolveCredentials_EnvWithoutFile(t *testing.T) {
	t.Setenv(config.PasswordEnvVar, "from-env")

	cred, err := config.ResolveCredentials(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("ResolveCredentials failed: %v", err)
	}
	if cred.Password != "from-env" {
		t.Errorf("got %+v", cred)
	}
}

func TestResolveCredentials_NoFileNoEnv(t *testing.T) {
	t.Setenv(config.PasswordEnvVar, "")

	_, err := config.ResolveCredentials(filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, config.ErrCredentialsNotFound) {
		t.Errorf("expected ErrCredentialsNotFound, got %v", err)
	}
}
