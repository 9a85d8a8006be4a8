package deploy

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hwuu/sitepush/internal/config"
)

func TestInitRunner_WritesConfigAndCredentials(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	// 协议选 ftp，端口回车取默认 21
	input := strings.Join([]string{"2", "ftp.example.com", "", "deploy", "s3cret", "/srv/site", "public"}, "\n") + "\n"
	runner := &InitRunner{
		Prompter:   config.NewPrompter(strings.NewReader(input), &bytes.Buffer{}),
		Output:     &bytes.Buffer{},
		ConfigPath: configPath,
		StateDir:   dir,
	}

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Protocol != config.ProtocolFTP || cfg.Port != 21 || cfg.Host != "ftp.example.com" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.LocalRoot != "/srv/site" || cfg.RemoteRoot != "public" {
		t.Errorf("unexpected roots: %s / %s", cfg.LocalRoot, cfg.RemoteRoot)
	}

	cred, err := config.LoadCredentialsFrom(filepath.Join(dir, config.CredentialsFileName))
	if err != nil {
		t.Fatalf("LoadCredentialsFrom failed: %v", err)
	}
	if cred.Username != "deploy" || cred.Password != "s3cret" {
		t.Errorf("unexpected credentials: %+v", cred)
	}
}

func TestInitRunner_KeepsExistingConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	os.WriteFile(configPath, []byte("host = \"keep.me\"\n"), 0600)

	runner := &InitRunner{
		Prompter:   config.NewPrompter(strings.NewReader("n\n"), &bytes.Buffer{}),
		Output:     &bytes.Buffer{},
		ConfigPath: configPath,
		StateDir:   dir,
	}

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	data, _ := os.ReadFile(configPath)
	if string(data) != "host = \"keep.me\"\n" {
		t.Errorf("config was overwritten: %s", data)
	}
}
