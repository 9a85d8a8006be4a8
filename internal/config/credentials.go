package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	CredentialsFileName = "credentials"
	PasswordEnvVar      = "SITEPUSH_PASSWORD"
)

var ErrCredentialsNotFound = errors.New("credentials file not found")

// Credentials 远程主机登录凭证，从 ~/.sitepush/credentials 文件加载
type Credentials struct {
	Username string
	Password string
}

// LoadCredentials 从 ~/.sitepush/credentials 文件加载凭证。
// 文件格式为 key=value（只取第一个 = 分割）。
func LoadCredentials() (*Credentials, error) {
	stateDir, err := GetStateDir()
	if err != nil {
		return nil, err
	}
	return LoadCredentialsFrom(filepath.Join(stateDir, CredentialsFileName))
}

// LoadCredentialsFrom 从指定路径加载凭证文件
func LoadCredentialsFrom(path string) (*Credentials, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s (run sitepush init first)", ErrCredentialsNotFound, path)
		}
		return nil, fmt.Errorf("读取凭证文件失败: %w", err)
	}
	defer f.Close()

	kv := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx < 0 {
			continue
		}
		kv[strings.TrimSpace(line[:idx])] = strings.TrimSpace(line[idx+1:])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取凭证文件失败: %w", err)
	}

	cred := &Credentials{
		Username: kv["username"],
		Password: kv["password"],
	}
	if cred.Password == "" {
		return nil, fmt.Errorf("凭证文件缺少 password，请运行 sitepush init 重新配置")
	}
	return cred, nil
}

// ResolveCredentials 按 凭证文件 → 环境变量 的顺序得到最终凭证。
// 设置了 SITEPUSH_PASSWORD 时凭证文件可以不存在。
func ResolveCredentials(path string) (*Credentials, error) {
	envPassword := os.Getenv(PasswordEnvVar)

	cred, err := LoadCredentialsFrom(path)
	if err != nil {
		if envPassword == "" || !errors.Is(err, ErrCredentialsNotFound) {
			return nil, err
		}
		cred = &Credentials{}
	}
	if envPassword != "" {
		cred.Password = envPassword
	}
	return cred, nil
}

// SaveCredentials 将凭证保存到 ~/.sitepush/credentials，权限 600
func SaveCredentials(cred *Credentials) error {
	stateDir, err := GetStateDir()
	if err != nil {
		return err
	}
	return SaveCredentialsTo(filepath.Join(stateDir, CredentialsFileName), cred)
}

// SaveCredentialsTo 将凭证保存到指定路径，权限 600
func SaveCredentialsTo(path string, cred *Credentials) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	content := fmt.Sprintf("username=%s\npassword=%s\n", cred.Username, cred.Password)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("保存凭证文件失败: %w", err)
	}
	return nil
}
