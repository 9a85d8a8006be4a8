package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ghodss/yaml"
	homedir "github.com/mitchellh/go-homedir"
)

const (
	ConfigFileName = "config.toml"

	ProtocolSFTP = "sftp"
	ProtocolFTP  = "ftp"

	DefaultSFTPPort          = 22
	DefaultFTPPort           = 21
	DefaultMaxRetries        = 3
	DefaultRetryBackoff      = 2 * time.Second
	DefaultReconnectAttempts = 3
	DefaultConnectTimeout    = 120 * time.Second
)

var (
	ErrConfigNotFound   = errors.New("config file not found")
	ErrUnknownKey       = errors.New("unknown config key")
	ErrUnknownProtocol  = errors.New("unknown protocol (want sftp or ftp)")
	ErrMissingHost      = errors.New("host is required")
	ErrMissingLocalRoot = errors.New("local_root is required")
	ErrInvalidPort      = errors.New("port out of range")
	ErrInvalidRetries   = errors.New("max_retries and reconnect_attempts must be at least 1")
)

// Duration 以 "2s"、"2m" 形式出现在配置文件中的时长
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Config 一次镜像上传所需的全部参数。密码不写入配置文件，见 Credentials。
type Config struct {
	Protocol          string   `toml:"protocol" json:"protocol"`
	Host              string   `toml:"host" json:"host"`
	Port              int      `toml:"port,omitempty" json:"port,omitempty"`
	Username          string   `toml:"username,omitempty" json:"username,omitempty"`
	LocalRoot         string   `toml:"local_root" json:"local_root"`
	RemoteRoot        string   `toml:"remote_root,omitempty" json:"remote_root,omitempty"`
	MaxRetries        int      `toml:"max_retries" json:"max_retries"`
	RetryBackoff      Duration `toml:"retry_backoff" json:"retry_backoff"`
	ReconnectAttempts int      `toml:"reconnect_attempts" json:"reconnect_attempts"`
	ConnectTimeout    Duration `toml:"connect_timeout" json:"connect_timeout"`
	KnownHosts        string   `toml:"known_hosts,omitempty" json:"known_hosts,omitempty"`
	FTPTLS            bool     `toml:"ftp_tls,omitempty" json:"ftp_tls,omitempty"`
	Exclude           []string `toml:"exclude,omitempty" json:"exclude,omitempty"`

	Password string `toml:"-" json:"-"`
}

// DefaultConfig 返回填好默认值的配置（协议默认 sftp）
func DefaultConfig() *Config {
	return &Config{
		Protocol:          ProtocolSFTP,
		MaxRetries:        DefaultMaxRetries,
		RetryBackoff:      Duration{DefaultRetryBackoff},
		ReconnectAttempts: DefaultReconnectAttempts,
		ConnectTimeout:    Duration{DefaultConnectTimeout},
	}
}

// DefaultConfigPath 返回默认配置文件路径（~/.sitepush/config.toml）
func DefaultConfigPath() (string, error) {
	stateDir, err := GetStateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(stateDir, ConfigFileName), nil
}

// Load 读取配置文件。扩展名为 .yaml / .yml 时按 YAML 解析，否则按 TOML 解析；
// TOML 中未知的 key 视为错误，避免拼写错误被静默忽略。
// local_root 和 known_hosts 支持 ~，相对路径相对于配置文件所在目录。
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := decodeYAML(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	default:
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("%w: %s in %s", ErrUnknownKey, undecoded[0].String(), path)
		}
	}

	base := filepath.Dir(path)
	if cfg.LocalRoot, err = resolvePath(cfg.LocalRoot, base); err != nil {
		return nil, fmt.Errorf("expand local_root: %w", err)
	}
	if cfg.KnownHosts, err = resolvePath(cfg.KnownHosts, base); err != nil {
		return nil, fmt.Errorf("expand known_hosts: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// decodeYAML 经 JSON 解码 YAML，未知的 key 与 TOML 一样报 ErrUnknownKey
func decodeYAML(data []byte, cfg *Config) error {
	js, err := yaml.YAMLToJSON(data)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(js))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		if strings.HasPrefix(err.Error(), "json: unknown field ") {
			return fmt.Errorf("%w: %s", ErrUnknownKey, strings.TrimPrefix(err.Error(), "json: unknown field "))
		}
		return err
	}
	return nil
}

func resolvePath(p, base string) (string, error) {
	if p == "" {
		return "", nil
	}
	expanded, err := homedir.Expand(p)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(expanded) {
		expanded = filepath.Join(base, expanded)
	}
	return expanded, nil
}

func (c *Config) applyDefaults() {
	c.Protocol = strings.ToLower(strings.TrimSpace(c.Protocol))
	if c.Port == 0 {
		c.Port = c.DefaultPort()
	}
}

// DefaultPort 返回协议的默认端口
func (c *Config) DefaultPort() int {
	if c.Protocol == ProtocolFTP {
		return DefaultFTPPort
	}
	return DefaultSFTPPort
}

// Validate 检查必填字段和取值范围
func (c *Config) Validate() error {
	if c.Protocol != ProtocolSFTP && c.Protocol != ProtocolFTP {
		return fmt.Errorf("%w: %q", ErrUnknownProtocol, c.Protocol)
	}
	if c.Host == "" {
		return ErrMissingHost
	}
	if c.LocalRoot == "" {
		return ErrMissingLocalRoot
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}
	if c.MaxRetries < 1 || c.ReconnectAttempts < 1 {
		return ErrInvalidRetries
	}
	return nil
}

// ApplyCredentials 用凭证填充密码；配置里未写用户名时使用凭证中的用户名
func (c *Config) ApplyCredentials(cred *Credentials) {
	if c.Username == "" {
		c.Username = cred.Username
	}
	c.Password = cred.Password
}

// Save 以 TOML 格式写入配置文件（权限 0600）
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}
