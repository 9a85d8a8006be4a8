package deploy

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hwuu/sitepush/internal/config"
)

// InitRunner 交互式生成配置文件和凭证文件
type InitRunner struct {
	Prompter   *config.Prompter
	Output     io.Writer
	ConfigPath string
	StateDir   string // 凭证文件所在目录，为空时使用 ~/.sitepush
}

func (i *InitRunner) printf(format string, args ...interface{}) {
	fmt.Fprintf(i.Output, format, args...)
}

// Run 依次询问协议、主机、端口、账号、目录，然后写入 config.toml 和 credentials
func (i *InitRunner) Run(ctx context.Context) error {
	if _, err := os.Stat(i.ConfigPath); err == nil {
		overwrite, err := i.Prompter.PromptConfirm(fmt.Sprintf("配置文件 %s 已存在，是否覆盖?", i.ConfigPath), false)
		if err != nil {
			return err
		}
		if !overwrite {
			i.printf("已取消\n")
			return nil
		}
	}

	cfg := config.DefaultConfig()

	protocols := []string{config.ProtocolSFTP, config.ProtocolFTP}
	idx, err := i.Prompter.PromptSelect("请选择传输协议:", protocols)
	if err != nil {
		return err
	}
	cfg.Protocol = protocols[idx]

	if cfg.Host, err = i.Prompter.Prompt("请输入主机地址: "); err != nil {
		return err
	}
	if cfg.Port, err = i.Prompter.PromptInt("请输入端口", cfg.DefaultPort()); err != nil {
		return err
	}

	cred := &config.Credentials{}
	if cred.Username, err = i.Prompter.Prompt("请输入用户名: "); err != nil {
		return err
	}
	if cred.Password, err = i.Prompter.PromptPassword("请输入密码: "); err != nil {
		return err
	}

	if cfg.LocalRoot, err = i.Prompter.PromptWithDefault("请输入本地目录", "dist"); err != nil {
		return err
	}
	if cfg.LocalRoot, err = filepath.Abs(cfg.LocalRoot); err != nil {
		return err
	}
	if cfg.RemoteRoot, err = i.Prompter.Prompt("请输入远程目录 (留空使用登录目录): "); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := config.Save(i.ConfigPath, cfg); err != nil {
		return err
	}
	i.printf("  ✓ 配置已写入 %s\n", i.ConfigPath)

	credPath, err := i.credentialsPath()
	if err != nil {
		return err
	}
	if err := config.SaveCredentialsTo(credPath, cred); err != nil {
		return err
	}
	i.printf("  ✓ 凭证已写入 %s\n", credPath)
	return nil
}

func (i *InitRunner) credentialsPath() (string, error) {
	if i.StateDir != "" {
		return filepath.Join(i.StateDir, config.CredentialsFileName), nil
	}
	stateDir, err := config.GetStateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(stateDir, config.CredentialsFileName), nil
}
