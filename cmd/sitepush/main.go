package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hwuu/sitepush/internal/config"
	"github.com/hwuu/sitepush/internal/deploy"
)

// 构建时通过 ldflags 注入
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "sitepush",
		Short:         "将本地站点目录镜像上传到远程主机",
		Long:          "sitepush — 通过 SFTP / FTP 将本地目录树完整上传到远程主机，自动创建目录，失败时重连重试。",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(cmd, opts.logLevel)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "配置文件路径（默认 ~/.sitepush/config.toml）")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "日志级别 (debug, info, warn, error)")

	rootCmd.AddCommand(newInitCmd(opts))
	rootCmd.AddCommand(newDeployCmd(opts))
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func setupLogging(cmd *cobra.Command, level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	log.SetLevel(lvl)
	log.SetOutput(cmd.ErrOrStderr())
	return nil
}

func (o *rootOptions) resolveConfigPath() (string, error) {
	if o.configPath != "" {
		return o.configPath, nil
	}
	return config.DefaultConfigPath()
}

func newInitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "交互式生成配置文件和凭证",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := opts.resolveConfigPath()
			if err != nil {
				return err
			}
			runner := &deploy.InitRunner{
				Prompter:   config.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout()),
				Output:     cmd.OutOrStdout(),
				ConfigPath: path,
			}
			return runner.Run(cmd.Context())
		},
	}
}

func newDeployCmd(opts *rootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "上传本地目录到远程主机",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts, dryRun)
			if err != nil {
				return err
			}
			d := &deploy.Deployer{
				Config: cfg,
				Output: cmd.OutOrStdout(),
				DryRun: dryRun,
			}
			return d.Run(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "只打印将要执行的操作，不连接远程主机")
	return cmd
}

// loadConfig 读取配置文件并填充凭证。dry-run 不需要密码，凭证缺失时忽略。
func loadConfig(opts *rootOptions, dryRun bool) (*config.Config, error) {
	path, err := opts.resolveConfigPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	stateDir, err := config.GetStateDir()
	if err != nil {
		return nil, err
	}
	cred, err := config.ResolveCredentials(filepath.Join(stateDir, config.CredentialsFileName))
	if err != nil {
		if dryRun {
			log.WithError(err).Debug("No credentials for dry run")
			return cfg, nil
		}
		return nil, err
	}
	cfg.ApplyCredentials(cred)
	return cfg, nil
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "查看上次上传结果",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := &deploy.StatusRunner{Output: cmd.OutOrStdout()}
			return s.Run(cmd.Context())
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "显示版本信息",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "sitepush %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
			fmt.Fprintf(out, "  go:     %s\n", runtime.Version())
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		stop()
		os.Exit(1)
	}
}
