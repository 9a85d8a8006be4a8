// Package deploy 编排一次完整的站点上传：读取配置和凭证、建立会话、
// 执行镜像、输出汇总并保存运行记录。
package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/hwuu/sitepush/internal/config"
	"github.com/hwuu/sitepush/internal/mirror"
	"github.com/hwuu/sitepush/internal/remote"
)

var ErrFilesFailed = errors.New("some files or directories were not uploaded")

// DialFactory 根据协议创建 DialFunc 的工厂函数
type DialFactory func(protocol string, opts remote.DialOptions) (remote.DialFunc, error)

// DefaultDialFactory 返回真实的 SFTP / FTP DialFunc
func DefaultDialFactory(protocol string, opts remote.DialOptions) (remote.DialFunc, error) {
	switch protocol {
	case config.ProtocolSFTP:
		return remote.NewSFTPDialFunc(opts), nil
	case config.ProtocolFTP:
		return remote.NewFTPDialFunc(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownProtocol, protocol)
	}
}

// Deployer 部署编排器，通过依赖注入支持测试
type Deployer struct {
	Config      *config.Config
	Output      io.Writer
	StateDir    string // 覆盖默认 state 目录（测试用）
	DialFactory DialFactory
	DryRun      bool
	Fs          afero.Fs        // 为空时使用本地文件系统
	Clock       clockwork.Clock // 为空时使用真实时钟
	Now         func() time.Time
}

func (d *Deployer) printf(format string, args ...interface{}) {
	fmt.Fprintf(d.Output, format, args...)
}

func (d *Deployer) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Run 执行部署。连接失败或重连失败时返回对应错误；
// 运行完成但有文件 / 目录失败时返回 ErrFilesFailed。
func (d *Deployer) Run(ctx context.Context) error {
	cfg := d.Config
	started := d.now()

	d.printf("[1/3] 检查配置...\n")
	d.printf("  协议:     %s\n", cfg.Protocol)
	d.printf("  主机:     %s:%d\n", cfg.Host, cfg.Port)
	d.printf("  本地目录: %s\n", cfg.LocalRoot)
	d.printf("  远程目录: %s\n", displayRemoteRoot(cfg.RemoteRoot))

	dial, err := d.dialFunc()
	if err != nil {
		return err
	}

	d.printf("\n[2/3] 上传文件:\n")
	m := mirror.New(mirror.Options{
		LocalRoot:         cfg.LocalRoot,
		RemoteRoot:        cfg.RemoteRoot,
		MaxRetries:        cfg.MaxRetries,
		Backoff:           cfg.RetryBackoff.Duration,
		ReconnectAttempts: cfg.ReconnectAttempts,
		ConnectTimeout:    cfg.ConnectTimeout.Duration,
		Exclude:           cfg.Exclude,
	}, dial, d.Output)
	if d.Fs != nil {
		m.Fs = d.Fs
	}
	if d.Clock != nil {
		m.Clock = d.Clock
	}

	report, runErr := m.Run(ctx)
	record := d.buildRecord(report, runErr, started)

	if !d.DryRun {
		if err := d.saveRunRecord(record); err != nil {
			d.printf("  ⚠ 保存运行记录失败: %v\n", err)
		}
	}

	d.printSummary(record)

	if runErr != nil {
		return runErr
	}
	if !record.Succeeded() {
		return fmt.Errorf("%w: %d files, %d directories", ErrFilesFailed, len(record.FailedFiles), len(record.FailedDirs))
	}
	return nil
}

func (d *Deployer) dialFunc() (remote.DialFunc, error) {
	if d.DryRun {
		return remote.NewDryRunDialFunc(d.Output), nil
	}

	factory := d.DialFactory
	if factory == nil {
		factory = DefaultDialFactory
	}
	cfg := d.Config
	return factory(cfg.Protocol, remote.DialOptions{
		Host:           cfg.Host,
		Port:           cfg.Port,
		Username:       cfg.Username,
		Password:       cfg.Password,
		Timeout:        cfg.ConnectTimeout.Duration,
		KnownHostsPath: cfg.KnownHosts,
		TLS:            cfg.FTPTLS,
	})
}

func (d *Deployer) buildRecord(report *mirror.Report, runErr error, started time.Time) *config.RunRecord {
	record := config.NewRunRecord(d.Config, started)
	record.FinishedAt = d.now().UTC().Format(time.RFC3339)
	record.DryRun = d.DryRun
	record.Status = config.RunStatusDone
	if runErr != nil {
		record.Status = config.RunStatusFailed
		record.Error = runErr.Error()
	}

	if report != nil {
		record.DirsEnsured = len(report.Dirs) - len(report.FailedDirs())
		record.FilesUploaded = report.Uploaded()
		record.BytesUploaded = report.Bytes()
		record.Reconnects = report.Reconnects
		record.FailedFiles = report.FailedFiles()
		record.FailedDirs = report.FailedDirs()
	}
	return record
}

func (d *Deployer) saveRunRecord(record *config.RunRecord) error {
	if d.StateDir != "" {
		return config.SaveRunRecordTo(d.StateDir, record)
	}
	return config.SaveRunRecord(record)
}

func (d *Deployer) printSummary(record *config.RunRecord) {
	d.printf("\n[3/3] 汇总:\n")
	d.printf("  目录: %d\n", record.DirsEnsured)
	d.printf("  文件: %d (%d bytes)\n", record.FilesUploaded, record.BytesUploaded)
	if record.Reconnects > 0 {
		d.printf("  重连: %d 次\n", record.Reconnects)
	}
	for _, p := range record.FailedDirs {
		d.printf("  ✗ 目录 %s\n", p)
	}
	for _, p := range record.FailedFiles {
		d.printf("  ✗ 文件 %s\n", p)
	}

	switch {
	case record.Status == config.RunStatusFailed:
		d.printf("\n上传中止: %s\n", record.Error)
	case record.Succeeded():
		d.printf("\n✓ 上传完成!\n")
	default:
		d.printf("\n上传完成，但有 %d 个文件 / %d 个目录失败\n", len(record.FailedFiles), len(record.FailedDirs))
	}
}

func displayRemoteRoot(root string) string {
	if root == "" {
		return "(登录目录)"
	}
	return root
}
