package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hwuu/sitepush/internal/config"
)

// StatusRunner 显示上次 deploy 的运行记录
type StatusRunner struct {
	Output   io.Writer
	StateDir string
}

func (s *StatusRunner) printf(format string, args ...interface{}) {
	fmt.Fprintf(s.Output, format, args...)
}

func (s *StatusRunner) loadRunRecord() (*config.RunRecord, error) {
	if s.StateDir != "" {
		return config.LoadRunRecordFrom(s.StateDir)
	}
	return config.LoadRunRecord()
}

// Run 执行状态查询
func (s *StatusRunner) Run(ctx context.Context) error {
	record, err := s.loadRunRecord()
	if errors.Is(err, config.ErrRunRecordNotFound) {
		s.printf("未找到运行记录。请先运行 sitepush deploy\n")
		return nil
	}
	if err != nil {
		return err
	}

	s.printf("sitepush 上次运行\n")
	s.printf("─────────────────────────────────────────\n")
	s.printf("  %-10s %s://%s\n", "主机", record.Protocol, record.Host)
	s.printf("  %-10s %s\n", "本地目录", record.LocalRoot)
	s.printf("  %-10s %s\n", "远程目录", displayRemoteRoot(record.RemoteRoot))
	s.printf("  %-10s %s\n", "开始", record.StartedAt)
	s.printf("  %-10s %s\n", "结束", record.FinishedAt)
	s.printf("  %-10s %s\n", "状态", statusLabel(record))
	s.printf("  %-10s %d\n", "目录", record.DirsEnsured)
	s.printf("  %-10s %d (%d bytes)\n", "文件", record.FilesUploaded, record.BytesUploaded)
	if record.Reconnects > 0 {
		s.printf("  %-10s %d\n", "重连", record.Reconnects)
	}

	if len(record.FailedDirs) > 0 || len(record.FailedFiles) > 0 {
		s.printf("\n失败:\n")
		for _, p := range record.FailedDirs {
			s.printf("  ✗ 目录 %s\n", p)
		}
		for _, p := range record.FailedFiles {
			s.printf("  ✗ 文件 %s\n", p)
		}
	}
	if record.Error != "" {
		s.printf("\n错误: %s\n", record.Error)
	}

	s.printf("─────────────────────────────────────────\n")
	return nil
}

func statusLabel(record *config.RunRecord) string {
	switch {
	case record.Status == config.RunStatusFailed:
		return "❌ 中止"
	case record.Succeeded():
		return "✓ 成功"
	default:
		return "⚠ 部分失败"
	}
}
