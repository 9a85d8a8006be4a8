// Package config 管理 sitepush 的配置文件、凭证文件和上次运行记录。
// 所有文件位于 ~/.sitepush/ 下（目录 0700，文件 0600）。
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	RunRecordVersion  = "1.0"
	StateDirName      = ".sitepush"     // 状态目录，位于用户 home 下
	RunRecordFileName = "last_run.json" // 上次运行记录
)

const (
	RunStatusDone   = "done"
	RunStatusFailed = "failed"
)

var (
	ErrRunRecordNotFound  = errors.New("run record not found")
	ErrRunRecordCorrupted = errors.New("run record corrupted")
)

// RunRecord 一次 deploy 的结果摘要，序列化为 ~/.sitepush/last_run.json
type RunRecord struct {
	Version       string   `json:"version"`
	StartedAt     string   `json:"started_at"`
	FinishedAt    string   `json:"finished_at"`
	Protocol      string   `json:"protocol"`
	Host          string   `json:"host"`
	LocalRoot     string   `json:"local_root"`
	RemoteRoot    string   `json:"remote_root"`
	DryRun        bool     `json:"dry_run,omitempty"`
	Status        string   `json:"status"` // done / failed
	DirsEnsured   int      `json:"dirs_ensured"`
	FilesUploaded int      `json:"files_uploaded"`
	BytesUploaded int64    `json:"bytes_uploaded"`
	Reconnects    int      `json:"reconnects"`
	FailedFiles   []string `json:"failed_files,omitempty"`
	FailedDirs    []string `json:"failed_dirs,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// Succeeded 运行正常结束且没有失败的文件或目录
func (r *RunRecord) Succeeded() bool {
	return r.Status == RunStatusDone && len(r.FailedFiles) == 0 && len(r.FailedDirs) == 0
}

// NewRunRecord 创建新的运行记录（自动填充版本号和开始时间）
func NewRunRecord(cfg *Config, startedAt time.Time) *RunRecord {
	return &RunRecord{
		Version:    RunRecordVersion,
		StartedAt:  startedAt.UTC().Format(time.RFC3339),
		Protocol:   cfg.Protocol,
		Host:       cfg.Host,
		LocalRoot:  cfg.LocalRoot,
		RemoteRoot: cfg.RemoteRoot,
	}
}

// GetStateDir 返回状态目录路径（~/.sitepush/）
func GetStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, StateDirName), nil
}

// LoadRunRecord 从默认目录加载运行记录
func LoadRunRecord() (*RunRecord, error) {
	stateDir, err := GetStateDir()
	if err != nil {
		return nil, err
	}
	return LoadRunRecordFrom(stateDir)
}

// LoadRunRecordFrom 从指定目录加载运行记录
func LoadRunRecordFrom(dir string) (*RunRecord, error) {
	data, err := os.ReadFile(filepath.Join(dir, RunRecordFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrRunRecordNotFound
		}
		return nil, fmt.Errorf("failed to read run record: %w", err)
	}

	var record RunRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRunRecordCorrupted, err)
	}
	return &record, nil
}

// SaveRunRecord 将运行记录写入默认目录
func SaveRunRecord(record *RunRecord) error {
	stateDir, err := GetStateDir()
	if err != nil {
		return err
	}
	return SaveRunRecordTo(stateDir, record)
}

// SaveRunRecordTo 将运行记录写入指定目录（自动创建目录，权限 0600）
func SaveRunRecordTo(dir string, record *RunRecord) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, RunRecordFileName), data, 0600); err != nil {
		return fmt.Errorf("failed to write run record: %w", err)
	}
	return nil
}
