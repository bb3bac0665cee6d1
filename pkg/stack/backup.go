package stack

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// BackupManager defines the interface for backup operations.
//
// # Description
//
// BackupManager backs up stack configuration (.env, installation state)
// before destructive operations, allowing recovery if a reconfiguration
// goes wrong. Backups are local timestamped copies; an optional snapshot
// uploader mirrors them to cloud storage.
//
// # Thread Safety
//
// Implementations should be safe for concurrent use.
type BackupManager interface {
	// BackupBeforeOverwrite backs up a path before overwriting.
	// Returns empty string if the path doesn't exist.
	BackupBeforeOverwrite(path string) (backupPath string, err error)

	// ListBackups returns all backups for a path, newest first.
	ListBackups(originalPath string) ([]BackupInfo, error)

	// RestoreBackup restores a backup to its original location.
	RestoreBackup(backupPath string) error

	// CleanOldBackups removes backups older than maxAge.
	CleanOldBackups(originalPath string, maxAge time.Duration) (int, error)

	// UploadBackup mirrors a local backup to the configured snapshot
	// store. No-op returning empty string when no uploader is set.
	UploadBackup(ctx context.Context, backupPath string) (remoteURL string, err error)
}

// SnapshotUploader mirrors backup files to remote storage.
// *gcs.Client satisfies this interface.
type SnapshotUploader interface {
	UploadFile(ctx context.Context, localPath, remotePath string) error
	ObjectURL(remotePath string) string
}

// BackupInfo contains information about a backup.
type BackupInfo struct {
	// Path is the full path to the backup.
	Path string

	// OriginalPath is the path that was backed up.
	OriginalPath string

	// CreatedAt is when the backup was created.
	CreatedAt time.Time

	// Size is the size in bytes (for files) or -1 for directories.
	Size int64

	// IsDir indicates if this is a directory backup.
	IsDir bool
}

// BackupManagerConfig configures backup behavior.
type BackupManagerConfig struct {
	// MaxBackups is the maximum number of backups to retain per path.
	// Default: 5
	MaxBackups int

	// BackupSuffix is appended before the timestamp.
	// Default: ".backup"
	BackupSuffix string

	// TimeFormat is the timestamp format.
	// Default: "2006-01-02_150405"
	TimeFormat string

	// BackupDir overrides backup location (if empty, backup is alongside original).
	BackupDir string

	// RemotePrefix is the object prefix for uploaded snapshots.
	// Default: "kasdock-backups"
	RemotePrefix string
}

// DefaultBackupManagerConfig returns sensible defaults.
func DefaultBackupManagerConfig() BackupManagerConfig {
	return BackupManagerConfig{
		MaxBackups:   5,
		BackupSuffix: ".backup",
		TimeFormat:   "2006-01-02_150405",
		RemotePrefix: "kasdock-backups",
	}
}

// DefaultBackupManager implements BackupManager.
//
// # Description
//
// Provides file and directory backup with automatic rotation. Used
// before the synchronizer overwrites .env and before destroy removes
// installation state.
//
// # Thread Safety
//
// DefaultBackupManager is safe for concurrent use.
//
// # Limitations
//
//   - Directory backups move the original (intended for
//     backup-before-overwrite flows)
//   - Upload requires a configured SnapshotUploader
//
// # Example
//
//	mgr := NewBackupManager(DefaultBackupManagerConfig(), nil)
//
//	backupPath, err := mgr.BackupBeforeOverwrite(envPath)
//	if err != nil {
//	    return err
//	}
//
//	// ... overwrite .env
//
//	// If something goes wrong:
//	mgr.RestoreBackup(backupPath)
type DefaultBackupManager struct {
	config   BackupManagerConfig
	uploader SnapshotUploader
}

// NewBackupManager creates a backup manager.
//
// # Inputs
//
//   - config: Configuration for backup behavior
//   - uploader: Optional snapshot uploader (nil disables uploads)
func NewBackupManager(config BackupManagerConfig, uploader SnapshotUploader) *DefaultBackupManager {
	if config.MaxBackups <= 0 {
		config.MaxBackups = 5
	}
	if config.BackupSuffix == "" {
		config.BackupSuffix = ".backup"
	}
	if config.TimeFormat == "" {
		config.TimeFormat = "2006-01-02_150405"
	}
	if config.RemotePrefix == "" {
		config.RemotePrefix = "kasdock-backups"
	}

	return &DefaultBackupManager{
		config:   config,
		uploader: uploader,
	}
}

// BackupBeforeOverwrite backs up a file or directory before overwriting.
//
// # Description
//
// Creates a timestamped backup of the specified path. If the path
// doesn't exist, returns empty string and nil error. After backup,
// rotates old backups exceeding MaxBackups.
//
// # Example
//
//	backupPath, err := mgr.BackupBeforeOverwrite(envPath)
//	if err != nil {
//	    return fmt.Errorf("failed to backup: %w", err)
//	}
//	if backupPath != "" {
//	    log.Printf("backed up existing .env to %s", backupPath)
//	}
func (m *DefaultBackupManager) BackupBeforeOverwrite(path string) (string, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return "", nil // Nothing to backup
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}

	backupPath := m.generateBackupPath(path)

	if info.IsDir() {
		if err := os.Rename(path, backupPath); err != nil {
			return "", fmt.Errorf("failed to backup directory: %w", err)
		}
	} else {
		if err := m.copyFile(path, backupPath, info.Mode()); err != nil {
			return "", err
		}
	}

	// Rotation failure doesn't fail the backup itself.
	_ = m.rotateBackups(path)

	return backupPath, nil
}

// ListBackups returns all backups for a path, newest first.
func (m *DefaultBackupManager) ListBackups(originalPath string) ([]BackupInfo, error) {
	dir := m.backupDirFor(originalPath)
	base := filepath.Base(originalPath)
	prefix := base + m.config.BackupSuffix + "."

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var backups []BackupInfo

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		timestampStr := strings.TrimPrefix(name, prefix)
		createdAt, _ := time.Parse(m.config.TimeFormat, timestampStr)

		size := info.Size()
		if info.IsDir() {
			size = -1
		}

		backups = append(backups, BackupInfo{
			Path:         filepath.Join(dir, name),
			OriginalPath: originalPath,
			CreatedAt:    createdAt,
			Size:         size,
			IsDir:        info.IsDir(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})

	return backups, nil
}

// RestoreBackup restores a backup to its original location.
//
// If the original location exists, it is overwritten.
func (m *DefaultBackupManager) RestoreBackup(backupPath string) error {
	originalPath := m.originalPathFromBackup(backupPath)
	if originalPath == "" {
		return fmt.Errorf("cannot determine original path from backup: %s", backupPath)
	}

	if err := os.RemoveAll(originalPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove current %s: %w", originalPath, err)
	}

	if err := os.Rename(backupPath, originalPath); err != nil {
		return fmt.Errorf("failed to restore backup: %w", err)
	}

	return nil
}

// CleanOldBackups removes backups older than maxAge. Returns the count removed.
func (m *DefaultBackupManager) CleanOldBackups(originalPath string, maxAge time.Duration) (int, error) {
	backups, err := m.ListBackups(originalPath)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for _, backup := range backups {
		if backup.CreatedAt.Before(cutoff) {
			if err := os.RemoveAll(backup.Path); err != nil {
				continue
			}
			removed++
		}
	}

	return removed, nil
}

// UploadBackup mirrors a local backup to the snapshot store.
//
// # Description
//
// Uploads the backup under RemotePrefix/<basename>. Returns the remote
// URL. When no uploader is configured, returns empty string and nil so
// callers don't need to special-case local-only deployments.
func (m *DefaultBackupManager) UploadBackup(ctx context.Context, backupPath string) (string, error) {
	if m.uploader == nil {
		return "", nil
	}
	if backupPath == "" {
		return "", nil
	}

	remotePath := filepath.Join(m.config.RemotePrefix, filepath.Base(backupPath))
	if err := m.uploader.UploadFile(ctx, backupPath, remotePath); err != nil {
		return "", fmt.Errorf("failed to upload backup %s: %w", backupPath, err)
	}

	return m.uploader.ObjectURL(remotePath), nil
}

// generateBackupPath creates a timestamped backup path.
func (m *DefaultBackupManager) generateBackupPath(originalPath string) string {
	timestamp := time.Now().Format(m.config.TimeFormat)
	base := filepath.Base(originalPath)
	return filepath.Join(m.backupDirFor(originalPath), base+m.config.BackupSuffix+"."+timestamp)
}

func (m *DefaultBackupManager) backupDirFor(originalPath string) string {
	if m.config.BackupDir != "" {
		return m.config.BackupDir
	}
	return filepath.Dir(originalPath)
}

// copyFile copies src to dst preserving the file mode.
func (m *DefaultBackupManager) copyFile(src, dst string, mode os.FileMode) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}

	return dstFile.Close()
}

// rotateBackups removes old backups exceeding MaxBackups.
func (m *DefaultBackupManager) rotateBackups(originalPath string) error {
	backups, err := m.ListBackups(originalPath)
	if err != nil {
		return err
	}

	if len(backups) <= m.config.MaxBackups {
		return nil
	}

	// List is sorted newest first; remove the tail.
	for i := m.config.MaxBackups; i < len(backups); i++ {
		os.RemoveAll(backups[i].Path)
	}

	return nil
}

// originalPathFromBackup extracts the original path from a backup path.
func (m *DefaultBackupManager) originalPathFromBackup(backupPath string) string {
	dir := filepath.Dir(backupPath)
	base := filepath.Base(backupPath)

	suffixIdx := strings.Index(base, m.config.BackupSuffix+".")
	if suffixIdx == -1 {
		return ""
	}

	return filepath.Join(dir, base[:suffixIdx])
}

// Compile-time interface check
var _ BackupManager = (*DefaultBackupManager)(nil)

// MockBackupManager is a test double for BackupManager.
type MockBackupManager struct {
	BackupBeforeOverwriteFunc func(string) (string, error)
	ListBackupsFunc           func(string) ([]BackupInfo, error)
	RestoreBackupFunc         func(string) error
	CleanOldBackupsFunc       func(string, time.Duration) (int, error)
	UploadBackupFunc          func(context.Context, string) (string, error)

	BackupCalls  []string
	RestoreCalls []string
	UploadCalls  []string
}

// BackupBeforeOverwrite implements BackupManager.
func (m *MockBackupManager) BackupBeforeOverwrite(path string) (string, error) {
	m.BackupCalls = append(m.BackupCalls, path)
	if m.BackupBeforeOverwriteFunc != nil {
		return m.BackupBeforeOverwriteFunc(path)
	}
	return path + ".backup.test", nil
}

// ListBackups implements BackupManager.
func (m *MockBackupManager) ListBackups(originalPath string) ([]BackupInfo, error) {
	if m.ListBackupsFunc != nil {
		return m.ListBackupsFunc(originalPath)
	}
	return nil, nil
}

// RestoreBackup implements BackupManager.
func (m *MockBackupManager) RestoreBackup(backupPath string) error {
	m.RestoreCalls = append(m.RestoreCalls, backupPath)
	if m.RestoreBackupFunc != nil {
		return m.RestoreBackupFunc(backupPath)
	}
	return nil
}

// CleanOldBackups implements BackupManager.
func (m *MockBackupManager) CleanOldBackups(originalPath string, maxAge time.Duration) (int, error) {
	if m.CleanOldBackupsFunc != nil {
		return m.CleanOldBackupsFunc(originalPath, maxAge)
	}
	return 0, nil
}

// UploadBackup implements BackupManager.
func (m *MockBackupManager) UploadBackup(ctx context.Context, backupPath string) (string, error) {
	m.UploadCalls = append(m.UploadCalls, backupPath)
	if m.UploadBackupFunc != nil {
		return m.UploadBackupFunc(ctx, backupPath)
	}
	return "", nil
}

var _ BackupManager = (*MockBackupManager)(nil)
