package bot

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Default polling budgets for filesystem waits. Downloads get a larger budget
// than element finds since transfer time dominates.
const (
	DefaultFileTimeout     = 60 * time.Second
	DefaultDownloadTimeout = 120 * time.Second

	filePollInterval = 100 * time.Millisecond
)

// Suffixes browsers append to in-progress downloads.
var partialSuffixes = []string{".crdownload", ".part", ".tmp", ".download"}

// WaitForFile blocks until path exists with a size stable across two polls,
// or the timeout elapses. Timeout returns (false, nil); it is not an error.
func (b *Bot) WaitForFile(ctx context.Context, path string, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		timeout = DefaultFileTimeout
	}
	start := time.Now()
	lastSize := int64(-1)
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if time.Since(start) > timeout {
			b.logDebug("wait for file timed out", "path", path)
			return false, nil
		}
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			if info.Size() > 0 && info.Size() == lastSize {
				return true, nil
			}
			lastSize = info.Size()
		}
		time.Sleep(filePollInterval)
	}
}

// WaitForNewFile polls dir until it holds more than baseCount entries with
// the given extension (empty matches everything), returning the newest such
// path. Timeout returns ("", nil).
func (b *Bot) WaitForNewFile(ctx context.Context, dir, ext string, baseCount int, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultFileTimeout
	}
	start := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if time.Since(start) > timeout {
			b.logDebug("wait for new file timed out", "dir", dir, "ext", ext)
			return "", nil
		}
		names, err := completedFiles(dir, ext)
		if err == nil && len(names) > baseCount {
			newest, err := newestFile(dir, names)
			if err == nil {
				return newest, nil
			}
		}
		time.Sleep(filePollInterval)
	}
}

// WaitForDownloads blocks until the configured download directory has no
// in-progress artifacts, or the timeout elapses. Timeout returns
// (false, nil).
func (b *Bot) WaitForDownloads(ctx context.Context, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		timeout = time.Duration(b.cfg.DownloadTimeoutMs) * time.Millisecond
	}
	dir := b.cfg.DownloadDir
	if dir == "" {
		dir = "."
	}
	start := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if time.Since(start) > timeout {
			b.logDebug("wait for downloads timed out", "dir", dir)
			return false, nil
		}
		pending, err := pendingDownloads(dir)
		if err == nil && pending == 0 {
			return true, nil
		}
		time.Sleep(filePollInterval)
	}
}

// completedFiles lists non-partial files in dir with the given extension.
func completedFiles(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || isPartial(e.Name()) {
			continue
		}
		if ext != "" && !strings.EqualFold(filepath.Ext(e.Name()), normalizeExt(ext)) {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// pendingDownloads counts in-progress download artifacts in dir.
func pendingDownloads(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	pending := 0
	for _, e := range entries {
		if !e.IsDir() && isPartial(e.Name()) {
			pending++
		}
	}
	return pending, nil
}

func newestFile(dir string, names []string) (string, error) {
	var newest string
	var newestMod time.Time
	for _, name := range names {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = name
			newestMod = info.ModTime()
		}
	}
	if newest == "" {
		return "", os.ErrNotExist
	}
	return filepath.Join(dir, newest), nil
}

func isPartial(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range partialSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

func normalizeExt(ext string) string {
	if !strings.HasPrefix(ext, ".") {
		return "." + ext
	}
	return ext
}
