package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"pcba_station/pkg/logger"

	"github.com/fsnotify/fsnotify"
)

// Source 命令来源，Next 阻塞直到取得一行新命令
type Source interface {
	Next(ctx context.Context) (string, error)
}

// ErrSourceClosed 来源已关闭
var ErrSourceClosed = errors.New("command source closed")

// PollSource 按固定间隔检查共享文件的修改时间
type PollSource struct {
	file     *sharedFile
	interval time.Duration
	logger   logger.Logger
}

// NewPollSource 创建轮询来源，记录启动时的文件状态
func NewPollSource(path string, interval time.Duration, log logger.Logger) *PollSource {
	if log == nil {
		log = logger.Nop()
	}
	return &PollSource{
		file:     newSharedFile(path, log),
		interval: interval,
		logger:   log,
	}
}

// Next 每个间隔检查一次文件
func (s *PollSource) Next(ctx context.Context) (string, error) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			line, ok, err := s.file.check()
			if err != nil {
				s.logger.Warn("检查共享文件失败: %v", err)
				continue
			}
			if ok {
				return line, nil
			}
		}
	}
}

// NotifySource 通过 fsnotify 监听共享文件所在目录，并保留轮询作为兜底
type NotifySource struct {
	file     *sharedFile
	path     string
	watcher  *fsnotify.Watcher
	fallback time.Duration
	logger   logger.Logger
}

// NewNotifySource 创建文件通知来源，目录必须已存在
func NewNotifySource(path string, fallback time.Duration, log logger.Logger) (*NotifySource, error) {
	if log == nil {
		log = logger.Nop()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	log.Debug("NotifySource: watching directory %s", dir)

	return &NotifySource{
		file:     newSharedFile(path, log),
		path:     filepath.Clean(path),
		watcher:  w,
		fallback: fallback,
		logger:   log,
	}, nil
}

// Next 在文件事件或兜底间隔到达时检查文件
func (s *NotifySource) Next(ctx context.Context) (string, error) {
	ticker := time.NewTicker(s.fallback)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()

		case event, ok := <-s.watcher.Events:
			if !ok {
				return "", ErrSourceClosed
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			s.logger.Debug("NotifySource: %s event for %s", event.Op, event.Name)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return "", ErrSourceClosed
			}
			s.logger.Warn("NotifySource error: %v", err)
			continue

		case <-ticker.C:
		}

		line, ok, err := s.file.check()
		if err != nil {
			s.logger.Warn("检查共享文件失败: %v", err)
			continue
		}
		if ok {
			return line, nil
		}
	}
}

// Close 停止监听
func (s *NotifySource) Close() error {
	return s.watcher.Close()
}
