package watcher

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"pcba_station/pkg/logger"
)

// fileState 记录的共享文件状态
type fileState struct {
	exists  bool
	modTime time.Time
	size    int64
}

func (s fileState) same(o fileState) bool {
	return s.exists == o.exists && s.size == o.size && s.modTime.Equal(o.modTime)
}

// sharedFile 共享命令文件：检测变化、读取首行并清空
type sharedFile struct {
	path   string
	last   fileState
	logger logger.Logger
}

func newSharedFile(path string, log logger.Logger) *sharedFile {
	f := &sharedFile{path: path, logger: log}
	// 启动时的状态；文件不存在时为零值
	f.last, _ = f.stat()
	return f
}

func (f *sharedFile) stat() (fileState, error) {
	st, err := os.Stat(f.path)
	if err != nil {
		return fileState{}, err
	}
	return fileState{exists: true, modTime: st.ModTime(), size: st.Size()}, nil
}

// check 检查文件是否变化。变化且首行非空时，清空文件、刷新状态并返回该行
func (f *sharedFile) check() (string, bool, error) {
	cur, err := f.stat()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// 文件尚未写入，继续等待
			return "", false, nil
		}
		return "", false, fmt.Errorf("stat %s: %w", f.path, err)
	}

	if cur.same(f.last) {
		return "", false, nil
	}

	line, oversized, err := readFirstLine(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}

	if oversized {
		// 无法作为命令使用，但仍要清空，否则之后的命令都会被卡住
		f.logger.Warn("丢弃超过 %d 字节的命令行", maxLineBytes)
		f.consume(cur)
		return "", false, nil
	}

	if strings.TrimSpace(line) == "" {
		f.last = cur
		return "", false, nil
	}

	f.consume(cur)
	return line, true, nil
}

// consume 清空文件并以清空后的状态作为记录
func (f *sharedFile) consume(cur fileState) {
	if err := os.Truncate(f.path, 0); err != nil {
		f.logger.Warn("清空共享文件失败: %v", err)
		f.last = cur
		return
	}

	if post, err := f.stat(); err == nil {
		f.last = post
	} else {
		f.last = fileState{}
	}
}

// maxLineBytes 首行长度上限，超过时整行丢弃
const maxLineBytes = 64 * 1024

// readFirstLine 读取首行并去除换行符；首行超过 maxLineBytes 时 oversized 为 true
func readFirstLine(path string) (line string, oversized bool, err error) {
	file, err := os.Open(path)
	if err != nil {
		return "", false, err
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	var buf []byte
	for {
		chunk, rerr := reader.ReadSlice('\n')
		buf = append(buf, chunk...)
		if len(strings.TrimRight(string(buf), "\r\n")) > maxLineBytes {
			return "", true, nil
		}
		switch {
		case rerr == nil, errors.Is(rerr, io.EOF):
			return strings.Trim(string(buf), "\r\n"), false, nil
		case errors.Is(rerr, bufio.ErrBufferFull):
			continue
		default:
			return "", false, fmt.Errorf("read %s: %w", path, rerr)
		}
	}
}
