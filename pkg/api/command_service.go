package api

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"pcba_station/pkg/command"
	"pcba_station/pkg/models"

	"github.com/google/uuid"
)

// ErrCommandPending 共享文件中仍有未被取走的命令
var ErrCommandPending = errors.New("a command is still waiting in the shared file")

// 提交状态
const (
	SubmissionPending    = "pending"
	SubmissionDispatched = "dispatched"
)

// Submission 一次通过API写入共享文件的命令
type Submission struct {
	ID           string     `json:"id"`
	Line         string     `json:"line"`
	Kind         string     `json:"kind"`
	Status       string     `json:"status"` // pending, dispatched
	SubmittedAt  time.Time  `json:"submitted_at"`
	DispatchedAt *time.Time `json:"dispatched_at,omitempty"`
}

// CommandService 把命令写入共享文件并跟踪其是否被监看器取走
type CommandService struct {
	path        string
	submissions map[string]*Submission
	mutex       sync.RWMutex
	now         func() time.Time
}

// NewCommandService 创建命令服务
func NewCommandService(sharedFile string) *CommandService {
	return &CommandService{
		path:        sharedFile,
		submissions: make(map[string]*Submission),
		now:         time.Now,
	}
}

// Submit 校验命令并写入共享文件
func (s *CommandService) Submit(line string) (*Submission, error) {
	cmd, err := command.Parse(line)
	if err != nil {
		return nil, err
	}
	// 监看器只读取第一行
	if strings.ContainsAny(cmd.String(), "\r\n") {
		return nil, &command.ParseError{Line: line, Reason: "command must be a single line"}
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	// 上一条命令还没被取走时覆盖会丢失它
	if data, err := os.ReadFile(s.path); err == nil {
		first, _, _ := strings.Cut(string(data), "\n")
		if strings.TrimSpace(first) != "" {
			return nil, ErrCommandPending
		}
	}

	normalized := cmd.String()
	if err := os.WriteFile(s.path, []byte(normalized+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("写入共享文件失败: %w", err)
	}

	submission := &Submission{
		ID:          uuid.NewString(),
		Line:        normalized,
		Kind:        string(cmd.Kind),
		Status:      SubmissionPending,
		SubmittedAt: s.now(),
	}
	s.submissions[submission.ID] = submission
	return submission, nil
}

// MarkDispatched 监看器分派命令时回调，标记最早的匹配提交
func (s *CommandService) MarkDispatched(cmd models.Command) {
	line := cmd.String()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	var oldest *Submission
	for _, sub := range s.submissions {
		if sub.Status != SubmissionPending || sub.Line != line {
			continue
		}
		if oldest == nil || sub.SubmittedAt.Before(oldest.SubmittedAt) {
			oldest = sub
		}
	}
	if oldest != nil {
		now := s.now()
		oldest.Status = SubmissionDispatched
		oldest.DispatchedAt = &now
	}
}

// GetSubmission 获取提交记录
func (s *CommandService) GetSubmission(id string) (Submission, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	sub, exists := s.submissions[id]
	if !exists {
		return Submission{}, false
	}
	return *sub, true
}

// ListSubmissions 列出所有提交（最新的在前）
func (s *CommandService) ListSubmissions() []Submission {
	s.mutex.RLock()
	list := make([]Submission, 0, len(s.submissions))
	for _, sub := range s.submissions {
		list = append(list, *sub)
	}
	s.mutex.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].SubmittedAt.After(list[j].SubmittedAt)
	})
	return list
}

// CleanupSubmissions 清理已分派且超过 maxAge 的记录
func (s *CommandService) CleanupSubmissions(maxAge time.Duration) int {
	cutoff := s.now().Add(-maxAge)
	cleaned := 0

	s.mutex.Lock()
	for id, sub := range s.submissions {
		if sub.Status == SubmissionDispatched && sub.SubmittedAt.Before(cutoff) {
			delete(s.submissions, id)
			cleaned++
		}
	}
	s.mutex.Unlock()

	return cleaned
}

// GetStats 获取统计信息
func (s *CommandService) GetStats() map[string]interface{} {
	s.mutex.RLock()
	total := len(s.submissions)
	pending := 0
	for _, sub := range s.submissions {
		if sub.Status == SubmissionPending {
			pending++
		}
	}
	s.mutex.RUnlock()

	return map[string]interface{}{
		"total_submissions":   total,
		"pending_submissions": pending,
		"shared_file":         s.path,
		"timestamp":           s.now(),
	}
}
