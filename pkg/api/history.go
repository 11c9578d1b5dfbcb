package api

import (
	"sync"

	"pcba_station/pkg/models"
)

// DefaultHistorySize 默认保留的事件数量
const DefaultHistorySize = 500

// History 最近阶段事件的环形缓冲，只存在内存中
type History struct {
	mu    sync.RWMutex
	items []models.StageResult
	next  int
	full  bool
}

// NewHistory 创建容量为 size 的历史记录
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{items: make([]models.StageResult, size)}
}

// Observe 记录一个阶段事件
func (h *History) Observe(result *models.StageResult) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.items[h.next] = *result
	h.next = (h.next + 1) % len(h.items)
	if h.next == 0 {
		h.full = true
	}
}

// Len 当前记录数
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.full {
		return len(h.items)
	}
	return h.next
}

// Recent 按时间顺序返回最近的事件，serial 非空时只返回该序号，limit<=0 不限数量
func (h *History) Recent(serial string, limit int) []models.StageResult {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n, start := h.next, 0
	if h.full {
		n, start = len(h.items), h.next
	}

	out := make([]models.StageResult, 0, n)
	for i := 0; i < n; i++ {
		r := h.items[(start+i)%len(h.items)]
		if serial != "" && r.Serial != serial {
			continue
		}
		out = append(out, r)
	}

	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
