package logbuf

import "sync"

// 环形缓冲容量：超过后最旧的行被覆盖
const defaultCapacity = 2000

// Snapshot 一次增量读取的结果。
// From/To 是序号区间 [From, To)；Lost 表示请求的起点已被覆盖，
// 调用方应把返回的行当作新的完整视图。
type Snapshot struct {
	From  uint64   `json:"from"`
	To    uint64   `json:"to"`
	Lost  bool     `json:"lost"`
	Lines []string `json:"lines"`
}

// Buffer 内核输出的环形行缓冲。
// 每行分配单调递增的序号，消费端用序号做增量拉取。
type Buffer struct {
	mu    sync.Mutex
	lines []string
	next  uint64 // 下一行将获得的序号
	cap   int
}

func New() *Buffer {
	return NewWithCapacity(defaultCapacity)
}

func NewWithCapacity(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Buffer{cap: capacity}
}

// Append 追加一行并返回其序号
func (b *Buffer) Append(line string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	seq := b.next
	b.next++
	b.lines = append(b.lines, line)
	if len(b.lines) > b.cap {
		b.lines = b.lines[len(b.lines)-b.cap:]
	}
	return seq
}

// Since 返回序号 >= since 的所有行。
// since 早于缓冲内最旧的行时置 Lost 并返回完整缓冲。
func (b *Buffer) Since(since uint64) Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	oldest := b.next - uint64(len(b.lines))
	snap := Snapshot{From: since, To: b.next, Lines: []string{}}

	if since > b.next {
		// 序号来自上一个会话，视为过期
		snap.From = oldest
		snap.Lost = true
		since = oldest
	} else if since < oldest {
		snap.From = oldest
		snap.Lost = true
		since = oldest
	}

	start := int(since - oldest)
	if start < len(b.lines) {
		snap.Lines = append(snap.Lines, b.lines[start:]...)
	}
	return snap
}

// Clear 清空缓冲但保留序号计数，旧的 since 游标仍然有效
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = nil
}

// Len 当前缓冲内的行数
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}
