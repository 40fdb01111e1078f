package diag

import (
	"sync"
	"time"

	"github.com/BaSui01/pagediag/config"
	"github.com/BaSui01/pagediag/types"
)

// statsBook 聚合操作统计:按操作名的计数与滚动平均、按组件的失败计
// 数,以及一个有界的操作历史环形缓冲区。
type statsBook struct {
	mu sync.Mutex

	total     int64
	succeeded int64
	failed    int64

	perOp           map[string]*opCounters
	componentErrors map[types.Component]int64

	ring  []types.OperationRecord
	next  int
	count int
}

type opCounters struct {
	count    int64
	failures int64
	totalDur time.Duration
	lastDur  time.Duration
}

func newStatsBook(historyLimit int) *statsBook {
	if historyLimit <= 0 {
		historyLimit = config.DefaultSystemConfig().HistoryLimit
	}
	return &statsBook{
		perOp:           make(map[string]*opCounters),
		componentErrors: make(map[types.Component]int64),
		ring:            make([]types.OperationRecord, historyLimit),
	}
}

// record 记入一次操作结果
func (b *statsBook) record(rec types.OperationRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total++
	if rec.Success {
		b.succeeded++
	} else {
		b.failed++
		b.componentErrors[rec.Component]++
	}

	c := b.perOp[rec.Operation]
	if c == nil {
		c = &opCounters{}
		b.perOp[rec.Operation] = c
	}
	c.count++
	if !rec.Success {
		c.failures++
	}
	c.totalDur += rec.Duration
	c.lastDur = rec.Duration

	b.ring[b.next] = rec
	b.next = (b.next + 1) % len(b.ring)
	if b.count < len(b.ring) {
		b.count++
	}
}

// history 按时间序返回历史记录副本
func (b *statsBook) history() []types.OperationRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chronologicalLocked()
}

func (b *statsBook) chronologicalLocked() []types.OperationRecord {
	out := make([]types.OperationRecord, 0, b.count)
	start := 0
	if b.count == len(b.ring) {
		start = b.next
	}
	for i := 0; i < b.count; i++ {
		out = append(out, b.ring[(start+i)%len(b.ring)])
	}
	return out
}

// setHistoryLimit 调整环形缓冲区长度,保留最近的记录
func (b *statsBook) setHistoryLimit(limit int) {
	if limit <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	recent := b.chronologicalLocked()
	if len(recent) > limit {
		recent = recent[len(recent)-limit:]
	}
	b.ring = make([]types.OperationRecord, limit)
	copy(b.ring, recent)
	b.count = len(recent)
	b.next = b.count % limit
}

// counts 返回操作总数与失败数
func (b *statsBook) counts() (total, failed int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total, b.failed
}

// overallAverage 返回全部操作的平均执行时间与样本总数
func (b *statsBook) overallAverage() (time.Duration, int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var totalDur time.Duration
	var n int64
	for _, c := range b.perOp {
		totalDur += c.totalDur
		n += c.count
	}
	if n == 0 {
		return 0, 0
	}
	return totalDur / time.Duration(n), n
}

// snapshot 生成 SystemStats。未执行过任何操作时成功率记 1。
func (b *statsBook) snapshot(state types.SystemState, handles types.HandleStats, frames types.FrameStats, uptime time.Duration) types.SystemStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	ops := make(map[string]types.OperationStats, len(b.perOp))
	for name, c := range b.perOp {
		avg := time.Duration(0)
		if c.count > 0 {
			avg = c.totalDur / time.Duration(c.count)
		}
		ops[name] = types.OperationStats{
			Count:        c.count,
			Failures:     c.failures,
			AvgDuration:  avg,
			LastDuration: c.lastDur,
		}
	}

	compErrs := make(map[types.Component]int64, len(b.componentErrors))
	for k, v := range b.componentErrors {
		compErrs[k] = v
	}

	rate := 1.0
	if b.total > 0 {
		rate = float64(b.succeeded) / float64(b.total)
	}

	return types.SystemStats{
		State:                state,
		TotalOperations:      b.total,
		SuccessfulOperations: b.succeeded,
		FailedOperations:     b.failed,
		SuccessRate:          rate,
		Operations:           ops,
		ComponentErrors:      compErrs,
		Handles:              handles,
		Frames:               frames,
		Uptime:               uptime,
	}
}
