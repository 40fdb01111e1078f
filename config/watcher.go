// =============================================================================
// 👀 PageDiag 配置文件监听
// =============================================================================
// FileWatcher 以固定间隔轮询被监听文件的修改时间，状态迁移（出现、修改、
// 消失）经防抖窗口合并后逐个回调。轮询不依赖平台的 inotify/kqueue，单个
// 配置文件每秒一次 stat 的开销可以忽略。
// =============================================================================
package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileOp 标识轮询观察到的文件变化。轮询只能区分三种状态迁移。
type FileOp int

const (
	// FileOpCreate 文件在两次扫描之间出现
	FileOpCreate FileOp = iota
	// FileOpWrite 文件修改时间前移
	FileOpWrite
	// FileOpRemove 文件在两次扫描之间消失
	FileOpRemove
)

// String 返回操作类型的可读名称
func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent 是一次文件变化通知
type FileEvent struct {
	Path      string    `json:"path"`
	Op        FileOp    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

// FileWatcher 轮询一组文件并在变化时通知回调。同一防抖窗口内对同一
// 路径的多次变化只保留最后一次。
type FileWatcher struct {
	paths    []string
	interval time.Duration
	debounce time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	callbacks []func(FileEvent)
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}

	// modTimes 只被轮询协程访问;Start 在协程启动前做初始快照,
	// 避免已存在的文件被当作新建上报
	modTimes map[string]time.Time
}

// WatcherOption 配置 FileWatcher
type WatcherOption func(*FileWatcher)

// WithDebounceDelay 设置防抖窗口
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithPollInterval 设置轮询间隔
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatcherLogger 设置记录器
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *FileWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewFileWatcher 创建文件监听器。路径不存在不算错误,后续出现时会
// 上报 CREATE;无法 stat 的路径(权限等)直接拒绝。
func NewFileWatcher(paths []string, opts ...WatcherOption) (*FileWatcher, error) {
	w := &FileWatcher{
		paths:    append([]string(nil), paths...),
		interval: time.Second,
		debounce: 100 * time.Millisecond,
		logger:   zap.NewNop(),
		modTimes: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}

	for _, path := range w.paths {
		if _, err := os.Stat(path); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("stat watch path %s: %w", path, err)
			}
			w.logger.Warn("watch path does not exist yet, will report creation",
				zap.String("path", path))
		}
	}
	return w, nil
}

// OnChange 注册变化回调。回调在监听器自己的协程里执行,不得长时间阻塞。
func (w *FileWatcher) OnChange(callback func(FileEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start 启动轮询协程。重复启动返回错误;Stop 之后可以再次 Start。
func (w *FileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("file watcher already running")
	}

	for _, path := range w.paths {
		if info, err := os.Stat(path); err == nil {
			w.modTimes[path] = info.ModTime()
		} else {
			delete(w.modTimes, path)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true
	go w.run(runCtx)

	w.logger.Info("file watcher started",
		zap.Strings("paths", w.paths),
		zap.Duration("poll_interval", w.interval),
		zap.Duration("debounce", w.debounce))
	return nil
}

// Stop 停止轮询并等待协程退出。幂等。
func (w *FileWatcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done
	w.logger.Info("file watcher stopped")
	return nil
}

// IsRunning 报告监听器是否在运行
func (w *FileWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Paths 返回被监听路径的副本
func (w *FileWatcher) Paths() []string {
	out := make([]string, len(w.paths))
	copy(out, w.paths)
	return out
}

// run 是唯一的轮询协程:扫描、防抖与回调分发都在这里串行完成
func (w *FileWatcher) run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	pending := make(map[string]FileEvent)
	var flushTimer *time.Timer
	var flush <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if flushTimer != nil {
				flushTimer.Stop()
			}
			return
		case <-ticker.C:
			events := w.scan()
			if len(events) == 0 {
				continue
			}
			for _, ev := range events {
				pending[ev.Path] = ev
			}
			if flushTimer == nil {
				flushTimer = time.NewTimer(w.debounce)
				flush = flushTimer.C
			} else {
				if !flushTimer.Stop() {
					select {
					case <-flushTimer.C:
					default:
					}
				}
				flushTimer.Reset(w.debounce)
			}
		case <-flush:
			events := pending
			pending = make(map[string]FileEvent)
			flushTimer = nil
			flush = nil
			w.dispatch(events)
		}
	}
}

// scan 对比每个路径的当前状态与上次快照,产出状态迁移事件
func (w *FileWatcher) scan() []FileEvent {
	var out []FileEvent
	for _, path := range w.paths {
		info, err := os.Stat(path)
		if err != nil {
			if _, existed := w.modTimes[path]; existed {
				delete(w.modTimes, path)
				out = append(out, FileEvent{Path: path, Op: FileOpRemove, Timestamp: time.Now()})
			}
			continue
		}
		prev, existed := w.modTimes[path]
		w.modTimes[path] = info.ModTime()
		switch {
		case !existed:
			out = append(out, FileEvent{Path: path, Op: FileOpCreate, Timestamp: time.Now()})
		case info.ModTime().After(prev):
			out = append(out, FileEvent{Path: path, Op: FileOpWrite, Timestamp: time.Now()})
		}
	}
	return out
}

// dispatch 按路径序把合并后的事件交给全部回调
func (w *FileWatcher) dispatch(events map[string]FileEvent) {
	w.mu.Lock()
	callbacks := append([]func(FileEvent){}, w.callbacks...)
	w.mu.Unlock()

	paths := make([]string, 0, len(events))
	for p := range events {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		ev := events[p]
		w.logger.Debug("file event",
			zap.String("path", ev.Path),
			zap.Stringer("op", ev.Op))
		for _, cb := range callbacks {
			cb(ev)
		}
	}
}
