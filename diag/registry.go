package diag

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/pagediag/config"
	"github.com/BaSui01/pagediag/internal/metrics"
	"github.com/BaSui01/pagediag/page"
	"github.com/BaSui01/pagediag/types"
)

// Registry 是会话到诊断系统的显式映射,由创建它的调用方持有并负责
// 关闭。没有进程级全局注册表:系统的生命周期完全跟随 Registry 实例。
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*System

	logger    *zap.Logger
	collector *metrics.Collector
}

// NewRegistry 创建空注册表。collector 在注册表内所有系统间共享,
// 传 nil 表示不采集指标。
func NewRegistry(logger *zap.Logger, collector *metrics.Collector) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		sessions:  make(map[string]*System),
		logger:    logger,
		collector: collector,
	}
}

// Create 为一个页面会话构建诊断系统并登记。sessionID 为空时生成
// uuid。返回实际使用的会话 ID;重复登记报配置错误。
func (r *Registry) Create(sessionID string, pg page.Page, cfg *config.Config) (string, *System, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[sessionID]; exists {
		return "", nil, types.NewError(types.ErrConfiguration,
			fmt.Sprintf("session %q already registered", sessionID)).
			WithComponent(types.ComponentSystem)
	}

	sys := New(pg, cfg, r.logger, r.collector)
	r.sessions[sessionID] = sys
	r.logger.Info("diagnostic session created", zap.String("session_id", sessionID))
	return sessionID, sys, nil
}

// Get 查找会话的诊断系统
func (r *Registry) Get(sessionID string) (*System, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sys, ok := r.sessions[sessionID]
	return sys, ok
}

// Remove 释放并移除一个会话,不存在时返回 false
func (r *Registry) Remove(ctx context.Context, sessionID string) bool {
	r.mu.Lock()
	sys, ok := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	if !ok {
		return false
	}
	sys.Dispose(ctx)
	r.logger.Info("diagnostic session removed", zap.String("session_id", sessionID))
	return true
}

// CloseAll 释放并移除全部会话
func (r *Registry) CloseAll(ctx context.Context) {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*System)
	r.mu.Unlock()

	for id, sys := range sessions {
		sys.Dispose(ctx)
		r.logger.Info("diagnostic session removed", zap.String("session_id", id))
	}
}

// Count 返回当前登记的会话数
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
