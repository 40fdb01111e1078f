package diag

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/pagediag/types"
)

// PerformHealthCheck 评估系统健康状况。未就绪一律 critical;就绪后检
// 查三项条件:句柄使用率、操作错误率、平均执行时间。0 项异常为
// healthy,1 到 2 项为 warning,更多为 critical。每条问题附带对应的
// 处置建议。
func (s *System) PerformHealthCheck(ctx context.Context) types.HealthReport {
	report := types.HealthReport{CheckedAt: time.Now()}

	comps, state := s.snapshotComponents()
	if state != types.StateReady {
		issue := "System not initialized"
		advice := "Call Init, or any diagnostic operation, which initializes implicitly"
		if state == types.StateDisposed {
			issue = "System disposed"
			advice = "Construct a fresh system; a disposed instance cannot be revived"
		}
		report.Status = types.HealthCritical
		report.Issues = []string{issue}
		report.Recommendations = []string{advice}
		s.collector.RecordHealthCheck(report.Status)
		return report
	}

	cfg := s.GetConfiguration()

	if comps.handles != nil && cfg.Resources.HandleCap > 0 {
		hs := comps.handles.Stats()
		ratio := float64(hs.ActiveCount) / float64(cfg.Resources.HandleCap)
		if ratio > cfg.Health.HandleUsageRatio {
			report.Issues = append(report.Issues,
				fmt.Sprintf("handle usage at %.0f%% of cap (%d/%d)",
					ratio*100, hs.ActiveCount, cfg.Resources.HandleCap))
			report.Recommendations = append(report.Recommendations,
				"Release returned element handles promptly or raise resources.handle_cap")
		}
	}

	if total, failed := s.stats.counts(); total > 0 {
		errRate := float64(failed) / float64(total)
		if errRate > cfg.Health.ErrorRateThreshold {
			report.Issues = append(report.Issues,
				fmt.Sprintf("operation error rate at %.0f%% (%d/%d failed)", errRate*100, failed, total))
			report.Recommendations = append(report.Recommendations,
				"Inspect recent failures in the operation history and their suggestions")
		}
	}

	if avg, n := s.stats.overallAverage(); n > 0 && avg > cfg.Health.AvgExecutionThreshold {
		report.Issues = append(report.Issues,
			fmt.Sprintf("average operation time %s exceeds %s",
				avg.Round(time.Millisecond), cfg.Health.AvgExecutionThreshold))
		report.Recommendations = append(report.Recommendations,
			"Enable parallel analysis for complex pages or raise component timeouts")
	}

	switch n := len(report.Issues); {
	case n == 0:
		report.Status = types.HealthHealthy
	case n <= 2:
		report.Status = types.HealthWarning
	default:
		report.Status = types.HealthCritical
	}

	s.collector.RecordHealthCheck(report.Status)
	s.logger.Debug("health check completed",
		zap.String("status", report.Status), zap.Int("issues", len(report.Issues)))
	return report
}
