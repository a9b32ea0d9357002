package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requisitionTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requisition_transitions_total",
			Help: "Requisition state transitions by target state",
		},
		[]string{"state"},
	)

	ledgerOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger operations by kind and outcome",
		},
		[]string{"operation", "outcome"},
	)

	// 告警监控此指标：审计写入失败会回滚业务变更
	auditWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_write_failures_total",
			Help: "Audit entries that could not be written",
		},
	)

	fundMismatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fund_reconciliation_mismatches_total",
			Help: "Funds whose balance disagreed with their movements during a reconciliation run",
		},
	)

	configCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_config_cache_total",
			Help: "Approval configuration cache lookups by result",
		},
		[]string{"result"},
	)
)

func observeLedger(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ledgerOperationsTotal.WithLabelValues(operation, outcome).Inc()
}
