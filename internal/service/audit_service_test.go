package service

import (
	"context"
	"testing"
	"time"

	"github.com/church-treasury-core/internal/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func auditEntry(action models.AuditAction, entityID string) AuditEntry {
	return AuditEntry{
		TenantID:    tenantA,
		ActorID:     treasurer.ActorID,
		Action:      action,
		EntityID:    entityID,
		EntityKind:  models.EntityRequisition,
		Before:      map[string]string{"state": "PENDING"},
		After:       map[string]string{"state": "UNDER_REVIEW"},
		Description: "test entry",
	}
}

func TestAudit_AppendAndVerify(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	log, err := env.svc.Audit.Append(ctx, auditEntry(models.ActionRequisitionSubmitted, "req-1"))
	require.NoError(t, err)
	assert.Len(t, log.Checksum, 64)
	assert.True(t, env.svc.Audit.Verify(log))

	stored, err := env.svc.Audit.Get(ctx, tenantA, log.ID)
	require.NoError(t, err)
	assert.Equal(t, log.Checksum, stored.Checksum)
	assert.True(t, env.svc.Audit.Verify(stored), "stored entry must verify after a round trip")

	tampered := *stored
	tampered.After = datatypes.JSON(`{"state":"APPROVED"}`)
	assert.False(t, env.svc.Audit.Verify(&tampered))

	tampered = *stored
	tampered.ActorID = "someone-else"
	assert.False(t, env.svc.Audit.Verify(&tampered))
}

func TestAudit_AppendRejectsIncompleteEntries(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	entry := auditEntry(models.ActionRequisitionSubmitted, "")
	_, err := env.svc.Audit.Append(ctx, entry)
	assert.ErrorIs(t, err, ErrValidation)

	entry = auditEntry("SOMETHING_ELSE", "req-1")
	_, err = env.svc.Audit.Append(ctx, entry)
	assert.ErrorIs(t, err, ErrValidation)

	assert.Zero(t, env.count(t, &models.AuditLog{}, "tenant_id = ?", tenantA))
}

func TestAudit_Queries(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	first, err := env.svc.Audit.Append(ctx, auditEntry(models.ActionRequisitionCreated, "req-1"))
	require.NoError(t, err)
	second, err := env.svc.Audit.Append(ctx, auditEntry(models.ActionRequisitionSubmitted, "req-1"))
	require.NoError(t, err)
	other := auditEntry(models.ActionRequisitionCreated, "req-2")
	other.ActorID = "member-2"
	third, err := env.svc.Audit.Append(ctx, other)
	require.NoError(t, err)
	foreign := auditEntry(models.ActionRequisitionCreated, "req-9")
	foreign.TenantID = tenantB
	_, err = env.svc.Audit.Append(ctx, foreign)
	require.NoError(t, err)

	byEntity, err := env.svc.Audit.ByEntity(ctx, tenantA, "req-1", AuditQuery{})
	require.NoError(t, err)
	require.Len(t, byEntity, 2)
	assert.Equal(t, first.ID, byEntity[0].ID)
	assert.Equal(t, second.ID, byEntity[1].ID)

	byAction, err := env.svc.Audit.ByAction(ctx, tenantA, models.ActionRequisitionCreated, AuditQuery{})
	require.NoError(t, err)
	require.Len(t, byAction, 2)
	assert.Equal(t, third.ID, byAction[0].ID)

	_, err = env.svc.Audit.ByAction(ctx, tenantA, "NOPE", AuditQuery{})
	assert.ErrorIs(t, err, ErrValidation)

	byActor, err := env.svc.Audit.ByActor(ctx, tenantA, "member-2", AuditQuery{})
	require.NoError(t, err)
	require.Len(t, byActor, 1)
	assert.Equal(t, third.ID, byActor[0].ID)

	period, err := env.svc.Audit.ByTenantPeriod(ctx, tenantA, time.Now().Add(-time.Hour), time.Now().Add(time.Hour), AuditQuery{})
	require.NoError(t, err)
	require.Len(t, period, 3)
	assert.Equal(t, first.ID, period[0].ID)
	assert.Equal(t, third.ID, period[2].ID)

	paged, err := env.svc.Audit.ByTenantPeriod(ctx, tenantA, time.Time{}, time.Time{}, AuditQuery{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, second.ID, paged[0].ID)

	_, err = env.svc.Audit.Get(ctx, tenantB, first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAudit_CorrectionLeavesOriginal(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	original, err := env.svc.Audit.Append(ctx, auditEntry(models.ActionFundAdjusted, "fund-1"))
	require.NoError(t, err)

	_, err = env.svc.Audit.Correct(ctx, admin, original.ID, "  ", nil)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = env.svc.Audit.Correct(ctx, admin, "missing", "typo", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	correction, err := env.svc.Audit.Correct(ctx, admin, original.ID, "wrong fund recorded",
		map[string]string{"fund_id": "fund-2"})
	require.NoError(t, err)
	assert.Equal(t, models.ActionAuditCorrection, correction.Action)
	assert.Equal(t, original.ID, correction.EntityID)
	assert.Equal(t, models.EntityAuditLog, correction.EntityKind)
	assert.JSONEq(t, string(original.After), string(correction.Before))
	assert.True(t, env.svc.Audit.Verify(correction))

	stored, err := env.svc.Audit.Get(ctx, tenantA, original.ID)
	require.NoError(t, err)
	assert.Equal(t, original.Checksum, stored.Checksum)
	assert.True(t, env.svc.Audit.Verify(stored))
}

func TestAudit_FailedWriteRollsBackBusinessChange(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	fund := env.openFund(t, tenantA, "100")

	// 没有审计表时所有账本写入都必须失败且不留痕迹
	require.NoError(t, env.db.Migrator().DropTable(&models.AuditLog{}))
	failures := testutil.ToFloat64(auditWriteFailuresTotal)

	_, err := env.svc.Ledger.RecordAdjustment(ctx, AdjustmentCommand{
		TenantID: tenantA, FundID: fund.ID, ActorID: admin.ActorID, Amount: dec("10"),
		Direction: models.DirectionIncrease, Reason: "bonus",
	})
	require.Error(t, err)

	b, err := env.svc.Ledger.GetBalance(ctx, tenantA, fund.ID)
	require.NoError(t, err)
	assert.True(t, b.Equal(dec("100")))
	assert.Equal(t, int64(1), env.count(t, &models.FinancialMovement{}, "fund_id = ?", fund.ID))
	assert.Equal(t, failures+1, testutil.ToFloat64(auditWriteFailuresTotal))
}

func TestAudit_EveryTransitionAudited(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	fund := env.openFund(t, tenantA, "1000")
	req := env.approvedRequisition(t, fund.ID, "100", treasurer)
	result, err := env.svc.Requisition.Execute(ctx, treasurer, req.ID, ExecuteCommand{})
	require.NoError(t, err)

	logs, err := env.svc.Audit.ByTenantPeriod(ctx, tenantA, time.Time{}, time.Time{}, AuditQuery{})
	require.NoError(t, err)
	actions := map[models.AuditAction]int{}
	for _, l := range logs {
		actions[l.Action]++
		assert.True(t, env.svc.Audit.Verify(&l), "entry %s %s", l.Action, l.ID)
	}
	assert.Equal(t, 1, actions[models.ActionFundOpened])
	assert.Equal(t, 1, actions[models.ActionFundAdjusted])
	assert.Equal(t, 1, actions[models.ActionRequisitionCreated])
	assert.Equal(t, 1, actions[models.ActionRequisitionSubmitted])
	assert.Equal(t, 1, actions[models.ActionRequisitionApproved])
	assert.Equal(t, 1, actions[models.ActionRequisitionExecuted])
	assert.Equal(t, 1, actions[models.ActionExpenseRecorded])

	expenseLogs, err := env.svc.Audit.ByEntity(ctx, tenantA, result.Expense.ID, AuditQuery{})
	require.NoError(t, err)
	require.Len(t, expenseLogs, 1)
	assert.Equal(t, treasurer.ActorID, expenseLogs[0].ActorID)
}
