package service

import (
	"context"
	"sync"
	"testing"

	"github.com/church-treasury-core/config"
	"github.com/church-treasury-core/internal/approval"
	"github.com/church-treasury-core/internal/models"
	"github.com/church-treasury-core/internal/mq"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	tenantA = "tenant-a"
	tenantB = "tenant-b"
)

// setupTestDB 设置测试数据库（内存 sqlite，完整表结构）
// 单连接保证所有查询落在同一个内存库上
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

type fakePublisher struct {
	mu     sync.Mutex
	events []mq.RequisitionEvent
	err    error
}

func (p *fakePublisher) PublishRequisitionEvent(_ context.Context, event mq.RequisitionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *fakePublisher) Events() []mq.RequisitionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]mq.RequisitionEvent(nil), p.events...)
}

type testEnv struct {
	db        *gorm.DB
	svc       *Services
	publisher *fakePublisher
}

func newTestEnv(t *testing.T, rdb *redis.Client) *testEnv {
	db := setupTestDB(t)
	pub := &fakePublisher{}
	svc, err := NewServices(db, rdb, pub, config.Default())
	require.NoError(t, err)
	return &testEnv{db: db, svc: svc, publisher: pub}
}

func identity(tenant, actor string, roles ...approval.Role) Identity {
	return Identity{TenantID: tenant, ActorID: actor, Roles: roles}
}

var (
	requester = identity(tenantA, "member-1", approval.RoleMember)
	treasurer = identity(tenantA, "treasurer-1", approval.RoleTreasurer)
	pastor    = identity(tenantA, "pastor-1", approval.RolePastor)
	admin     = identity(tenantA, "admin-1", approval.RoleAdministrator, approval.RoleSuperAdmin)
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// openFund 开设基金并通过调整记入初始余额，
// 使流水能够解释起始余额
func (e *testEnv) openFund(t *testing.T, tenant string, balance string) *models.Fund {
	ctx := context.Background()
	fund, err := e.svc.Ledger.OpenFund(ctx, identity(tenant, "admin-1", approval.RoleAdministrator), models.FundGeneral, "General")
	require.NoError(t, err)
	if b := dec(balance); b.IsPositive() {
		_, err = e.svc.Ledger.RecordAdjustment(ctx, AdjustmentCommand{
			TenantID:  tenant,
			FundID:    fund.ID,
			ActorID:   "admin-1",
			Amount:    b,
			Direction: models.DirectionIncrease,
			Reason:    "opening balance",
		})
		require.NoError(t, err)
	}
	return fund
}

func (e *testEnv) setTenantLocalLimit(t *testing.T, local, general string) {
	_, err := e.svc.Config.Update(context.Background(), admin, false, ApprovalConfigInput{
		LocalLimit:                   dec(local),
		GeneralCeiling:               dec(general),
		RequireSecondLevel:           true,
		NotifySupervisorOnRestricted: true,
	})
	require.NoError(t, err)
}

// approvedRequisition 创建、提交并审批一个申请单
func (e *testEnv) approvedRequisition(t *testing.T, fundID, amount string, approver Identity) *models.Requisition {
	ctx := context.Background()
	req, err := e.svc.Requisition.Create(ctx, requester, CreateRequisitionCommand{
		FundID:        fundID,
		Category:      models.CategorySupplies,
		Amount:        dec(amount),
		Justification: "hymn books",
	})
	require.NoError(t, err)
	_, err = e.svc.Requisition.Submit(ctx, requester, req.ID)
	require.NoError(t, err)
	req, err = e.svc.Requisition.Approve(ctx, approver, req.ID, nil)
	require.NoError(t, err)
	return req
}

func (e *testEnv) count(t *testing.T, model interface{}, query string, args ...interface{}) int64 {
	var n int64
	require.NoError(t, e.db.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func (e *testEnv) assertReconciled(t *testing.T, tenant string) {
	rows, err := e.svc.Reconcile.ReconcileTenant(context.Background(), tenant)
	require.NoError(t, err)
	for _, r := range rows {
		require.True(t, r.Consistent, "fund %s: balance %s, movements %s", r.FundID, r.Balance, r.Computed)
	}
}
