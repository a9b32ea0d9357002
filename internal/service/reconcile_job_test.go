package service

import (
	"context"
	"testing"
	"time"

	"github.com/church-treasury-core/internal/models"
	"github.com/church-treasury-core/internal/utils"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileJob_RunOnceFindsDriftAcrossTenants(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.openFund(t, tenantA, "100")
	drifted := env.openFund(t, tenantB, "50")

	mismatches, err := env.svc.ReconcileJob.RunOnce(ctx)
	require.NoError(t, err)
	assert.Empty(t, mismatches)

	require.NoError(t, env.db.Model(&models.Fund{}).Where("id = ?", drifted.ID).Update("balance", dec("55")).Error)
	before := testutil.ToFloat64(fundMismatchesTotal)

	mismatches, err = env.svc.ReconcileJob.RunOnce(ctx)
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.Equal(t, drifted.ID, mismatches[0].FundID)
	assert.True(t, mismatches[0].Difference.Equal(dec("5")))
	assert.Equal(t, before+1, testutil.ToFloat64(fundMismatchesTotal))
}

func TestReconcileJob_SkipsWhileAnotherInstanceHoldsTheLock(t *testing.T) {
	mr, rdb := newRedis(t)
	env := newTestEnv(t, rdb)
	fund := env.openFund(t, tenantA, "100")
	require.NoError(t, env.db.Model(&models.Fund{}).Where("id = ?", fund.ID).Update("balance", dec("1")).Error)

	job := NewReconcileJob(env.db, env.svc.Reconcile, utils.NewCache(rdb), time.Minute)
	require.NoError(t, mr.Set(reconcileLockKey, "1"))

	before := testutil.ToFloat64(fundMismatchesTotal)
	job.runLocked(context.Background())
	assert.Equal(t, before, testutil.ToFloat64(fundMismatchesTotal))

	mr.Del(reconcileLockKey)
	job.runLocked(context.Background())
	assert.Equal(t, before+1, testutil.ToFloat64(fundMismatchesTotal))
	assert.False(t, mr.Exists(reconcileLockKey), "lock released after the run")
}

func TestReconcileJob_StartStopsWithContext(t *testing.T) {
	env := newTestEnv(t, nil)
	job := NewReconcileJob(env.db, env.svc.Reconcile, utils.NewCache(nil), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not stop")
	}

	// 禁用的任务立即返回
	NewReconcileJob(env.db, env.svc.Reconcile, utils.NewCache(nil), 0).Start(context.Background())
}

func TestReconcileJob_LockReleaseRespectsOwner(t *testing.T) {
	mr, rdb := newRedis(t)
	cache := utils.NewCache(rdb)
	ctx := context.Background()

	ok, err := cache.TryLock(ctx, reconcileLockKey, "instance-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// instance-1 超过了 ttl，instance-2 拿到了锁
	mr.FastForward(2 * time.Minute)
	ok, err = cache.TryLock(ctx, reconcileLockKey, "instance-2", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	released, err := cache.Unlock(ctx, reconcileLockKey, "instance-1")
	require.NoError(t, err)
	assert.False(t, released)
	holder, err := mr.Get(reconcileLockKey)
	require.NoError(t, err)
	assert.Equal(t, "instance-2", holder)

	released, err = cache.Unlock(ctx, reconcileLockKey, "instance-2")
	require.NoError(t, err)
	assert.True(t, released)
	assert.False(t, mr.Exists(reconcileLockKey))
}

func TestReconcileJob_StopTwice(t *testing.T) {
	env := newTestEnv(t, nil)
	job := NewReconcileJob(env.db, env.svc.Reconcile, utils.NewCache(nil), time.Hour)

	done := make(chan struct{})
	go func() {
		job.Start(context.Background())
		close(done)
	}()

	job.Stop()
	assert.NotPanics(t, job.Stop)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not stop")
	}
}
