package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/church-treasury-core/config"
	"github.com/church-treasury-core/internal/middleware"
	"github.com/church-treasury-core/internal/models"
	"github.com/church-treasury-core/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "test-secret"

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func setupRouter(t *testing.T) *gin.Engine {
	cfg := config.Default()
	cfg.App.Mode = gin.TestMode
	cfg.JWT.Secret = testSecret
	config.Cfg = cfg

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

	svc, err := service.NewServices(db, nil, nil, cfg)
	require.NoError(t, err)
	return SetupRouter(svc)
}

func token(t *testing.T, tenant, user string, roles ...string) string {
	tok, err := middleware.IssueToken(middleware.Claims{TenantID: tenant, UserID: user, Roles: roles}, testSecret)
	require.NoError(t, err)
	return tok
}

func call(t *testing.T, r *gin.Engine, method, path, tok string, body interface{}) (int, envelope) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func decodeID(t *testing.T, env envelope) string {
	var v struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &v))
	require.NotEmpty(t, v.ID)
	return v.ID
}

func TestHealth(t *testing.T) {
	r := setupRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestAuthRequired(t *testing.T) {
	r := setupRouter(t)

	code, _ := call(t, r, http.MethodGet, "/api/v1/funds", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = call(t, r, http.MethodGet, "/api/v1/funds", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	forged, err := middleware.IssueToken(middleware.Claims{TenantID: "t", UserID: "u"}, "other-secret")
	require.NoError(t, err)
	code, _ = call(t, r, http.MethodGet, "/api/v1/funds", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = call(t, r, http.MethodGet, "/api/v1/funds", token(t, "", "u"), nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRequisitionLifecycleOverHTTP(t *testing.T) {
	r := setupRouter(t)
	admin := token(t, "church-1", "admin-1", "administrator")
	member := token(t, "church-1", "member-1", "member")
	treasurer := token(t, "church-1", "treasurer-1", "treasurer")

	// 普通成员不能管理基金
	code, _ := call(t, r, http.MethodPost, "/api/v1/funds", member, gin.H{"type": "GENERAL", "name": "General"})
	assert.Equal(t, http.StatusForbidden, code)

	code, env := call(t, r, http.MethodPost, "/api/v1/funds", admin, gin.H{"type": "GENERAL", "name": "General"})
	require.Equal(t, http.StatusCreated, code, env.Message)
	fundID := decodeID(t, env)

	code, env = call(t, r, http.MethodPost, "/api/v1/distributions", treasurer, gin.H{
		"total_amount": "1000.00",
		"source":       "TITHE",
		"allocations":  []gin.H{{"fund_id": fundID, "amount": "1000.00"}},
	})
	require.Equal(t, http.StatusCreated, code, env.Message)

	code, env = call(t, r, http.MethodPost, "/api/v1/requisitions", member, gin.H{
		"fund_id":       fundID,
		"category":      "SUPPLIES",
		"amount":        "250.00",
		"justification": "chairs",
	})
	require.Equal(t, http.StatusCreated, code, env.Message)
	reqID := decodeID(t, env)

	code, env = call(t, r, http.MethodPost, "/api/v1/requisitions/"+reqID+"/execute", treasurer, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, service.ErrCodeInvalidStateTransition, env.Code)

	code, _ = call(t, r, http.MethodPost, "/api/v1/requisitions/"+reqID+"/submit", member, nil)
	require.Equal(t, http.StatusOK, code)

	code, env = call(t, r, http.MethodPost, "/api/v1/requisitions/"+reqID+"/approve", member, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, service.ErrCodeUnauthorizedApproval, env.Code)

	code, _ = call(t, r, http.MethodPost, "/api/v1/requisitions/"+reqID+"/approve", treasurer, gin.H{"approved_amount": "200.00"})
	require.Equal(t, http.StatusOK, code)

	code, env = call(t, r, http.MethodPost, "/api/v1/requisitions/"+reqID+"/execute", treasurer, gin.H{"proof_ref": "r-1"})
	require.Equal(t, http.StatusOK, code, env.Message)

	code, env = call(t, r, http.MethodPost, "/api/v1/requisitions/"+reqID+"/execute", treasurer, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, service.ErrCodeDuplicateExecution, env.Code)

	code, env = call(t, r, http.MethodGet, "/api/v1/funds/"+fundID+"/balance", member, nil)
	require.Equal(t, http.StatusOK, code)
	var balance struct {
		Balance string `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &balance))
	assert.Equal(t, "800", balance.Balance)

	code, env = call(t, r, http.MethodGet, "/api/v1/requisitions/"+reqID+"/history", member, nil)
	require.Equal(t, http.StatusOK, code)
	var history []models.AuditLog
	require.NoError(t, json.Unmarshal(env.Data, &history))
	assert.Len(t, history, 4)

	code, env = call(t, r, http.MethodGet, "/api/v1/funds/reconciliation", treasurer, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"consistent":true`)

	// 其他租户看不到
	other := token(t, "church-2", "admin-9", "super_admin")
	code, _ = call(t, r, http.MethodGet, "/api/v1/requisitions/"+reqID, other, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestInsufficientFundsOverHTTP(t *testing.T) {
	r := setupRouter(t)
	admin := token(t, "church-1", "admin-1", "administrator")
	member := token(t, "church-1", "member-1", "member")
	pastor := token(t, "church-1", "pastor-1", "pastor")

	_, env := call(t, r, http.MethodPost, "/api/v1/funds", admin, gin.H{"type": "MISSIONS", "name": "Missions"})
	fundID := decodeID(t, env)

	_, env = call(t, r, http.MethodPost, "/api/v1/requisitions", member, gin.H{
		"fund_id": fundID, "category": "MISSIONS", "amount": "8000", "justification": "trip",
	})
	reqID := decodeID(t, env)
	call(t, r, http.MethodPost, "/api/v1/requisitions/"+reqID+"/submit", member, nil)
	code, _ := call(t, r, http.MethodPost, "/api/v1/requisitions/"+reqID+"/approve", pastor, nil)
	require.Equal(t, http.StatusOK, code)

	code, env = call(t, r, http.MethodPost, "/api/v1/requisitions/"+reqID+"/execute", pastor, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, service.ErrCodeInsufficientFunds, env.Code)
}

func TestApproveReadsChunkedBody(t *testing.T) {
	r := setupRouter(t)
	admin := token(t, "church-1", "admin-1", "administrator")
	member := token(t, "church-1", "member-1", "member")
	treasurer := token(t, "church-1", "treasurer-1", "treasurer")

	_, env := call(t, r, http.MethodPost, "/api/v1/funds", admin, gin.H{"type": "GENERAL", "name": "General"})
	fundID := decodeID(t, env)
	_, env = call(t, r, http.MethodPost, "/api/v1/requisitions", member, gin.H{
		"fund_id": fundID, "category": "MAINTENANCE", "amount": "250.00", "justification": "roof",
	})
	reqID := decodeID(t, env)
	code, _ := call(t, r, http.MethodPost, "/api/v1/requisitions/"+reqID+"/submit", member, nil)
	require.Equal(t, http.StatusOK, code)

	// 没有 Content-Length：请求体以分块方式发送
	req := httptest.NewRequest(http.MethodPost, "/api/v1/requisitions/"+reqID+"/approve",
		bytes.NewBufferString(`{"approved_amount":"100.00"}`))
	req.ContentLength = -1
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+treasurer)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	code, env = call(t, r, http.MethodGet, "/api/v1/requisitions/"+reqID, member, nil)
	require.Equal(t, http.StatusOK, code)
	var got struct {
		ApprovedAmount string `json:"approved_amount"`
		State          string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "APPROVED", got.State)
	assert.Equal(t, "100", got.ApprovedAmount)

	// 格式错误的分块请求体会被拒绝，而不是被忽略
	_, env = call(t, r, http.MethodPost, "/api/v1/requisitions", member, gin.H{
		"fund_id": fundID, "category": "MAINTENANCE", "amount": "50.00", "justification": "paint",
	})
	otherID := decodeID(t, env)
	call(t, r, http.MethodPost, "/api/v1/requisitions/"+otherID+"/submit", member, nil)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/requisitions/"+otherID+"/approve",
		bytes.NewBufferString(`{"approved_amount":`))
	req.ContentLength = -1
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+treasurer)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApprovalEndpoints(t *testing.T) {
	r := setupRouter(t)
	admin := token(t, "church-1", "admin-1", "administrator")
	treasurer := token(t, "church-1", "treasurer-1", "treasurer")

	code, env := call(t, r, http.MethodGet, "/api/v1/approval/authorized-roles?amount=8000", treasurer, nil)
	require.Equal(t, http.StatusOK, code)
	var roles struct {
		RequiredLevel    string              `json:"required_level"`
		AuthorizedRoles  []string            `json:"authorized_roles"`
		CallerMayApprove bool                `json:"caller_may_approve"`
		AuthorityTable   map[string][]string `json:"authority_table"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &roles))
	assert.Equal(t, "PASTORAL", roles.RequiredLevel)
	assert.NotContains(t, roles.AuthorizedRoles, "treasurer")
	assert.False(t, roles.CallerMayApprove)
	assert.Equal(t, []string{"president", "super_admin"}, roles.AuthorityTable["PRESIDENTIAL"])

	code, _ = call(t, r, http.MethodGet, "/api/v1/approval/authorized-roles?amount=abc", treasurer, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, r, http.MethodPut, "/api/v1/approval/config", treasurer, gin.H{
		"local_limit": "50000", "general_ceiling": "80000",
	})
	assert.Equal(t, http.StatusForbidden, code)

	code, env = call(t, r, http.MethodPut, "/api/v1/approval/config", admin, gin.H{
		"local_limit": "50000", "general_ceiling": "80000",
	})
	require.Equal(t, http.StatusOK, code, env.Message)

	code, env = call(t, r, http.MethodGet, "/api/v1/approval/authorized-roles?amount=8000", treasurer, nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &roles))
	assert.Equal(t, "LOCAL", roles.RequiredLevel)
	assert.True(t, roles.CallerMayApprove)

	code, env = call(t, r, http.MethodGet, "/api/v1/approval/config", treasurer, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"source":"tenant"`)
}
