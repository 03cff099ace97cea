package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/bonus-ledger/internal/bonus"
	"github.com/mmeshcher/bonus-ledger/internal/middleware"
	"github.com/mmeshcher/bonus-ledger/internal/model"
	"github.com/mmeshcher/bonus-ledger/internal/repository"
	"github.com/mmeshcher/bonus-ledger/internal/service"
)

type stubService struct {
	registerUserID int64
	registerErr    error

	authUserID int64
	authErr    error

	createdRevenue *model.Revenue
	createErr      error
	deleteErr      error

	preview    *service.Preview
	previewErr error

	approveResult *service.ApprovalResult
	approveErr    error
	approveNow    time.Time
	approveActor  int64

	approval    *model.BonusApproval
	approvalErr error

	verification *service.Verification
	verifyErr    error
}

func (s *stubService) RegisterUser(ctx context.Context, login, password string) (int64, error) {
	return s.registerUserID, s.registerErr
}

func (s *stubService) AuthenticateUser(ctx context.Context, login, password string) (int64, error) {
	return s.authUserID, s.authErr
}

func (s *stubService) CreateRevenue(ctx context.Context, userID int64, rev model.Revenue) (*model.Revenue, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	rev.ID = 1
	rev.UserID = userID
	s.createdRevenue = &rev
	return &rev, nil
}

func (s *stubService) ListRevenues(ctx context.Context, branchID string, from, to time.Time) ([]model.Revenue, error) {
	return nil, nil
}

func (s *stubService) DeleteRevenue(ctx context.Context, id int64) error {
	return s.deleteErr
}

func (s *stubService) PreviewCurrentWeek(ctx context.Context, branchID string, now time.Time) (*service.Preview, error) {
	return s.preview, s.previewErr
}

func (s *stubService) ApproveWeek(ctx context.Context, branchID, branchName string, actorID int64, now time.Time) (*service.ApprovalResult, error) {
	s.approveNow = now
	s.approveActor = actorID
	return s.approveResult, s.approveErr
}

func (s *stubService) ListApprovals(ctx context.Context, branchID string) ([]model.BonusApproval, error) {
	return nil, nil
}

func (s *stubService) GetApproval(ctx context.Context, id int64) (*model.BonusApproval, error) {
	return s.approval, s.approvalErr
}

func (s *stubService) VerifyApproval(ctx context.Context, id int64) (*service.Verification, error) {
	return s.verification, s.verifyErr
}

func (s *stubService) Location() *time.Location { return time.UTC }

var fixedNow = time.Date(2024, 5, 8, 10, 0, 0, 0, time.UTC)

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret")

	return NewHandler(svc, logger, auth, WithClock(func() time.Time { return fixedNow }))
}

func withUser(r *http.Request, id int64) *http.Request {
	return r.WithContext(middleware.WithUserID(r.Context(), id))
}

func withID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestRegister_Success(t *testing.T) {
	svc := &stubService{
		registerUserID: 42,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{
		Login:    "user",
		Password: "pass",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/user/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if len(res.Cookies()) == 0 {
		t.Fatalf("auth cookie not set")
	}
}

func TestRegister_Conflict(t *testing.T) {
	h := newTestHandler(t, &stubService{registerErr: repository.ErrUserExists})

	body, _ := json.Marshal(credentialsRequest{Login: "user", Password: "pass"})
	rec := httptest.NewRecorder()
	h.Register(rec, httptest.NewRequest(http.MethodPost, "/api/user/register", bytes.NewReader(body)))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, KindConflict, decodeError(t, rec).Code)
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		authErr error
		want    int
	}{
		{name: "ok", body: `{"login":"user","password":"pass"}`, want: http.StatusOK},
		{name: "unknown user", body: `{"login":"user","password":"pass"}`, authErr: repository.ErrUserNotFound, want: http.StatusUnauthorized},
		{name: "wrong password", body: `{"login":"user","password":"pass"}`, authErr: service.ErrInvalidCredentials, want: http.StatusUnauthorized},
		{name: "store failure", body: `{"login":"user","password":"pass"}`, authErr: context.DeadlineExceeded, want: http.StatusInternalServerError},
		{name: "empty password", body: `{"login":"user","password":""}`, want: http.StatusBadRequest},
		{name: "malformed", body: `{"login":`, want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, &stubService{authUserID: 7, authErr: tt.authErr})

			rec := httptest.NewRecorder()
			h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/user/login", bytes.NewBufferString(tt.body)))

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestCreateRevenue(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	body := `{"date":"2024-05-01","branchId":"B1","branchName":"Main","cash":"1300","network":0,"budget":0,` +
		`"employees":[{"name":"Ali","revenue":500},{"name":"Sara","revenue":"800"}]}`

	rec := httptest.NewRecorder()
	h.CreateRevenue(rec, withUser(httptest.NewRequest(http.MethodPost, "/api/revenues", bytes.NewBufferString(body)), 3))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, svc.createdRevenue)
	assert.Equal(t, int64(3), svc.createdRevenue.UserID)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), svc.createdRevenue.Date)
	require.Len(t, svc.createdRevenue.Employees, 2)
	assert.True(t, svc.createdRevenue.Employees[1].Revenue.Equal(decimal.NewFromInt(800)))

	var resp revenueResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "2024-05-01", resp.Date)
}

func TestCreateRevenue_BadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing branch", body: `{"date":"2024-05-01","cash":1}`},
		{name: "bad date", body: `{"date":"01.05.2024","branchId":"B1"}`},
		{name: "employee without name", body: `{"date":"2024-05-01","branchId":"B1","employees":[{"revenue":1}]}`},
		{name: "unknown field", body: `{"date":"2024-05-01","branchId":"B1","tips":5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, &stubService{})

			rec := httptest.NewRecorder()
			h.CreateRevenue(rec, withUser(httptest.NewRequest(http.MethodPost, "/api/revenues", bytes.NewBufferString(tt.body)), 1))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, KindBadRequest, decodeError(t, rec).Code)
		})
	}
}

func TestDeleteRevenue(t *testing.T) {
	tests := []struct {
		name string
		id   string
		err  error
		want int
	}{
		{name: "deleted", id: "5", want: http.StatusNoContent},
		{name: "locked", id: "5", err: repository.ErrRevenueLocked, want: http.StatusConflict},
		{name: "missing", id: "5", err: repository.ErrRevenueNotFound, want: http.StatusNotFound},
		{name: "bad id", id: "abc", want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, &stubService{deleteErr: tt.err})

			rec := httptest.NewRecorder()
			h.DeleteRevenue(rec, withID(httptest.NewRequest(http.MethodDelete, "/api/revenues/"+tt.id, nil), tt.id))

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestApprove(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
		kind Kind
	}{
		{name: "not approval day", err: service.ErrNotApprovalDay, want: http.StatusBadRequest, kind: KindBadRequest},
		{name: "already approved", err: repository.ErrApprovalExists, want: http.StatusConflict, kind: KindConflict},
		{name: "actor vanished", err: repository.ErrUserNotFound, want: http.StatusNotFound, kind: KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, &stubService{approveErr: tt.err})

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/bonus/approve", bytes.NewBufferString(`{"branchId":"B1","branchName":"Main"}`))
			h.Approve(rec, withUser(req, 1))

			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.kind, decodeError(t, rec).Code)
		})
	}
}

func TestApprove_Success(t *testing.T) {
	svc := &stubService{approveResult: &service.ApprovalResult{
		ApprovalID:     9,
		TotalBonusPaid: decimal.NewFromInt(290),
		Window:         bonus.Window{Label: "week 1 (1-7)"},
	}}
	h := newTestHandler(t, svc)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/bonus/approve", bytes.NewBufferString(`{"branchId":"B1"}`))
	h.Approve(rec, withUser(req, 4))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, fixedNow, svc.approveNow)
	assert.Equal(t, int64(4), svc.approveActor)

	var resp approveResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, int64(9), resp.ApprovalID)
	assert.True(t, resp.TotalBonusPaid.Equal(decimal.NewFromInt(290)))
}

func TestApprove_Unauthenticated(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	rec := httptest.NewRecorder()
	h.Approve(rec, httptest.NewRequest(http.MethodPost, "/api/bonus/approve", bytes.NewBufferString(`{"branchId":"B1"}`)))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, KindUnauthenticated, decodeError(t, rec).Code)
}

func TestVerifyRecord(t *testing.T) {
	svc := &stubService{verification: &service.Verification{
		IsValid: false,
		Discrepancies: []model.Discrepancy{
			{EmployeeName: "Ali", Saved: decimal.NewFromInt(1200), Current: decimal.NewFromInt(1300)},
		},
	}}
	h := newTestHandler(t, svc)

	rec := httptest.NewRecorder()
	h.VerifyRecord(rec, withID(httptest.NewRequest(http.MethodGet, "/api/bonus/records/1/verify", nil), "1"))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp verifyResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.IsValid)
	require.Len(t, resp.Discrepancies, 1)
	assert.Equal(t, "Ali", resp.Discrepancies[0].EmployeeName)
	assert.NotEmpty(t, resp.Message)
}

func TestGetRecord_NotFound(t *testing.T) {
	h := newTestHandler(t, &stubService{approvalErr: repository.ErrApprovalNotFound})

	rec := httptest.NewRecorder()
	h.GetRecord(rec, withID(httptest.NewRequest(http.MethodGet, "/api/bonus/records/3", nil), "3"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_RequiresAuth(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	for _, path := range []string{"/api/bonus/current?branchId=B1", "/api/revenues", "/api/bonus/records/1/verify"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestRouter_ApprovalFlow(t *testing.T) {
	repo := repository.NewMemoryRepository()
	svc := service.NewService(repo, nil, zap.NewNop(), time.UTC)

	var clock atomic.Int64
	clock.Store(time.Date(2024, 5, 3, 12, 0, 0, 0, time.UTC).UnixNano())
	h := NewHandler(svc, zap.NewNop(), middleware.NewAuthMiddleware("test-secret"),
		WithClock(func() time.Time { return time.Unix(0, clock.Load()).UTC() }))
	ts := httptest.NewServer(h.SetupRouter())
	defer ts.Close()

	do := func(method, path, body string, cookies []*http.Cookie) *http.Response {
		t.Helper()
		req, err := http.NewRequest(method, ts.URL+path, bytes.NewBufferString(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		for _, c := range cookies {
			req.AddCookie(c)
		}
		res, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { res.Body.Close() })
		return res
	}

	res := do(http.MethodPost, "/api/user/register", `{"login":"manager","password":"secret"}`, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	cookies := res.Cookies()

	res = do(http.MethodPost, "/api/revenues",
		`{"date":"2024-05-01","branchId":"B1","cash":1300,"network":0,"budget":0,"employees":[{"name":"Ali","revenue":500},{"name":"Sara","revenue":800}]}`,
		cookies)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	var created revenueResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&created))
	assert.True(t, created.IsMatched)

	res = do(http.MethodPost, "/api/revenues",
		`{"date":"2024-05-03","branchId":"B1","cash":700,"network":0,"budget":0,"employees":[{"name":"Ali","revenue":700}]}`,
		cookies)
	require.Equal(t, http.StatusCreated, res.StatusCode)

	res = do(http.MethodPost, "/api/bonus/approve", `{"branchId":"B1","branchName":"Main"}`, cookies)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	clock.Store(time.Date(2024, 5, 8, 9, 0, 0, 0, time.UTC).UnixNano())

	res = do(http.MethodGet, "/api/bonus/current?branchId=B1", "", cookies)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var preview previewResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&preview))
	assert.True(t, preview.CanApprove)
	assert.Equal(t, "2024-05-01", preview.Pending.StartDate)
	assert.Equal(t, "2024-05-07", preview.Pending.EndDate)
	require.Len(t, preview.Pending.EmployeeBonuses, 2)

	res = do(http.MethodPost, "/api/bonus/approve", `{"branchId":"B1","branchName":"Main"}`, cookies)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	var approved approveResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&approved))
	assert.True(t, approved.TotalBonusPaid.IsZero())

	res = do(http.MethodPost, "/api/bonus/approve", `{"branchId":"B1","branchName":"Main"}`, cookies)
	require.Equal(t, http.StatusConflict, res.StatusCode)

	res = do(http.MethodDelete, "/api/revenues/"+strconv.FormatInt(created.ID, 10), "", cookies)
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	res = do(http.MethodGet, "/api/bonus/records?branchId=B1", "", cookies)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var records []approvalResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&records))
	require.Len(t, records, 1)
	assert.Equal(t, "manager", records[0].ApprovedByLogin)
	assert.Len(t, records[0].RevenueSnapshot, 3)
}
