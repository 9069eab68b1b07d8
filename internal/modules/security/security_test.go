package security

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/futureofwork/core/internal/database/dbtest"
	"github.com/futureofwork/core/internal/middleware"
	"github.com/futureofwork/core/internal/models"
	"github.com/futureofwork/core/internal/pkg/apperr"
	"github.com/futureofwork/core/internal/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var t0 = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *gorm.DB, *metrics.Metrics) {
	t.Helper()
	db := dbtest.Open(t)
	m := metrics.New()
	return NewService(db, nil, m, Options{Now: func() time.Time { return t0 }}), db, m
}

func seed(t *testing.T, db *gorm.DB, ip, endpoint string, count int64, lastSeen time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&models.IPActivityModel{
		IPAddress:    ip,
		Endpoint:     endpoint,
		Method:       http.MethodGet,
		RequestCount: count,
		FirstSeen:    lastSeen.Add(-time.Minute),
		LastSeen:     lastSeen,
	}).Error)
}

func activity(t *testing.T, db *gorm.DB, ip string) models.IPActivityModel {
	t.Helper()
	var row models.IPActivityModel
	require.NoError(t, db.Where("ip_address = ?", ip).First(&row).Error)
	return row
}

func blacklistCount(t *testing.T, db *gorm.DB, ip string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.BlacklistedIPModel{}).Where("ip_address = ?", ip).Count(&n).Error)
	return n
}

func TestSweepMarksSuspiciousWithoutBlacklisting(t *testing.T) {
	s, db, _ := newService(t)
	seed(t, db, "10.0.0.1", "/api/v1/posts", 80, t0.Add(-time.Minute))

	res, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Suspicious)
	assert.Zero(t, res.Blacklisted)
	assert.True(t, activity(t, db, "10.0.0.1").IsSuspicious)
	assert.Zero(t, blacklistCount(t, db, "10.0.0.1"))
}

func TestSweepBlacklistsOnceAcrossRuns(t *testing.T) {
	s, db, m := newService(t)
	seed(t, db, "10.0.0.2", "/api/v1/auth/login", 100, t0.Add(-90*time.Second))
	seed(t, db, "10.0.0.2", "/api/v1/posts", 120, t0.Add(-30*time.Second))

	res, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Blacklisted)

	res, err = s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Blacklisted)
	assert.Zero(t, res.Suspicious)

	assert.EqualValues(t, 1, blacklistCount(t, db, "10.0.0.2"))
	var entry models.BlacklistedIPModel
	require.NoError(t, db.Where("ip_address = ?", "10.0.0.2").First(&entry).Error)
	assert.Equal(t, BlacklistReason, entry.Reason)
	assert.True(t, entry.IsActive)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Escalations.WithLabelValues("blacklisted")))
}

func TestSweepWindowsOverlap(t *testing.T) {
	s, db, _ := newService(t)
	// outside the suspicious window but inside the blacklist window
	seed(t, db, "10.0.0.3", "/x", 150, t0.Add(-150*time.Second))
	// too old for either stage
	seed(t, db, "10.0.0.4", "/x", 500, t0.Add(-10*time.Minute))

	res, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Suspicious)
	assert.Equal(t, 1, res.Blacklisted)
	assert.False(t, activity(t, db, "10.0.0.3").IsSuspicious)
	assert.EqualValues(t, 1, blacklistCount(t, db, "10.0.0.3"))
	assert.Zero(t, blacklistCount(t, db, "10.0.0.4"))
}

func TestSweepKeepsWhitelistedEntries(t *testing.T) {
	s, db, _ := newService(t)
	seed(t, db, "10.0.0.5", "/x", 200, t0)
	require.NoError(t, db.Create(&models.BlacklistedIPModel{IPAddress: "10.0.0.5", Reason: "manual"}).Error)

	res, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Blacklisted)

	blocked, err := s.IsBlacklisted("10.0.0.5")
	require.NoError(t, err)
	assert.False(t, blocked)
}

type alerts struct{ ips []string }

func (a *alerts) Blacklisted(_ context.Context, ip string) { a.ips = append(a.ips, ip) }

func TestSweepAlertsOnNewEntriesOnly(t *testing.T) {
	db := dbtest.Open(t)
	rec := &alerts{}
	s := NewService(db, nil, nil, Options{Now: func() time.Time { return t0 }, Alerter: rec})
	seed(t, db, "10.0.0.9", "/api/v1/posts", 150, t0.Add(-time.Minute))
	seed(t, db, "10.0.0.10", "/api/v1/posts", 150, t0.Add(-time.Minute))
	require.NoError(t, db.Create(&models.BlacklistedIPModel{IPAddress: "10.0.0.10", IsActive: false}).Error)

	_, err := s.Sweep(context.Background())
	require.NoError(t, err)
	_, err = s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.9"}, rec.ips)
}

func TestMonitorCountsEveryRequest(t *testing.T) {
	s, db, _ := newService(t)
	r := gin.New()
	r.Use(s.Gate(), s.Monitor())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/secret", func(c *gin.Context) { c.Status(http.StatusUnauthorized) })

	var wg sync.WaitGroup
	for i := 0; i < 80; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
			r.ServeHTTP(httptest.NewRecorder(), req)
		}()
	}
	wg.Wait()

	row := activity(t, db, "203.0.113.7")
	assert.EqualValues(t, 80, row.RequestCount)
	assert.Zero(t, row.FailedAttempts)
	assert.Equal(t, "/ping", row.Endpoint)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/secret", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.8")
		r.ServeHTTP(httptest.NewRecorder(), req)
	}
	row = activity(t, db, "203.0.113.8")
	assert.EqualValues(t, 3, row.RequestCount)
	assert.EqualValues(t, 3, row.FailedAttempts)

	res, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Suspicious)
	assert.Zero(t, res.Blacklisted)
}

func TestGateBlocksBeforeMonitor(t *testing.T) {
	s, db, m := newService(t)
	require.NoError(t, db.Create(&models.BlacklistedIPModel{IPAddress: "198.51.100.9", Reason: BlacklistReason, IsActive: true}).Error)

	reached := false
	r := gin.New()
	r.Use(s.Gate(), s.Monitor())
	r.GET("/", func(c *gin.Context) { reached = true })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.9")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"detail":"Access Denied"}`, w.Body.String())
	assert.False(t, reached)

	var n int64
	require.NoError(t, db.Model(&models.IPActivityModel{}).Where("ip_address = ?", "198.51.100.9").Count(&n).Error)
	assert.Zero(t, n)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GateRejections))
}

func TestMonitorCountsPanickingRequest(t *testing.T) {
	s, db, _ := newService(t)
	r := gin.New()
	r.Use(gin.RecoveryWithWriter(io.Discard), s.Gate(), s.Monitor())
	r.POST("/boom", func(c *gin.Context) { panic("boom") })

	req := httptest.NewRequest(http.MethodPost, "/boom", nil)
	req.Header.Set("X-Forwarded-For", "192.0.2.44")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	row := activity(t, db, "192.0.2.44")
	assert.EqualValues(t, 1, row.RequestCount)
	assert.Equal(t, http.MethodPost, row.Method)
}

func TestTrackerUpsertsPerDevice(t *testing.T) {
	s, db, _ := newService(t)
	r := gin.New()
	r.Use(s.Tracker())
	r.GET("/", func(c *gin.Context) {
		if uid := c.GetHeader("X-Test-User"); uid != "" {
			c.Set(middleware.ContextKeyUserID, uid)
		}
	})

	iphone := "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Mobile/15E148 Safari/604.1"
	for _, ua := range []string{iphone, iphone, "curl/8.4.0"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("User-Agent", ua)
		req.Header.Set("X-Test-User", "u1")
		r.ServeHTTP(httptest.NewRecorder(), req)
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	rows, err := s.Devices(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byType := map[string]models.DeviceSessionModel{}
	for _, row := range rows {
		byType[row.DeviceType] = row
		assert.True(t, row.IsActive)
	}
	assert.Contains(t, byType, models.DeviceMobile)
	assert.Contains(t, byType, models.DeviceBot)

	var total int64
	require.NoError(t, db.Model(&models.DeviceSessionModel{}).Count(&total).Error)
	assert.EqualValues(t, 2, total)
}

func TestPruneActivity(t *testing.T) {
	s, db, _ := newService(t)
	seed(t, db, "10.1.0.1", "/old", 5, t0.Add(-31*24*time.Hour))
	seed(t, db, "10.1.0.2", "/new", 5, t0.Add(-time.Hour))

	n, err := s.PruneActivity(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestManualBlacklistAndWhitelist(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()

	_, err := s.Blacklist(ctx, &BlacklistDTO{IPAddress: "not-an-ip"})
	assert.True(t, apperr.IsValidation(err))

	entry, err := s.Blacklist(ctx, &BlacklistDTO{IPAddress: "2001:db8::1"})
	require.NoError(t, err)
	assert.True(t, entry.IsActive)

	require.NoError(t, s.Whitelist(ctx, "2001:db8::1"))
	blocked, err := s.IsBlacklisted("2001:db8::1")
	require.NoError(t, err)
	assert.False(t, blocked)

	_, err = s.Blacklist(ctx, &BlacklistDTO{IPAddress: "2001:db8::1", Reason: "again"})
	require.NoError(t, err)
	blocked, _ = s.IsBlacklisted("2001:db8::1")
	assert.True(t, blocked)

	assert.ErrorIs(t, s.Whitelist(ctx, "192.0.2.200"), apperr.ErrNotFound)
}
