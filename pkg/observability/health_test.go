package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tableCheckQuery = `SELECT to_regclass\(\$1\) IS NOT NULL`

func TestHealthChecker_Check(t *testing.T) {
	tests := []struct {
		name        string
		pingErr     error
		installed   bool
		redisDown   bool
		wantStatus  string
		wantDBState string
	}{
		{
			name:        "all healthy",
			installed:   true,
			wantStatus:  StatusHealthy,
			wantDBState: StatusHealthy,
		},
		{
			name:        "database down",
			pingErr:     errors.New("connection refused"),
			wantStatus:  StatusUnhealthy,
			wantDBState: StatusUnhealthy,
		},
		{
			name:        "search table not installed",
			installed:   false,
			wantStatus:  StatusDegraded,
			wantDBState: StatusDegraded,
		},
		{
			name:        "redis down degrades",
			installed:   true,
			redisDown:   true,
			wantStatus:  StatusDegraded,
			wantDBState: StatusHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
			require.NoError(t, err)
			defer db.Close()

			if tt.pingErr != nil {
				mock.ExpectPing().WillReturnError(tt.pingErr)
			} else {
				mock.ExpectPing()
				mock.ExpectQuery(tableCheckQuery).
					WithArgs(`"sitewidesearch"`).
					WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(tt.installed))
			}

			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
			defer client.Close()
			if tt.redisDown {
				mr.Close()
			}

			checker := NewHealthChecker("1.2.3", DatabaseProbe(db, "sitewidesearch"), RedisProbe(client))
			status := checker.Check(context.Background())

			assert.Equal(t, tt.wantStatus, status.Status)
			assert.Equal(t, "1.2.3", status.Version)
			assert.Equal(t, tt.wantDBState, status.Dependencies["database"].Status)
			if tt.redisDown {
				assert.Equal(t, StatusUnhealthy, status.Dependencies["redis"].Status)
			} else {
				assert.Equal(t, StatusHealthy, status.Dependencies["redis"].Status)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestHealthChecker_Routes(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing().WillReturnError(errors.New("down"))

	router := mux.NewRouter()
	NewHealthChecker("dev", DatabaseProbe(db, "sitewidesearch")).RegisterRoutes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","version":"dev"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, "down", status.Dependencies["database"].Message)
	assert.NotContains(t, status.Dependencies, "redis")
}
