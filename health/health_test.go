package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_CollectAllHealthy(t *testing.T) {
	m := NewMonitor()
	m.Register("bus", func() Status { return NewHealthy("bus", "connected") })
	m.Register("coordinator", func() Status { return NewHealthy("coordinator", "serving") })

	statuses, healthy := m.Collect()
	assert.True(t, healthy)
	assert.Len(t, statuses, 2)
	assert.True(t, statuses["bus"].Healthy)
}

func TestMonitor_OneUnhealthyFailsOverall(t *testing.T) {
	m := NewMonitor()
	m.Register("bus", func() Status { return NewUnhealthy("bus", "disconnected") })
	m.Register("coordinator", func() Status { return NewHealthy("coordinator", "serving") })

	statuses, healthy := m.Collect()
	assert.False(t, healthy)
	assert.False(t, statuses["bus"].Healthy)
	assert.True(t, statuses["coordinator"].Healthy)
}

func TestMonitor_RegisterReplaces(t *testing.T) {
	m := NewMonitor()
	m.Register("bus", func() Status { return NewUnhealthy("bus", "down") })
	m.Register("bus", func() Status { return NewHealthy("bus", "up") })

	_, healthy := m.Collect()
	assert.True(t, healthy)
}

func TestHandler(t *testing.T) {
	tests := []struct {
		name       string
		check      Check
		wantCode   int
		wantStatus string
	}{
		{
			name:       "healthy",
			check:      func() Status { return NewHealthy("bus", "connected") },
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
		{
			name:       "unhealthy",
			check:      func() Status { return NewUnhealthy("bus", "disconnected") },
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor()
			m.Register("bus", tt.check)

			rec := httptest.NewRecorder()
			m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, tt.wantCode, rec.Code)

			var resp struct {
				Status     string            `json:"status"`
				Components map[string]Status `json:"components"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Contains(t, resp.Components, "bus")
		})
	}
}

func TestMonitor_EmptyIsHealthy(t *testing.T) {
	statuses, healthy := NewMonitor().Collect()
	assert.True(t, healthy)
	assert.Empty(t, statuses)
}
