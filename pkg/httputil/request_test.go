package httputil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantErr   bool
		wantEmpty bool
	}{
		{name: "valid JSON", body: `{"name": "test"}`},
		{name: "invalid JSON", body: `{invalid}`, wantErr: true},
		{name: "empty body", body: "", wantErr: true, wantEmpty: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(tt.body))
			var dest map[string]string

			err := ParseJSON(req, &dest)

			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "test", dest["name"])
				return
			}
			assert.Error(t, err)
			assert.Equal(t, tt.wantEmpty, err == ErrEmptyBody)
		})
	}
}

func TestParseOptionalJSON(t *testing.T) {
	var dest struct {
		DaysToKeep *int `json:"daysToKeep"`
	}

	req := httptest.NewRequest(http.MethodPost, "/cleanup", nil)
	assert.NoError(t, ParseOptionalJSON(req, &dest))
	assert.Nil(t, dest.DaysToKeep)

	req = httptest.NewRequest(http.MethodPost, "/cleanup", bytes.NewBufferString(`{"daysToKeep": 30}`))
	require.NoError(t, ParseOptionalJSON(req, &dest))
	require.NotNil(t, dest.DaysToKeep)
	assert.Equal(t, 30, *dest.DaysToKeep)

	req = httptest.NewRequest(http.MethodPost, "/cleanup", bytes.NewBufferString(`{"daysToKeep":`))
	assert.Error(t, ParseOptionalJSON(req, &dest))
}

func TestQueryInt(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"missing uses default", "", 50},
		{"numeric", "?limit=10", 10},
		{"negative passes through", "?limit=-3", -3},
		{"non-numeric uses default", "?limit=ten", 50},
		{"whitespace trimmed", "?limit=%2012%20", 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/logs"+tt.query, nil)
			assert.Equal(t, tt.want, QueryInt(req, "limit", 50))
		})
	}
}

func TestQueryInt64Ptr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/logs?startDate=1700000000&endDate=soon", nil)

	start := QueryInt64Ptr(req, "startDate")
	require.NotNil(t, start)
	assert.Equal(t, int64(1700000000), *start)

	assert.Nil(t, QueryInt64Ptr(req, "endDate"))
	assert.Nil(t, QueryInt64Ptr(req, "missing"))
}

func TestPathString(t *testing.T) {
	router := mux.NewRouter()
	var got string
	router.HandleFunc("/entity/{entity}/{entityId}", func(w http.ResponseWriter, r *http.Request) {
		got = PathString(r, "entityId")
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/entity/test_sheets/ts-1", nil))
	assert.Equal(t, "ts-1", got)
}
