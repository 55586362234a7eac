package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?page=3&bad=x", nil)

	got, err := ParseQueryInt(req, "page", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, got)

	got, err = ParseQueryInt(req, "missing", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, got)

	_, err = ParseQueryInt(req, "bad", 1)
	assert.Error(t, err)
}

func TestParseQueryInt64List(t *testing.T) {
	tests := []struct {
		query   string
		want    []int64
		wantErr bool
	}{
		{query: "terms=12,34", want: []int64{12, 34}},
		{query: "terms=12,,%2034", want: []int64{12, 34}},
		{query: "terms=", want: nil},
		{query: "", want: nil},
		{query: "terms=1,x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			got, err := ParseQueryInt64List(req, "terms")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseQueryString(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?order=asc", nil)
	assert.Equal(t, "asc", ParseQueryString(req, "order", "desc"))
	assert.Equal(t, "score", ParseQueryString(req, "orderby", "score"))
}

func TestParseQueryBool(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?from_scratch=true&bad=maybe", nil)

	got, err := ParseQueryBool(req, "from_scratch", false)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = ParseQueryBool(req, "missing", false)
	require.NoError(t, err)
	assert.False(t, got)

	_, err = ParseQueryBool(req, "bad", false)
	assert.Error(t, err)
}
