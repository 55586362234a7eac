package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDocumentID(t *testing.T) {
	tests := []struct {
		arg     string
		want    int64
		wantErr bool
	}{
		{arg: "42", want: 42},
		{arg: " 7 ", want: 7},
		{arg: "0", wantErr: true},
		{arg: "-1", wantErr: true},
		{arg: "abc", wantErr: true},
		{arg: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, err := parseDocumentID(tt.arg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCommand()

	names := make(map[string]bool)
	for _, cmd := range root.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"serve", "install", "uninstall", "regenerate", "index", "delete", "search"} {
		assert.True(t, names[want], want)
	}

	regenerate, _, err := root.Find([]string{"regenerate"})
	require.NoError(t, err)
	assert.NotNil(t, regenerate.Flags().Lookup("from-scratch"))

	index, _, err := root.Find([]string{"index"})
	require.NoError(t, err)
	assert.NotNil(t, index.Flags().Lookup("force"))
	assert.NotNil(t, index.Flags().Lookup("async"))
	assert.Error(t, index.Args(index, nil))
}

func TestRootCommand_RequiresDatabase(t *testing.T) {
	t.Setenv("SITESEARCH_POSTGRES_URL", "")

	root := newRootCommand()
	root.SetArgs([]string{"install"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres URL is required")
}

func TestSetupLogger(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, setupLogger("DEBUG").GetLevel())
	assert.Equal(t, logrus.WarnLevel, setupLogger("WARN").GetLevel())
	assert.Equal(t, logrus.InfoLevel, setupLogger("chatty").GetLevel())
}

func TestRouteLabel(t *testing.T) {
	router := mux.NewRouter()
	var label string
	router.HandleFunc("/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		label = routeLabel(r)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/documents/12", nil))
	assert.Equal(t, "/documents/{id}", label)
	assert.Equal(t, "unmatched", routeLabel(httptest.NewRequest(http.MethodGet, "/nowhere", nil)))
}
