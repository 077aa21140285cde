package integration_tests

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/speakeasy-api/vendorpatch/cmd"
)

const (
	version      = "0.0.1"
	artifactArch = "linux_amd64"
)

// execute runs the CLI in-process. The command tree is rebuilt on every call,
// so tests using it must not run in parallel.
func execute(t *testing.T, args ...string) error {
	t.Helper()

	rootCmd := cmd.CmdForTest(version, artifactArch)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

// serveArchives serves each body at its URL path and counts the requests.
func serveArchives(t *testing.T, archives map[string][]byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	requests := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		body, ok := archives[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(server.Close)
	return server, requests
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
