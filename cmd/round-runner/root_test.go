package main

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orca-swarm/summarizer-worker/pkg/harness"
)

func TestKeygen(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"keygen"})

	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	priv := strings.TrimSpace(strings.TrimPrefix(lines[0], "private:"))
	pub := strings.TrimSpace(strings.TrimPrefix(lines[1], "public:"))

	seed, err := base58.Decode(priv)
	require.NoError(t, err)
	assert.Len(t, seed, ed25519.SeedSize)
	rawPub, err := base58.Decode(pub)
	require.NoError(t, err)
	assert.Len(t, rawPub, ed25519.PublicKeySize)

	s, err := harness.ParseSigner(priv)
	require.NoError(t, err)
	assert.Equal(t, pub, s.PublicKey())
}

func TestRunWithConfig(t *testing.T) {
	var tasks atomic.Int32
	workerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/worker-task/") {
			tasks.Add(1)
		}
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message":"busy"}`))
	}))
	defer workerSrv.Close()

	seed := base58.Encode(make([]byte, ed25519.SeedSize))
	cfg := fmt.Sprintf(`
task_id: task-1
middle_server_url: http://127.0.0.1:1
repo_url: https://github.com/org/repo
log:
  outputs: [%s]
workers:
  - name: worker1
    url: %s
    staking_key: %q
    identity_key: %q
`, filepath.Join(t.TempDir(), "runner.log"), workerSrv.URL, seed, seed)
	path := filepath.Join(t.TempDir(), "round-runner.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", path, "--rounds", "2", "--start-round", "5"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, int32(2), tasks.Load())
}

func TestRunRejectsBadRounds(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "--rounds", "0"})
	assert.Error(t, cmd.Execute())
}
