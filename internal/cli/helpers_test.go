package cli

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/pgproxy/internal/remote"
	"github.com/roach88/pgproxy/internal/testutil"
)

const mathManifest = `schema: test
expose: [nodeFunction]
functions:
  add:
    params: [a, b]
    body: return a + b;
  system_name:
    params: [name]
    body: return name.toLowerCase();
`

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type cliResult struct {
	code   int
	stdout string
	stderr string
}

func fakeConnect(conn *testutil.FakeConn) ConnectFunc {
	return func(ctx context.Context, dsn string, logger *slog.Logger) (remote.Conn, func(), error) {
		return conn, func() {}, nil
	}
}

// runCLI executes the CLI against conn with a fake DSN.
func runCLI(t *testing.T, conn *testutil.FakeConn, args ...string) cliResult {
	t.Helper()
	return runCLIContext(context.Background(), t, conn, args...)
}

func runCLIContext(ctx context.Context, t *testing.T, conn *testutil.FakeConn, args ...string) cliResult {
	t.Helper()
	stdout, stderr := &syncBuffer{}, &syncBuffer{}
	opts := &RootOptions{Connect: fakeConnect(conn)}
	code := Execute(ctx, opts, append([]string{"--dsn", "postgres://fake"}, args...), stdout, stderr)
	return cliResult{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func writeManifest(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
