package plugin

import (
	"context"
	"net"
	"net/rpc"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStrategy struct {
	steady, finalize bool
	recorded         bool
}

func (f *fakeStrategy) ReportSteady(ctx context.Context) bool { return f.steady }
func (f *fakeStrategy) CanFinalize(ctx context.Context) bool  { return f.finalize }
func (f *fakeStrategy) RecordDetails(ctx context.Context)     { f.recorded = true }

// wireUp connects an rpcServer wrapping impl to an rpcClient over an
// in-process pipe, exercising the same net/rpc wire protocol go-plugin uses
// without spawning a subprocess.
func wireUp(t *testing.T, impl *fakeStrategy) *rpcClient {
	t.Helper()

	serverConn, clientConn := net.Pipe()

	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("Plugin", &rpcServer{impl: impl}))
	go server.ServeConn(serverConn)

	client := rpc.NewClient(clientConn)
	t.Cleanup(func() { _ = client.Close() })

	return &rpcClient{client: client}
}

func TestRPCRoundTrip_ReportSteadyAndCanFinalize(t *testing.T) {
	impl := &fakeStrategy{steady: true, finalize: false}
	c := wireUp(t, impl)

	assert.True(t, c.ReportSteady(context.Background()))
	assert.False(t, c.CanFinalize(context.Background()))
}

func TestRPCRoundTrip_RecordDetails(t *testing.T) {
	impl := &fakeStrategy{}
	c := wireUp(t, impl)

	c.RecordDetails(context.Background())
	assert.True(t, impl.recorded)
}
