package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-epc/server"
	"go-epc/session"
	"go-epc/sexp"
)

// startServer brings up a real TCP server with the scenario functions.
func startServer(t *testing.T) *server.Server {
	t.Helper()
	srv := server.NewServer()
	srv.Register("echo", func(ctx context.Context, args sexp.List) (sexp.Value, error) {
		return args, nil
	}, "Return the arguments unchanged.")
	srv.Register("boom", func(ctx context.Context, args sexp.List) (sexp.Value, error) {
		return nil, errors.New("boom went off")
	}, "Always fails.")
	require.NoError(t, srv.Listen("tcp", "127.0.0.1:0"))
	go srv.Serve()
	t.Cleanup(func() { srv.Shutdown(2 * time.Second) })
	return srv
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestDialAndCall(t *testing.T) {
	srv := startServer(t)

	c, err := Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	args := sexp.List{sexp.String("x"), sexp.String("y")}
	v, err := c.CallWait(testCtx(t), "echo", args)
	require.NoError(t, err)
	assert.True(t, sexp.Equal(v, args))
}

func TestCallAsyncHandle(t *testing.T) {
	srv := startServer(t)

	c, err := Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	// Call returns immediately; the result arrives on the handle.
	call, err := c.Call("echo", sexp.List{sexp.Int(1)})
	require.NoError(t, err)

	select {
	case res := <-call.Done():
		require.NoError(t, res.Err)
		assert.True(t, sexp.Equal(res.Value, sexp.List{sexp.Int(1)}))
	case <-time.After(5 * time.Second):
		t.Fatal("no result on the pending handle")
	}
}

func TestErrorKinds(t *testing.T) {
	srv := startServer(t)

	c, err := Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	_, err = c.CallWait(testCtx(t), "boom", nil)
	var rerr *session.RemoteError
	require.ErrorAs(t, err, &rerr, "peer handler failure is application-level")

	_, err = c.CallWait(testCtx(t), "no-such", nil)
	var perr *session.ProtocolError
	require.ErrorAs(t, err, &perr, "unknown method is protocol-level")
}

func TestMethodsListing(t *testing.T) {
	srv := startServer(t)

	c, err := Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	v, err := c.MethodsWait(testCtx(t))
	require.NoError(t, err)

	rows, ok := v.(sexp.List)
	require.True(t, ok)
	require.Len(t, rows, 2)
	first := rows[0].(sexp.List)
	assert.True(t, sexp.Equal(first[0], sexp.Symbol("boom")))
	second := rows[1].(sexp.List)
	assert.True(t, sexp.Equal(second[0], sexp.Symbol("echo")))
	assert.True(t, sexp.Equal(second[2], sexp.String("Return the arguments unchanged.")))
}

func TestRegisterFuncCallback(t *testing.T) {
	srv := startServer(t)

	c, err := Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	require.NoError(t, c.RegisterFunc("double", func(n int64) int64 {
		return n * 2
	}, "Double an integer."))

	require.Eventually(t, func() bool {
		return len(srv.Sessions()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	v, err := srv.Sessions()[0].CallWait(testCtx(t), "double", sexp.List{sexp.Int(21)})
	require.NoError(t, err)
	assert.True(t, sexp.Equal(v, sexp.Int(42)))
}

func TestCloseFailsPending(t *testing.T) {
	srv := startServer(t)
	srv.Register("hang", func(ctx context.Context, args sexp.List) (sexp.Value, error) {
		time.Sleep(1500 * time.Millisecond)
		return nil, nil
	}, "")

	c, err := Dial("tcp", srv.Addr().String())
	require.NoError(t, err)

	call, err := c.Call("hang", nil)
	require.NoError(t, err)

	require.NoError(t, c.Close())

	select {
	case res := <-call.Done():
		assert.ErrorIs(t, res.Err, session.ErrSessionClosed)
	case <-time.After(time.Second):
		t.Fatal("pending call not failed by Close")
	}
}

func TestPoolReuse(t *testing.T) {
	srv := startServer(t)

	pool := NewPool(2, func() (*Client, error) {
		return Dial("tcp", srv.Addr().String())
	})
	t.Cleanup(func() { pool.Close() })

	a, err := pool.Get()
	require.NoError(t, err)
	b, err := pool.Get()
	require.NoError(t, err)
	require.NotSame(t, a, b)

	pool.Put(a)
	again, err := pool.Get()
	require.NoError(t, err)
	assert.Same(t, a, again, "an idle client must be reused")

	_, err = again.CallWait(testCtx(t), "echo", nil)
	assert.NoError(t, err)
	pool.Put(again)
	pool.Put(b)
}

func TestPoolUseAfterClose(t *testing.T) {
	srv := startServer(t)

	pool := NewPool(1, func() (*Client, error) {
		return Dial("tcp", srv.Addr().String())
	})

	borrowed, err := pool.Get()
	require.NoError(t, err)
	require.NoError(t, pool.Close())

	// A late Put is absorbed: the client is closed, nothing panics.
	pool.Put(borrowed)
	assert.True(t, borrowed.Closed())

	_, err = pool.Get()
	assert.ErrorIs(t, err, ErrPoolClosed)

	require.NoError(t, pool.Close(), "Close must be idempotent")
}

func TestPoolDiscardsClosed(t *testing.T) {
	srv := startServer(t)

	pool := NewPool(1, func() (*Client, error) {
		return Dial("tcp", srv.Addr().String())
	})
	t.Cleanup(func() { pool.Close() })

	a, err := pool.Get()
	require.NoError(t, err)
	a.Close()
	pool.Put(a) // discarded, slot freed

	b, err := pool.Get()
	require.NoError(t, err)
	require.NotSame(t, a, b)
	_, err = b.CallWait(testCtx(t), "echo", nil)
	assert.NoError(t, err)
	pool.Put(b)
}
