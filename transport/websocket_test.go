package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-epc/client"
	"go-epc/server"
	"go-epc/sexp"
)

func startWebSocketServer(t *testing.T) string {
	t.Helper()

	srv := server.NewServer()
	srv.Register("echo", func(ctx context.Context, args sexp.List) (sexp.Value, error) {
		return args, nil
	}, "Return the arguments unchanged.")

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrade(w, r)
		if err != nil {
			return
		}
		srv.ServeConn(conn)
	}))
	t.Cleanup(ts.Close)

	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestEchoOverWebSocket(t *testing.T) {
	url := startWebSocketServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := DialWebSocket(ctx, url)
	require.NoError(t, err)

	c := client.NewClient(conn)
	t.Cleanup(func() { c.Close() })

	args := sexp.List{sexp.String("over"), sexp.String("websocket")}
	v, err := c.CallWait(ctx, "echo", args)
	require.NoError(t, err)
	assert.True(t, sexp.Equal(v, args))
}

func TestManyFramesOverWebSocket(t *testing.T) {
	url := startWebSocketServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := DialWebSocket(ctx, url)
	require.NoError(t, err)

	c := client.NewClient(conn)
	t.Cleanup(func() { c.Close() })

	for i := 0; i < 50; i++ {
		args := sexp.List{sexp.Int(i)}
		v, err := c.CallWait(ctx, "echo", args)
		require.NoError(t, err)
		require.True(t, sexp.Equal(v, args), "call %d", i)
	}
}

func TestMethodsOverWebSocket(t *testing.T) {
	url := startWebSocketServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := DialWebSocket(ctx, url)
	require.NoError(t, err)

	c := client.NewClient(conn)
	t.Cleanup(func() { c.Close() })

	v, err := c.MethodsWait(ctx)
	require.NoError(t, err)

	rows, ok := v.(sexp.List)
	require.True(t, ok)
	require.Len(t, rows, 1)
	row := rows[0].(sexp.List)
	assert.True(t, sexp.Equal(row[0], sexp.Symbol("echo")))
}
