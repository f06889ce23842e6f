package onebot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linjianyan0229/linbot2/pkg/errors"
)

func TestParseEvent(t *testing.T) {
	t.Run("group message", func(t *testing.T) {
		ev, err := ParseEvent([]byte(`{
			"time": 1700000000,
			"self_id": 10,
			"post_type": "message",
			"message_type": "group",
			"message_id": 42,
			"user_id": 7,
			"group_id": 100,
			"raw_message": "hello",
			"sender": {"user_id": 7, "nickname": "lin", "role": "admin"}
		}`))
		require.NoError(t, err)
		assert.True(t, ev.IsMessage())
		assert.True(t, ev.IsGroup())
		assert.Equal(t, int64(7), ev.UserID)
		assert.Equal(t, "admin", ev.Sender.Role)
	})

	t.Run("meta event", func(t *testing.T) {
		ev, err := ParseEvent([]byte(`{"post_type":"meta_event","meta_event_type":"heartbeat"}`))
		require.NoError(t, err)
		assert.False(t, ev.IsMessage())
		assert.Equal(t, "heartbeat", ev.MetaEventType)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ParseEvent([]byte("not json"))
		assert.Error(t, err)
	})
}

func TestHTTPCaller(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/send_private_msg", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			w.Write([]byte(`{"status":"ok","retcode":0,"data":{"message_id":5}}`))
		}))
		defer srv.Close()

		c := NewHTTPCaller(srv.URL)
		resp, err := c.Call(context.Background(), "send_private_msg", Params{"user_id": 1, "message": "hi"})
		require.NoError(t, err)
		assert.Equal(t, "ok", resp.Status)
	})

	t.Run("failed status becomes api error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"failed","retcode":100,"message":"bad request"}`))
		}))
		defer srv.Close()

		_, err := NewHTTPCaller(srv.URL).Call(context.Background(), "send_private_msg", nil)
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.CodeApiError))
		assert.Contains(t, err.Error(), "100")
	})

	t.Run("http error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := NewHTTPCaller(srv.URL).Call(context.Background(), "get_status", nil)
		require.Error(t, err)
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer srv.Close()

		c := NewHTTPCaller(srv.URL, WithTimeout(20*time.Millisecond))
		_, err := c.Call(context.Background(), "get_status", nil)
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.CodeApiError))
	})

	t.Run("helpers", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"ok","retcode":0}`))
		}))
		defer srv.Close()

		c := NewHTTPCaller(srv.URL)
		assert.NoError(t, SendPrivateMsg(context.Background(), c, 1, "hi"))
		assert.NoError(t, SendGroupMsg(context.Background(), c, 2, "hi"))
	})
}
