package reachability

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProberDetectsOfflineTransition(t *testing.T) {
	var up int32 = 1
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&up) == 1 {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	p := New(srv.URL, 20*time.Millisecond, 100*time.Millisecond)
	p.Start()
	defer p.Stop()

	require.True(t, p.Online())

	atomic.StoreInt32(&up, 0)
	select {
	case online := <-p.TransitionCh:
		require.False(t, online)
	case <-time.After(time.Second):
		t.Fatal("no offline transition observed")
	}
	require.False(t, p.Online())
}
