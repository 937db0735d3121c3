package shutdown

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func httptestBasicServer(h Handler) *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if h.ShuttingDown() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/shutdown", func(w http.ResponseWriter, r *http.Request) {
		h.Shutdown()
		w.WriteHeader(http.StatusOK)
	})

	return httptest.NewServer(mux)
}

// Mirrors the teacher's Test_NewGracefulShutdown: drives a handler through
// its health/shutdown lifecycle via real HTTP requests against an
// httptest.Server, rather than calling Shutdown directly.
func Test_HandlerShutdownMarksUnhealthy(t *testing.T) {
	var reqWg sync.WaitGroup
	var testSrv *httptest.Server

	h := New(nil, time.Second, func() error {
		reqWg.Wait()
		testSrv.Close()
		return nil
	})
	defer h.Wait()

	testSrv = httptestBasicServer(h)
	healthRoute := fmt.Sprintf("%s/health", testSrv.URL)
	shutdownRoute := fmt.Sprintf("%s/shutdown", testSrv.URL)

	tcs := []struct {
		url                string
		expectedStatusCode int
	}{
		{healthRoute, http.StatusOK},
		{shutdownRoute, http.StatusOK},
		{healthRoute, http.StatusServiceUnavailable},
	}

	reqWg.Add(len(tcs))
	for _, tc := range tcs {
		func() {
			defer reqWg.Done()
			res, err := http.Get(tc.url)
			if err != nil {
				t.Errorf("GET %s: %s", tc.url, err)
				return
			}
			if res.StatusCode != tc.expectedStatusCode {
				t.Errorf("%s: expected status %d, got %d", tc.url, tc.expectedStatusCode, res.StatusCode)
			}
		}()
	}
}
