package locker_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.jpl.nasa.gov/bdube/prosilica/server/middleware/locker"
)

func TestCheckBouncesWhenLocked(t *testing.T) {
	l := locker.New()
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := l.Check(ok)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/acquire", nil))
	if w.Code != http.StatusOK {
		t.Errorf("unlocked request should pass, got %d", w.Code)
	}

	l.Lock()
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/acquire", nil))
	if w.Code != http.StatusLocked {
		t.Errorf("locked request should bounce with 423, got %d", w.Code)
	}

	// the lock route itself stays reachable so the lock can be released
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/lock", nil))
	if w.Code != http.StatusOK {
		t.Errorf("lock route should not be protected, got %d", w.Code)
	}

	l.Unlock()
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/acquire", nil))
	if w.Code != http.StatusOK {
		t.Errorf("unlocked request should pass again, got %d", w.Code)
	}
}

func TestHTTPSet(t *testing.T) {
	l := locker.New()
	w := httptest.NewRecorder()
	l.HTTPSet(w, httptest.NewRequest(http.MethodPost, "/lock", strings.NewReader(`{"bool": true}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !l.Locked() {
		t.Error("expected locker locked after POST true")
	}
	w = httptest.NewRecorder()
	l.HTTPSet(w, httptest.NewRequest(http.MethodPost, "/lock", strings.NewReader(`{"bool": false}`)))
	if l.Locked() {
		t.Error("expected locker unlocked after POST false")
	}
}
