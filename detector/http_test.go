package detector_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.jpl.nasa.gov/bdube/prosilica/detector"
	"github.jpl.nasa.gov/bdube/prosilica/generichttp"
	"github.jpl.nasa.gov/bdube/prosilica/pvapi"

	"github.com/go-chi/chi"
)

func newServer(t *testing.T) (*pvapi.Sim, *detector.Camera, *httptest.Server) {
	t.Helper()
	sim := pvapi.NewSim()
	sim.AddCamera(pvapi.NewSimCamera(7, 64, 48, 8))
	sim.Camera(7).Floats["FrameRate"] = 200
	cam := detector.New(sim, 7)
	r := chi.NewRouter()
	detector.NewHTTPWrapper(cam).RT().Bind(r)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		cam.Disconnect()
	})
	return sim, cam, srv
}

func post(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	resp, err := http.Post(url, "application/json", &buf)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestHTTPConnectLifecycle(t *testing.T) {
	_, cam, srv := newServer(t)
	resp := post(t, srv.URL+"/connect", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("connect: expected 200, got %d", resp.StatusCode)
	}
	if !cam.Connected() {
		t.Fatal("camera not connected after POST /connect")
	}
	r, err := http.Get(srv.URL + "/connected")
	if err != nil {
		t.Fatal(err)
	}
	var b generichttp.BoolT
	json.NewDecoder(r.Body).Decode(&b)
	r.Body.Close()
	if !b.Bool {
		t.Error("GET /connected returned false on a connected camera")
	}
	resp = post(t, srv.URL+"/disconnect", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("disconnect: expected 200, got %d", resp.StatusCode)
	}
	if cam.Connected() {
		t.Error("camera still connected after POST /disconnect")
	}
}

func TestHTTPExposure(t *testing.T) {
	_, _, srv := newServer(t)
	post(t, srv.URL+"/connect", nil).Body.Close()
	resp := post(t, srv.URL+"/exposure-time", generichttp.FloatT{F64: 0.02})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set exposure: expected 200, got %d", resp.StatusCode)
	}
	r, err := http.Get(srv.URL + "/exposure-time")
	if err != nil {
		t.Fatal(err)
	}
	var f generichttp.FloatT
	json.NewDecoder(r.Body).Decode(&f)
	r.Body.Close()
	if f.F64 != 0.02 {
		t.Errorf("expected 0.02 read back, got %f", f.F64)
	}
}

func TestHTTPGeometry(t *testing.T) {
	_, _, srv := newServer(t)
	post(t, srv.URL+"/connect", nil).Body.Close()
	g := detector.Geometry{BinX: 2, BinY: 2, MinX: 0, MinY: 0, SizeX: 64, SizeY: 48}
	resp := post(t, srv.URL+"/geometry", g)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set geometry: expected 200, got %d", resp.StatusCode)
	}
	r, err := http.Get(srv.URL + "/geometry")
	if err != nil {
		t.Fatal(err)
	}
	var back detector.Geometry
	json.NewDecoder(r.Body).Decode(&back)
	r.Body.Close()
	if back != g {
		t.Errorf("geometry did not round trip over HTTP: %+v != %+v", back, g)
	}
}

func TestHTTPImage(t *testing.T) {
	_, cam, srv := newServer(t)
	post(t, srv.URL+"/connect", nil).Body.Close()

	// no image yet
	r, err := http.Get(srv.URL + "/image")
	if err != nil {
		t.Fatal(err)
	}
	r.Body.Close()
	if r.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 with no image, got %d", r.StatusCode)
	}

	resp := post(t, srv.URL+"/acquire", generichttp.BoolT{Bool: true})
	resp.Body.Close()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := cam.LastImage(); err == nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	for _, format := range []string{"jpg", "png", "fits"} {
		r, err := http.Get(srv.URL + "/image?fmt=" + format)
		if err != nil {
			t.Fatal(err)
		}
		r.Body.Close()
		if r.StatusCode != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", format, r.StatusCode)
		}
	}
	r, err = http.Get(srv.URL + "/image?fmt=bmp")
	if err != nil {
		t.Fatal(err)
	}
	r.Body.Close()
	if r.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 on an unknown format, got %d", r.StatusCode)
	}
}

func TestHTTPTriggerModes(t *testing.T) {
	_, _, srv := newServer(t)
	r, err := http.Get(srv.URL + "/trigger-modes")
	if err != nil {
		t.Fatal(err)
	}
	var modes []string
	json.NewDecoder(r.Body).Decode(&modes)
	r.Body.Close()
	if len(modes) != len(detector.TriggerModes) {
		t.Errorf("expected %d trigger modes, got %v", len(detector.TriggerModes), modes)
	}
}

func TestHTTPStats(t *testing.T) {
	_, _, srv := newServer(t)
	post(t, srv.URL+"/connect", nil).Body.Close()
	r, err := http.Get(srv.URL + "/stats")
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]interface{}
	json.NewDecoder(r.Body).Decode(&out)
	r.Body.Close()
	if _, ok := out["driverType"]; !ok {
		t.Errorf("stats payload missing driverType: %v", out)
	}
	if _, ok := out["framesCompleted"]; !ok {
		t.Errorf("stats payload missing framesCompleted: %v", out)
	}
}
