package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.jpl.nasa.gov/bdube/prosilica/detector"
	"github.jpl.nasa.gov/bdube/prosilica/imgrec"
	"github.jpl.nasa.gov/bdube/prosilica/pvapi"
	"github.jpl.nasa.gov/bdube/prosilica/server/middleware/locker"

	"github.com/go-chi/chi"
	chimiddleware "github.com/go-chi/chi/middleware"
	"github.com/go-yaml/yaml"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CameraSetup holds the initialization parameters for one camera node
type CameraSetup struct {
	// UniqueID is the camera's unique ID on the PvAPI bus
	UniqueID uint32 `yaml:"UniqueID"`

	// Endpoint is the path the routes from this camera will be served on
	// ex. Endpoint="/omc/cam" will produce routes of /omc/cam/acquire, etc.
	Endpoint string `yaml:"Endpoint"`

	// Width, Height, and Bits describe the simulated sensor when Mock is true
	Width  uint32 `yaml:"Width"`
	Height uint32 `yaml:"Height"`
	Bits   uint32 `yaml:"Bits"`

	// Recorder configures where autosaved frames land; empty Root disables
	// the autowrite routes
	Recorder RecorderSetup `yaml:"Recorder"`

	// Connect controls whether the server connects this camera at startup
	Connect bool `yaml:"Connect"`
}

// RecorderSetup holds the folder and filename prefix for autosaved frames
type RecorderSetup struct {
	Root   string `yaml:"Root"`
	Prefix string `yaml:"Prefix"`
}

// Config is a struct that holds the initialization parameters for the
// server.  It is to be populated by a yaml unmarshal call.
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr"`

	// Mock replaces the hardware bus with a simulated one
	Mock bool `yaml:"Mock"`

	// Nodes is the list of cameras to set up
	Nodes []CameraSetup `yaml:"Nodes"`
}

// LoadYaml converts a (path to a) yaml file into a Config struct
func LoadYaml(path string) (Config, error) {
	cfg := Config{}
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	err = yaml.NewDecoder(f).Decode(&cfg)
	return cfg, err
}

// sanitizeEndpoint prepares a URL for submux mounting,
// "omc/cam/" => "/omc/cam"
func sanitizeEndpoint(stem string) string {
	stem = strings.TrimSuffix(stem, "*")
	stem = strings.TrimSuffix(stem, "/")
	if !strings.HasPrefix(stem, "/") {
		stem = "/" + stem
	}
	return stem
}

// registerStats exposes a camera's transport statistics to prometheus.
// the gauges read the parameter library, so they are as fresh as the last
// stats refresh.
func registerStats(name string, c *detector.Camera) {
	gauge := func(statName, help string, p detector.Param) {
		err := prometheus.Register(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Subsystem:   "camera",
				Name:        statName,
				Help:        help,
				ConstLabels: prometheus.Labels{"camera": name},
			},
			func() float64 {
				v, _ := c.GetInt(p)
				return float64(v)
			},
		))
		if err != nil {
			log.Println("prometheus register", statName, err)
		}
	}
	err := prometheus.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Subsystem:   "camera",
			Name:        "frame_rate",
			Help:        "Measured frame rate reported by the driver.",
			ConstLabels: prometheus.Labels{"camera": name},
		},
		func() float64 {
			v, _ := c.GetDouble(detector.StatFrameRate)
			return v
		},
	))
	if err != nil {
		log.Println("prometheus register frame_rate", err)
	}
	gauge("frames_completed", "Frames delivered intact.", detector.StatFramesCompleted)
	gauge("frames_dropped", "Frames lost in transport.", detector.StatFramesDropped)
	gauge("packets_erroneous", "Packets received with errors.", detector.StatPacketsErroneous)
	gauge("packets_missed", "Packets never received.", detector.StatPacketsMissed)
	gauge("packets_received", "Packets received.", detector.StatPacketsReceived)
	gauge("packets_requested", "Packet resends requested.", detector.StatPacketsRequested)
	gauge("packets_resent", "Packet resends honored.", detector.StatPacketsResent)
	gauge("bad_frames", "Frames that arrived incomplete.", detector.BadFrames)
}

// BuildMux constructs the engine, cameras, and router from the config.
// The mux serves a special route, /endpoints, which returns a map of
// stems to their routes as JSON, and /metrics for prometheus.
func BuildMux(c Config) (chi.Router, *detector.Registry, error) {
	root := chi.NewRouter()
	root.Use(chimiddleware.Logger)
	supergraph := map[string][]string{}
	registry := detector.NewRegistry()

	if !c.Mock {
		// the vendor's transport library is not linked on this build;
		// only the simulated bus is available
		return nil, nil, fmt.Errorf("only Mock: true is supported by this build")
	}
	sim := pvapi.NewSim()
	for _, node := range c.Nodes {
		width, height, bits := node.Width, node.Height, node.Bits
		if width == 0 {
			width = 640
		}
		if height == 0 {
			height = 480
		}
		if bits == 0 {
			bits = 8
		}
		sim.AddCamera(pvapi.NewSimCamera(node.UniqueID, width, height, bits))

		cam := detector.New(sim, node.UniqueID)
		stem := sanitizeEndpoint(node.Endpoint)
		if err := registry.Add(node.Endpoint, cam); err != nil {
			return nil, nil, err
		}

		httper := detector.NewHTTPWrapper(cam)
		if node.Recorder.Root != "" {
			rec := imgrec.New(node.Recorder.Root, node.Recorder.Prefix)
			// a recorder configured by file starts enabled; the autowrite
			// routes can switch it off at runtime
			rec.Enabled = true
			cam.SetRecorder(rec)
			recWrap := imgrec.NewHTTPWrapper(rec)
			recWrap.Inject(httper)
		}

		lock := locker.New()
		locker.Inject(httper, lock)

		supergraph[stem] = httper.RT().Endpoints()

		r := chi.NewRouter()
		r.Use(lock.Check)
		httper.RT().Bind(r)
		root.Mount(stem, r)

		registerStats(node.Endpoint, cam)
	}

	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		err := json.NewEncoder(w).Encode(supergraph)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	root.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return root, registry, nil
}
