package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.jpl.nasa.gov/bdube/prosilica/detector"

	"github.com/cenkalti/backoff"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/theckman/yacspin"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "prosilicasrv.yml"
	k              = koanf.New(".")
)

func setupconfig() {
	k.Load(structs.Provider(Config{
		Addr: ":8000",
		Mock: true,
		Nodes: []CameraSetup{}}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `prosilicasrv communicates with GigE Vision cameras and exposes an HTTP
interface to them.  This enables a server-client architecture, and the
clients can leverage the excellent HTTP libraries for any programming
language.

Usage:
	prosilicasrv <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `prosilicasrv is amenable to configuration via its .yaml file.  For a primer
on YAML, see https://yaml.org/start.html

Without a configuration, the server will start but serve no cameras.

No two cameras can have the same Endpoint.

Endpoints may look like any variation between "omc/cam" or "/omc/cam/*";
the leading and trailing slashes, as well as the *, are added by the
server if missing.

Each camera serves routes for connection, acquisition, exposure, geometry,
trigger and image modes, transport statistics, and image retrieval in
jpg, png, or fits formats.  See GET /endpoints on a running server for
the full list.

Transport statistics for every camera are exported at /metrics in
prometheus format.`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("prosilicasrv version %v\n", Version)
}

// connectStartup connects each camera marked Connect in the config,
// retrying with exponential backoff since cameras can take a few seconds
// to answer after power-on
func connectStartup(c Config, reg *detector.Registry) {
	for _, node := range c.Nodes {
		if !node.Connect {
			continue
		}
		cam, err := reg.Get(node.Endpoint)
		if err != nil {
			log.Fatal(err)
		}
		spinCfg := yacspin.Config{
			Frequency:       100 * time.Millisecond,
			CharSet:         yacspin.CharSets[59],
			Suffix:          fmt.Sprintf(" connecting to camera %s", node.Endpoint),
			SuffixAutoColon: true,
			StopCharacter:   "✓",
			StopColors:      []string{"fgGreen"},
		}
		spinner, err := yacspin.New(spinCfg)
		if err == nil {
			spinner.Start()
		}
		expo := backoff.NewExponentialBackOff()
		expo.MaxElapsedTime = 30 * time.Second
		err = backoff.Retry(cam.Connect, expo)
		if spinner != nil {
			spinner.Stop()
		}
		if err != nil {
			log.Println("could not connect to camera", node.Endpoint, err)
		}
	}
}

func run() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	mux, registry, err := BuildMux(c)
	if err != nil {
		log.Fatal(err)
	}
	connectStartup(c, registry)
	log.Println("now listening for requests at ", c.Addr)
	log.Fatal(http.ListenAndServe(c.Addr, mux))
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
