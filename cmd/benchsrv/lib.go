package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/opticslab/scpikit/generichttp"
	"github.com/opticslab/scpikit/generichttp/ascii"
	"github.com/opticslab/scpikit/generichttp/laser"
	"github.com/opticslab/scpikit/generichttp/motion"
	"github.com/opticslab/scpikit/generichttp/smu"
	"github.com/opticslab/scpikit/lightwave"
	"github.com/opticslab/scpikit/rotary"
	"github.com/opticslab/scpikit/server/middleware/locker"
	"github.com/opticslab/scpikit/sourcemeter"
	"github.com/opticslab/scpikit/util"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
)

// ObjSetup holds the typical triplet of args for a New<device> call.
// Serial is not always used, and need not be populated in the config file
// if not used.
type ObjSetup struct {
	// Addr holds the network or filesystem address of the remote device,
	// e.g. 192.168.100.123:2006 for a device connected to port 6 on a digi
	// portserver, or /dev/ttyS4 for an RS232 device on a serial cable
	Addr string `yaml:"Addr" koanf:"Addr"`

	// Endpoint is the full path the routes from this device will be served
	// on, ex. Endpoint="/bench/laser" will produce routes of
	// /bench/laser/current, etc.
	Endpoint string `yaml:"Endpoint" koanf:"Endpoint"`

	// Serial determines if the connection is serial/RS232 (true) or TCP
	// (false)
	Serial bool `yaml:"Serial" koanf:"Serial"`

	// Type is the "type" of the device, e.g. LDC500
	Type string `yaml:"Type" koanf:"Type"`

	// USB holds the vendor and product IDs for USBTMC devices
	USB USBSetup `yaml:"USB" koanf:"USB"`

	// Limits holds server imposed motion bounds, only meaningful for
	// motion platforms
	Limits util.Limiter `yaml:"Limits" koanf:"Limits"`
}

// USBSetup identifies a USB device by its vendor and product IDs
type USBSetup struct {
	VID uint16 `yaml:"VID" koanf:"VID"`
	PID uint16 `yaml:"PID" koanf:"PID"`
}

// Config is a struct that holds the initialization parameters for various
// HTTP adapted devices.  It is to be populated by a yaml/unmarshal call.
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr" koanf:"Addr"`

	// Mock replaces every device with an in-memory simulation
	Mock bool `yaml:"Mock" koanf:"Mock"`

	// Nodes is the list of nodes to set up
	Nodes []ObjSetup `yaml:"Nodes" koanf:"Nodes"`
}

// BuildMux converts a config to a chi router with one submux per node.
// The mux serves a special route, /endpoints, which returns a map of
// endpoint to route list as JSON.
func BuildMux(c Config) chi.Router {
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	supergraph := map[string][]string{}

	for _, node := range c.Nodes {
		var (
			httper      generichttp.HTTPer
			middlewares []func(http.Handler) http.Handler
		)
		typ := strings.ToLower(node.Type)
		switch typ {
		case "ldc500", "lightwave":
			var ctl laser.Controller
			if c.Mock {
				ctl = lightwave.NewMockLDC500(node.Addr, node.Serial)
			} else {
				ctl = lightwave.NewLDC500(node.Addr, node.Serial)
			}
			h := laser.NewHTTPLaserController(ctl)
			if raw, ok := ctl.(ascii.RawCommunicator); ok {
				ascii.InjectRawComm(h, raw)
			}
			httper = h

		case "ldc500-usb":
			if c.Mock {
				log.Fatal("USBTMC devices cannot be mocked, use type ldc500 with Mock")
			}
			ctl := lightwave.NewLDC500USB(node.USB.VID, node.USB.PID)
			h := laser.NewHTTPLaserController(ctl)
			ascii.InjectRawComm(h, ctl)
			httper = h

		case "sm2400", "smu", "sourcemeter":
			var src smu.Sourcer
			if c.Mock {
				src = sourcemeter.NewMockSM2400(node.Addr, node.Serial)
			} else {
				src = sourcemeter.NewSM2400(node.Addr, node.Serial)
			}
			h := smu.NewHTTPSourceMeter(src)
			if raw, ok := src.(ascii.RawCommunicator); ok {
				ascii.InjectRawComm(h, raw)
			}
			httper = h

		case "rp100", "rotary":
			var mov motion.Mover
			if c.Mock {
				mov = rotary.NewMockRP100(node.Addr)
			} else {
				mov = rotary.NewRP100(node.Addr)
			}
			limiter := motion.LimitMiddleware{Limit: node.Limits, Mov: mov}
			h := motion.NewHTTPMotionController(mov)
			if raw, ok := mov.(ascii.RawCommunicator); ok {
				ascii.InjectRawComm(h, raw)
			}
			limiter.Inject(h)
			middlewares = append(middlewares, limiter.Check)
			httper = h

		default:
			log.Fatal("type ", typ, " not understood")
		}

		// prepare the URL, "bench/laser" => "/bench/laser"
		hndlS := generichttp.SubMuxSanitize(node.Endpoint)

		// add the endpoints to the graph
		supergraph[hndlS] = httper.RT().Endpoints()

		// add a lock interface for this node
		lock := locker.New()
		locker.Inject(httper, lock)
		middlewares = append(middlewares, lock.Check)

		// bind to the mux
		r := chi.NewRouter()
		r.Use(middlewares...)
		httper.RT().Bind(r)
		root.Mount(hndlS, r)
	}
	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		err := json.NewEncoder(w).Encode(supergraph)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return root
}
