// Package web serves stored prediction results as a small web application.
package web

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/browser"

	"github.com/sarchlab/ecmsim/resultstore"
)

//go:embed static/*
var staticAssets embed.FS

// A Server exposes the kernels and results of one result database over HTTP.
type Server struct {
	store       resultstore.Reader
	portNumber  int
	openBrowser bool
}

// NewServer creates a new result server.
func NewServer() *Server {
	return &Server{}
}

// WithPortNumber sets the port number of the server.
func (s *Server) WithPortNumber(portNumber int) *Server {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the result server, "+
				"which is not allowed. Using a random port instead.\n",
			portNumber)
		portNumber = 0
	}

	s.portNumber = portNumber

	return s
}

// WithStore sets the result database the server reads from.
func (s *Server) WithStore(store resultstore.Reader) *Server {
	s.store = store

	return s
}

// WithBrowserLaunch makes StartServer open the served page in the default
// browser.
func (s *Server) WithBrowserLaunch() *Server {
	s.openBrowser = true

	return s
}

// StartServer starts serving on the configured port, or a random port when
// none is set. It returns the bound port and does not block.
func (s *Server) StartServer() int {
	r := mux.NewRouter()
	r.HandleFunc("/api/kernels", s.listKernels)
	r.HandleFunc("/api/results/{kernel}", s.kernelResults)
	r.PathPrefix("/").Handler(http.FileServer(assets()))

	actualPort := ":0"
	if s.portNumber >= 1000 {
		actualPort = ":" + strconv.Itoa(s.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	port := listener.Addr().(*net.TCPAddr).Port
	url := fmt.Sprintf("http://localhost:%d", port)
	fmt.Fprintf(os.Stderr, "Serving results with %s\n", url)

	go func() {
		err := http.Serve(listener, r)
		dieOnErr(err)
	}()

	if s.openBrowser {
		err := browser.OpenURL(url)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open browser: %s\n", err)
		}
	}

	return port
}

func (s *Server) listKernels(w http.ResponseWriter, _ *http.Request) {
	kernels, err := s.store.Kernels()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if kernels == nil {
		kernels = []string{}
	}

	s.writeJSON(w, kernels)
}

// A resultGroup is one run of one model on one constant binding.
type resultGroup struct {
	RunID     string             `json:"run_id"`
	Constants string             `json:"constants"`
	Model     string             `json:"model"`
	Metrics   map[string]float64 `json:"metrics"`
}

func (s *Server) kernelResults(w http.ResponseWriter, r *http.Request) {
	kernel := mux.Vars(r)["kernel"]

	entries, err := s.store.Results(kernel)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, groupEntries(entries))
}

// groupEntries folds flat entries into one group per (constants, model,
// run), preserving the order entries arrive in.
func groupEntries(entries []resultstore.Entry) []resultGroup {
	groups := []resultGroup{}
	index := make(map[string]int)

	for _, e := range entries {
		key := e.Constants + "\x00" + e.Model + "\x00" + e.RunID

		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, resultGroup{
				RunID:     e.RunID,
				Constants: e.Constants,
				Model:     e.Model,
				Metrics:   make(map[string]float64),
			})
		}

		groups[i].Metrics[e.Metric] = e.Value
	}

	return groups
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")

	bytes, err := json.Marshal(v)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func assets() http.FileSystem {
	subFS, err := fs.Sub(staticAssets, "static")
	if err != nil {
		panic(err)
	}

	return http.FS(subFS)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
