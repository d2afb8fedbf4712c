package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/free5gc/go-l2agent/internal/analytics"
	"github.com/free5gc/go-l2agent/internal/fabric"
	"github.com/free5gc/go-l2agent/internal/logger"
)

const SHUTDOWN_TIMEOUT = 5 // seconds

// PortLookup answers where a host was learned, without learning anything.
type PortLookup interface {
	LookupOutputPort(fabric.SwitchID, fabric.HardwareAddr) (fabric.PortID, bool)
}

type FlowSource interface {
	Snapshot() []analytics.FlowSnapshot
}

type Server struct {
	addr     string
	router   *mux.Router
	srv      *http.Server
	listener net.Listener
	lookup   PortLookup
	flows    FlowSource
	log      *logrus.Entry
}

type hostRsp struct {
	Port fabric.PortID `json:"port"`
}

type errorRsp struct {
	Error string `json:"error"`
}

func NewServer(addr string, lookup PortLookup, flows FlowSource) *Server {
	s := &Server{
		addr:   addr,
		lookup: lookup,
		flows:  flows,
		log:    logger.ApiLog.WithField(logger.FieldListenAddr, addr),
	}

	r := mux.NewRouter()
	r.HandleFunc("/l2/switches/{switch}/hosts/{mac}", s.lookupHost).Methods(http.MethodGet)
	r.HandleFunc("/analytics/flows", s.listFlows).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(wg *sync.WaitGroup) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", s.addr)
	}
	s.listener = listener
	s.srv = &http.Server{Handler: s.router}

	wg.Add(1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				// Print stack for panic to log. Fatalf() will let program exit.
				s.log.Fatalf("panic: %v\n%s", p, string(debug.Stack()))
			}

			s.log.Infoln("query api stopped")
			wg.Done()
		}()

		s.log.Infof("query api listening on %s", listener.Addr())
		if err := s.srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("serve: %+v", err)
		}
	}()
	return nil
}

func (s *Server) Stop() {
	if s.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), SHUTDOWN_TIMEOUT*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.log.Errorf("Stop query api err: %+v", err)
	}
}

func (s *Server) lookupHost(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sw, err := strconv.ParseUint(vars["switch"], 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorRsp{Error: "invalid switch id"})
		return
	}
	addr, err := fabric.ParseHardwareAddr(vars["mac"])
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorRsp{Error: "invalid hardware address"})
		return
	}

	port, ok := s.lookup.LookupOutputPort(fabric.SwitchID(sw), addr)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorRsp{Error: "host not learned"})
		return
	}
	s.writeJSON(w, http.StatusOK, hostRsp{Port: port})
}

func (s *Server) listFlows(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.flows.Snapshot())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	bytes, err := json.Marshal(v)
	if err != nil {
		s.log.Errorf("marshal response: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(bytes); err != nil {
		s.log.Warnf("write response: %v", err)
	}
}
