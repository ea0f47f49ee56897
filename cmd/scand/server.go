package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/w1xm/lidar_scan/cycle"
	"github.com/w1xm/lidar_scan/telemetry"
)

// Server publishes the outcome of the latest decision cycle.
type Server struct {
	metrics *telemetry.Metrics

	statusMu   sync.RWMutex
	statusCond *sync.Cond
	status     cycle.Outcome
	seq        int
	closed     bool
}

func NewServer(metrics *telemetry.Metrics) *Server {
	s := &Server{metrics: metrics}
	s.statusCond = sync.NewCond(s.statusMu.RLocker())
	return s
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/status", s.StatusHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/ws", s.StatusSocketHandler)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	return r
}

// ListenAndServe serves Handler on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		Addr:         addr,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		<-ctx.Done()
		log.Print("shutdown; closing status server")
		srv.Close()
		s.close()
	}()
	log.Printf("serving status on %s", addr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return ctx.Err()
}

func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	s.statusMu.RLock()
	status := s.status
	s.statusMu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(status)
	if err != nil {
		log.Print(err)
		return
	}
	w.Write(data)
}

func (s *Server) StatusSocketHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}
	defer conn.Close()

	// Clients never send anything; reading notices when they go away.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				s.statusMu.Lock()
				s.statusCond.Broadcast()
				s.statusMu.Unlock()
				return
			}
		}
	}()

	send := func(status cycle.Outcome) error {
		data, err := json.Marshal(status)
		if err != nil {
			return err
		}
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	s.statusMu.RLock()
	status, seq := s.status, s.seq
	s.statusMu.RUnlock()
	if seq > 0 {
		if err := send(status); err != nil {
			log.Print(err)
			return
		}
	}

	for {
		s.statusMu.RLock()
		for s.seq == seq && !s.closed && ctx.Err() == nil {
			s.statusCond.Wait()
		}
		status, seq = s.status, s.seq
		closed := s.closed
		s.statusMu.RUnlock()
		if closed || ctx.Err() != nil {
			return
		}
		if err := send(status); err != nil {
			log.Print(err)
			return
		}
	}
}

// close wakes and ends every status socket.
func (s *Server) close() {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.closed = true
	s.statusCond.Broadcast()
}

func (s *Server) statusCallback(status cycle.Outcome) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status = status
	s.seq++
	s.statusCond.Broadcast()
}
