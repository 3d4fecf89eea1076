package server

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/PulpCattel/jmrpc/types"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	log "github.com/inconshreveable/log15"
	"github.com/pkg/errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	apiPrefix     = "/api/v1"
	WebsocketPath = "/jmws"
)

// Server exposes a Daemon over the wallet daemon's HTTP and websocket API.
type Server struct {
	port       int
	daemon     *Daemon
	notifier   *Notifier
	handler    http.Handler
	mutex      sync.Mutex
	counter    int
	httpServer *http.Server
}

func NewServer(port int, tokenLifeTime time.Duration) *Server {
	s := &Server{port: port}
	s.notifier = NewNotifier(func(token string) error {
		return s.daemon.ValidateToken(token)
	})
	s.daemon = NewDaemon(tokenLifeTime, s.notifier)

	router := mux.NewRouter()
	s.initRouter(router.PathPrefix(apiPrefix).Subrouter())
	router.HandleFunc(WebsocketPath, s.notifier.ServeWS)
	headersOk := handlers.AllowedHeaders([]string{"X-Requested-With", "Content-Type", "Authorization"})
	originsOk := handlers.AllowedOrigins([]string{"*"})
	methodsOk := handlers.AllowedMethods([]string{"GET", "HEAD", "POST", "OPTIONS"})
	recovery := handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))
	s.handler = recovery(handlers.CORS(originsOk, headersOk, methodsOk)(s.requestFilter(router)))
	return s
}

func (s *Server) Daemon() *Daemon {
	return s.daemon
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Notify pushes payload to every authenticated websocket client.
func (s *Server) Notify(payload interface{}) error {
	return s.notifier.Publish(payload)
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	httpServer := &http.Server{Addr: addr, Handler: s.handler}
	s.mutex.Lock()
	s.httpServer = httpServer
	s.mutex.Unlock()
	log.Info(fmt.Sprintf("Mock wallet daemon listening on %s", addr))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop closes websocket subscribers with a going-away frame, then shuts the
// HTTP server down.
func (s *Server) Stop() {
	if err := s.notifier.Close(); err != nil {
		log.Error(fmt.Sprintf("Unable to close notifier: %v", err))
	}
	s.mutex.Lock()
	httpServer := s.httpServer
	s.mutex.Unlock()
	if httpServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error(fmt.Sprintf("Unable to stop server: %v", err))
	}
}

func (s *Server) requestFilter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqId := s.generateReqId()
		log.Debug(fmt.Sprintf("Got request %v, url: %v, from: %v", reqId, r.URL, GetIP(r)))
		defer log.Debug(fmt.Sprintf("Completed request %v", reqId))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) generateReqId() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	id := s.counter
	s.counter++
	return id
}

func GetIP(r *http.Request) string {
	header := r.Header.Get("X-Forwarded-For")
	if len(header) > 0 {
		return strings.Split(header, ", ")[0]
	}
	if strings.Contains(r.RemoteAddr, ":") {
		return strings.Split(r.RemoteAddr, ":")[0]
	}
	return r.RemoteAddr
}

func (s *Server) initRouter(router *mux.Router) {
	router.Path("/wallet/all").HandlerFunc(s.listWallets).Methods("GET")
	router.Path("/wallet/create").HandlerFunc(s.createWallet).Methods("POST")
	router.Path("/wallet/{walletname}/unlock").HandlerFunc(s.unlockWallet).Methods("POST")
	router.Path("/wallet/{walletname}/lock").HandlerFunc(s.lockWallet).Methods("GET")
	router.Path("/wallet/{walletname}/display").HandlerFunc(s.displayWallet).Methods("GET")
	router.Path("/wallet/{walletname}/address/new/{mixdepth}").HandlerFunc(s.getAddress).Methods("GET")
	router.Path("/wallet/{walletname}/utxos").HandlerFunc(s.listUtxos).Methods("GET")
	router.Path("/wallet/{walletname}/taker/direct-send").HandlerFunc(s.directSend).Methods("POST")
	router.Path("/wallet/{walletname}/taker/coinjoin").HandlerFunc(s.doCoinjoin).Methods("POST")
	router.Path("/wallet/{walletname}/maker/start").HandlerFunc(s.makerStart).Methods("POST")
	router.Path("/wallet/{walletname}/maker/stop").HandlerFunc(s.makerStop).Methods("GET")
	router.Path("/session").HandlerFunc(s.session).Methods("GET")
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) < 8 || auth[:7] != "Bearer " {
		return ""
	}
	return auth[7:]
}

func readRequest(r *http.Request, request interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, request); err != nil {
		return newError(http.StatusBadRequest, types.MsgInvalidRequestFormat)
	}
	return nil
}

func (s *Server) listWallets(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, http.StatusOK, s.daemon.ListWallets(), nil)
}

func (s *Server) createWallet(w http.ResponseWriter, r *http.Request) {
	request := types.CreateWalletRequest{}
	if err := readRequest(r, &request); err != nil {
		writeResponse(w, 0, nil, err)
		return
	}
	resp, err := s.daemon.CreateWallet(request)
	writeResponse(w, http.StatusCreated, resp, err)
}

func (s *Server) unlockWallet(w http.ResponseWriter, r *http.Request) {
	request := types.UnlockWalletRequest{}
	if err := readRequest(r, &request); err != nil {
		writeResponse(w, 0, nil, err)
		return
	}
	resp, err := s.daemon.UnlockWallet(mux.Vars(r)["walletname"], request)
	writeResponse(w, http.StatusOK, resp, err)
}

func (s *Server) lockWallet(w http.ResponseWriter, r *http.Request) {
	resp, err := s.daemon.LockWallet(bearerToken(r), mux.Vars(r)["walletname"])
	writeResponse(w, http.StatusOK, resp, err)
}

func (s *Server) displayWallet(w http.ResponseWriter, r *http.Request) {
	resp, err := s.daemon.DisplayWallet(bearerToken(r), mux.Vars(r)["walletname"])
	writeResponse(w, http.StatusOK, resp, err)
}

func (s *Server) getAddress(w http.ResponseWriter, r *http.Request) {
	mixdepth, err := strconv.Atoi(mux.Vars(r)["mixdepth"])
	if err != nil {
		writeResponse(w, 0, nil, newError(http.StatusBadRequest, types.MsgInvalidRequestFormat))
		return
	}
	resp, err := s.daemon.GetAddress(bearerToken(r), mux.Vars(r)["walletname"], mixdepth)
	writeResponse(w, http.StatusOK, resp, err)
}

func (s *Server) listUtxos(w http.ResponseWriter, r *http.Request) {
	resp, err := s.daemon.ListUtxos(bearerToken(r), mux.Vars(r)["walletname"])
	writeResponse(w, http.StatusOK, resp, err)
}

func (s *Server) directSend(w http.ResponseWriter, r *http.Request) {
	request := types.DirectSendRequest{}
	if err := readRequest(r, &request); err != nil {
		writeResponse(w, 0, nil, err)
		return
	}
	resp, err := s.daemon.DirectSend(bearerToken(r), mux.Vars(r)["walletname"], request)
	writeResponse(w, http.StatusOK, resp, err)
}

func (s *Server) doCoinjoin(w http.ResponseWriter, r *http.Request) {
	request := types.DoCoinjoinRequest{}
	if err := readRequest(r, &request); err != nil {
		writeResponse(w, 0, nil, err)
		return
	}
	resp, err := s.daemon.DoCoinjoin(bearerToken(r), mux.Vars(r)["walletname"], request)
	writeResponse(w, http.StatusAccepted, resp, err)
}

func (s *Server) makerStart(w http.ResponseWriter, r *http.Request) {
	request := types.MakerStartRequest{}
	if err := readRequest(r, &request); err != nil {
		writeResponse(w, 0, nil, err)
		return
	}
	resp, err := s.daemon.MakerStart(bearerToken(r), mux.Vars(r)["walletname"], request)
	writeResponse(w, http.StatusAccepted, resp, err)
}

func (s *Server) makerStop(w http.ResponseWriter, r *http.Request) {
	resp, err := s.daemon.MakerStop(bearerToken(r), mux.Vars(r)["walletname"])
	writeResponse(w, http.StatusAccepted, resp, err)
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, http.StatusOK, s.daemon.Session(bearerToken(r)), nil)
}

func writeResponse(w http.ResponseWriter, status int, result interface{}, err error) {
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		var daemonErr *Error
		if !errors.As(err, &daemonErr) {
			log.Error(fmt.Sprintf("Unable to handle request: %v", err))
			daemonErr = newError(http.StatusInternalServerError, err.Error())
		}
		status = daemonErr.Status
		result = types.ErrorResponse{Message: daemonErr.Message}
	}
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		log.Error(fmt.Sprintf("Unable to write response: %v", err))
	}
}

// Run serves a mock daemon until ctx is done, preloading wallet if set.
func Run(ctx context.Context, port int, tokenLifeTime time.Duration, wallet, password string) error {
	s := NewServer(port, tokenLifeTime)
	if wallet != "" {
		s.Daemon().AddWallet(wallet, password)
	}
	errs := make(chan error, 1)
	go func() { errs <- s.Start() }()
	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		s.Stop()
		return <-errs
	}
}
