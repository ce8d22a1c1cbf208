package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/walterschell/shogi-analyzer/internal/config"
	"github.com/walterschell/shogi-analyzer/internal/dispatcher"
	"github.com/walterschell/shogi-analyzer/internal/engine"
	"github.com/walterschell/shogi-analyzer/internal/runtime"
	"github.com/walterschell/shogi-analyzer/internal/session"
	"github.com/walterschell/shogi-analyzer/internal/store/badgerstore"
)

// wsConn adapts a *websocket.Conn to dispatcher.Conn, serializing all
// writes since gorilla/websocket forbids concurrent writers on one
// connection.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) Send(msgType string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(map[string]any{"type": msgType, "payload": payload})
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// Application wires the HTTP router, websocket upgrader, and dispatcher
// together.
type Application struct {
	router     *mux.Router
	upgrader   websocket.Upgrader
	dispatcher *dispatcher.Dispatcher
}

func NewApplication(d *dispatcher.Dispatcher) *Application {
	app := &Application{
		router: mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		dispatcher: d,
	}

	app.router.NotFoundHandler = stdoutLogger(http.HandlerFunc(notFoundHandler))
	app.router.Use(stdoutLogger)
	app.router.HandleFunc("/healthz", app.healthHandler)
	app.router.HandleFunc("/ws", app.wsHandler)

	return app
}

func (app *Application) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (app *Application) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := app.upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	fmt.Printf("new websocket connection from %s\n", conn.RemoteAddr())

	client := &wsConn{conn: conn}
	ctx := context.Background()
	app.dispatcher.HandleConnect(ctx, client)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		app.dispatcher.HandleMessage(ctx, client, raw)
	}

	app.dispatcher.HandleDisconnect(ctx, client)
	_ = conn.Close()
	fmt.Printf("websocket connection from %s closed\n", conn.RemoteAddr())
}

func (app *Application) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	app.router.ServeHTTP(w, r)
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "Not Found", http.StatusNotFound)
}

func stdoutLogger(next http.Handler) http.Handler {
	return handlers.LoggingHandler(os.Stdout, next)
}

func main() {
	var port uint
	flag.UintVar(&port, "port", 0, "Port to listen on (overrides PORT env var)")
	flag.Parse()

	cfg := config.Load()
	if port != 0 {
		if port > 65535 {
			fmt.Println("invalid port number")
			os.Exit(1)
		}
		cfg.Port = fmt.Sprintf("%d", port)
	}

	st, err := badgerstore.Open(cfg.DataDir)
	if err != nil {
		fmt.Printf("failed to open store at %s: %v\n", cfg.DataDir, err)
		os.Exit(1)
	}
	defer st.Close()

	rt := runtime.New(st)
	if err := rt.EnsureStarted(context.Background()); err != nil {
		fmt.Printf("failed to load initial game: %v\n", err)
		os.Exit(1)
	}

	eng := engine.New(st)
	if len(cfg.EngineCmd) > 0 {
		eng.Configure(cfg.EngineCmd, engine.Options{
			EvalDir:                     cfg.EngineEvalDir,
			Threads:                     cfg.EngineThreads,
			HashMB:                      cfg.EngineHashMB,
			USIOKTimeout:                time.Duration(cfg.USIOKTimeoutS) * time.Second,
			ReadyOKTimeout:              time.Duration(cfg.ReadyOKTimeoutS) * time.Second,
			PostSetoptionReadyOKTimeout: time.Duration(cfg.PostSetoptionReadyOKTimeoutS) * time.Second,
		})
	}
	defer eng.Shutdown()

	hub := session.NewHub()
	disp := dispatcher.New(rt, hub, eng)

	app := NewApplication(disp)
	addr := fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
	server := &http.Server{Addr: addr, Handler: app}

	go func() {
		fmt.Printf("starting server on %s\n", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("server error: %v\n", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctx)
}
