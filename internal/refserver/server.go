// Package refserver is a stand-in for the servers under comparison. It answers
// the same two routes, so a whole run can be rehearsed on one machine.
package refserver

import (
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

type ServerConfig struct {
	Host string
	Port int
	// Delay is added to every "/" response, plus up to 20% jitter.
	Delay time.Duration
}

// Handler serves "/" and "/health"; everything else is a 404.
func Handler(delay time.Duration) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		if r.URL.Path != "/" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("Not Found"))
			return
		}
		if delay > 0 {
			jitter := time.Duration(rand.Int63n(int64(delay)/5 + 1))
			time.Sleep(delay + jitter)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Hello, World!"))
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return mux
}

// Start binds the listener and serves in the background. A bind failure is
// returned immediately.
func Start(cfg ServerConfig, log *zap.Logger) (*http.Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	addr := net.JoinHostPort(host, fmt.Sprint(cfg.Port))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", addr)
	}

	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           Handler(cfg.Delay),
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info("reference server listening", zap.String("url", "http://"+server.Addr), zap.Strings("routes", []string{"/", "/health"}))

	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error("reference server failed", zap.Error(err))
		}
	}()
	return server, nil
}
