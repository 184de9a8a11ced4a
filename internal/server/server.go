package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"credvault/internal/blobstore"
	"credvault/internal/config"
	"credvault/internal/metrics"
	"credvault/internal/notify"
	"credvault/internal/store"
)

const (
	adminTokenEnvKey       = "CREDVAULT_ADMIN_TOKEN"
	allowRemoteEnvKey      = "CREDVAULT_ALLOW_REMOTE"
	readHeaderTimeout      = 5 * time.Second
	readTimeout            = 30 * time.Second
	writeTimeout           = 60 * time.Second
	idleTimeout            = 60 * time.Second
	shutdownTimeout        = 10 * time.Second
	uploadConcurrencyLimit = 8
	gcConcurrencyLimit     = 1
	authMaxFailures        = 5
	authFailureWindow      = 5 * time.Minute
	authBlockDuration      = 5 * time.Minute
)

// Options configures optional server collaborators. Zero values select defaults.
type Options struct {
	Logger             *slog.Logger
	Metrics            *metrics.Metrics
	Notifier           notify.Notifier
	BlobPolicy         *BlobPolicy
	AdminToken         string
	MultipartMaxMemory int64
}

// Server wraps HTTP handlers for the credvault API.
type Server struct {
	addr        string
	repo        store.Repository
	objects     blobstore.BlobStore
	blobs       *BlobService
	credentials *CredentialService
	workflow    *Workflow
	contracts   *ContractService
	catalog     *CatalogService
	authService *AuthService
	metrics     *metrics.Metrics
	logger      *slog.Logger

	adminToken      string
	authLimiter     *authFailureLimiter
	uploadLimiter   chan struct{}
	gcLimiter       chan struct{}
	multipartMemory int64
}

// New creates a new server instance. The admin token falls back to
// CREDVAULT_ADMIN_TOKEN when not set in opts.
func New(addr string, repo store.Repository, objects blobstore.BlobStore, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	adminToken := strings.TrimSpace(opts.AdminToken)
	if adminToken == "" {
		adminToken = strings.TrimSpace(os.Getenv(adminTokenEnvKey))
	}
	multipartMemory := opts.MultipartMaxMemory
	if multipartMemory <= 0 {
		multipartMemory = config.DefaultBlobMultipartMemory
	}

	blobs := NewBlobService(repo, objects, opts.Metrics, logger)
	if opts.BlobPolicy != nil {
		blobs.ConfigurePolicy(*opts.BlobPolicy)
	}

	return &Server{
		addr:            addr,
		repo:            repo,
		objects:         objects,
		blobs:           blobs,
		credentials:     NewCredentialService(repo, repo, blobs, logger),
		workflow:        NewWorkflow(repo, opts.Notifier, opts.Metrics, logger),
		contracts:       NewContractService(repo, repo, opts.Metrics, logger),
		catalog:         NewCatalogService(repo, logger),
		authService:     NewAuthService(repo, repo),
		metrics:         opts.Metrics,
		logger:          logger,
		adminToken:      adminToken,
		authLimiter:     newAuthFailureLimiter(authMaxFailures, authFailureWindow, authBlockDuration),
		uploadLimiter:   make(chan struct{}, uploadConcurrencyLimit),
		gcLimiter:       make(chan struct{}, gcConcurrencyLimit),
		multipartMemory: multipartMemory,
	}
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

// ListenAndServe starts the HTTP server and shuts it down when ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.log().Info("starting server", "addr", s.addr, "driver", s.repo.Driver(), "blob_backend", s.objects.Backend())
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) acquireLimiter(limiter chan struct{}, w http.ResponseWriter, r *http.Request, name string) bool {
	if limiter == nil {
		return true
	}
	select {
	case limiter <- struct{}{}:
		return true
	default:
		err := apiError{
			status:  http.StatusTooManyRequests,
			code:    "resource_exhausted",
			errCode: ErrCodeResourceExhausted,
			err:     fmt.Errorf("too many concurrent %s requests", name),
		}
		s.writeErrorReq(w, r, http.StatusTooManyRequests, err)
		return false
	}
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

func (s *Server) releaseLimiter(limiter chan struct{}) {
	if limiter == nil {
		return
	}
	select {
	case <-limiter:
	default:
	}
}
