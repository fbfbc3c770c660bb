package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/reflection"

	"hubconnect/config"
	"hubconnect/internal/backend/database"
	"hubconnect/internal/backend/models"
	"hubconnect/internal/backend/providers"
	"hubconnect/internal/backend/services"
	"hubconnect/internal/backend/vault"
	"hubconnect/internal/crypto"
)

// HealthServiceName is the gRPC health service reporting database health.
const HealthServiceName = "hubconnect.Integrations"

const (
	shutdownTimeout     = 5 * time.Second
	healthCheckInterval = 15 * time.Second
)

// Server runs the integration HTTP API and the gRPC health service.
type Server struct {
	config *config.Config
	logger *zap.Logger
	debug  bool

	db          *database.GormDB
	connections *services.ConnectionService
	health      *health.Server
	grpcServer  *grpc.Server
	httpServer  *http.Server
}

func NewServer(cfg *config.Config, logger *zap.Logger, debug bool) *Server {
	return &Server{
		config: cfg,
		logger: logger,
		debug:  debug,
	}
}

// Start serves until ctx is cancelled or a listener fails, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	if err := s.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer s.closeDatabase()

	if err := s.migrate(); err != nil {
		return err
	}

	if err := s.initServices(); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	httpLis, err := net.Listen("tcp", s.config.Server.HTTPListen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Server.HTTPListen, err)
	}
	grpcLis, err := net.Listen("tcp", s.config.Server.GRPCListen)
	if err != nil {
		httpLis.Close()
		return fmt.Errorf("failed to listen on %s: %w", s.config.Server.GRPCListen, err)
	}

	s.setupHTTPServer()
	s.setupGRPCServer()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("HTTP server starting", zap.String("addr", httpLis.Addr().String()))
		if err := s.httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		s.logger.Info("gRPC server starting", zap.String("addr", grpcLis.Addr().String()))
		if err := s.grpcServer.Serve(grpcLis); err != nil {
			return fmt.Errorf("gRPC server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		s.watchDatabaseHealth(ctx)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		s.shutdown()
		return nil
	})

	return g.Wait()
}

// RunMigrations creates or updates the schema and exits.
func (s *Server) RunMigrations() error {
	if err := s.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database for migrations: %w", err)
	}
	defer s.closeDatabase()

	return s.migrate()
}

// EnsureUser returns the user registered under email, creating it when
// missing. Connections can only be made for existing users.
func (s *Server) EnsureUser(ctx context.Context, email string) (*models.User, bool, error) {
	if strings.TrimSpace(email) == "" {
		return nil, false, fmt.Errorf("email is required")
	}

	if err := s.initDatabase(); err != nil {
		return nil, false, fmt.Errorf("failed to initialize database: %w", err)
	}
	defer s.closeDatabase()

	if err := s.migrate(); err != nil {
		return nil, false, err
	}

	user, err := s.db.GetUserByEmail(ctx, email)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, false, err
	}

	user, err = s.db.CreateUser(ctx, email)
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

func (s *Server) initDatabase() error {
	db, err := database.NewGormDB(s.config.Database, s.logger.Named("database"), s.debug)
	if err != nil {
		return err
	}
	s.db = db
	return nil
}

func (s *Server) migrate() error {
	if err := s.db.AutoMigrate(); err != nil {
		return fmt.Errorf("failed to run auto-migrations: %w", err)
	}
	if err := s.db.RunCustomMigrations(); err != nil {
		return fmt.Errorf("failed to run custom migrations: %w", err)
	}
	return nil
}

func (s *Server) closeDatabase() {
	if s.db == nil {
		return
	}
	if err := s.db.Close(); err != nil {
		s.logger.Warn("Database close error", zap.Error(err))
	}
}

func (s *Server) initServices() error {
	cipher, err := crypto.NewCipher(s.config.Encryption.Passphrase)
	if err != nil {
		return err
	}

	adapters, err := BuildAdapters(s.config)
	if err != nil {
		return err
	}

	s.logger.Info("Provider adapters registered",
		zap.Stringers("providers", adapters.Kinds()),
		zap.Stringers("oauth", OAuthProviders(s.config)))

	s.connections = services.NewConnectionService(adapters, vault.New(cipher), s.db, s.db, s.logger)
	return nil
}

// BuildAdapters creates an adapter for every provider. All of them accept
// manual tokens; OAuth routes are gated separately by OAuthProviders.
func BuildAdapters(cfg *config.Config) (*providers.Registry, error) {
	client := &http.Client{Timeout: cfg.HTTP.Timeout}
	registry := providers.NewRegistry()

	for _, kind := range models.AllProviders {
		pc := cfg.Providers[kind.Slug()]
		adapter, err := providers.New(kind, providers.Config{
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			RedirectURI:  pc.RedirectURI,
			BaseURL:      pc.BaseURL,
			APIURL:       pc.APIURL,
			Scopes:       pc.Scopes,
		}, providers.WithHTTPClient(client))
		if err != nil {
			return nil, fmt.Errorf("failed to configure %s: %w", kind.Title(), err)
		}
		registry.Register(adapter)
	}
	return registry, nil
}

// OAuthProviders lists the providers whose OAuth flow is enabled.
func OAuthProviders(cfg *config.Config) []models.ProviderKind {
	var kinds []models.ProviderKind
	for _, name := range cfg.EnabledProviders() {
		if kind, err := models.ParseProviderKind(name); err == nil {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

func (s *Server) setupHTTPServer() {
	router := SetupRouter(s.config.Server, s.connections, OAuthProviders(s.config), s.db, s.logger)
	s.httpServer = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (s *Server) setupGRPCServer() {
	s.grpcServer = grpc.NewServer(grpc.UnaryInterceptor(s.loggingUnaryInterceptor))

	s.health = health.NewServer()
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(HealthServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)

	reflection.Register(s.grpcServer)
}

// watchDatabaseHealth mirrors database reachability into the gRPC health
// service until ctx is done.
func (s *Server) watchDatabaseHealth(ctx context.Context) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := s.db.HealthCheck(checkCtx)
			cancel()

			status := healthpb.HealthCheckResponse_SERVING
			if err != nil {
				status = healthpb.HealthCheckResponse_NOT_SERVING
				s.logger.Warn("Database health check failed", zap.Error(err))
			}
			s.health.SetServingStatus(HealthServiceName, status)
		}
	}
}

func (s *Server) shutdown() {
	s.logger.Info("Shutting down servers")

	s.health.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	s.grpcServer.GracefulStop()

	// Pending revocations still write their audit events.
	s.connections.Wait()

	s.logger.Info("Servers shut down gracefully")
}

func (s *Server) loggingUnaryInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	fields := []zap.Field{
		zap.String("method", info.FullMethod),
		zap.Duration("latency", time.Since(start)),
		zap.String("client_ip", clientIP(ctx)),
	}
	if err != nil {
		s.logger.Warn("gRPC request failed", append(fields, zap.Error(err))...)
	} else {
		s.logger.Debug("gRPC request served", fields...)
	}
	return resp, err
}

func clientIP(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
			return host
		}
		return p.Addr.String()
	}
	return "unknown"
}
