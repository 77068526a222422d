package microservices

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/Temutjin2k/location-relay/config"
	"github.com/Temutjin2k/location-relay/internal/adapter/http/server"
	"github.com/Temutjin2k/location-relay/internal/adapter/memory"
	repo "github.com/Temutjin2k/location-relay/internal/adapter/postgres"
	rabbitadapter "github.com/Temutjin2k/location-relay/internal/adapter/rabbit"
	redisadapter "github.com/Temutjin2k/location-relay/internal/adapter/redis"
	"github.com/Temutjin2k/location-relay/internal/domain/models"
	"github.com/Temutjin2k/location-relay/internal/relay"
	"github.com/Temutjin2k/location-relay/internal/simulation"
	"github.com/Temutjin2k/location-relay/pkg/logger"
	wrap "github.com/Temutjin2k/location-relay/pkg/logger/wrapper"
	"github.com/Temutjin2k/location-relay/pkg/postgres"
	"github.com/Temutjin2k/location-relay/pkg/rabbit"
	pkgredis "github.com/Temutjin2k/location-relay/pkg/redis"
	"github.com/Temutjin2k/location-relay/pkg/trm"
	ws "github.com/Temutjin2k/location-relay/pkg/wsHub"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// LocationStore keeps the last known location per driver.
type LocationStore interface {
	Save(ctx context.Context, event models.LocationEvent) error
	Last(ctx context.Context, identity string) (models.LocationEvent, error)
}

type RelayService struct {
	relay      *relay.Relay
	httpServer *server.API
	feed       *simulation.Feed

	postgresDB  *postgres.PostgreDB
	redisClient *goredis.Client
	rabbitMQ    *rabbit.RabbitMQ

	cfg config.Config
	log logger.Logger
}

func NewRelay(ctx context.Context, cfg config.Config, log logger.Logger) (*RelayService, error) {
	s := &RelayService{
		cfg: cfg,
		log: log,
	}

	store, err := s.initStore(ctx)
	if err != nil {
		s.close(ctx)
		return nil, err
	}

	opts := []relay.Option{
		relay.WithSinkTimeout(cfg.Relay.SinkTimeout),
		relay.WithSink("store_"+cfg.Store.Driver, store.Save),
	}

	if cfg.RabbitMQ.Enabled {
		publisher, err := s.initRabbit(ctx)
		if err != nil {
			s.close(ctx)
			return nil, err
		}
		opts = append(opts, relay.WithSink("rabbitmq", publisher.Publish))
	}

	registry := relay.NewRegistry(cfg.Relay.DuplicateDriverPolicy, log)
	s.relay = relay.New(registry, relay.NewRouter(registry, log), log, opts...)

	if cfg.Simulation.Enabled {
		s.feed = simulation.New(simulation.Config{
			Drivers:   cfg.Simulation.Drivers,
			Interval:  cfg.Simulation.Interval,
			Latitude:  cfg.Simulation.Latitude,
			Longitude: cfg.Simulation.Longitude,
		}, s.relay, log)
	}

	s.httpServer = server.New(cfg.Relay.Addr(), s.relay, store, wsOptions(cfg.Relay), log)

	return s, nil
}

func (s *RelayService) initStore(ctx context.Context) (LocationStore, error) {
	ctx = wrap.WithAction(ctx, "init_location_store")

	switch s.cfg.Store.Driver {
	case config.StorePostgres:
		db, err := postgres.New(ctx, s.cfg.Database)
		if err != nil {
			s.log.Error(ctx, "failed to setup database", err)
			return nil, fmt.Errorf("postgres: %w", err)
		}
		s.postgresDB = db

		locations := repo.NewLocationRepo(db.Pool, trm.New(db.Pool))
		if err := locations.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return locations, nil

	case config.StoreRedis:
		client, err := pkgredis.New(ctx, pkgredis.Config{
			Addr:     s.cfg.Redis.Addr,
			Password: s.cfg.Redis.Password,
			DB:       s.cfg.Redis.DB,
		})
		if err != nil {
			s.log.Error(ctx, "failed to setup redis", err)
			return nil, err
		}
		s.redisClient = client
		return redisadapter.NewLocationCache(client, s.cfg.Redis.KeyPrefix, s.cfg.Redis.TTL), nil

	default:
		return memory.NewLocationStore(), nil
	}
}

func (s *RelayService) initRabbit(ctx context.Context) (*rabbitadapter.LocationPublisher, error) {
	client, err := rabbit.New(ctx, s.cfg.RabbitMQ.GetDSN(), s.log)
	if err != nil {
		s.log.Error(ctx, "failed to setup rabbitMQ", err)
		return nil, err
	}
	s.rabbitMQ = client

	publisher := rabbitadapter.NewLocationPublisher(client, s.cfg.RabbitMQ.Exchange)
	if err := publisher.DeclareExchange(ctx); err != nil {
		return nil, err
	}
	return publisher, nil
}

func wsOptions(cfg config.RelayConfig) ws.Options {
	return ws.Options{
		SendQueueSize:  cfg.SendQueueSize,
		PingInterval:   cfg.PingInterval,
		PongWait:       cfg.PongWait,
		WriteWait:      cfg.WriteWait,
		MaxMessageSize: cfg.MaxMessageSize,
	}
}

// Start serves until SIGINT/SIGTERM or until a component fails, then shuts
// everything down and closes every relay connection.
func (s *RelayService) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.httpServer.Run(gctx)
	})

	if s.feed != nil {
		g.Go(func() error {
			return s.feed.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.log.Info(ctx, "shutting down relay")
		s.close(context.WithoutCancel(ctx))
		return nil
	})

	s.log.Info(ctx, "relay service started", "address", s.cfg.Relay.Addr(), "store", s.cfg.Store.Driver)

	err := g.Wait()
	s.log.Info(ctx, "relay service closed")
	return err
}

func (s *RelayService) close(ctx context.Context) {
	ctx = wrap.WithAction(ctx, "relay_shutdown")

	if s.httpServer != nil {
		if err := s.httpServer.Stop(ctx); err != nil {
			s.log.Warn(ctx, "failed to gracefully close http server", "error", err.Error())
		}
	}

	// hijacked websocket connections are not covered by http.Server.Shutdown
	if s.relay != nil {
		s.relay.Shutdown()
	}

	if s.rabbitMQ != nil {
		if err := s.rabbitMQ.Close(ctx); err != nil {
			s.log.Warn(ctx, "failed to close rabbitMQ", "error", err.Error())
		}
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.log.Warn(ctx, "failed to close redis", "error", err.Error())
		}
	}

	if s.postgresDB != nil {
		s.postgresDB.Close()
	}
}
