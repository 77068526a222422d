package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/Temutjin2k/location-relay/config"
	"github.com/Temutjin2k/location-relay/internal/app/microservices"
	"github.com/Temutjin2k/location-relay/pkg/logger"
)

var ErrServiceNotInitialized = errors.New("service not initialized")

type Service interface {
	Start(ctx context.Context) error
}

type App struct {
	service Service

	cfg config.Config
	log logger.Logger
}

// NewApplication builds the relay and every backend it is configured with.
// An unreachable backend fails here, before anything listens.
func NewApplication(ctx context.Context, cfg config.Config, log logger.Logger) (*App, error) {
	service, err := microservices.NewRelay(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to init service: %w", err)
	}

	return &App{
		service: service,
		cfg:     cfg,
		log:     log,
	}, nil
}

// Run blocks until the service stops on a signal or fails.
func (a *App) Run(ctx context.Context) error {
	if a.service == nil {
		return ErrServiceNotInitialized
	}

	return a.service.Start(ctx)
}
