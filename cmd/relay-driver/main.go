package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Temutjin2k/location-relay/internal/client"
	"github.com/Temutjin2k/location-relay/internal/domain/models"
	"github.com/Temutjin2k/location-relay/internal/simulation"
	"github.com/Temutjin2k/location-relay/pkg/logger"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "relay-driver",
		Usage: "Stream a simulated driver's location to a location relay",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "url",
				Value:   "ws://localhost:8080",
				Usage:   "relay base URL",
				EnvVars: []string{"RELAY_URL"},
			},
			&cli.StringFlag{
				Name:     "driver",
				Usage:    "driver identity to publish as",
				Required: true,
				EnvVars:  []string{"RELAY_DRIVER"},
			},
			&cli.DurationFlag{
				Name:  "interval",
				Value: 2 * time.Second,
				Usage: "time between two locations",
			},
			&cli.Float64Flag{
				Name:  "latitude",
				Value: 23.8103,
				Usage: "start latitude",
			},
			&cli.Float64Flag{
				Name:  "longitude",
				Value: 90.4125,
				Usage: "start longitude",
			},
			&cli.IntFlag{
				Name:  "count",
				Usage: "stop after this many locations, 0 runs until interrupted",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: logger.LevelInfo,
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.Duration("interval") <= 0 {
		return errors.New("interval must be positive")
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.InitLogger("relay-driver", c.String("log-level"))

	driver := client.NewDriverClient(client.Config{
		BaseURL:  c.String("url"),
		Identity: c.String("driver"),
	}, log)
	defer driver.Close()

	if err := driver.Connect(ctx); err != nil {
		return err
	}

	route := simulation.NewRoute(c.String("driver"), c.Float64("latitude"), c.Float64("longitude"))

	ticker := time.NewTicker(c.Duration("interval"))
	defer ticker.Stop()

	for sent := 0; c.Int("count") == 0 || sent < c.Int("count"); {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		event := route.Next(c.Duration("interval"))
		update := models.LocationUpdate{
			Latitude:  event.Latitude,
			Longitude: event.Longitude,
			Speed:     &event.Speed,
			Heading:   &event.Heading,
			Accuracy:  event.Accuracy,
		}

		if err := driver.Send(update); err != nil {
			// the client reconnects on its own and re-sends this update
			log.Warn(context.Background(), "location not sent", "err", err.Error())
			continue
		}
		sent++
	}

	return nil
}
