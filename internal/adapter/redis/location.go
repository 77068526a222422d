package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Temutjin2k/location-relay/internal/domain/models"
	"github.com/Temutjin2k/location-relay/internal/domain/types"
	wrap "github.com/Temutjin2k/location-relay/pkg/logger/wrapper"
	goredis "github.com/redis/go-redis/v9"
)

// LocationCache keeps the last known location of every driver as a JSON value
// under prefix+identity. Entries expire after ttl without updates.
type LocationCache struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

func NewLocationCache(client *goredis.Client, prefix string, ttl time.Duration) *LocationCache {
	return &LocationCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (c *LocationCache) key(identity string) string {
	return c.prefix + identity
}

// saveRetries bounds optimistic retries when another writer touches the key
// between WATCH and EXEC.
const saveRetries = 5

// Save stores event unless the cached location is newer. The compare and set
// runs under WATCH so concurrent writers cannot regress the position.
func (c *LocationCache) Save(ctx context.Context, event models.LocationEvent) error {
	const op = "LocationCache.Save"

	body, err := json.Marshal(event)
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: marshal: %w", op, err))
	}

	key := c.key(event.DriverIdentity)
	txf := func(tx *goredis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, goredis.Nil):
		case err != nil:
			return err
		default:
			var stored models.LocationEvent
			if json.Unmarshal(current, &stored) == nil && stored.Timestamp.After(event.Timestamp) {
				return nil
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, body, c.ttl)
			return nil
		})
		return err
	}

	for range saveRetries {
		err = c.client.Watch(ctx, txf, key)
		if !errors.Is(err, goredis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		ctx = wrap.WithDriverID(ctx, event.DriverIdentity)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

func (c *LocationCache) Last(ctx context.Context, identity string) (models.LocationEvent, error) {
	const op = "LocationCache.Last"

	body, err := c.client.Get(ctx, c.key(identity)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return models.LocationEvent{}, types.ErrLocationNotFound
		}
		ctx = wrap.WithDriverID(ctx, identity)
		return models.LocationEvent{}, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	var event models.LocationEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return models.LocationEvent{}, wrap.Error(ctx, fmt.Errorf("%s: unmarshal: %w", op, err))
	}
	return event, nil
}
