package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *MarketplaceConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}
	switch c.Instance.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("instance.log_level must be debug, info, warn, or error, got %q", c.Instance.LogLevel)
	}

	if c.Market.Operator == "" {
		return errors.New("market.operator is required")
	}
	if c.Market.FeeBps > 1000 {
		return fmt.Errorf("market.fee_bps must be between 0 and 1000, got %d", c.Market.FeeBps)
	}
	if c.Market.RoyaltyBps > 10000 {
		return fmt.Errorf("market.royalty_bps must be between 0 and 10000, got %d", c.Market.RoyaltyBps)
	}

	seen := make(map[string]bool, len(c.Market.Collections))
	for i, coll := range c.Market.Collections {
		if coll.ID == "" {
			return fmt.Errorf("market.collections[%d].id is required", i)
		}
		if coll.Kind != CollectionKindDeed && coll.Kind != CollectionKindEdition {
			return fmt.Errorf("market.collections[%d].kind must be %q or %q, got %q",
				i, CollectionKindDeed, CollectionKindEdition, coll.Kind)
		}
		if coll.Admin == "" {
			return fmt.Errorf("market.collections[%d].admin is required", i)
		}
		if seen[coll.ID] {
			return fmt.Errorf("market.collections[%d].id %q is declared twice", i, coll.ID)
		}
		seen[coll.ID] = true
	}

	// The database is only reached through the journal; an in-memory
	// deployment gets to leave it unconfigured.
	if c.Journal.Enabled {
		if err := c.Database.Postgres.validate("database.postgres"); err != nil {
			return err
		}
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
		if c.Journal.BufferSize < 1 {
			return errors.New("journal.buffer_size must be >= 1")
		}
	}

	if c.Events.Buffer < 1 {
		return errors.New("events.buffer must be >= 1")
	}
	if c.Events.SubscriberBuffer < 1 {
		return errors.New("events.subscriber_buffer must be >= 1")
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
