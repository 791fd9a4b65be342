package database

import (
	"context"
	"fmt"
	"time"

	"github.com/boltdb/bolt"

	"github.com/w1nex5372/ernioCasino-sub000/pkg/config"
	"github.com/w1nex5372/ernioCasino-sub000/pkg/db"
)

type DBManager struct {
	Db *bolt.DB
}

// New opens the bolt file at cfg.Path and creates the buckets the repositories use.
func New(cfg *config.CacheConfig) (*DBManager, error) {
	Db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache %s: %w", cfg.Path, err)
	}

	err = Db.Update(func(tx *bolt.Tx) error {
		for _, name := range db.Buckets() {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		Db.Close()
		return nil, fmt.Errorf("failed to create cache buckets: %w", err)
	}

	return &DBManager{
		Db: Db,
	}, nil
}

// Ping verifies the cache file is open and every bucket exists.
func (dm *DBManager) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return dm.Db.View(func(tx *bolt.Tx) error {
		for _, name := range db.Buckets() {
			if tx.Bucket(name) == nil {
				return fmt.Errorf("bucket %s missing", name)
			}
		}
		return nil
	})
}

func (dm *DBManager) ShutDown() {
	if dm.Db != nil {
		dm.Db.Close()
	}
}
