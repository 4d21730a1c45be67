package clist

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/flor3z/contest-remind-bot/internal/contest"
)

const (
	bucketFeed = "feed"
	keyBody    = "contests"
	keyFetched = "fetched_at"

	// How far back to ask for contests so recently finished ones are listed
	lookBack = 7 * 24 * time.Hour
)

// Feed retrieves contests and keeps the last good response on disk
type Feed struct {
	client   *Client
	db       *bbolt.DB
	websites func() []string
	now      func() time.Time
}

// NewFeed opens (or creates) the bbolt cache at dbPath
func NewFeed(client *Client, dbPath string, websites func() []string) (*Feed, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create feed cache directory %s: %w", dir, err)
	}

	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open feed cache at %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketFeed))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &Feed{
		client:   client,
		db:       db,
		websites: websites,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close closes the feed cache
func (f *Feed) Close() error {
	if f.db != nil {
		return f.db.Close()
	}
	return nil
}

// Contests fetches the current feed. When the API is unavailable the last stored
// response is served instead; an error is returned only if nothing is stored.
func (f *Feed) Contests(ctx context.Context) ([]contest.RawContest, error) {
	records, body, err := f.client.Contests(ctx, f.websites(), f.now().Add(-lookBack))
	if err == nil {
		if err := f.store(body); err != nil {
			slog.Warn("Failed to cache feed response", "error", err)
		}
		return records, nil
	}

	cached, fetchedAt, cacheErr := f.cached()
	if cacheErr != nil || cached == nil {
		return nil, fmt.Errorf("feed unavailable: %w", err)
	}

	slog.Warn("Feed unavailable, serving cached response", "error", err, "fetchedAt", fetchedAt)
	return Decode(cached)
}

func (f *Feed) store(body []byte) error {
	return f.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketFeed))
		if err := b.Put([]byte(keyBody), body); err != nil {
			return err
		}
		ts, err := f.now().MarshalText()
		if err != nil {
			return err
		}
		return b.Put([]byte(keyFetched), ts)
	})
}

func (f *Feed) cached() ([]byte, time.Time, error) {
	var body []byte
	var fetchedAt time.Time

	err := f.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketFeed))
		if data := b.Get([]byte(keyBody)); data != nil {
			body = append([]byte(nil), data...)
		}
		if ts := b.Get([]byte(keyFetched)); ts != nil {
			return fetchedAt.UnmarshalText(ts)
		}
		return nil
	})
	return body, fetchedAt, err
}
