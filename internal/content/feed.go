package content

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
	"github.com/proshano/kcru-mailer/internal/domain"
	"github.com/proshano/kcru-mailer/internal/pkg/logger"
)

// PublicationStore is the persistence the feed refresher needs.
type PublicationStore interface {
	// UpsertPublication inserts or refreshes a cache row, keyed by URL.
	// Editorial fields (Exclude) on an existing row must be preserved.
	UpsertPublication(ctx context.Context, p domain.Publication) error
}

// FeedRefresher periodically pulls the publication RSS/Atom feed into the
// local cache table the newsletter selects from. The cache, not the live
// feed, is what a dispatch run reads, so a feed outage degrades to "stale
// newsletter" rather than a failed run.
type FeedRefresher struct {
	store    PublicationStore
	parser   *gofeed.Parser
	feedURL  string
	interval time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewFeedRefresher creates a refresher for the given feed URL.
func NewFeedRefresher(store PublicationStore, feedURL string, interval time.Duration) *FeedRefresher {
	return &FeedRefresher{
		store:    store,
		parser:   gofeed.NewParser(),
		feedURL:  feedURL,
		interval: interval,
	}
}

// Start begins the polling loop. An immediate refresh runs first so a
// fresh deployment has content before the first tick.
func (fr *FeedRefresher) Start() error {
	fr.mu.Lock()
	if fr.running {
		fr.mu.Unlock()
		return fmt.Errorf("feed refresher already running")
	}
	fr.running = true
	fr.ctx, fr.cancel = context.WithCancel(context.Background())
	fr.mu.Unlock()

	logger.Info("feed refresher starting", "url", fr.feedURL, "interval", fr.interval.String())

	fr.wg.Add(1)
	go fr.loop()
	return nil
}

// Stop gracefully stops the polling loop.
func (fr *FeedRefresher) Stop() {
	fr.mu.Lock()
	if !fr.running {
		fr.mu.Unlock()
		return
	}
	fr.running = false
	fr.mu.Unlock()

	fr.cancel()
	fr.wg.Wait()
	logger.Info("feed refresher stopped")
}

func (fr *FeedRefresher) loop() {
	defer fr.wg.Done()

	fr.refreshOnce()

	ticker := time.NewTicker(fr.interval)
	defer ticker.Stop()

	for {
		select {
		case <-fr.ctx.Done():
			return
		case <-ticker.C:
			fr.refreshOnce()
		}
	}
}

func (fr *FeedRefresher) refreshOnce() {
	ctx, cancel := context.WithTimeout(fr.ctx, 60*time.Second)
	defer cancel()

	n, err := fr.Refresh(ctx)
	if err != nil {
		logger.Warn("publication feed refresh failed", "error", err.Error())
		return
	}
	logger.Info("publication feed refreshed", "items", n)
}

// Refresh fetches and upserts the feed once. Returns the item count.
func (fr *FeedRefresher) Refresh(ctx context.Context) (int, error) {
	feed, err := fr.parser.ParseURLWithContext(fr.feedURL, ctx)
	if err != nil {
		return 0, fmt.Errorf("parse feed %s: %w", fr.feedURL, err)
	}

	count := 0
	for _, item := range feed.Items {
		pub := feedItemToPublication(item)
		if pub.Title == "" || pub.URL == "" {
			continue
		}
		if err := fr.store.UpsertPublication(ctx, pub); err != nil {
			return count, fmt.Errorf("upsert publication %q: %w", pub.Title, err)
		}
		count++
	}
	return count, nil
}

func feedItemToPublication(item *gofeed.Item) domain.Publication {
	pub := domain.Publication{
		ID:        uuid.New().String(),
		Title:     item.Title,
		URL:       item.Link,
		DateText:  item.Custom["dc.date"],
		FetchedAt: time.Now().UTC(),
	}
	if len(item.Authors) > 0 {
		names := make([]string, 0, len(item.Authors))
		for _, a := range item.Authors {
			if a != nil && a.Name != "" {
				names = append(names, a.Name)
			}
		}
		pub.Authors = joinAuthors(names)
	}
	if item.PublishedParsed != nil {
		t := item.PublishedParsed.UTC()
		pub.PublishedAt = &t
		pub.Year = t.Year()
	}
	return pub
}

func joinAuthors(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	}
	out := names[0]
	for _, n := range names[1:] {
		out += ", " + n
	}
	return out
}
