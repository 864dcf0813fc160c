// Package lookup caches platform entity lookups and deduplicates inbound
// events.
package lookup

import (
	"context"
	"fmt"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"siftgram/internal/platform"
	"siftgram/internal/retry"
)

const (
	defaultChatCacheSize   = 1024
	defaultSenderCacheSize = 2048
	defaultTTL             = 30 * time.Minute
)

type cached struct {
	entity  platform.Entity
	fetched time.Time
}

// Options tunes the resolver caches. Zero values select the defaults.
type Options struct {
	ChatCacheSize   int
	SenderCacheSize int
	TTL             time.Duration
	Backoff         retry.Policy
}

// Resolver wraps the platform client with bounded LRU caches. Entries older
// than the TTL are refetched on access, so a renamed chat or user corrects
// itself within one TTL. Safe for concurrent use.
type Resolver struct {
	client  platform.Client
	backoff retry.Policy
	ttl     time.Duration
	now     func() time.Time

	chats   *lru.Cache[int64, cached]
	senders *lru.Cache[string, cached]
}

func New(client platform.Client, opts Options) (*Resolver, error) {
	if opts.ChatCacheSize <= 0 {
		opts.ChatCacheSize = defaultChatCacheSize
	}
	if opts.SenderCacheSize <= 0 {
		opts.SenderCacheSize = defaultSenderCacheSize
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.Backoff.Attempts == 0 {
		opts.Backoff = retry.Default()
	}

	chats, err := lru.New[int64, cached](opts.ChatCacheSize)
	if err != nil {
		return nil, fmt.Errorf("chat cache: %w", err)
	}
	senders, err := lru.New[string, cached](opts.SenderCacheSize)
	if err != nil {
		return nil, fmt.Errorf("sender cache: %w", err)
	}

	return &Resolver{
		client:  client,
		backoff: opts.Backoff,
		ttl:     opts.TTL,
		now:     time.Now,
		chats:   chats,
		senders: senders,
	}, nil
}

// Chat resolves a chat entity, serving cached values younger than the TTL.
func (r *Resolver) Chat(ctx context.Context, id int64) (platform.Entity, error) {
	if c, ok := r.chats.Get(id); ok && r.fresh(c) {
		return c.entity, nil
	}

	e, err := retry.Do(ctx, r.backoff, func(ctx context.Context) (platform.Entity, error) {
		return r.client.Chat(ctx, id)
	})
	if err != nil {
		return platform.Entity{}, fmt.Errorf("resolve chat %d: %w", id, err)
	}

	r.chats.Add(id, cached{entity: e, fetched: r.now()})
	return e, nil
}

// Sender resolves the author entity for m. Channel posts have no per-post
// author; the channel entity itself stands in and is cached under a
// channel-scoped key so user and channel numbering can never collide.
func (r *Resolver) Sender(ctx context.Context, m platform.Message) (platform.Entity, error) {
	key := senderKey(m)
	if c, ok := r.senders.Get(key); ok && r.fresh(c) {
		return c.entity, nil
	}

	var e platform.Entity
	var err error
	if m.ChannelPost {
		e, err = r.Chat(ctx, m.ChatID)
	} else {
		e, err = retry.Do(ctx, r.backoff, func(ctx context.Context) (platform.Entity, error) {
			return r.client.User(ctx, m.SenderID)
		})
	}
	if err != nil {
		return platform.Entity{}, fmt.Errorf("resolve sender %s: %w", key, err)
	}

	r.senders.Add(key, cached{entity: e, fetched: r.now()})
	return e, nil
}

func senderKey(m platform.Message) string {
	if m.ChannelPost {
		return "channel:" + strconv.FormatInt(m.ChatID, 10)
	}
	return "user:" + strconv.FormatInt(m.SenderID, 10)
}

func (r *Resolver) fresh(c cached) bool {
	return r.now().Sub(c.fetched) < r.ttl
}
