// Package redis publishes the set of online users to Redis so that sibling
// chat processes and operators can read the online set of the whole cluster.
package redis

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aaronBIOO/QuickChat/internal/logging"
)

// DefaultTTL is how long an instance's set survives without a heartbeat.
const DefaultTTL = 30 * time.Second

// PresenceMirror keeps one Redis set per chat process, <prefix>:<instance>,
// and lists every instance under <prefix>:instances. A process only ever
// writes its own set, so processes sharing a prefix never clobber each
// other. Sets of crashed processes expire after the TTL.
type PresenceMirror struct {
	cli      *redis.Client
	prefix   string
	instance string
	ttl      time.Duration
}

func New(ctx context.Context, url, prefix, instance string, ttl time.Duration) (*PresenceMirror, error) {
	if instance == "" {
		return nil, fmt.Errorf("redis presence: empty instance id")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &PresenceMirror{cli: cli, prefix: prefix, instance: instance, ttl: ttl}, nil
}

func (m *PresenceMirror) instanceKey() string  { return instanceKey(m.prefix, m.instance) }
func (m *PresenceMirror) instancesKey() string { return m.prefix + ":instances" }

func instanceKey(prefix, instance string) string {
	return prefix + ":" + instance
}

// Close drops this instance's set and closes the client.
func (m *PresenceMirror) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := m.Reset(ctx); err != nil {
		logging.Warn().Err(err).Str("instance", m.instance).Msg("drop presence set")
	}
	return m.cli.Close()
}

func (m *PresenceMirror) SetOnline(ctx context.Context, userID string) error {
	_, err := m.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, m.instanceKey(), userID)
		pipe.Expire(ctx, m.instanceKey(), m.ttl)
		pipe.SAdd(ctx, m.instancesKey(), m.instance)
		return nil
	})
	return err
}

func (m *PresenceMirror) SetOffline(ctx context.Context, userID string) error {
	return m.cli.SRem(ctx, m.instanceKey(), userID).Err()
}

// Members returns the users online on any instance, sorted. Instances whose
// set has expired or emptied are pruned from the index.
func (m *PresenceMirror) Members(ctx context.Context) ([]string, error) {
	instances, err := m.cli.SMembers(ctx, m.instancesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	if len(instances) == 0 {
		return nil, nil
	}

	keys := make([]string, len(instances))
	exists := make([]*redis.IntCmd, len(instances))
	_, err = m.cli.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, inst := range instances {
			keys[i] = instanceKey(m.prefix, inst)
			exists[i] = pipe.Exists(ctx, keys[i])
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("check instances: %w", err)
	}

	var live []string
	for i, inst := range instances {
		if exists[i].Val() > 0 {
			live = append(live, keys[i])
			continue
		}
		// re-added by that instance's next SetOnline
		m.cli.SRem(ctx, m.instancesKey(), inst)
	}
	if len(live) == 0 {
		return nil, nil
	}

	ids, err := m.cli.SUnion(ctx, live...).Result()
	if err != nil {
		return nil, fmt.Errorf("union presence: %w", err)
	}
	slices.Sort(ids)
	return ids, nil
}

// Reset drops this instance's set. Call it before the server accepts
// connections so a previous run of the same instance leaves nothing behind.
func (m *PresenceMirror) Reset(ctx context.Context) error {
	return m.cli.Del(ctx, m.instanceKey()).Err()
}

// Run refreshes the TTL of this instance's set until ctx is done.
func (m *PresenceMirror) Run(ctx context.Context) {
	ticker := time.NewTicker(m.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.cli.Expire(ctx, m.instanceKey(), m.ttl).Err(); err != nil && ctx.Err() == nil {
				logging.Warn().Err(err).Str("instance", m.instance).Msg("refresh presence ttl")
			}
		}
	}
}
