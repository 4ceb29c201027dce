// Package presence tracks which participants are online per whiteboard in
// Redis, with heartbeat TTLs so crashed connections age out even if the
// server never saw a clean disconnect. A single-process deployment works
// without it; configure Redis when fan-out spans processes.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// presenceTTL is refreshed by heartbeats; entries older than this are
	// considered gone.
	presenceTTL = 60 * time.Second

	// updatesChannel carries join/leave notifications between processes
	updatesChannel = "board_presence"
)

// Entry is one participant's presence record
type Entry struct {
	UserID       int64  `json:"user_id"`
	Nickname     string `json:"nickname"`
	WhiteboardID int64  `json:"whiteboard_id"`
	Color        string `json:"color"`
	Event        string `json:"event,omitempty"` // join/leave, pub/sub only
	ConnectedAt  int64  `json:"connected_at"`
}

// Manager is the Redis-backed presence store
type Manager struct {
	client *redis.Client
}

// NewManager connects and pings; an unreachable Redis fails fast so the
// caller can run without presence instead of half-working.
func NewManager(addr, password string, db int) (*Manager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Printf("[Presence] connected to %s", addr)
	return &Manager{client: client}, nil
}

func (m *Manager) userKey(whiteboardID, userID int64) string {
	return fmt.Sprintf("presence:board:%d:user:%d", whiteboardID, userID)
}

func (m *Manager) membersKey(whiteboardID int64) string {
	return fmt.Sprintf("presence:board:%d:members", whiteboardID)
}

// SetPresence records a participant as online on a board.
func (m *Manager) SetPresence(ctx context.Context, e Entry) error {
	e.ConnectedAt = time.Now().Unix()

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	if err := m.client.Set(ctx, m.userKey(e.WhiteboardID, e.UserID), data, presenceTTL).Err(); err != nil {
		return err
	}
	return m.client.SAdd(ctx, m.membersKey(e.WhiteboardID), e.UserID).Err()
}

// Heartbeat extends the participant's TTL; fails if the entry already aged
// out.
func (m *Manager) Heartbeat(ctx context.Context, whiteboardID, userID int64) error {
	ok, err := m.client.Expire(ctx, m.userKey(whiteboardID, userID), presenceTTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("participant %d not present on board %d", userID, whiteboardID)
	}
	return nil
}

// Remove clears a participant's presence on disconnect.
func (m *Manager) Remove(ctx context.Context, whiteboardID, userID int64) error {
	if err := m.client.Del(ctx, m.userKey(whiteboardID, userID)).Err(); err != nil {
		return err
	}
	return m.client.SRem(ctx, m.membersKey(whiteboardID), userID).Err()
}

// List returns the live entries for a board, pruning members whose TTL
// expired.
func (m *Manager) List(ctx context.Context, whiteboardID int64) ([]Entry, error) {
	ids, err := m.client.SMembers(ctx, m.membersKey(whiteboardID)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Entry{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = fmt.Sprintf("presence:board:%d:user:%s", whiteboardID, id)
	}

	results, err := m.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(results))
	for i, result := range results {
		if result == nil {
			// heartbeat lapsed; drop the stale member
			m.client.SRem(ctx, m.membersKey(whiteboardID), ids[i])
			continue
		}
		strVal, ok := result.(string)
		if !ok {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(strVal), &e); err == nil {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// Publish announces a join/leave to other processes.
func (m *Manager) Publish(ctx context.Context, e Entry, event string) error {
	e.Event = event
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return m.client.Publish(ctx, updatesChannel, data).Err()
}

// Subscribe returns the presence update subscription.
func (m *Manager) Subscribe(ctx context.Context) *redis.PubSub {
	return m.client.Subscribe(ctx, updatesChannel)
}

// Health checks the connection
func (m *Manager) Health(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// Close shuts the client down
func (m *Manager) Close() error {
	return m.client.Close()
}
