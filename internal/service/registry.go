package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"collaborative-pad/internal/domain"
	"collaborative-pad/internal/dto"
	"collaborative-pad/internal/metrics"
)

// Room ids are 5 characters drawn from the base36 alphabet, uppercased.
const (
	roomIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	roomIDLength   = 5
)

// RoomRegistry is the process-wide mapping from room id to live Room.
// The registry mutex guards only the map structure (create, delete,
// sweep); every room serializes its own state behind its own lock, so
// traffic in distinct rooms never contends. Lock order is always
// registry before room, never the reverse.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]*domain.Room
}

// NewRoomRegistry creates an empty registry.
func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{rooms: make(map[string]*domain.Room)}
}

// Create registers a new room and returns its id. An explicit requestedID
// is uppercased and used verbatim; creation fails with ErrRoomExists if
// that id is already live (no generation fallback for explicit ids). An
// empty requestedID gets a fresh random id, regenerated until unique.
// The new room starts with empty text, version 0, and no members.
func (r *RoomRegistry) Create(requestedID, password string) (string, error) {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	id := strings.ToUpper(requestedID)
	if id != "" {
		if _, exists := r.rooms[id]; exists {
			return "", ErrRoomExists
		}
	} else {
		var err error
		if id, err = r.generateRoomIDLocked(); err != nil {
			return "", err
		}
	}

	r.rooms[id] = domain.NewRoom(id, password, now)
	metrics.RoomsActive.Set(float64(len(r.rooms)))
	logrus.WithFields(logrus.Fields{"component": "registry", "room_id": id}).Info("Room created")
	return id, nil
}

// Join authenticates member against the room and attaches it. On success
// the joined snapshot is delivered to the new member, then the updated
// presence count is broadcast to the whole room (new member included),
// both under the room lock so the joiner always hears joined first and
// presence frames arrive in membership order. Returns the room and the
// snapshot taken at the instant of join.
func (r *RoomRegistry) Join(roomID, password string, member domain.Member) (*domain.Room, domain.Snapshot, error) {
	id := strings.ToUpper(roomID)

	r.mu.RLock()
	room, ok := r.rooms[id]
	if !ok {
		r.mu.RUnlock()
		return nil, domain.Snapshot{}, ErrRoomNotFound
	}
	if !room.CheckPassword(password) {
		r.mu.RUnlock()
		return nil, domain.Snapshot{}, ErrInvalidPassword
	}

	snap, count, err := room.AddMemberAndBroadcast(member, time.Now(),
		func(snap domain.Snapshot) ([]byte, error) {
			return json.Marshal(dto.NewJoined(id, snap.Text, snap.Version))
		},
		encodePresence,
	)
	r.mu.RUnlock()
	if err != nil {
		logrus.WithError(err).Error("Failed to encode join broadcast")
	}

	logrus.WithFields(logrus.Fields{
		"component": "registry",
		"room_id":   id,
		"members":   count,
		"version":   snap.Version,
	}).Info("Member joined room")
	return room, snap, nil
}

// Leave detaches member from room, broadcasts the updated presence count
// to the remaining members under the room lock, and deletes the room the
// moment it is empty. Passing a nil room or a member that was never
// attached is a silent no-op, so the explicit-leave path and the
// disconnect path can share it.
func (r *RoomRegistry) Leave(room *domain.Room, member domain.Member) {
	if room == nil {
		return
	}

	r.mu.Lock()
	count, removed, err := room.RemoveMemberAndBroadcast(member, time.Now(), encodePresence)
	if removed && count == 0 {
		// Held under the registry write lock so a concurrent join
		// cannot slip into the room between the check and the delete.
		delete(r.rooms, room.ID())
		metrics.RoomsActive.Set(float64(len(r.rooms)))
		r.mu.Unlock()
		logrus.WithFields(logrus.Fields{"component": "registry", "room_id": room.ID()}).Info("Room empty, deleted")
		return
	}
	r.mu.Unlock()
	if err != nil {
		logrus.WithError(err).Error("Failed to encode presence broadcast")
	}

	if removed {
		logrus.WithFields(logrus.Fields{
			"component": "registry",
			"room_id":   room.ID(),
			"members":   count,
		}).Info("Member left room")
	}
}

// Sweep deletes every room that is empty and has been inactive longer
// than idleThreshold. Rooms with members are never swept regardless of
// staleness. Returns the number of rooms removed.
func (r *RoomRegistry) Sweep(now time.Time, idleThreshold time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, room := range r.rooms {
		if room.Empty() && now.Sub(room.LastActive()) > idleThreshold {
			delete(r.rooms, id)
			removed++
			logrus.WithFields(logrus.Fields{"component": "registry", "room_id": id}).Info("Deleted inactive room")
		}
	}
	if removed > 0 {
		metrics.RoomsActive.Set(float64(len(r.rooms)))
	}
	return removed
}

// RunSweeper runs the idle-room sweep on a fixed cadence until ctx is
// cancelled. This is the only background activity in the process.
func (r *RoomRegistry) RunSweeper(ctx context.Context, period, idleThreshold time.Duration) {
	log := logrus.WithField("component", "sweeper")
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	log.WithFields(logrus.Fields{
		"period":         period.String(),
		"idle_threshold": idleThreshold.String(),
	}).Info("Idle room sweeper started")

	for {
		select {
		case <-ticker.C:
			if removed := r.Sweep(time.Now(), idleThreshold); removed > 0 {
				log.WithField("removed", removed).Info("Sweep removed idle rooms")
			}
		case <-ctx.Done():
			log.Info("Idle room sweeper stopped")
			return
		}
	}
}

// RoomCount returns the number of live rooms.
func (r *RoomRegistry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// encodePresence marshals the presence frame broadcast after every
// membership change.
func encodePresence(count int) ([]byte, error) {
	return json.Marshal(dto.NewPresence(count))
}

// generateRoomIDLocked produces a fresh random id, retrying on the
// (near-impossible) collision with a live room. Caller holds r.mu.
func (r *RoomRegistry) generateRoomIDLocked() (string, error) {
	const maxAttempts = 10

	b := make([]byte, roomIDLength)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		for i := range b {
			b[i] = roomIDAlphabet[int(b[i])%len(roomIDAlphabet)]
		}
		id := strings.ToUpper(string(b))
		if _, exists := r.rooms[id]; !exists {
			return id, nil
		}
		logrus.WithField("room_id", id).Warnf("Generated room id already exists, retrying (attempt %d)", attempt+1)
	}
	return "", fmt.Errorf("failed to generate a unique room id after %d attempts", maxAttempts)
}
