package domain

import (
	"sync"
	"time"
)

// Member is the delivery side of a connection attached to a room. Deliver
// must not block; it reports whether the payload was accepted.
type Member interface {
	Deliver(payload []byte) bool
}

// Snapshot is a consistent view of a room's document, taken under the
// room lock so text and version always belong together.
type Snapshot struct {
	Text    string
	Version uint64
}

// Room is one shared text document with a password gate, a monotonically
// increasing version counter, and the set of currently attached members.
// All mutation goes through the room's own mutex; distinct rooms never
// contend with each other.
type Room struct {
	id       string
	password string

	mu         sync.Mutex
	text       string
	version    uint64
	members    map[Member]struct{}
	lastActive time.Time
}

// NewRoom creates a room with empty text, version 0, and no members.
func NewRoom(id, password string, now time.Time) *Room {
	return &Room{
		id:         id,
		password:   password,
		members:    make(map[Member]struct{}),
		lastActive: now,
	}
}

func (r *Room) ID() string { return r.id }

// CheckPassword reports whether the supplied password matches exactly.
// Passwords are kept in plaintext and compared byte-for-byte; the room
// password is a gate, not a credential.
func (r *Room) CheckPassword(password string) bool {
	return r.password == password
}

// ApplyEdit replaces the document text unconditionally and bumps the
// version. There is no conflict detection: a stale edit overwrites the
// same as a fresh one (last-write-wins).
func (r *Room) ApplyEdit(text string, now time.Time) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text = text
	r.version++
	r.lastActive = now
	return r.version
}

// ApplyEditAndBroadcast applies an edit and fans the encoded result out
// to every member (the editor included) in one critical section, so
// members always observe updates in version order. Delivery itself is
// non-blocking per member. Returns the new version.
func (r *Room) ApplyEditAndBroadcast(text string, now time.Time, encode func(Snapshot) ([]byte, error)) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text = text
	r.version++
	r.lastActive = now

	payload, err := encode(Snapshot{Text: r.text, Version: r.version})
	if err != nil {
		return r.version, err
	}
	for m := range r.members {
		m.Deliver(payload)
	}
	return r.version, nil
}

// Snapshot returns the current text/version pair.
func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{Text: r.text, Version: r.version}
}

// AddMember attaches m and returns the snapshot at the instant of join
// together with the new member count, all under one lock acquisition so
// the joiner can never observe a state older than a preceding edit.
func (r *Room) AddMember(m Member, now time.Time) (Snapshot, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[m] = struct{}{}
	r.lastActive = now
	return Snapshot{Text: r.text, Version: r.version}, len(r.members)
}

// AddMemberAndBroadcast attaches m, delivers the encoded join snapshot
// to m, then fans the encoded presence count out to every member (m
// included), all in one critical section. Holding the lock through
// delivery means the joiner hears its snapshot before any presence
// frame and presence counts reach members in membership order, the same
// guarantee ApplyEditAndBroadcast gives updates.
func (r *Room) AddMemberAndBroadcast(m Member, now time.Time, encodeWelcome func(Snapshot) ([]byte, error), encodePresence func(count int) ([]byte, error)) (Snapshot, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[m] = struct{}{}
	r.lastActive = now
	snap := Snapshot{Text: r.text, Version: r.version}
	count := len(r.members)

	welcome, err := encodeWelcome(snap)
	if err != nil {
		return snap, count, err
	}
	m.Deliver(welcome)

	presence, err := encodePresence(count)
	if err != nil {
		return snap, count, err
	}
	for member := range r.members {
		member.Deliver(presence)
	}
	return snap, count, nil
}

// RemoveMemberAndBroadcast detaches m if present and fans the encoded
// presence count out to the remaining members under the same lock. A
// member that was never attached is a silent no-op with no broadcast.
func (r *Room) RemoveMemberAndBroadcast(m Member, now time.Time, encodePresence func(count int) ([]byte, error)) (int, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[m]; !ok {
		return len(r.members), false, nil
	}
	delete(r.members, m)
	r.lastActive = now
	count := len(r.members)
	if count == 0 {
		return 0, true, nil
	}
	presence, err := encodePresence(count)
	if err != nil {
		return count, true, err
	}
	for member := range r.members {
		member.Deliver(presence)
	}
	return count, true, nil
}

// RemoveMember detaches m if present and returns the remaining member
// count and whether m was actually a member.
func (r *Room) RemoveMember(m Member, now time.Time) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[m]; !ok {
		return len(r.members), false
	}
	delete(r.members, m)
	r.lastActive = now
	return len(r.members), true
}

func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Empty reports whether the room has no members.
func (r *Room) Empty() bool { return r.MemberCount() == 0 }

// LastActive returns the timestamp of the most recent join, leave, or
// edit. Used only by the idle sweeper.
func (r *Room) LastActive() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActive
}

// Broadcast delivers payload to every member except exclude (pass nil to
// reach everyone). Delivery is best-effort per member: a member whose
// send buffer is full is skipped rather than stalling the rest. The
// member list is copied under the lock so slow deliveries never hold it.
func (r *Room) Broadcast(payload []byte, exclude Member) int {
	r.mu.Lock()
	targets := make([]Member, 0, len(r.members))
	for m := range r.members {
		if m != exclude {
			targets = append(targets, m)
		}
	}
	r.mu.Unlock()

	delivered := 0
	for _, m := range targets {
		if m.Deliver(payload) {
			delivered++
		}
	}
	return delivered
}
