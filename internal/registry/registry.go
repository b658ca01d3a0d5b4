// Package registry tracks which client identities are present in which rooms.
//
// The Registry is pure bookkeeping: it performs no network I/O and never calls
// back into the handles it stores. Rooms exist only while they have members;
// the last Leave of a room deletes it in the same critical section.
package registry

import (
	"slices"
	"sync"
)

// Member is a single (client identity, handle) entry of a room.
type Member[H comparable] struct {
	Client string
	Handle H
}

type room[H comparable] struct {
	order   []string
	handles map[string]H
}

func (r *room[H]) membersExcept(exclude string) []Member[H] {
	out := make([]Member[H], 0, len(r.order))
	for _, client := range r.order {
		if client == exclude {
			continue
		}
		out = append(out, Member[H]{Client: client, Handle: r.handles[client]})
	}
	return out
}

func (r *room[H]) remove(client string) {
	delete(r.handles, client)
	if i := slices.Index(r.order, client); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
}

// Registry maps room keys to their members. All operations are safe for
// concurrent use and appear atomic to each other.
type Registry[H comparable] struct {
	mu    sync.RWMutex
	rooms map[string]*room[H]
}

// New returns an empty Registry.
func New[H comparable]() *Registry[H] {
	return &Registry[H]{rooms: make(map[string]*room[H])}
}

// Join records client as a member of roomKey reachable through h, creating
// the room if needed. An existing entry for the same client is overwritten and
// its handle returned with replaced set to true; the entry keeps its original
// position in the room's join order.
func (r *Registry[H]) Join(roomKey, client string, h H) (prev H, replaced bool) {
	_, prev, replaced = r.JoinSnapshot(roomKey, client, h)
	return prev, replaced
}

// JoinSnapshot is Join that also returns the room's other members, in join
// order, as of the insertion. Every member that joins later sees client in its
// own snapshot, so between any two members exactly one of them is listed in
// the other's snapshot.
func (r *Registry[H]) JoinSnapshot(roomKey, client string, h H) (others []Member[H], prev H, replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomKey]
	if !ok {
		rm = &room[H]{handles: make(map[string]H)}
		r.rooms[roomKey] = rm
	}

	prev, replaced = rm.handles[client]
	if !replaced {
		rm.order = append(rm.order, client)
	}
	rm.handles[client] = h
	return rm.membersExcept(client), prev, replaced
}

// Leave removes client from roomKey. It is a no-op when the entry is absent.
func (r *Registry[H]) Leave(roomKey, client string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomKey]
	if !ok {
		return
	}
	if _, ok := rm.handles[client]; !ok {
		return
	}
	r.removeLocked(roomKey, rm, client)
}

// Release removes client from roomKey only while the stored handle is still h.
// It reports whether an entry was removed. A connection that has been
// superseded by a newer one for the same identity cannot evict its successor.
func (r *Registry[H]) Release(roomKey, client string, h H) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomKey]
	if !ok {
		return false
	}
	current, ok := rm.handles[client]
	if !ok || current != h {
		return false
	}
	r.removeLocked(roomKey, rm, client)
	return true
}

func (r *Registry[H]) removeLocked(roomKey string, rm *room[H], client string) {
	rm.remove(client)
	if len(rm.handles) == 0 {
		delete(r.rooms, roomKey)
	}
}

// Lookup returns the handle registered for client in roomKey.
func (r *Registry[H]) Lookup(roomKey, client string) (H, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero H
	rm, ok := r.rooms[roomKey]
	if !ok {
		return zero, false
	}
	h, ok := rm.handles[client]
	return h, ok
}

// Members returns the client identities of roomKey in join order. An unknown
// room yields an empty slice.
func (r *Registry[H]) Members(roomKey string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomKey]
	if !ok {
		return []string{}
	}
	return slices.Clone(rm.order)
}

// BroadcastTargets returns every member of roomKey except exclude. The result
// is a copy; callers may send to it after the registry lock is released.
func (r *Registry[H]) BroadcastTargets(roomKey, exclude string) []Member[H] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomKey]
	if !ok {
		return nil
	}

	return rm.membersExcept(exclude)
}

// Rooms returns the keys of all rooms that currently have members, sorted.
func (r *Registry[H]) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.rooms))
	for key := range r.rooms {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// Stats reports the number of live rooms and the total number of memberships.
func (r *Registry[H]) Stats() (rooms, members int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rm := range r.rooms {
		members += len(rm.handles)
	}
	return len(r.rooms), members
}
