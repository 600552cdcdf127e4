// Package session holds the authoritative list of terminal sessions and
// enforces that at most one of them is visible at a time.
//
// Every operation is total: an unknown id is a no-op. Clients that report
// status after the user closed their session therefore neither resurrect it
// nor fail.
package session

import (
	"sync"

	"github.com/google/uuid"
)

// OpenParams are the inputs of a user-initiated connect.
type OpenParams struct {
	DeviceUID  string
	DeviceName string
	Username   string
	Password   string
}

// Session is the read-only view handed to the UI. It never carries the
// password.
type Session struct {
	ID         string           `json:"id"`
	DeviceUID  string           `json:"deviceUid"`
	DeviceName string           `json:"deviceName"`
	Username   string           `json:"username"`
	Window     WindowState      `json:"windowState"`
	Status     ConnectionStatus `json:"connectionStatus"`
}

type record struct {
	Session
	password string
	taken    bool
}

// Registry is an in-memory, ordered collection of sessions. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	records []*record
	version uint64
	newID   func() string
}

// NewRegistry returns an empty registry that names sessions with random
// uuids.
func NewRegistry() *Registry {
	return &Registry{newID: func() string { return uuid.NewString() }}
}

// Open appends a docked, connecting session and minimizes every other one.
// It returns the new id.
func (r *Registry) Open(p OpenParams) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := &record{
		Session: Session{
			ID:         r.newID(),
			DeviceUID:  p.DeviceUID,
			DeviceName: p.DeviceName,
			Username:   p.Username,
			Window:     Docked,
			Status:     Connecting,
		},
		password: p.Password,
	}
	r.records = append(r.records, rec)
	r.demoteOthers(rec.ID)
	r.version++
	return rec.ID
}

// Minimize hides one session.
func (r *Registry) Minimize(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec := r.find(id); rec != nil && rec.Window != Minimized {
		rec.Window = Minimized
		r.version++
	}
}

// MinimizeAll hides every session.
func (r *Registry) MinimizeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.demoteOthers("")
	r.version++
}

// Restore docks id and minimizes the others.
func (r *Registry) Restore(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.find(id)
	if rec == nil {
		return
	}
	rec.Window = Docked
	r.demoteOthers(id)
	r.version++
}

// ToggleFullscreen flips id between fullscreen and docked and minimizes the
// others. A minimized session goes straight to fullscreen.
func (r *Registry) ToggleFullscreen(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.find(id)
	if rec == nil {
		return
	}
	if rec.Window == Fullscreen {
		rec.Window = Docked
	} else {
		rec.Window = Fullscreen
	}
	r.demoteOthers(id)
	r.version++
}

// Close removes id. Closing twice, or closing an id that never existed, is a
// no-op.
func (r *Registry) Close(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, rec := range r.records {
		if rec.ID == id {
			r.records = append(r.records[:i:i], r.records[i+1:]...)
			r.version++
			return
		}
	}
}

// SetConnectionStatus records a status reported by the session's client.
// Regressions (e.g. connected after disconnected) are ignored.
func (r *Registry) SetConnectionStatus(id string, status ConnectionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.find(id)
	if rec == nil || rec.Status == status || !rec.Status.Follows(status) {
		return
	}
	rec.Status = status
	r.version++
}

// TakePassword hands out the session's password exactly once and forgets it.
func (r *Registry) TakePassword(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.find(id)
	if rec == nil || rec.taken {
		return "", false
	}
	pw := rec.password
	rec.password = ""
	rec.taken = true
	return pw, true
}

// Get returns a copy of one session.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec := r.find(id); rec != nil {
		return rec.Session, true
	}
	return Session{}, false
}

// List returns copies of all sessions in open order.
func (r *Registry) List() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.Session)
	}
	return out
}

// Version increases on every mutation. Callers compare versions to skip
// redundant reconciliation.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// demoteOthers minimizes every session except keep. It is the only place
// where one session's transition touches another's window state.
func (r *Registry) demoteOthers(keep string) {
	for _, rec := range r.records {
		if rec.ID != keep {
			rec.Window = Minimized
		}
	}
}

func (r *Registry) find(id string) *record {
	for _, rec := range r.records {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}

// Visible returns the one session whose window is not minimized.
func Visible(sessions []Session) (Session, bool) {
	for _, s := range sessions {
		if s.Window.Visible() {
			return s, true
		}
	}
	return Session{}, false
}

// Counts tallies sessions by connection status.
func Counts(sessions []Session) map[ConnectionStatus]int {
	out := make(map[ConnectionStatus]int, len(statusNames))
	for _, s := range sessions {
		out[s.Status]++
	}
	return out
}
