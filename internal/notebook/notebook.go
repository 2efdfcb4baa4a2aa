// Package notebook holds the in-memory document the rest of the
// application operates on. A Notebook is shared between the HTTP layer
// and the persistence handlers, so all state lives behind a mutex.
package notebook

import "sync"

// User identifies the authenticated account as reported by the identity
// provider.
type User struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

// Session carries the OAuth2 access token and the resolved user for the
// lifetime of an authentication.
type Session struct {
	Token string
	User  *User
}

// Notebook is the single mutable document. The zero value is not usable;
// construct with New.
type Notebook struct {
	mu       sync.RWMutex
	id       string
	ownerID  int64
	contents string
	dirty    bool
	session  *Session
}

// New creates an empty, unsaved notebook
func New() *Notebook {
	return &Notebook{}
}

// ID returns the remote document id, empty for an unsaved notebook
func (n *Notebook) ID() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.id
}

// OwnerID returns the id of the user owning the remote document
func (n *Notebook) OwnerID() int64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.ownerID
}

// Contents returns the current document text
func (n *Notebook) Contents() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.contents
}

// Dirty reports whether the contents changed since the last save or load
func (n *Notebook) Dirty() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.dirty
}

// SetContents replaces the document text and marks the notebook dirty
func (n *Notebook) SetContents(contents string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.contents = contents
	n.dirty = true
}

// Open points the notebook at a document id and clears local state so a
// subsequent load starts fresh. The session survives.
func (n *Notebook) Open(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.id = id
	n.ownerID = 0
	n.contents = ""
	n.dirty = false
}

// Load replaces the notebook with freshly fetched document state
func (n *Notebook) Load(id string, ownerID int64, contents string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.id = id
	n.ownerID = ownerID
	n.contents = contents
	n.dirty = false
}

// MarkSaved records the remote identity a save produced and clears the
// dirty flag. Creating a new document assigns the id here.
func (n *Notebook) MarkSaved(id string, ownerID int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.id = id
	n.ownerID = ownerID
	n.dirty = false
}

// MarkClean clears the dirty flag without touching identity. Used when a
// save lands somewhere that does not assign document ids.
func (n *Notebook) MarkClean() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dirty = false
}

// SetSession installs the authenticated session, nil to sign out
func (n *Notebook) SetSession(session *Session) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.session = session
}

// Session returns the current session, nil when unauthenticated
func (n *Notebook) Session() *Session {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.session
}

// Authenticated reports whether a usable access token is present
func (n *Notebook) Authenticated() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.session != nil && n.session.Token != ""
}

// User returns the authenticated user, nil when unauthenticated
func (n *Notebook) User() *User {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.session == nil {
		return nil
	}
	return n.session.User
}

// Token returns the access token, empty when unauthenticated
func (n *Notebook) Token() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.session == nil {
		return ""
	}
	return n.session.Token
}

// View is a point-in-time JSON projection of the notebook for API
// responses.
type View struct {
	ID            string `json:"id,omitempty"`
	OwnerID       int64  `json:"owner_id,omitempty"`
	Contents      string `json:"contents"`
	Dirty         bool   `json:"dirty"`
	Authenticated bool   `json:"authenticated"`
	User          *User  `json:"user,omitempty"`
}

// View captures the notebook state under a single lock acquisition
func (n *Notebook) View() View {
	n.mu.RLock()
	defer n.mu.RUnlock()

	v := View{
		ID:       n.id,
		OwnerID:  n.ownerID,
		Contents: n.contents,
		Dirty:    n.dirty,
	}
	if n.session != nil && n.session.Token != "" {
		v.Authenticated = true
		v.User = n.session.User
	}
	return v
}
