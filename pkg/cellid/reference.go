package cellid

import (
	"errors"
	"fmt"
	"regexp"
	"sync"
)

// Separator joins a value name and the cell id or tag it is read from
const Separator = "$"

var (
	// ErrUnknownReference is returned when no cell owns an id or tag
	ErrUnknownReference = errors.New("unknown cell reference")
	// ErrTagTaken is returned when a tag is already bound to another cell
	ErrTagTaken = errors.New("tag already bound to another cell")
	// ErrTagShadowsID is returned when a tag would collide with an existing cell id
	ErrTagShadowsID = errors.New("tag collides with a cell id")
)

var referencePattern = regexp.MustCompile(`(\w+)\$(\w+)`)

// Reference is a value name qualified by the cell (id or tag) that exports it.
// In cell source it is written name$target.
type Reference struct {
	Name   string `json:"name"`
	Target string `json:"target"`
}

func (r Reference) String() string {
	return r.Name + Separator + r.Target
}

// IsID reports whether the reference target is a canonical cell id rather than a tag
func (r Reference) IsID() bool {
	return Valid(r.Target)
}

// ParseReferences finds every name$target reference in a cell's source text,
// in the order they appear.
func ParseReferences(source string) []Reference {
	matches := referencePattern.FindAllStringSubmatch(source, -1)
	refs := make([]Reference, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, Reference{Name: m[1], Target: m[2]})
	}
	return refs
}

// Tags maps user-assigned symbolic tags to the cells that own them.
// Tags and ids share one namespace, so every reference resolves to at most one cell.
type Tags struct {
	mu    sync.RWMutex
	byTag map[string]ID
	byID  map[ID]string
	known func(ID) bool
}

// NewTags creates a tag table. known reports whether an id names a live cell;
// it may be nil when the caller has no cell registry.
func NewTags(known func(ID) bool) *Tags {
	return &Tags{
		byTag: make(map[string]ID),
		byID:  make(map[ID]string),
		known: known,
	}
}

// Bind assigns tag to id, replacing any previous tag of that cell
func (t *Tags) Bind(tag string, id ID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if owner, ok := t.byTag[tag]; ok && owner != id {
		return fmt.Errorf("bind %q to %s: %w (owner %s)", tag, id, ErrTagTaken, owner)
	}
	if Valid(tag) && ID(tag) != id && t.known != nil && t.known(ID(tag)) {
		return fmt.Errorf("bind %q to %s: %w", tag, id, ErrTagShadowsID)
	}

	if old, ok := t.byID[id]; ok {
		delete(t.byTag, old)
	}
	t.byTag[tag] = id
	t.byID[id] = tag
	return nil
}

// Unbind removes whatever tag id carries
func (t *Tags) Unbind(id ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tag, ok := t.byID[id]; ok {
		delete(t.byTag, tag)
		delete(t.byID, id)
	}
}

// Tag returns the tag bound to id, if any
func (t *Tags) Tag(id ID) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tag, ok := t.byID[id]
	return tag, ok
}

// Resolve turns an id or tag into the owning cell id
func (t *Tags) Resolve(ref string) (ID, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if id, ok := t.byTag[ref]; ok {
		return id, nil
	}
	if Valid(ref) && (t.known == nil || t.known(ID(ref))) {
		return ID(ref), nil
	}
	return "", fmt.Errorf("resolve %q: %w", ref, ErrUnknownReference)
}
