// Package tags owns the tag taxonomy: stable identifiers, display-value
// indirection, parent/child indices and cascade removal.
//
// A Store is the in-memory taxonomy of record for one storage target. Every
// mutation serializes a full snapshot to the docstore before returning;
// a failed snapshot write is logged and the in-memory mutation is kept
// (accepted best-effort semantics). Keep at most one live Store per snapshot
// key or the caches diverge.
package tags

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"moneta/internal/core"
	"moneta/internal/docstore"
)

// Snapshot keys. A test-scoped store uses its own key so production and test
// taxonomies never share a document.
const (
	SnapshotKey     = "TagManager"
	TestSnapshotKey = "TagManagerTest"
)

type Store struct {
	store       docstore.Store
	snapshotKey string

	children map[core.TagID]map[core.TagID]struct{} // parent id -> child ids
	parentOf map[core.TagID]core.TagID              // child id -> parent id
	display  map[core.TagID]string                  // id -> current display value
}

type snapshot struct {
	Tags []snapshotTag `json:"tags"`
}

type snapshotTag struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`
	Display  string `json:"display"`
}

// Open loads the taxonomy snapshot stored under key, starting empty when no
// snapshot exists yet.
func Open(ctx context.Context, store docstore.Store, key string) (*Store, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: empty snapshot key", core.ErrInvalidArgument)
	}

	s := &Store{
		store:       store,
		snapshotKey: key,
		children:    make(map[core.TagID]map[core.TagID]struct{}),
		parentOf:    make(map[core.TagID]core.TagID),
		display:     make(map[core.TagID]string),
	}

	doc, err := store.Get(ctx, docstore.CollectionTaxonomy, key)
	if errors.Is(err, docstore.ErrNotFound) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load taxonomy snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal([]byte(doc.String("snapshot")), &snap); err != nil {
		return nil, fmt.Errorf("decode taxonomy snapshot %q: %w", key, errors.Join(core.ErrStorage, err))
	}
	if err := s.restore(snap); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) restore(snap snapshot) error {
	// Parents first so child parent references can be checked.
	for _, t := range snap.Tags {
		if t.ParentID != "" {
			continue
		}
		id := core.TagID(t.ID)
		s.children[id] = make(map[core.TagID]struct{})
		s.display[id] = t.Display
	}
	for _, t := range snap.Tags {
		if t.ParentID == "" {
			continue
		}
		id, parent := core.TagID(t.ID), core.TagID(t.ParentID)
		set, ok := s.children[parent]
		if !ok {
			return fmt.Errorf("%w: snapshot child %q references missing parent %q", core.ErrStorage, t.ID, t.ParentID)
		}
		set[id] = struct{}{}
		s.parentOf[id] = parent
		s.display[id] = t.Display
	}
	return nil
}

// AddParentTag mints a new top-level tag.
func (s *Store) AddParentTag(ctx context.Context, display string) (core.Tag, error) {
	display = strings.TrimSpace(display)
	if display == "" {
		return core.Tag{}, fmt.Errorf("%w: empty tag display value", core.ErrInvalidArgument)
	}
	if _, exists := s.resolveParent(display); exists {
		return core.Tag{}, fmt.Errorf("%w: parent tag %q already exists", core.ErrDuplicateTag, display)
	}

	id := core.NewTagID()
	s.children[id] = make(map[core.TagID]struct{})
	s.display[id] = display

	s.persistSnapshot(ctx)
	slog.InfoContext(ctx, "Parent tag added", "tag_id", id, "display", display)
	return s.tagValue(id), nil
}

// AddChildTag mints a new tag under the parent identified by parentDisplay.
func (s *Store) AddChildTag(ctx context.Context, display, parentDisplay string) (core.Tag, error) {
	display = strings.TrimSpace(display)
	if display == "" {
		return core.Tag{}, fmt.Errorf("%w: empty tag display value", core.ErrInvalidArgument)
	}
	parentID, ok := s.resolveParent(parentDisplay)
	if !ok {
		return core.Tag{}, fmt.Errorf("%w: parent tag %q does not exist", core.ErrInvalidTag, parentDisplay)
	}
	if _, exists := s.resolveChild(parentID, display); exists {
		return core.Tag{}, fmt.Errorf("%w: child tag %q already exists under %q", core.ErrDuplicateTag, display, parentDisplay)
	}

	id := core.NewTagID()
	s.children[parentID][id] = struct{}{}
	s.parentOf[id] = parentID
	s.display[id] = display

	s.persistSnapshot(ctx)
	slog.InfoContext(ctx, "Child tag added", "tag_id", id, "display", display, "parent", parentDisplay)
	return s.tagValue(id), nil
}

// RenameParentTag changes a parent tag's display value in place. The id, and
// with it every reference held by a transaction, is untouched.
func (s *Store) RenameParentTag(ctx context.Context, oldDisplay, newDisplay string) (core.Tag, error) {
	newDisplay = strings.TrimSpace(newDisplay)
	if newDisplay == "" {
		return core.Tag{}, fmt.Errorf("%w: empty tag display value", core.ErrInvalidArgument)
	}
	id, ok := s.resolveParent(oldDisplay)
	if !ok {
		return core.Tag{}, fmt.Errorf("%w: parent tag %q does not exist", core.ErrInvalidTag, oldDisplay)
	}
	if other, exists := s.resolveParent(newDisplay); exists && other != id {
		return core.Tag{}, fmt.Errorf("%w: parent tag %q already exists", core.ErrDuplicateTag, newDisplay)
	}

	s.display[id] = newDisplay
	s.persistSnapshot(ctx)
	slog.InfoContext(ctx, "Parent tag renamed", "tag_id", id, "old", oldDisplay, "new", newDisplay)
	return s.tagValue(id), nil
}

// RenameChildTag changes a child tag's display value within its parent scope.
func (s *Store) RenameChildTag(ctx context.Context, oldDisplay, newDisplay, parentDisplay string) (core.Tag, error) {
	newDisplay = strings.TrimSpace(newDisplay)
	if newDisplay == "" {
		return core.Tag{}, fmt.Errorf("%w: empty tag display value", core.ErrInvalidArgument)
	}
	parentID, ok := s.resolveParent(parentDisplay)
	if !ok {
		return core.Tag{}, fmt.Errorf("%w: parent tag %q does not exist", core.ErrInvalidTag, parentDisplay)
	}
	id, ok := s.resolveChild(parentID, oldDisplay)
	if !ok {
		return core.Tag{}, fmt.Errorf("%w: child tag %q does not exist under %q", core.ErrInvalidTag, oldDisplay, parentDisplay)
	}
	if other, exists := s.resolveChild(parentID, newDisplay); exists && other != id {
		return core.Tag{}, fmt.Errorf("%w: child tag %q already exists under %q", core.ErrDuplicateTag, newDisplay, parentDisplay)
	}

	s.display[id] = newDisplay
	s.persistSnapshot(ctx)
	slog.InfoContext(ctx, "Child tag renamed", "tag_id", id, "old", oldDisplay, "new", newDisplay, "parent", parentDisplay)
	return s.tagValue(id), nil
}

// RemoveChildTag removes one child tag and returns it so the caller can strip
// its id from referencing transactions.
func (s *Store) RemoveChildTag(ctx context.Context, display, parentDisplay string) (core.Tag, error) {
	parentID, ok := s.resolveParent(parentDisplay)
	if !ok {
		return core.Tag{}, fmt.Errorf("%w: parent tag %q does not exist", core.ErrInvalidTag, parentDisplay)
	}
	id, ok := s.resolveChild(parentID, display)
	if !ok {
		return core.Tag{}, fmt.Errorf("%w: child tag %q does not exist under %q", core.ErrInvalidTag, display, parentDisplay)
	}

	removed := s.tagValue(id)
	delete(s.children[parentID], id)
	delete(s.parentOf, id)
	delete(s.display, id)

	s.persistSnapshot(ctx)
	slog.InfoContext(ctx, "Child tag removed", "tag_id", id, "display", display, "parent", parentDisplay)
	return removed, nil
}

// RemoveParentTag removes a parent tag and every one of its children,
// children first. It returns all removed tags (children sorted by display,
// parent last) so the caller knows every id to strip.
func (s *Store) RemoveParentTag(ctx context.Context, display string) ([]core.Tag, error) {
	id, ok := s.resolveParent(display)
	if !ok {
		return nil, fmt.Errorf("%w: parent tag %q does not exist", core.ErrInvalidTag, display)
	}

	removed := make([]core.Tag, 0, len(s.children[id])+1)
	for childID := range s.children[id] {
		removed = append(removed, s.tagValue(childID))
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].Display < removed[j].Display })

	for _, child := range removed {
		delete(s.parentOf, child.ID)
		delete(s.display, child.ID)
	}
	removed = append(removed, s.tagValue(id))
	delete(s.children, id)
	delete(s.display, id)

	s.persistSnapshot(ctx)
	slog.InfoContext(ctx, "Parent tag removed with children",
		"tag_id", id, "display", display, "removed_count", len(removed))
	return removed, nil
}

// AllTags returns every tag in the natural tag ordering.
func (s *Store) AllTags() []core.Tag {
	out := make([]core.Tag, 0, len(s.display))
	for id := range s.display {
		out = append(out, s.tagValue(id))
	}
	s.sortTags(out)
	return out
}

// AllParentTags returns the parent tags sorted by display value.
func (s *Store) AllParentTags() []core.Tag {
	out := make([]core.Tag, 0, len(s.children))
	for id := range s.children {
		out = append(out, s.tagValue(id))
	}
	s.sortTags(out)
	return out
}

// ChildrenTags returns the children of a parent sorted by display value.
func (s *Store) ChildrenTags(parentDisplay string) ([]core.Tag, error) {
	parentID, ok := s.resolveParent(parentDisplay)
	if !ok {
		return nil, fmt.Errorf("%w: parent tag %q does not exist", core.ErrInvalidTag, parentDisplay)
	}
	out := make([]core.Tag, 0, len(s.children[parentID]))
	for id := range s.children[parentID] {
		out = append(out, s.tagValue(id))
	}
	s.sortTags(out)
	return out, nil
}

// IsChildTag reports whether display names an existing child of parentDisplay.
func (s *Store) IsChildTag(display, parentDisplay string) bool {
	parentID, ok := s.resolveParent(parentDisplay)
	if !ok {
		return false
	}
	_, ok = s.resolveChild(parentID, display)
	return ok
}

// TagByID resolves an id to its current snapshot value.
func (s *Store) TagByID(id core.TagID) (core.Tag, bool) {
	if _, ok := s.display[id]; !ok {
		return core.Tag{}, false
	}
	return s.tagValue(id), true
}

// DisplayValue resolves an id to its current display value.
func (s *Store) DisplayValue(id core.TagID) (string, bool) {
	d, ok := s.display[id]
	return d, ok
}

// Less is the natural tag ordering: own display value first; on a tie a
// parent orders before a child, and two children fall back to their parents'
// display values.
func (s *Store) Less(a, b core.Tag) bool {
	da, db := s.currentDisplay(a), s.currentDisplay(b)
	if da != db {
		return da < db
	}
	aChild, bChild := a.ParentID != "", b.ParentID != ""
	if aChild != bChild {
		return !aChild // parent first
	}
	if aChild && bChild {
		pa, _ := s.display[a.ParentID]
		pb, _ := s.display[b.ParentID]
		return pa < pb
	}
	return a.ID < b.ID
}

// PersistSnapshot re-serializes the taxonomy, surfacing the error. Mutating
// calls use the logged best-effort path instead; this is for repair passes.
func (s *Store) PersistSnapshot(ctx context.Context) error {
	snap := s.buildSnapshot()
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode taxonomy snapshot: %w", errors.Join(core.ErrStorage, err))
	}
	doc := docstore.Document{"snapshot": string(body)}
	if err := s.store.Save(ctx, docstore.CollectionTaxonomy, s.snapshotKey, doc); err != nil {
		return fmt.Errorf("save taxonomy snapshot %q: %w", s.snapshotKey, err)
	}
	return nil
}

func (s *Store) persistSnapshot(ctx context.Context) {
	if err := s.PersistSnapshot(ctx); err != nil {
		// In-memory state stays authoritative; the next successful mutation
		// or a repair pass rewrites the full snapshot.
		slog.ErrorContext(ctx, "Taxonomy snapshot persist failed",
			"key", s.snapshotKey, "error", err)
	}
}

func (s *Store) buildSnapshot() snapshot {
	snap := snapshot{Tags: make([]snapshotTag, 0, len(s.display))}
	for id, display := range s.display {
		snap.Tags = append(snap.Tags, snapshotTag{
			ID:       string(id),
			ParentID: string(s.parentOf[id]),
			Display:  display,
		})
	}
	// Deterministic snapshot bodies make storage diffs readable.
	sort.Slice(snap.Tags, func(i, j int) bool { return snap.Tags[i].ID < snap.Tags[j].ID })
	return snap
}

func (s *Store) tagValue(id core.TagID) core.Tag {
	return core.Tag{ID: id, ParentID: s.parentOf[id], Display: s.display[id]}
}

func (s *Store) currentDisplay(t core.Tag) string {
	if d, ok := s.display[t.ID]; ok {
		return d
	}
	return t.Display
}

func (s *Store) resolveParent(display string) (core.TagID, bool) {
	display = strings.TrimSpace(display)
	for id := range s.children {
		if s.display[id] == display {
			return id, true
		}
	}
	return "", false
}

func (s *Store) resolveChild(parentID core.TagID, display string) (core.TagID, bool) {
	display = strings.TrimSpace(display)
	for id := range s.children[parentID] {
		if s.display[id] == display {
			return id, true
		}
	}
	return "", false
}

func (s *Store) sortTags(tags []core.Tag) {
	sort.Slice(tags, func(i, j int) bool { return s.Less(tags[i], tags[j]) })
}
