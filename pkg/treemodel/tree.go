// Package treemodel holds the in-memory, derived bookmark graph for one
// namespace: nodes keyed by id, parent/child relationships encoded by id
// only (never back-pointers), and fractional-index ordering. The tree is
// rebuilt at any time by replaying the operation log; treemodel itself
// never touches storage or the log.
package treemodel

import (
	"sort"
	"time"

	"github.com/cuemby/bkmsync/pkg/errs"
	"github.com/cuemby/bkmsync/pkg/types"
)

// Tree is one namespace's materialized node graph.
type Tree struct {
	Namespace string
	RootID    string
	nodes     map[string]*types.Node
}

// New creates an empty tree for namespace with a freshly created root
// folder. NewEmpty leaves the tree without a root; only a hydrate_node
// for the root can supply one there.
func New(namespace, rootID string, now time.Time) *Tree {
	t := NewEmpty(namespace)
	t.RootID = rootID
	t.nodes[rootID] = &types.Node{
		ID:        rootID,
		Namespace: namespace,
		Kind:      types.KindFolder,
		ParentID:  "",
		Title:     "root",
		IsOpen:    true,
		IsLoaded:  true,
		OrderKey:  firstKey,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return t
}

// NewEmpty creates a tree with no nodes at all, for replay from scratch.
func NewEmpty(namespace string) *Tree {
	return &Tree{Namespace: namespace, nodes: make(map[string]*types.Node)}
}

// RequireNode returns the live node for id, or ErrNodeMissing.
func (t *Tree) RequireNode(id string) (*types.Node, error) {
	n, ok := t.nodes[id]
	if !ok {
		return nil, errs.Wrap(errs.ErrNodeMissing, id)
	}
	return n, nil
}

// Get returns a snapshot copy of the node, or nil if absent.
func (t *Tree) Get(id string) *types.Node {
	n, ok := t.nodes[id]
	if !ok {
		return nil
	}
	return n.Clone()
}

// Put inserts or replaces a node record directly, without touching any
// parent's Children slice. Used by replay/hydration paths that rebuild
// Children separately; ordinary mutations go through Insert/Detach/Move.
func (t *Tree) Put(n *types.Node) {
	t.nodes[n.ID] = n
}

// Delete removes a node record directly, without touching any parent's
// Children slice.
func (t *Tree) Delete(id string) {
	delete(t.nodes, id)
}

// Exists reports whether id is present in the tree.
func (t *Tree) Exists(id string) bool {
	_, ok := t.nodes[id]
	return ok
}

// ListChildren returns folderID's children sorted by (OrderKey, ID), as
// snapshot copies.
func (t *Tree) ListChildren(folderID string) ([]*types.Node, error) {
	folder, err := t.RequireNode(folderID)
	if err != nil {
		return nil, err
	}
	if folder.Kind != types.KindFolder {
		return nil, errs.Wrap(errs.ErrNotAFolder, folderID)
	}
	out := make([]*types.Node, 0, len(folder.Children))
	for _, id := range folder.Children {
		if n, ok := t.nodes[id]; ok {
			out = append(out, n.Clone())
		}
	}
	sortByOrder(out)
	return out, nil
}

func sortByOrder(nodes []*types.Node) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].OrderKey != nodes[j].OrderKey {
			return nodes[i].OrderKey < nodes[j].OrderKey
		}
		return nodes[i].ID < nodes[j].ID
	})
}

// neighborsAt returns the order keys immediately left and right of the
// requested index within folder's current children, ignoring the
// optionally-excluded id (used by Move/Reorder so a node doesn't see
// itself as its own neighbor).
func (t *Tree) neighborsAt(folderID string, index *int, exclude string) (left, right *string, err error) {
	children, err := t.ListChildren(folderID)
	if err != nil {
		return nil, nil, err
	}
	filtered := children[:0:0]
	for _, c := range children {
		if c.ID == exclude {
			continue
		}
		filtered = append(filtered, c)
	}

	pos := len(filtered)
	if index != nil {
		pos = *index
		if pos < 0 {
			pos = 0
		}
		if pos > len(filtered) {
			pos = len(filtered)
		}
	}
	if pos > 0 {
		k := filtered[pos-1].OrderKey
		left = &k
	}
	if pos < len(filtered) {
		k := filtered[pos].OrderKey
		right = &k
	}
	return left, right, nil
}

// Insert places a new node (already constructed by the caller) as a
// child of parent at the given index (nil appends), choosing an order
// key between its new neighbors, and returns it.
func (t *Tree) Insert(parentID string, node *types.Node, index *int, now time.Time) (*types.Node, error) {
	parent, err := t.RequireNode(parentID)
	if err != nil {
		return nil, err
	}
	if parent.Kind != types.KindFolder {
		return nil, errs.Wrap(errs.ErrNotAFolder, parentID)
	}
	if _, exists := t.nodes[node.ID]; exists {
		return nil, errs.Wrap(errs.ErrDuplicateID, node.ID)
	}

	left, right, err := t.neighborsAt(parentID, index, "")
	if err != nil {
		return nil, err
	}
	node.ParentID = parentID
	node.OrderKey = KeyBetween(left, right)
	node.CreatedAt = now
	node.UpdatedAt = now
	t.nodes[node.ID] = node

	pos := len(parent.Children)
	if index != nil {
		pos = *index
		if pos < 0 {
			pos = 0
		}
		if pos > len(parent.Children) {
			pos = len(parent.Children)
		}
	}
	parent.Children = insertAt(parent.Children, pos, node.ID)
	parent.UpdatedAt = now
	return node, nil
}

func insertAt(ids []string, pos int, id string) []string {
	ids = append(ids, "")
	copy(ids[pos+1:], ids[pos:])
	ids[pos] = id
	return ids
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}

// Detach removes nodeID from its parent's Children, without deleting the
// node record itself — used mid-way through remove_node and move_node.
func (t *Tree) Detach(nodeID string) error {
	node, err := t.RequireNode(nodeID)
	if err != nil {
		return err
	}
	if node.ParentID == "" {
		return nil // root, or already detached
	}
	parent, err := t.RequireNode(node.ParentID)
	if err != nil {
		return err
	}
	parent.Children = removeID(parent.Children, nodeID)
	return nil
}

// IsDescendant reports whether candidate is nodeID itself or a
// transitive child of nodeID.
func (t *Tree) IsDescendant(nodeID, candidate string) bool {
	if nodeID == candidate {
		return true
	}
	node, ok := t.nodes[nodeID]
	if !ok {
		return false
	}
	for _, childID := range node.Children {
		if t.IsDescendant(childID, candidate) {
			return true
		}
	}
	return false
}

// Move detaches nodeID and reinserts it under toFolderID at index,
// rejecting moves that would create a cycle.
func (t *Tree) Move(nodeID, toFolderID string, index *int, now time.Time) error {
	node, err := t.RequireNode(nodeID)
	if err != nil {
		return err
	}
	if _, err := t.RequireNode(toFolderID); err != nil {
		return err
	}
	if t.IsDescendant(nodeID, toFolderID) {
		return errs.Wrap(errs.ErrCycleForbidden, nodeID+" -> "+toFolderID)
	}

	left, right, err := t.neighborsAt(toFolderID, index, nodeID)
	if err != nil {
		return err
	}

	if err := t.Detach(nodeID); err != nil {
		return err
	}
	toFolder, err := t.RequireNode(toFolderID)
	if err != nil {
		return err
	}
	node.ParentID = toFolderID
	node.OrderKey = KeyBetween(left, right)
	node.UpdatedAt = now

	pos := len(toFolder.Children)
	if index != nil {
		pos = *index
		if pos < 0 {
			pos = 0
		}
		if pos > len(toFolder.Children) {
			pos = len(toFolder.Children)
		}
	}
	toFolder.Children = insertAt(toFolder.Children, pos, nodeID)
	toFolder.UpdatedAt = now
	return nil
}

// Update mutates an existing node's presentation fields (title, url,
// isOpen) in place. If parentID is non-empty and differs from the
// node's current parent, it relocates the node there first via Move so
// the parent/children bookkeeping stays consistent; an empty parentID
// leaves the node where it is. Used by *_updated events, which carry
// the same fields as *_created but target a node that already exists.
func (t *Tree) Update(id, parentID, title, url string, isOpen *bool, now time.Time) (*types.Node, error) {
	node, err := t.RequireNode(id)
	if err != nil {
		return nil, err
	}
	if parentID != "" && parentID != node.ParentID {
		if err := t.Move(id, parentID, nil, now); err != nil {
			return nil, err
		}
	}
	node.Title = title
	if node.Kind == types.KindBookmark {
		node.URL = url
	}
	if isOpen != nil && node.Kind == types.KindFolder {
		node.IsOpen = *isOpen
	}
	node.UpdatedAt = now
	return node.Clone(), nil
}

// Reorder moves folderID's child currently at fromIndex to toIndex among
// its siblings, recomputing only that child's order key.
func (t *Tree) Reorder(folderID string, fromIndex, toIndex int, now time.Time) error {
	children, err := t.ListChildren(folderID)
	if err != nil {
		return err
	}
	if fromIndex < 0 || fromIndex >= len(children) {
		return errs.Wrap(errs.ErrBadArgument, "fromIndex out of range")
	}
	moving := children[fromIndex]
	target := toIndex
	if target < 0 {
		target = 0
	}
	if target > len(children)-1 {
		target = len(children) - 1
	}
	return t.Move(moving.ID, folderID, &target, now)
}

// ToggleOpen sets folderID's IsOpen flag to open (or flips it if open is
// nil) and returns the resulting value.
func (t *Tree) ToggleOpen(folderID string, open *bool, now time.Time) (bool, error) {
	folder, err := t.RequireNode(folderID)
	if err != nil {
		return false, err
	}
	if folder.Kind != types.KindFolder {
		return false, errs.Wrap(errs.ErrNotAFolder, folderID)
	}
	if open != nil {
		folder.IsOpen = *open
	} else {
		folder.IsOpen = !folder.IsOpen
	}
	folder.UpdatedAt = now
	return folder.IsOpen, nil
}

// MarkLoaded sets folderID's IsLoaded flag to true.
func (t *Tree) MarkLoaded(folderID string, now time.Time) error {
	folder, err := t.RequireNode(folderID)
	if err != nil {
		return err
	}
	if folder.Kind != types.KindFolder {
		return errs.Wrap(errs.ErrNotAFolder, folderID)
	}
	folder.IsLoaded = true
	folder.UpdatedAt = now
	return nil
}

// RemoveSubtree deletes nodeID and, recursively, all of its descendants.
// The root folder (ParentID == "") can never be removed. Returns the ids
// removed, deepest-first, so callers can mirror the deletion in storage.
func (t *Tree) RemoveSubtree(nodeID string) ([]string, error) {
	node, err := t.RequireNode(nodeID)
	if err != nil {
		return nil, err
	}
	if node.IsRoot() {
		return nil, errs.Wrap(errs.ErrBadArgument, "cannot remove root")
	}
	if err := t.Detach(nodeID); err != nil {
		return nil, err
	}

	var removed []string
	var walk func(id string)
	walk = func(id string) {
		n, ok := t.nodes[id]
		if !ok {
			return
		}
		for _, childID := range append([]string(nil), n.Children...) {
			walk(childID)
		}
		removed = append(removed, id)
		delete(t.nodes, id)
	}
	walk(nodeID)
	return removed, nil
}

// HydrateSubtree replaces root and its descendants wholesale with the
// authoritative data supplied, superseding whatever was there before.
// Existing descendants of root not present in the new data are dropped.
func (t *Tree) HydrateSubtree(root *types.Node, children []*types.Node) error {
	existing, ok := t.nodes[root.ID]
	if ok {
		for _, old := range t.collectDescendants(existing) {
			delete(t.nodes, old)
		}
	}
	t.nodes[root.ID] = root.Clone()
	for _, c := range children {
		t.nodes[c.ID] = c.Clone()
	}
	if root.IsRoot() {
		t.RootID = root.ID
	}
	return nil
}

func (t *Tree) collectDescendants(n *types.Node) []string {
	var out []string
	for _, childID := range n.Children {
		if child, ok := t.nodes[childID]; ok {
			out = append(out, t.collectDescendants(child)...)
		}
		out = append(out, childID)
	}
	return out
}

// RootsOf returns the direct children of the root folder, sorted.
func (t *Tree) RootsOf() ([]*types.Node, error) {
	return t.ListChildren(t.RootID)
}

// Size returns the number of nodes currently materialized.
func (t *Tree) Size() int { return len(t.nodes) }
