// Package oplog implements the Operation Log & Replayer: the canonical,
// append-only record of tree mutations, and the dispatch table that
// applies each operation kind to a treemodel.Tree. Dispatch is the
// single-writer entry point for locally authored mutations; ApplyRemote
// is idempotent by envelope id and used for inbound ones, and Replay
// rebuilds a tree from stored envelopes.
package oplog

import (
	"time"

	"github.com/cuemby/bkmsync/pkg/errs"
	"github.com/cuemby/bkmsync/pkg/treemodel"
	"github.com/cuemby/bkmsync/pkg/types"
	"github.com/google/uuid"
)

// Log holds every envelope dispatched or applied so far, plus the id
// index that makes applyRemote idempotent. It does not persist itself;
// callers append to a storage.Store alongside calling Log.record.
type Log struct {
	envelopes []*types.Envelope
	seen      map[string]bool
}

func New() *Log {
	return &Log{seen: make(map[string]bool)}
}

// NewFromEnvelopes rebuilds a Log's bookkeeping from a set of envelopes
// already loaded from storage, without re-applying them to any tree.
func NewFromEnvelopes(envelopes []*types.Envelope) *Log {
	l := New()
	for _, e := range envelopes {
		l.envelopes = append(l.envelopes, e)
		l.seen[e.ID] = true
	}
	return l
}

// All returns every envelope recorded so far, ordered by Ts.
func (l *Log) All() []*types.Envelope {
	out := make([]*types.Envelope, len(l.envelopes))
	copy(out, l.envelopes)
	return out
}

// Dispatch stamps op with a fresh id and the current time, applies it
// to tree, records it, and returns the resulting envelope. This is the
// only path that generates ids — ApplyRemote and Replay never do.
func Dispatch(l *Log, tree *treemodel.Tree, op types.Operation, now time.Time) (*types.Envelope, error) {
	envelope := &types.Envelope{
		ID:        uuid.NewString(),
		Namespace: op.Namespace,
		Ts:        now,
		Op:        op,
		Processed: false,
		Remote:    false,
	}
	if err := apply(tree, op, now); err != nil {
		return nil, err
	}
	l.record(envelope)
	return envelope, nil
}

// ApplyRemote applies an already-stamped envelope. A duplicate id is a
// no-op: re-delivery of the same envelope must never double-apply.
func ApplyRemote(l *Log, tree *treemodel.Tree, envelope *types.Envelope, now time.Time) error {
	if l.seen[envelope.ID] {
		return nil
	}
	if err := apply(tree, envelope.Op, now); err != nil {
		return err
	}
	l.record(envelope)
	return nil
}

func (l *Log) record(envelope *types.Envelope) {
	l.envelopes = append(l.envelopes, envelope)
	l.seen[envelope.ID] = true
}

// Replay rebuilds a tree that starts with only the root folder (rootID)
// by applying every envelope in Ts order.
// hydrate_node envelopes are applied like any other operation — their
// truncation semantics (wholesale subtree replacement) live in
// treemodel.HydrateSubtree, so later operations touching superseded
// nodes simply find those nodes absent and fail or re-create them,
// exactly as they would against a live tree.
func Replay(envelopes []*types.Envelope, namespace, rootID string) (*treemodel.Tree, *Log, error) {
	sorted := make([]*types.Envelope, len(envelopes))
	copy(sorted, envelopes)
	sortByTs(sorted)

	tree := treemodel.New(namespace, rootID, time.Time{})
	l := New()
	for _, e := range sorted {
		if e.Namespace != namespace {
			continue
		}
		if err := apply(tree, e.Op, e.Ts); err != nil {
			// Superseded/missing targets are expected after a hydration
			// truncates a subtree; skip rather than abort the replay.
			if errs.IsValidation(err) {
				l.record(e)
				continue
			}
			return nil, nil, err
		}
		l.record(e)
	}
	if tree.RootID == "" {
		tree.RootID = rootID
	}
	return tree, l, nil
}

func sortByTs(envelopes []*types.Envelope) {
	for i := 1; i < len(envelopes); i++ {
		for j := i; j > 0 && envelopes[j].Ts.Before(envelopes[j-1].Ts); j-- {
			envelopes[j], envelopes[j-1] = envelopes[j-1], envelopes[j]
		}
	}
}

// apply is the closed dispatch function over the operation union: the
// only place that knows how each op tag mutates a tree.
func apply(tree *treemodel.Tree, op types.Operation, now time.Time) error {
	switch op.Tag {
	case types.OpCreateFolder:
		// bookmark_updated/folder_updated carry the same fields as
		// their *_created counterpart (spec's event table) and target
		// a node that already exists locally: apply in place instead
		// of failing Insert's duplicate-id check.
		if tree.Exists(op.NodeID) {
			_, err := tree.Update(op.NodeID, op.ParentID, op.Title, "", op.IsOpen, now)
			return err
		}
		node := &types.Node{
			ID:        op.NodeID,
			Namespace: op.Namespace,
			Kind:      types.KindFolder,
			Title:     op.Title,
		}
		if op.IsOpen != nil {
			node.IsOpen = *op.IsOpen
		}
		if op.IsLoaded != nil {
			node.IsLoaded = *op.IsLoaded
		}
		_, err := tree.Insert(op.ParentID, node, op.Index, now)
		return err

	case types.OpCreateBookmark:
		if tree.Exists(op.NodeID) {
			_, err := tree.Update(op.NodeID, op.ParentID, op.Title, op.URL, nil, now)
			return err
		}
		node := &types.Node{
			ID:        op.NodeID,
			Namespace: op.Namespace,
			Kind:      types.KindBookmark,
			Title:     op.Title,
			URL:       op.URL,
		}
		_, err := tree.Insert(op.ParentID, node, op.Index, now)
		return err

	case types.OpRemoveNode:
		_, err := tree.RemoveSubtree(op.TargetID)
		return err

	case types.OpMoveNode:
		return tree.Move(op.TargetID, op.ToFolderID, op.Index, now)

	case types.OpReorder:
		return tree.Reorder(op.FolderID, op.FromIndex, op.ToIndex, now)

	case types.OpToggleFolder:
		_, err := tree.ToggleOpen(op.FolderID, op.Open, now)
		return err

	case types.OpMarkLoaded:
		return tree.MarkLoaded(op.FolderID, now)

	case types.OpHydrateNode:
		return tree.HydrateSubtree(op.HydrateRoot, op.HydrateChildren)

	default:
		return errs.Wrap(errs.ErrBadArgument, "unknown operation tag: "+string(op.Tag))
	}
}
