package oplog

import (
	"testing"
	"time"

	"github.com/cuemby/bkmsync/pkg/treemodel"
	"github.com/cuemby/bkmsync/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestTree() *treemodel.Tree {
	return treemodel.New("ns1", "root", time.Now())
}

func TestDispatchAppliesAndRecords(t *testing.T) {
	l := New()
	tree := newTestTree()
	now := time.Now()

	op := types.Operation{Tag: types.OpCreateFolder, Namespace: "ns1", NodeID: "f1", ParentID: "root", Title: "Work"}
	envelope, err := Dispatch(l, tree, op, now)
	require.NoError(t, err)
	require.NotEmpty(t, envelope.ID)
	require.False(t, envelope.Remote)
	require.True(t, tree.Exists("f1"))
	require.Len(t, l.All(), 1)
}

func TestApplyRemoteIsIdempotentByID(t *testing.T) {
	l := New()
	tree := newTestTree()
	now := time.Now()

	envelope := &types.Envelope{
		ID:        "remote-1",
		Namespace: "ns1",
		Ts:        now,
		Remote:    true,
		Op:        types.Operation{Tag: types.OpCreateFolder, Namespace: "ns1", NodeID: "f1", ParentID: "root", Title: "Work"},
	}
	require.NoError(t, ApplyRemote(l, tree, envelope, now))
	require.NoError(t, ApplyRemote(l, tree, envelope, now)) // re-delivery, must not re-apply

	require.Len(t, l.All(), 1)
	children, err := tree.ListChildren("root")
	require.NoError(t, err)
	require.Len(t, children, 1)
}

func TestReplayDeterminism(t *testing.T) {
	l := New()
	tree := newTestTree()
	now := time.Now()

	ops := []types.Operation{
		{Tag: types.OpCreateFolder, Namespace: "ns1", NodeID: "f1", ParentID: "root", Title: "Work"},
		{Tag: types.OpCreateBookmark, Namespace: "ns1", NodeID: "b1", ParentID: "f1", Title: "x", URL: "http://x"},
		{Tag: types.OpToggleFolder, Namespace: "ns1", FolderID: "f1"},
	}
	for i, op := range ops {
		_, err := Dispatch(l, tree, op, now.Add(time.Duration(i)*time.Millisecond))
		require.NoError(t, err)
	}

	replayed, _, err := Replay(l.All(), "ns1", "root")
	require.NoError(t, err)

	liveChildren, err := tree.ListChildren("f1")
	require.NoError(t, err)
	replayedChildren, err := replayed.ListChildren("f1")
	require.NoError(t, err)
	require.Equal(t, len(liveChildren), len(replayedChildren))
	require.Equal(t, liveChildren[0].ID, replayedChildren[0].ID)

	liveFolder, err := tree.RequireNode("f1")
	require.NoError(t, err)
	replayedFolder, err := replayed.RequireNode("f1")
	require.NoError(t, err)
	require.Equal(t, liveFolder.IsOpen, replayedFolder.IsOpen)
}

func TestHydrationDominanceSupersedesPriorEnvelopes(t *testing.T) {
	l := New()
	tree := newTestTree()
	now := time.Now()

	_, err := Dispatch(l, tree, types.Operation{Tag: types.OpCreateFolder, Namespace: "ns1", NodeID: "X", ParentID: "root", Title: "X"}, now)
	require.NoError(t, err)
	_, err = Dispatch(l, tree, types.Operation{Tag: types.OpCreateBookmark, Namespace: "ns1", NodeID: "Y", ParentID: "X", Title: "y", URL: "http://y"}, now)
	require.NoError(t, err)

	baseline := &types.Node{ID: "root", Kind: types.KindFolder, Namespace: "ns1", OrderKey: "U"}
	envelope := &types.Envelope{
		ID:        "hydrate-1",
		Namespace: "ns1",
		Ts:        now.Add(time.Second),
		Remote:    true,
		Processed: true,
		Op:        types.Operation{Tag: types.OpHydrateNode, Namespace: "ns1", HydrateRoot: baseline, HydrateChildren: nil},
	}
	require.NoError(t, ApplyRemote(l, tree, envelope, now.Add(time.Second)))

	require.False(t, tree.Exists("X"))
	require.False(t, tree.Exists("Y"))

	// The pre-hydration envelopes remain in the log, unprocessed and local,
	// even though their effects are now superseded.
	foundX := false
	for _, e := range l.All() {
		if e.Op.NodeID == "X" {
			foundX = true
			require.False(t, e.Processed)
			require.False(t, e.Remote)
		}
	}
	require.True(t, foundX)
}
