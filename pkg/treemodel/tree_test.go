package treemodel

import (
	"testing"
	"time"

	"github.com/cuemby/bkmsync/pkg/errs"
	"github.com/cuemby/bkmsync/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestTree() *Tree {
	return New("ns1", "root", time.Unix(0, 0))
}

func folder(id string) *types.Node {
	return &types.Node{ID: id, Namespace: "ns1", Kind: types.KindFolder, IsOpen: true}
}

func bookmark(id, url string) *types.Node {
	return &types.Node{ID: id, Namespace: "ns1", Kind: types.KindBookmark, URL: url}
}

func TestInsertAppendsAndOrders(t *testing.T) {
	tr := newTestTree()
	now := time.Now()

	_, err := tr.Insert("root", folder("a"), nil, now)
	require.NoError(t, err)
	_, err = tr.Insert("root", folder("b"), nil, now)
	require.NoError(t, err)
	_, err = tr.Insert("root", folder("c"), nil, now)
	require.NoError(t, err)

	children, err := tr.ListChildren("root")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, ids(children))
}

func TestInsertAtIndex(t *testing.T) {
	tr := newTestTree()
	now := time.Now()
	idx0 := 0

	_, err := tr.Insert("root", folder("a"), nil, now)
	require.NoError(t, err)
	_, err = tr.Insert("root", folder("b"), nil, now)
	require.NoError(t, err)
	_, err = tr.Insert("root", folder("c"), &idx0, now)
	require.NoError(t, err)

	children, err := tr.ListChildren("root")
	require.NoError(t, err)
	require.Equal(t, []string{"c", "a", "b"}, ids(children))
}

func TestReferentialIntegrityOnInsert(t *testing.T) {
	tr := newTestTree()
	now := time.Now()
	n, err := tr.Insert("root", folder("a"), nil, now)
	require.NoError(t, err)
	require.Equal(t, "root", n.ParentID)

	children, err := tr.ListChildren("root")
	require.NoError(t, err)
	require.Len(t, children, 1)
	require.Equal(t, "a", children[0].ID)
}

func TestDuplicateIDRejected(t *testing.T) {
	tr := newTestTree()
	now := time.Now()
	_, err := tr.Insert("root", folder("a"), nil, now)
	require.NoError(t, err)
	_, err = tr.Insert("root", folder("a"), nil, now)
	require.ErrorIs(t, err, errs.ErrDuplicateID)
}

func TestMoveRejectsCycle(t *testing.T) {
	tr := newTestTree()
	now := time.Now()
	_, err := tr.Insert("root", folder("parent"), nil, now)
	require.NoError(t, err)
	_, err = tr.Insert("parent", folder("child"), nil, now)
	require.NoError(t, err)

	err = tr.Move("parent", "child", nil, now)
	require.ErrorIs(t, err, errs.ErrCycleForbidden)

	// Tree unchanged: parent is still under root, child still under parent.
	parent, err := tr.RequireNode("parent")
	require.NoError(t, err)
	require.Equal(t, "root", parent.ParentID)
}

func TestMoveRoundTripRestoresMembershipNotKey(t *testing.T) {
	tr := newTestTree()
	now := time.Now()
	_, err := tr.Insert("root", folder("p1"), nil, now)
	require.NoError(t, err)
	_, err = tr.Insert("root", folder("p2"), nil, now)
	require.NoError(t, err)
	_, err = tr.Insert("p1", bookmark("n", "u"), nil, now)
	require.NoError(t, err)

	before, err := tr.ListChildren("p1")
	require.NoError(t, err)
	require.Len(t, before, 1)

	require.NoError(t, tr.Move("n", "p2", nil, now))
	require.NoError(t, tr.Move("n", "p1", nil, now))

	after, err := tr.ListChildren("p1")
	require.NoError(t, err)
	require.Equal(t, ids(before), ids(after))
}

func TestReorderFractionalKey(t *testing.T) {
	tr := newTestTree()
	now := time.Now()
	_, err := tr.Insert("root", folder("a"), nil, now)
	require.NoError(t, err)
	_, err = tr.Insert("root", folder("b"), nil, now)
	require.NoError(t, err)
	_, err = tr.Insert("root", folder("c"), nil, now)
	require.NoError(t, err)

	before, err := tr.ListChildren("root")
	require.NoError(t, err)
	aKey, bKey := before[0].OrderKey, before[1].OrderKey

	require.NoError(t, tr.Reorder("root", 2, 0, now))

	after, err := tr.ListChildren("root")
	require.NoError(t, err)
	require.Equal(t, []string{"c", "a", "b"}, ids(after))

	cNode, err := tr.RequireNode("c")
	require.NoError(t, err)
	require.Less(t, cNode.OrderKey, aKey)

	aNode, err := tr.RequireNode("a")
	require.NoError(t, err)
	require.Equal(t, aKey, aNode.OrderKey)

	bNode, err := tr.RequireNode("b")
	require.NoError(t, err)
	require.Equal(t, bKey, bNode.OrderKey)
}

func TestToggleFolderRoundTrip(t *testing.T) {
	tr := newTestTree()
	now := time.Now()
	_, err := tr.Insert("root", folder("f"), nil, now)
	require.NoError(t, err)

	f, _ := tr.RequireNode("f")
	initial := f.IsOpen

	_, err = tr.ToggleOpen("f", nil, now)
	require.NoError(t, err)
	_, err = tr.ToggleOpen("f", nil, now)
	require.NoError(t, err)

	f, _ = tr.RequireNode("f")
	require.Equal(t, initial, f.IsOpen)
}

func TestRemoveSubtreeCascades(t *testing.T) {
	tr := newTestTree()
	now := time.Now()
	_, err := tr.Insert("root", folder("F"), nil, now)
	require.NoError(t, err)
	_, err = tr.Insert("F", bookmark("b1", "u1"), nil, now)
	require.NoError(t, err)
	_, err = tr.Insert("F", bookmark("b2", "u2"), nil, now)
	require.NoError(t, err)
	_, err = tr.Insert("F", folder("sub"), nil, now)
	require.NoError(t, err)
	_, err = tr.Insert("sub", bookmark("b3", "u3"), nil, now)
	require.NoError(t, err)

	removed, err := tr.RemoveSubtree("F")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"F", "b1", "b2", "sub", "b3"}, removed)

	for _, id := range []string{"F", "b1", "b2", "sub", "b3"} {
		require.False(t, tr.Exists(id))
	}
}

func TestRemoveRootForbidden(t *testing.T) {
	tr := newTestTree()
	_, err := tr.RemoveSubtree("root")
	require.ErrorIs(t, err, errs.ErrBadArgument)
}

func TestHydrateSubtreeReplacesWholesale(t *testing.T) {
	tr := newTestTree()
	now := time.Now()
	_, err := tr.Insert("root", folder("X"), nil, now)
	require.NoError(t, err)
	_, err = tr.Insert("X", bookmark("Y", "u"), nil, now)
	require.NoError(t, err)

	newRoot := &types.Node{ID: "root", Kind: types.KindFolder, Children: []string{"Z"}, OrderKey: firstKey}
	newChild := &types.Node{ID: "Z", ParentID: "root", Kind: types.KindFolder, OrderKey: firstKey}
	require.NoError(t, tr.HydrateSubtree(newRoot, []*types.Node{newChild}))

	require.False(t, tr.Exists("X"))
	require.False(t, tr.Exists("Y"))
	require.True(t, tr.Exists("Z"))
}

func ids(nodes []*types.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}
