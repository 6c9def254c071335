package eventstream

import (
	"testing"

	"github.com/cuemby/bkmsync/pkg/types"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestTranslateBookmarkCreated(t *testing.T) {
	op, err := Translate(RawEvent{Type: "bookmark_created", ID: "b1", ParentID: "root", Title: "x", URL: "http://x", Namespace: "ns"})
	require.NoError(t, err)
	require.Equal(t, types.OpCreateBookmark, op.Tag)
	require.Equal(t, "b1", op.NodeID)
	require.Equal(t, "root", op.ParentID)
}

func TestTranslateFolderCreated(t *testing.T) {
	op, err := Translate(RawEvent{Type: "folder_created", ID: "f1", ParentID: "root", Title: "Work", IsOpen: boolPtr(true), Namespace: "ns"})
	require.NoError(t, err)
	require.Equal(t, types.OpCreateFolder, op.Tag)
	require.True(t, *op.IsOpen)
}

func TestTranslateDeleteVariants(t *testing.T) {
	for _, typ := range []string{"bookmark_deleted", "folder_deleted"} {
		op, err := Translate(RawEvent{Type: typ, ID: "x1", Namespace: "ns"})
		require.NoError(t, err)
		require.Equal(t, types.OpRemoveNode, op.Tag)
		require.Equal(t, "x1", op.TargetID)
	}
}

func TestTranslateItemMoved(t *testing.T) {
	op, err := Translate(RawEvent{Type: "item_moved", ID: "n1", ParentID: "f2", Namespace: "ns"})
	require.NoError(t, err)
	require.Equal(t, types.OpMoveNode, op.Tag)
	require.Equal(t, "n1", op.TargetID)
	require.Equal(t, "f2", op.ToFolderID)
}

func TestTranslateFolderToggled(t *testing.T) {
	op, err := Translate(RawEvent{Type: "folder_toggled", ID: "f1", IsOpen: boolPtr(false), Namespace: "ns"})
	require.NoError(t, err)
	require.Equal(t, types.OpToggleFolder, op.Tag)
	require.False(t, *op.Open)
}

func TestTranslateUnrecognizedTypeIsTolerated(t *testing.T) {
	_, err := Translate(RawEvent{Type: "something_new", ID: "z1", Namespace: "ns"})
	require.Error(t, err)
	require.True(t, IsUnrecognized(err))
}

func TestTranslateMalformedEventRejected(t *testing.T) {
	_, err := Translate(RawEvent{Type: "bookmark_created", Namespace: "ns"}) // missing id/parentId
	require.Error(t, err)
	require.False(t, IsUnrecognized(err))
}
