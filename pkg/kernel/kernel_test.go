package kernel

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuemby/bkmsync/pkg/config"
	"github.com/cuemby/bkmsync/pkg/fanout"
	"github.com/cuemby/bkmsync/pkg/storage"
	"github.com/cuemby/bkmsync/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	cfg := config.Defaults()
	cfg.Namespace = "ns1"
	cfg.BaseURL = "http://127.0.0.1:0"
	k, err := New(cfg, storage.NewMemStore())
	require.NoError(t, err)
	k.Start()
	t.Cleanup(k.Stop)
	return k
}

func newTestKernelWithBaseURL(t *testing.T, baseURL string) *Kernel {
	t.Helper()
	cfg := config.Defaults()
	cfg.Namespace = "ns1"
	cfg.BaseURL = baseURL
	k, err := New(cfg, storage.NewMemStore())
	require.NoError(t, err)
	k.Start()
	t.Cleanup(k.Stop)
	return k
}

func TestCreateFolderAndBookmarkWithEmptyParentDefaultToRoot(t *testing.T) {
	k := newTestKernel(t)

	folderEnv, err := k.CreateFolder("", "Work", nil)
	require.NoError(t, err)
	require.Equal(t, rootID, folderEnv.Op.ParentID)

	bookmarkEnv, err := k.CreateBookmark("", "Go", "https://go.dev", nil)
	require.NoError(t, err)
	require.Equal(t, rootID, bookmarkEnv.Op.ParentID)
}

func TestCreateFolderAndBookmarkAppearInTree(t *testing.T) {
	k := newTestKernel(t)

	envelope, err := k.CreateFolder(rootID, "Work", nil)
	require.NoError(t, err)
	require.Equal(t, types.OpCreateFolder, envelope.Op.Tag)

	folderID := envelope.Op.NodeID
	_, err = k.CreateBookmark(folderID, "Go", "https://go.dev", nil)
	require.NoError(t, err)

	tree, err := k.GetTree()
	require.NoError(t, err)
	require.Len(t, tree, 2)

	children, err := k.GetChildren(folderID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	require.Equal(t, "Go", children[0].Title)
}

// Cross-tab fan-out: a dispatch from one "tab" must be observed by
// every other connected subscriber via the fan-out bus.
func TestCrossTabFanOutDeliversOperationProcessed(t *testing.T) {
	k := newTestKernel(t)

	subA, err := k.Connect("tabA")
	require.NoError(t, err)
	subB, err := k.Connect("tabB")
	require.NoError(t, err)

	_, err = k.CreateFolder(rootID, "Inbox", nil)
	require.NoError(t, err)

	msg, ok := nextNonStateMessage(subA, time.Second)
	if !ok {
		t.Fatal("tabA never received operation_processed")
	}
	require.Equal(t, fanout.MsgOperationProcessed, msg.Type)
	msg, ok = nextNonStateMessage(subB, time.Second)
	if !ok {
		t.Fatal("tabB never received operation_processed")
	}
	require.Equal(t, fanout.MsgOperationProcessed, msg.Type)
}

// nextNonStateMessage returns the next message on sub that is not an
// sse_state_changed notification; the event stream that Connect starts
// publishes those to every subscriber alongside dispatch notifications.
func nextNonStateMessage(sub fanout.Subscriber, timeout time.Duration) (*fanout.Message, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case msg, ok := <-sub:
			if !ok {
				return nil, false
			}
			if msg.Type == fanout.MsgSSEStateChanged {
				continue
			}
			return msg, true
		case <-deadline:
			return nil, false
		}
	}
}

// Server-originated subtree delete: a remote remove_node operation
// cascades through the live tree exactly as a local one would.
func TestServerOriginatedRemoveNodeCascades(t *testing.T) {
	k := newTestKernel(t)

	folderEnv, err := k.CreateFolder(rootID, "Temp", nil)
	require.NoError(t, err)
	folderID := folderEnv.Op.NodeID
	_, err = k.CreateBookmark(folderID, "x", "https://x.example", nil)
	require.NoError(t, err)

	_, err = k.do(func() (interface{}, error) {
		k.applyRemoteOp(types.Operation{Tag: types.OpRemoveNode, TargetID: folderID})
		return nil, nil
	})
	require.NoError(t, err)

	tree, err := k.GetTree()
	require.NoError(t, err)
	require.Len(t, tree, 0)
}

// Cycle rejection: attempting to move a folder into its own descendant
// must fail and leave the tree unchanged.
func TestMoveNodeRejectsCycle(t *testing.T) {
	k := newTestKernel(t)

	parentEnv, err := k.CreateFolder(rootID, "Parent", nil)
	require.NoError(t, err)
	parentID := parentEnv.Op.NodeID

	childEnv, err := k.CreateFolder(parentID, "Child", nil)
	require.NoError(t, err)
	childID := childEnv.Op.NodeID

	_, err = k.MoveNode(parentID, childID, nil)
	require.Error(t, err)

	parent, err := k.GetNode(parentID)
	require.NoError(t, err)
	require.Equal(t, rootID, parent.ParentID)
}

// Reorder by fractional key: reordering must not touch the OrderKeys
// of siblings that didn't move.
func TestReorderNodesAssignsFractionalKey(t *testing.T) {
	k := newTestKernel(t)

	aEnv, err := k.CreateBookmark(rootID, "a", "https://a.example", nil)
	require.NoError(t, err)
	_, err = k.CreateBookmark(rootID, "b", "https://b.example", nil)
	require.NoError(t, err)
	cEnv, err := k.CreateBookmark(rootID, "c", "https://c.example", nil)
	require.NoError(t, err)

	before, err := k.GetNode(aEnv.Op.NodeID)
	require.NoError(t, err)
	aKeyBefore := before.OrderKey

	_, err = k.ReorderNodes(rootID, 2, 0)
	require.NoError(t, err)

	children, err := k.GetChildren(rootID)
	require.NoError(t, err)
	require.Equal(t, "c", children[0].Title)

	aAfter, err := k.GetNode(aEnv.Op.NodeID)
	require.NoError(t, err)
	require.Equal(t, aKeyBefore, aAfter.OrderKey)

	cAfter, err := k.GetNode(cEnv.Op.NodeID)
	require.NoError(t, err)
	require.True(t, cAfter.OrderKey < aAfter.OrderKey)
}

func TestGetOperationLogReturnsDispatchedEnvelopes(t *testing.T) {
	k := newTestKernel(t)

	_, err := k.CreateFolder(rootID, "A", nil)
	require.NoError(t, err)
	_, err = k.CreateFolder(rootID, "B", nil)
	require.NoError(t, err)

	log, err := k.GetOperationLog()
	require.NoError(t, err)
	require.Len(t, log, 2)
}

func TestDisconnectRemovesSubscriberAndStopsDelivery(t *testing.T) {
	k := newTestKernel(t)

	sub, err := k.Connect("tabA")
	require.NoError(t, err)

	require.NoError(t, k.Disconnect("tabA", sub))

	_, err = k.CreateFolder(rootID, "Anything", nil)
	require.NoError(t, err)

	_, open := <-sub
	require.False(t, open)
}

// Baseline rehydration must fetch the authoritative remote subtree (not
// restate local state) and have it supersede local drift.
func TestTriggerRootRehydrationAppliesFetchedBaseline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/namespaces/ns1/tree/root", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"node": map[string]interface{}{
				"id": "root", "namespace": "ns1", "kind": "folder", "orderKey": "a",
				"children": []string{"remoteFolder"},
			},
			"children": []map[string]interface{}{
				{"id": "remoteFolder", "namespace": "ns1", "kind": "folder", "parentId": "root", "title": "FromServer", "orderKey": "a0"},
			},
		})
	}))
	defer server.Close()

	k := newTestKernelWithBaseURL(t, server.URL)

	// Local drift: a folder the server doesn't know about.
	_, err := k.CreateFolder(rootID, "LocalOnly", nil)
	require.NoError(t, err)

	_, err = k.do(func() (interface{}, error) {
		k.triggerRootRehydration()
		return nil, nil
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		tree, err := k.GetTree()
		if err != nil || len(tree) != 1 {
			return false
		}
		return tree[0].Title == "FromServer"
	}, 2*time.Second, 10*time.Millisecond)
}

// SetNamespace must clear prior state and adopt the new namespace's
// authoritative baseline.
func TestSetNamespaceClearsAndRehydrates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/namespaces/ns2/tree/root", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"node": map[string]interface{}{
				"id": "root", "namespace": "ns2", "kind": "folder", "orderKey": "a",
				"children": []string{"ns2Folder"},
			},
			"children": []map[string]interface{}{
				{"id": "ns2Folder", "namespace": "ns2", "kind": "folder", "parentId": "root", "title": "NS2", "orderKey": "a0"},
			},
		})
	}))
	defer server.Close()

	k := newTestKernelWithBaseURL(t, server.URL)

	_, err := k.CreateFolder(rootID, "NS1Only", nil)
	require.NoError(t, err)

	require.NoError(t, k.SetNamespace("ns2"))

	tree, err := k.GetTree()
	require.NoError(t, err)
	require.Len(t, tree, 1)
	require.Equal(t, "NS2", tree[0].Title)

	log, err := k.GetOperationLog()
	require.NoError(t, err)
	for _, e := range log {
		require.NotEqual(t, "NS1Only", e.Op.Title)
	}
}

func TestGetSyncStatusReportsPendingCount(t *testing.T) {
	k := newTestKernel(t)

	status, err := k.GetSyncStatus()
	require.NoError(t, err)
	require.Equal(t, 0, status.PendingCount)

	_, err = k.CreateFolder(rootID, "A", nil)
	require.NoError(t, err)

	status, err = k.GetSyncStatus()
	require.NoError(t, err)
	require.Equal(t, 1, status.PendingCount)
}
