package api

import (
	"encoding/json"
	"net/http"

	"github.com/cuemby/bkmsync/pkg/kernel"
	"github.com/go-chi/chi/v5"
)

// rpcRequest is the envelope for every POST /rpc/{method} body.
type rpcRequest struct {
	ParentID   string `json:"parentId,omitempty"`
	FolderID   string `json:"folderId,omitempty"`
	NodeID     string `json:"nodeId,omitempty"`
	ToFolderID string `json:"toFolderId,omitempty"`
	Title      string `json:"title,omitempty"`
	URL        string `json:"url,omitempty"`
	Index      *int   `json:"index,omitempty"`
	Open       *bool  `json:"open,omitempty"`
	FromIndex  int    `json:"fromIndex,omitempty"`
	ToIndex    int    `json:"toIndex,omitempty"`
	TabID      string `json:"tabId,omitempty"`
	EnvelopeID string `json:"envelopeId,omitempty"`
	Namespace  string `json:"namespace,omitempty"`
}

type rpcResponse struct {
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// readOnlyMethods lists the RPC methods safe to expose to a restricted
// listener: anything that only reads kernel state.
var readOnlyMethods = map[string]bool{
	"getTree":         true,
	"getNode":         true,
	"getChildren":     true,
	"getOperationLog": true,
	"getSyncStatus":   true,
	"getSSEState":     true,
	"ping":            true,
	"loadFolderData":  true,
}

// rpcRouter dispatches POST /rpc/{method} onto the matching Kernel
// method, matching Warren's single-entry-point RPC style but over JSON
// instead of protobuf.
func rpcRouter(k *kernel.Kernel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		method := chi.URLParam(r, "method")

		var req rpcRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeRPCError(w, http.StatusBadRequest, err)
				return
			}
		}

		handler, ok := rpcHandlers[method]
		if !ok {
			writeRPCError(w, http.StatusNotFound, errUnknownMethod(method))
			return
		}

		result, err := handler(k, req)
		if err != nil {
			writeRPCError(w, http.StatusUnprocessableEntity, err)
			return
		}
		writeJSON(w, http.StatusOK, rpcResponse{Result: result})
	}
}

type rpcHandlerFunc func(k *kernel.Kernel, req rpcRequest) (interface{}, error)

var rpcHandlers = map[string]rpcHandlerFunc{
	"createFolder": func(k *kernel.Kernel, req rpcRequest) (interface{}, error) {
		return k.CreateFolder(req.ParentID, req.Title, req.Index)
	},
	"createBookmark": func(k *kernel.Kernel, req rpcRequest) (interface{}, error) {
		return k.CreateBookmark(req.ParentID, req.Title, req.URL, req.Index)
	},
	"removeNode": func(k *kernel.Kernel, req rpcRequest) (interface{}, error) {
		return k.RemoveNode(req.NodeID)
	},
	"moveNode": func(k *kernel.Kernel, req rpcRequest) (interface{}, error) {
		return k.MoveNode(req.NodeID, req.ToFolderID, req.Index)
	},
	"reorderNodes": func(k *kernel.Kernel, req rpcRequest) (interface{}, error) {
		return k.ReorderNodes(req.FolderID, req.FromIndex, req.ToIndex)
	},
	"toggleFolder": func(k *kernel.Kernel, req rpcRequest) (interface{}, error) {
		return k.ToggleFolder(req.FolderID, req.Open)
	},
	"markFolderAsLoaded": func(k *kernel.Kernel, req rpcRequest) (interface{}, error) {
		return k.MarkFolderAsLoaded(req.FolderID)
	},
	"loadFolderData": func(k *kernel.Kernel, req rpcRequest) (interface{}, error) {
		return k.LoadFolderData(req.FolderID)
	},
	"getTree": func(k *kernel.Kernel, req rpcRequest) (interface{}, error) {
		return k.GetTree()
	},
	"getNode": func(k *kernel.Kernel, req rpcRequest) (interface{}, error) {
		return k.GetNode(req.NodeID)
	},
	"getChildren": func(k *kernel.Kernel, req rpcRequest) (interface{}, error) {
		return k.GetChildren(req.FolderID)
	},
	"getOperationLog": func(k *kernel.Kernel, req rpcRequest) (interface{}, error) {
		return k.GetOperationLog()
	},
	"ping": func(k *kernel.Kernel, req rpcRequest) (interface{}, error) {
		return nil, k.Ping(req.TabID)
	},
	"getSSEState": func(k *kernel.Kernel, req rpcRequest) (interface{}, error) {
		return k.GetSSEState()
	},
	"getSyncStatus": func(k *kernel.Kernel, req rpcRequest) (interface{}, error) {
		return k.GetSyncStatus()
	},
	"forceSyncOperation": func(k *kernel.Kernel, req rpcRequest) (interface{}, error) {
		return nil, k.ForceSyncOperation()
	},
	"syncOperationImmediately": func(k *kernel.Kernel, req rpcRequest) (interface{}, error) {
		return k.SyncOperationImmediately(req.EnvelopeID), nil
	},
	"setNamespace": func(k *kernel.Kernel, req rpcRequest) (interface{}, error) {
		return nil, k.SetNamespace(req.Namespace)
	},
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRPCError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, rpcResponse{Error: err.Error()})
}
