// Package storage provides durable key-indexed persistence for the sync
// kernel's four collections: operations, nodes, folder metadata, and
// sync metadata. The kernel's in-memory tree is always authoritative;
// the store exists so it can be rebuilt after a restart, not as the
// source of truth during a running session.
package storage

import (
	"github.com/cuemby/bkmsync/pkg/types"
)

// Store is the persistence contract every backend (bbolt-backed or
// in-memory) implements. Namespace scoping is the caller's
// responsibility for nodes/metadata; operations carry their namespace
// in the envelope itself.
type Store interface {
	// Operations
	Append(envelope *types.Envelope) error
	GetAllOperations() ([]*types.Envelope, error)
	GetPending(namespace string) ([]*types.Envelope, error)
	MarkProcessed(ids []string) error
	MarkFailed(ids []string, incrementRetry bool) error

	// Nodes
	PutNode(node *types.Node) error
	GetNode(id string) (*types.Node, error)
	DeleteNode(id string) error
	ChildrenOf(namespace, folderID string) ([]*types.Node, error)
	RootsOf(namespace string) ([]*types.Node, error)

	// Folder metadata
	PutFolderMetadata(m *types.FolderMetadata) error
	GetFolderMetadata(namespace, folderID string) (*types.FolderMetadata, error)

	// Sync metadata
	PutSyncMeta(m *types.SyncMeta) error
	GetSyncMeta(namespace string) (*types.SyncMeta, error)

	// Clear wipes every collection, for namespace switch.
	Clear() error

	// Close releases any underlying resources.
	Close() error
}
