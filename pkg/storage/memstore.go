package storage

import (
	"sort"
	"sync"

	"github.com/cuemby/bkmsync/pkg/types"
)

// MemStore is an in-memory Store, meant for kernel unit tests and for
// any deployment that accepts losing the operation log across restarts.
type MemStore struct {
	mu         sync.Mutex
	operations map[string]*types.Envelope
	nodes      map[string]*types.Node
	folderMeta map[string]*types.FolderMetadata
	syncMeta   map[string]*types.SyncMeta
}

func NewMemStore() *MemStore {
	return &MemStore{
		operations: make(map[string]*types.Envelope),
		nodes:      make(map[string]*types.Node),
		folderMeta: make(map[string]*types.FolderMetadata),
		syncMeta:   make(map[string]*types.SyncMeta),
	}
}

func (s *MemStore) Close() error { return nil }

func (s *MemStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operations = make(map[string]*types.Envelope)
	s.nodes = make(map[string]*types.Node)
	s.folderMeta = make(map[string]*types.FolderMetadata)
	s.syncMeta = make(map[string]*types.SyncMeta)
	return nil
}

func (s *MemStore) Append(envelope *types.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operations[envelope.ID] = envelope.Clone()
	return nil
}

func (s *MemStore) GetAllOperations() ([]*types.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.Envelope, 0, len(s.operations))
	for _, e := range s.operations {
		out = append(out, e.Clone())
	}
	sortEnvelopes(out)
	return out, nil
}

func (s *MemStore) GetPending(namespace string) ([]*types.Envelope, error) {
	all, _ := s.GetAllOperations()
	var pending []*types.Envelope
	for _, e := range all {
		if e.Namespace == namespace && !e.Processed {
			pending = append(pending, e)
		}
	}
	return pending, nil
}

func (s *MemStore) MarkProcessed(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if e, ok := s.operations[id]; ok {
			e.Processed = true
		}
	}
	return nil
}

func (s *MemStore) MarkFailed(ids []string, incrementRetry bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if e, ok := s.operations[id]; ok && incrementRetry {
			e.RetryCount++
		}
	}
	return nil
}

func (s *MemStore) PutNode(node *types.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[node.ID] = node.Clone()
	return nil
}

func (s *MemStore) GetNode(id string) (*types.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, nil
	}
	return n.Clone(), nil
}

func (s *MemStore) DeleteNode(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nodes, id)
	return nil
}

func (s *MemStore) ChildrenOf(namespace, folderID string) ([]*types.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.Node
	for _, n := range s.nodes {
		if n.Namespace == namespace && n.ParentID == folderID {
			out = append(out, n.Clone())
		}
	}
	sortByOrder(out)
	return out, nil
}

func (s *MemStore) RootsOf(namespace string) ([]*types.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.Node
	for _, n := range s.nodes {
		if n.Namespace == namespace && n.IsRoot() {
			out = append(out, n.Clone())
		}
	}
	return out, nil
}

func (s *MemStore) PutFolderMetadata(m *types.FolderMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.folderMeta[folderMetaKeyStr(m.Namespace, m.FolderID)] = &cp
	return nil
}

func (s *MemStore) GetFolderMetadata(namespace, folderID string) (*types.FolderMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.folderMeta[folderMetaKeyStr(namespace, folderID)]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (s *MemStore) PutSyncMeta(m *types.SyncMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.syncMeta[m.Namespace] = &cp
	return nil
}

func (s *MemStore) GetSyncMeta(namespace string) (*types.SyncMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.syncMeta[namespace]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func folderMetaKeyStr(namespace, folderID string) string {
	return namespace + "/" + folderID
}

func sortEnvelopes(envs []*types.Envelope) {
	sort.Slice(envs, func(i, j int) bool { return envs[i].Ts.Before(envs[j].Ts) })
}
