package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/cuemby/bkmsync/pkg/errs"
	"github.com/cuemby/bkmsync/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketOperations     = []byte("operations")
	bucketNodes          = []byte("nodes")
	bucketFolderMetadata = []byte("folderMetadata")
	bucketSyncMeta       = []byte("syncMeta")
)

var allBuckets = [][]byte{bucketOperations, bucketNodes, bucketFolderMetadata, bucketSyncMeta}

// BoltStore implements Store on top of an embedded bbolt database, one
// bucket per collection, values JSON-encoded.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) a bbolt database under
// dataDir and ensures every collection bucket exists.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "bkmsync.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrStoreUnavailable, fmt.Sprintf("open %s: %v", dbPath, err))
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

func (s *BoltStore) Clear() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range allBuckets {
			if err := tx.DeleteBucket(bucket); err != nil && err != bolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucket(bucket); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- Operations ---

func (s *BoltStore) Append(envelope *types.Envelope) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(envelope)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketOperations).Put([]byte(envelope.ID), data)
	})
}

func (s *BoltStore) GetAllOperations() ([]*types.Envelope, error) {
	var out []*types.Envelope
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketOperations).ForEach(func(_, v []byte) error {
			var e types.Envelope
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			out = append(out, &e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ts.Before(out[j].Ts) })
	return out, nil
}

func (s *BoltStore) GetPending(namespace string) ([]*types.Envelope, error) {
	all, err := s.GetAllOperations()
	if err != nil {
		return nil, err
	}
	var pending []*types.Envelope
	for _, e := range all {
		if e.Namespace == namespace && !e.Processed {
			pending = append(pending, e)
		}
	}
	return pending, nil
}

func (s *BoltStore) MarkProcessed(ids []string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOperations)
		for _, id := range ids {
			data := b.Get([]byte(id))
			if data == nil {
				continue
			}
			var e types.Envelope
			if err := json.Unmarshal(data, &e); err != nil {
				return err
			}
			e.Processed = true
			updated, err := json.Marshal(&e)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(id), updated); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) MarkFailed(ids []string, incrementRetry bool) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOperations)
		for _, id := range ids {
			data := b.Get([]byte(id))
			if data == nil {
				continue
			}
			var e types.Envelope
			if err := json.Unmarshal(data, &e); err != nil {
				return err
			}
			if incrementRetry {
				e.RetryCount++
			}
			updated, err := json.Marshal(&e)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(id), updated); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- Nodes ---

func (s *BoltStore) PutNode(node *types.Node) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(node)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketNodes).Put([]byte(node.ID), data)
	})
}

func (s *BoltStore) GetNode(id string) (*types.Node, error) {
	var node *types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketNodes).Get([]byte(id))
		if data == nil {
			return nil
		}
		node = &types.Node{}
		return json.Unmarshal(data, node)
	})
	return node, err
}

func (s *BoltStore) DeleteNode(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).Delete([]byte(id))
	})
}

func (s *BoltStore) ChildrenOf(namespace, folderID string) ([]*types.Node, error) {
	var out []*types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).ForEach(func(_, v []byte) error {
			var n types.Node
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			if n.Namespace == namespace && n.ParentID == folderID {
				out = append(out, &n)
			}
			return nil
		})
	})
	sortByOrder(out)
	return out, err
}

func (s *BoltStore) RootsOf(namespace string) ([]*types.Node, error) {
	var out []*types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).ForEach(func(_, v []byte) error {
			var n types.Node
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			if n.Namespace == namespace && n.IsRoot() {
				out = append(out, &n)
			}
			return nil
		})
	})
	return out, err
}

// --- Folder metadata ---

func folderMetaKey(namespace, folderID string) []byte {
	return []byte(namespace + "/" + folderID)
}

func (s *BoltStore) PutFolderMetadata(m *types.FolderMetadata) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketFolderMetadata).Put(folderMetaKey(m.Namespace, m.FolderID), data)
	})
}

func (s *BoltStore) GetFolderMetadata(namespace, folderID string) (*types.FolderMetadata, error) {
	var m *types.FolderMetadata
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketFolderMetadata).Get(folderMetaKey(namespace, folderID))
		if data == nil {
			return nil
		}
		m = &types.FolderMetadata{}
		return json.Unmarshal(data, m)
	})
	return m, err
}

// --- Sync metadata ---

func (s *BoltStore) PutSyncMeta(m *types.SyncMeta) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketSyncMeta).Put([]byte(m.Namespace), data)
	})
}

func (s *BoltStore) GetSyncMeta(namespace string) (*types.SyncMeta, error) {
	var m *types.SyncMeta
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSyncMeta).Get([]byte(namespace))
		if data == nil {
			return nil
		}
		m = &types.SyncMeta{}
		return json.Unmarshal(data, m)
	})
	return m, err
}

func sortByOrder(nodes []*types.Node) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].OrderKey != nodes[j].OrderKey {
			return nodes[i].OrderKey < nodes[j].OrderKey
		}
		return nodes[i].ID < nodes[j].ID
	})
}
