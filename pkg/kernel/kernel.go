// Package kernel implements the Public API Surface and the
// single-writer goroutine that owns the tree, log, and scheduler state
// for one active namespace at a time. Every mutation — whether from a
// tab's typed method call, an inbound remote event, or a baseline
// rehydration — is funneled through one command channel so the tree
// never sees concurrent writers, the way Warren's Raft FSM serializes
// every state change through a single Apply path.
package kernel

import (
	"context"
	"strings"
	"time"

	"github.com/cuemby/bkmsync/pkg/config"
	"github.com/cuemby/bkmsync/pkg/errs"
	"github.com/cuemby/bkmsync/pkg/eventstream"
	"github.com/cuemby/bkmsync/pkg/fanout"
	"github.com/cuemby/bkmsync/pkg/log"
	"github.com/cuemby/bkmsync/pkg/metrics"
	"github.com/cuemby/bkmsync/pkg/oplog"
	"github.com/cuemby/bkmsync/pkg/reachability"
	"github.com/cuemby/bkmsync/pkg/storage"
	"github.com/cuemby/bkmsync/pkg/syncsched"
	"github.com/cuemby/bkmsync/pkg/treemodel"
	"github.com/cuemby/bkmsync/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const rootID = "root"

// connInfo tracks one connected tab for the 5-minute reap window.
type connInfo struct {
	tabID    string
	lastPing time.Time
}

// command is one unit of work run on the kernel's single goroutine.
type command struct {
	fn   func() (interface{}, error)
	resp chan result
}

type result struct {
	val interface{}
	err error
}

// SyncStatus is returned by GetSyncStatus.
type SyncStatus struct {
	Namespace       string `json:"namespace"`
	Online          bool   `json:"online"`
	PendingCount    int    `json:"pendingCount"`
	FailedCount     int    `json:"failedCount"`
	LastSyncAttempt string `json:"lastSyncAttempt,omitempty"`
}

// Kernel is the sync kernel singleton.
type Kernel struct {
	cfg    config.Config
	store  storage.Store
	logger zerolog.Logger

	tree *treemodel.Tree
	log  *oplog.Log
	bus  *fanout.Bus

	stream    *eventstream.Client
	streamCtx context.CancelFunc
	prober    *reachability.Prober
	sched     *syncsched.Scheduler

	cmdCh      chan command
	stopCh     chan struct{}
	baselineCh chan baselineResult

	conns map[string]*connInfo
}

// New builds a Kernel for cfg's namespace, loading whatever operations
// the store already has and replaying them into a fresh tree.
func New(cfg config.Config, store storage.Store) (*Kernel, error) {
	envelopes, err := store.GetAllOperations()
	if err != nil {
		return nil, errs.Wrap(errs.ErrStoreUnavailable, err.Error())
	}

	tree, l, err := oplog.Replay(envelopes, cfg.Namespace, rootID)
	if err != nil {
		return nil, err
	}
	if tree.Size() == 0 {
		tree = treemodel.New(cfg.Namespace, rootID, time.Now())
	}

	k := &Kernel{
		cfg:        cfg,
		store:      store,
		logger:     log.WithComponent("kernel"),
		tree:       tree,
		log:        l,
		bus:        fanout.NewBus(),
		sched:      syncsched.New(store, cfg.BaseURL, cfg.Sync, cfg.Timeout()),
		prober:     reachability.New(cfg.BaseURL, cfg.Reachability.Interval(), cfg.Reachability.Timeout()),
		cmdCh:      make(chan command, 64),
		stopCh:     make(chan struct{}),
		baselineCh: make(chan baselineResult, 1),
		conns:      make(map[string]*connInfo),
	}
	return k, nil
}

// Start launches the kernel's single-writer goroutine and its
// supporting components (bus, prober). The event stream is
// started separately, on first tab connect.
func (k *Kernel) Start() {
	k.bus.Start()
	k.prober.Start()
	go k.run()
}

// Stop halts every component.
func (k *Kernel) Stop() {
	close(k.stopCh)
	if k.streamCtx != nil {
		k.streamCtx()
	}
	k.bus.Stop()
	k.prober.Stop()
	k.sched.Stop()
}

func (k *Kernel) run() {
	reapTicker := time.NewTicker(time.Minute)
	defer reapTicker.Stop()

	for {
		select {
		case cmd := <-k.cmdCh:
			val, err := cmd.fn()
			cmd.resp <- result{val: val, err: err}

		case op := <-k.streamEnvelopeCh():
			k.applyRemoteOp(op)

		case <-k.streamRehydrateCh():
			k.triggerRootRehydration()

		case res := <-k.baselineCh:
			k.applyBaseline(res)

		case st := <-k.streamStateCh():
			metrics.StreamStateChangesTotal.WithLabelValues(string(st)).Inc()
			k.bus.Publish(&fanout.Message{Type: fanout.MsgSSEStateChanged, Namespace: k.cfg.Namespace, Payload: st})

		case online := <-k.proberTransitionCh():
			k.sched.SetOnline(online, k.namespacesWithPending())

		case d := <-k.sched.DeliveredCh:
			k.bus.Publish(&fanout.Message{Type: fanout.MsgOperationSyncCompleted, Namespace: k.cfg.Namespace, Payload: d})
			pending, _ := k.store.GetPending(k.cfg.Namespace)
			k.bus.Publish(&fanout.Message{Type: fanout.MsgSyncStatusChanged, Namespace: k.cfg.Namespace, Payload: SyncStatus{
				Namespace:    k.cfg.Namespace,
				Online:       k.prober.Online(),
				PendingCount: len(pending),
				FailedCount:  k.sched.FailedCount(k.cfg.Namespace),
			}})

		case <-reapTicker.C:
			k.reapStaleConnections()

		case <-k.stopCh:
			return
		}
	}
}

// streamEnvelopeCh/streamRehydrateCh/streamStateCh return nil channels
// (which block forever in a select) until the stream is actually
// running, so run()'s select is safe before the first tab connects.
// proberTransitionCh always returns the prober's channel.
func (k *Kernel) streamEnvelopeCh() chan types.Operation {
	if k.stream == nil {
		return nil
	}
	return k.stream.EnvelopeCh
}

func (k *Kernel) streamRehydrateCh() chan struct{} {
	if k.stream == nil {
		return nil
	}
	return k.stream.RehydrateCh
}

func (k *Kernel) streamStateCh() chan eventstream.State {
	if k.stream == nil {
		return nil
	}
	return k.stream.StateCh
}

func (k *Kernel) proberTransitionCh() chan bool {
	return k.prober.TransitionCh
}

// do submits fn to the single-writer goroutine and blocks for its
// result. Every public method below is a thin wrapper around do.
func (k *Kernel) do(fn func() (interface{}, error)) (interface{}, error) {
	cmd := command{fn: fn, resp: make(chan result, 1)}
	select {
	case k.cmdCh <- cmd:
	case <-k.stopCh:
		return nil, errs.Wrap(errs.ErrStoreUnavailable, "kernel stopped")
	}
	r := <-cmd.resp
	return r.val, r.err
}

func (k *Kernel) namespacesWithPending() []string {
	pending, err := k.store.GetPending(k.cfg.Namespace)
	if err != nil || len(pending) == 0 {
		return nil
	}
	return []string{k.cfg.Namespace}
}

// dispatch is the single path through which every user-facing mutation
// flows: apply to the tree, record in the log, persist, fan out.
func (k *Kernel) dispatch(op types.Operation) (*types.Envelope, error) {
	op.Namespace = k.cfg.Namespace
	envelope, err := oplog.Dispatch(k.log, k.tree, op, time.Now())
	if err != nil {
		return nil, err
	}
	k.persistAndFanOut(envelope)
	return envelope, nil
}

func (k *Kernel) persistAndFanOut(envelope *types.Envelope) {
	if err := k.store.Append(envelope); err != nil {
		k.logger.Warn().Err(err).Str("envelope", envelope.ID).Msg("failed to persist envelope")
	}
	k.persistTouchedNodes(envelope)
	k.bus.Publish(&fanout.Message{Type: fanout.MsgOperationProcessed, Namespace: envelope.Namespace, Payload: envelope})
	if !envelope.Remote {
		k.sched.NotifyDispatch(envelope.Namespace)
	}
	if envelope.Remote {
		metrics.OperationsAppliedRemoteTotal.WithLabelValues(string(envelope.Op.Tag)).Inc()
	} else {
		metrics.OperationsDispatchedTotal.WithLabelValues(string(envelope.Op.Tag)).Inc()
	}
}

// persistTouchedNodes writes the in-memory node(s) an operation
// affected to the store. The in-memory tree stays authoritative on a
// store failure: errors from these writes are ignored, and a failed
// write is not repeated unless a later operation touches the same node.
func (k *Kernel) persistTouchedNodes(envelope *types.Envelope) {
	switch envelope.Op.Tag {
	case types.OpCreateFolder, types.OpCreateBookmark:
		if n := k.tree.Get(envelope.Op.NodeID); n != nil {
			k.store.PutNode(n)
		}
	case types.OpRemoveNode:
		k.store.DeleteNode(envelope.Op.TargetID)
	case types.OpMoveNode:
		if n := k.tree.Get(envelope.Op.TargetID); n != nil {
			k.store.PutNode(n)
		}
	case types.OpReorder:
		if n := k.tree.Get(envelope.Op.FolderID); n != nil {
			for _, childID := range n.Children {
				if c := k.tree.Get(childID); c != nil {
					k.store.PutNode(c)
				}
			}
		}
	case types.OpToggleFolder, types.OpMarkLoaded:
		if n := k.tree.Get(envelope.Op.FolderID); n != nil {
			k.store.PutNode(n)
		}
	case types.OpHydrateNode:
		if envelope.Op.HydrateRoot != nil {
			k.store.PutNode(envelope.Op.HydrateRoot)
		}
		for _, c := range envelope.Op.HydrateChildren {
			k.store.PutNode(c)
		}
	}
}

func (k *Kernel) applyRemoteOp(op types.Operation) {
	op.Namespace = k.cfg.Namespace
	envelope := &types.Envelope{
		ID:        uuid.NewString(),
		Namespace: op.Namespace,
		Ts:        time.Now(),
		Op:        op,
		Processed: true,
		Remote:    true,
	}
	if err := oplog.ApplyRemote(k.log, k.tree, envelope, envelope.Ts); err != nil {
		k.logger.Warn().Err(err).Str("tag", string(op.Tag)).Msg("failed to apply remote operation")
		return
	}
	k.persistAndFanOut(envelope)
}

// baselineResult carries a fetchBaseline goroutine's outcome back onto
// the single-writer goroutine via k.baselineCh.
type baselineResult struct {
	root     *types.Node
	children []*types.Node
	err      error
}

// triggerRootRehydration runs the baseline GET off the single-writer
// goroutine (it's a blocking HTTP call) and posts the result back for
// run() to apply, so a slow or stuck origin server never stalls command
// processing.
func (k *Kernel) triggerRootRehydration() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), k.cfg.Timeout())
		defer cancel()
		root, children, err := k.sched.FetchBaseline(ctx, k.cfg.Namespace, rootID)
		select {
		case k.baselineCh <- baselineResult{root: root, children: children, err: err}:
		case <-k.stopCh:
		}
	}()
}

// applyBaseline runs on the single-writer goroutine: it turns a fetched
// baseline into a hydrate_node envelope that supersedes local drift for
// the root subtree, per spec's "reconnect baseline supersedes drift".
func (k *Kernel) applyBaseline(res baselineResult) {
	if res.err != nil || res.root == nil {
		k.logger.Warn().Err(res.err).Msg("baseline fetch failed")
		k.bus.Publish(&fanout.Message{Type: fanout.MsgRootHydrationFailed, Namespace: k.cfg.Namespace})
		return
	}
	envelope := &types.Envelope{
		ID:        uuid.NewString(),
		Namespace: k.cfg.Namespace,
		Ts:        time.Now(),
		Remote:    true,
		Processed: true,
		Op: types.Operation{
			Tag:             types.OpHydrateNode,
			Namespace:       k.cfg.Namespace,
			HydrateRoot:     res.root,
			HydrateChildren: res.children,
		},
	}
	if err := oplog.ApplyRemote(k.log, k.tree, envelope, envelope.Ts); err != nil {
		k.bus.Publish(&fanout.Message{Type: fanout.MsgRootHydrationFailed, Namespace: k.cfg.Namespace})
		return
	}
	k.persistAndFanOut(envelope)
	k.bus.Publish(&fanout.Message{Type: fanout.MsgRootHydrated, Namespace: k.cfg.Namespace})
	k.bus.Publish(&fanout.Message{Type: fanout.MsgTreeReloaded, Namespace: k.cfg.Namespace})
}

// SetNamespace switches the kernel to a different namespace: stops the
// event stream, wipes the store, rebuilds tree and log empty, fetches
// a fresh baseline for the new namespace, then restarts the stream.
func (k *Kernel) SetNamespace(namespace string) error {
	_, err := k.do(func() (interface{}, error) {
		k.teardownStreamLocked()

		if err := k.store.Clear(); err != nil {
			return nil, errs.Wrap(errs.ErrStoreUnavailable, err.Error())
		}

		k.cfg.Namespace = namespace
		k.tree = treemodel.New(namespace, rootID, time.Now())
		k.log = oplog.New()

		ctx, cancel := context.WithTimeout(context.Background(), k.cfg.Timeout())
		root, children, fetchErr := k.sched.FetchBaseline(ctx, namespace, rootID)
		cancel()
		if fetchErr != nil || root == nil {
			k.logger.Warn().Err(fetchErr).Str("namespace", namespace).Msg("baseline fetch failed during namespace switch")
			k.bus.Publish(&fanout.Message{Type: fanout.MsgRootHydrationFailed, Namespace: namespace})
		} else {
			envelope := &types.Envelope{
				ID:        uuid.NewString(),
				Namespace: namespace,
				Ts:        time.Now(),
				Remote:    true,
				Processed: true,
				Op: types.Operation{
					Tag:             types.OpHydrateNode,
					Namespace:       namespace,
					HydrateRoot:     root,
					HydrateChildren: children,
				},
			}
			if err := oplog.ApplyRemote(k.log, k.tree, envelope, envelope.Ts); err == nil {
				k.persistAndFanOut(envelope)
				k.bus.Publish(&fanout.Message{Type: fanout.MsgRootHydrated, Namespace: namespace})
			}
		}

		if len(k.conns) > 0 {
			k.ensureStreamLocked()
		}
		k.bus.Publish(&fanout.Message{Type: fanout.MsgTreeReloaded, Namespace: namespace})
		return nil, nil
	})
	return err
}

func (k *Kernel) reapStaleConnections() {
	cutoff := time.Now().Add(-5 * time.Minute)
	for id, c := range k.conns {
		if c.lastPing.Before(cutoff) {
			delete(k.conns, id)
		}
	}
	metrics.FanoutSubscribersTotal.Set(float64(len(k.conns)))
	if len(k.conns) == 0 && k.stream != nil {
		k.teardownStreamLocked()
	}
}

func (k *Kernel) teardownStreamLocked() {
	if k.streamCtx != nil {
		k.streamCtx()
	}
	k.stream = nil
	k.streamCtx = nil
}

func (k *Kernel) ensureStreamLocked() {
	if k.stream != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	k.stream = eventstream.NewClient(k.cfg.Namespace, k.upstreamWSURL(), k.cfg.Reconnect)
	k.streamCtx = cancel
	go k.stream.Run(ctx)
}

// upstreamWSURL derives the origin server's event stream endpoint from
// the configured base URL (http(s) -> ws(s), same host).
func (k *Kernel) upstreamWSURL() string {
	base := k.cfg.BaseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/stream/" + k.cfg.Namespace
}

// ---- Tree methods ----

// CreateFolder creates a new folder node. An empty parentID defaults to
// the namespace root, per parentId being optional on this operation.
func (k *Kernel) CreateFolder(parentID, title string, index *int) (*types.Envelope, error) {
	if parentID == "" {
		parentID = rootID
	}
	v, err := k.do(func() (interface{}, error) {
		return k.dispatch(types.Operation{
			Tag:      types.OpCreateFolder,
			NodeID:   uuid.NewString(),
			ParentID: parentID,
			Title:    title,
			Index:    index,
		})
	})
	return asEnvelope(v, err)
}

// CreateBookmark creates a new bookmark node. An empty parentID defaults
// to the namespace root, per parentId being optional on this operation.
func (k *Kernel) CreateBookmark(parentID, title, url string, index *int) (*types.Envelope, error) {
	if parentID == "" {
		parentID = rootID
	}
	v, err := k.do(func() (interface{}, error) {
		return k.dispatch(types.Operation{
			Tag:      types.OpCreateBookmark,
			NodeID:   uuid.NewString(),
			ParentID: parentID,
			Title:    title,
			URL:      url,
			Index:    index,
		})
	})
	return asEnvelope(v, err)
}

// RemoveNode removes a node and its descendants.
func (k *Kernel) RemoveNode(nodeID string) (*types.Envelope, error) {
	v, err := k.do(func() (interface{}, error) {
		return k.dispatch(types.Operation{Tag: types.OpRemoveNode, TargetID: nodeID})
	})
	return asEnvelope(v, err)
}

// MoveNode relocates a node to a new parent folder.
func (k *Kernel) MoveNode(nodeID, toFolderID string, index *int) (*types.Envelope, error) {
	v, err := k.do(func() (interface{}, error) {
		return k.dispatch(types.Operation{
			Tag:        types.OpMoveNode,
			TargetID:   nodeID,
			ToFolderID: toFolderID,
			Index:      index,
		})
	})
	return asEnvelope(v, err)
}

// ReorderNodes moves a sibling from fromIndex to toIndex within folderID.
func (k *Kernel) ReorderNodes(folderID string, fromIndex, toIndex int) (*types.Envelope, error) {
	v, err := k.do(func() (interface{}, error) {
		return k.dispatch(types.Operation{
			Tag:       types.OpReorder,
			FolderID:  folderID,
			FromIndex: fromIndex,
			ToIndex:   toIndex,
		})
	})
	return asEnvelope(v, err)
}

// ToggleFolder flips or sets a folder's open state.
func (k *Kernel) ToggleFolder(folderID string, open *bool) (*types.Envelope, error) {
	v, err := k.do(func() (interface{}, error) {
		return k.dispatch(types.Operation{Tag: types.OpToggleFolder, FolderID: folderID, Open: open})
	})
	return asEnvelope(v, err)
}

// MarkFolderAsLoaded records that folderID's children have been fetched.
func (k *Kernel) MarkFolderAsLoaded(folderID string) (*types.Envelope, error) {
	v, err := k.do(func() (interface{}, error) {
		return k.dispatch(types.Operation{Tag: types.OpMarkLoaded, FolderID: folderID})
	})
	return asEnvelope(v, err)
}

// LoadFolderData returns folderID's current children, for lazy-loading
// UIs that fetch a folder's contents on first expand.
func (k *Kernel) LoadFolderData(folderID string) ([]*types.Node, error) {
	v, err := k.do(func() (interface{}, error) {
		return k.tree.ListChildren(folderID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*types.Node), nil
}

// ---- State methods ----

// GetTree returns every node below the root folder (the root itself is
// not included), in depth-first sibling order, as an immutable
// snapshot (clones, so tabs can't mutate kernel state by reference).
func (k *Kernel) GetTree() ([]*types.Node, error) {
	v, err := k.do(func() (interface{}, error) {
		roots, err := k.tree.RootsOf()
		if err != nil {
			return nil, err
		}
		var out []*types.Node
		var walk func(id string)
		walk = func(id string) {
			children, err := k.tree.ListChildren(id)
			if err != nil {
				return
			}
			for _, c := range children {
				out = append(out, c.Clone())
				if c.Kind == types.KindFolder {
					walk(c.ID)
				}
			}
		}
		for _, r := range roots {
			out = append(out, r.Clone())
			walk(r.ID)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*types.Node), nil
}

// GetNode returns a single node's snapshot.
func (k *Kernel) GetNode(id string) (*types.Node, error) {
	v, err := k.do(func() (interface{}, error) {
		n, err := k.tree.RequireNode(id)
		if err != nil {
			return nil, err
		}
		return n.Clone(), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.Node), nil
}

// GetChildren returns folderID's direct children.
func (k *Kernel) GetChildren(folderID string) ([]*types.Node, error) {
	return k.LoadFolderData(folderID)
}

// GetOperationLog returns every envelope recorded so far, in ts order.
func (k *Kernel) GetOperationLog() ([]*types.Envelope, error) {
	v, err := k.do(func() (interface{}, error) {
		all := k.log.All()
		out := make([]*types.Envelope, len(all))
		for i, e := range all {
			out[i] = e.Clone()
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*types.Envelope), nil
}

// Namespace returns the namespace the kernel currently serves. Routed
// through the single-writer goroutine since SetNamespace can change it
// concurrently with this read.
func (k *Kernel) Namespace() (string, error) {
	v, err := k.do(func() (interface{}, error) {
		return k.cfg.Namespace, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// ---- Connection methods ----

// Connect registers tabID as a connected tab, subscribing it to the
// fan-out bus and starting the event stream if this is the first tab.
func (k *Kernel) Connect(tabID string) (fanout.Subscriber, error) {
	v, err := k.do(func() (interface{}, error) {
		k.conns[tabID] = &connInfo{tabID: tabID, lastPing: time.Now()}
		k.ensureStreamLocked()
		metrics.FanoutSubscribersTotal.Set(float64(len(k.conns)))
		return k.bus.Subscribe(), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(fanout.Subscriber), nil
}

// Disconnect drops tabID; the stream is torn down once the last tab
// disconnects (also swept by the periodic reap).
func (k *Kernel) Disconnect(tabID string, sub fanout.Subscriber) error {
	_, err := k.do(func() (interface{}, error) {
		delete(k.conns, tabID)
		k.bus.Unsubscribe(sub)
		metrics.FanoutSubscribersTotal.Set(float64(len(k.conns)))
		if len(k.conns) == 0 {
			k.teardownStreamLocked()
		}
		return nil, nil
	})
	return err
}

// Ping refreshes tabID's liveness so the 5-minute reap doesn't drop it.
func (k *Kernel) Ping(tabID string) error {
	_, err := k.do(func() (interface{}, error) {
		if c, ok := k.conns[tabID]; ok {
			c.lastPing = time.Now()
		}
		return nil, nil
	})
	return err
}

// GetSSEState returns the event stream's current connection state.
func (k *Kernel) GetSSEState() (eventstream.State, error) {
	v, err := k.do(func() (interface{}, error) {
		if k.stream == nil {
			return eventstream.StateDisconnected, nil
		}
		return k.stream.State(), nil
	})
	if err != nil {
		return eventstream.StateDisconnected, err
	}
	return v.(eventstream.State), nil
}

// ---- Sync methods ----

// GetSyncStatus reports the namespace's online state and pending count.
func (k *Kernel) GetSyncStatus() (SyncStatus, error) {
	v, err := k.do(func() (interface{}, error) {
		pending, err := k.store.GetPending(k.cfg.Namespace)
		if err != nil {
			return nil, err
		}
		return SyncStatus{
			Namespace:    k.cfg.Namespace,
			Online:       k.prober.Online(),
			PendingCount: len(pending),
			FailedCount:  k.sched.FailedCount(k.cfg.Namespace),
		}, nil
	})
	if err != nil {
		return SyncStatus{}, err
	}
	return v.(SyncStatus), nil
}

// ForceSyncOperation schedules namespace's next sync cycle immediately
// rather than waiting for the batch window.
func (k *Kernel) ForceSyncOperation() error {
	_, err := k.do(func() (interface{}, error) {
		k.sched.TriggerCycle(k.cfg.Namespace)
		return nil, nil
	})
	return err
}

// SyncOperationImmediately delivers exactly one pending envelope right
// away, bypassing the batch window entirely (unlike ForceSyncOperation,
// which just schedules the namespace's next whole-batch cycle early).
// Delivery failures are never surfaced as errors here; the bool result
// is the only outcome the caller sees, per the sync transport's policy
// of keeping remote errors internal to the scheduler's retry table.
func (k *Kernel) SyncOperationImmediately(envelopeID string) bool {
	v, err := k.do(func() (interface{}, error) {
		all, err := k.store.GetAllOperations()
		if err != nil {
			return nil, err
		}
		for _, e := range all {
			if e.ID == envelopeID && !e.Processed {
				return e.Clone(), nil
			}
		}
		return nil, nil
	})
	if err != nil || v == nil {
		return false
	}
	envelope, ok := v.(*types.Envelope)
	if !ok || envelope == nil {
		return false
	}
	return k.sched.DeliverNow(envelope)
}

func asEnvelope(v interface{}, err error) (*types.Envelope, error) {
	if err != nil {
		return nil, err
	}
	return v.(*types.Envelope), nil
}
