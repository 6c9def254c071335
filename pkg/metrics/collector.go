package metrics

import (
	"time"

	"github.com/cuemby/bkmsync/pkg/storage"
	"github.com/cuemby/bkmsync/pkg/types"
)

// Collector periodically samples the store to refresh gauges that
// aren't naturally updated by an event (tree size, pending count).
type Collector struct {
	store      storage.Store
	namespaces func() []string
	stopCh     chan struct{}
}

// NewCollector builds a Collector over store; namespaces is called on
// each tick to get the current set of active namespaces.
func NewCollector(store storage.Store, namespaces func() []string) *Collector {
	return &Collector{
		store:      store,
		namespaces: namespaces,
		stopCh:     make(chan struct{}),
	}
}

// Start begins collecting on a 15-second tick, in its own goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	for _, ns := range c.namespaces() {
		c.collectPending(ns)
		c.collectTreeSize(ns)
	}
}

func (c *Collector) collectPending(namespace string) {
	pending, err := c.store.GetPending(namespace)
	if err != nil {
		return
	}
	PendingOperations.WithLabelValues(namespace).Set(float64(len(pending)))
}

func (c *Collector) collectTreeSize(namespace string) {
	roots, err := c.store.RootsOf(namespace)
	if err != nil {
		return
	}
	counts := map[types.NodeKind]int{}
	var walk func(id string)
	walk = func(id string) {
		children, err := c.store.ChildrenOf(namespace, id)
		if err != nil {
			return
		}
		for _, child := range children {
			counts[child.Kind]++
			if child.Kind == types.KindFolder {
				walk(child.ID)
			}
		}
	}
	for _, r := range roots {
		counts[r.Kind]++
		walk(r.ID)
	}
	for kind, n := range counts {
		TreeNodesTotal.WithLabelValues(namespace, string(kind)).Set(float64(n))
	}
}
