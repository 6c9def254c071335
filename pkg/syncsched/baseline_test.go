package syncsched

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuemby/bkmsync/pkg/config"
	"github.com/cuemby/bkmsync/pkg/storage"
	"github.com/cuemby/bkmsync/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestFetchBaselineDecodesNodeAndChildren(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/namespaces/ns1/tree/root", r.URL.Path)
		json.NewEncoder(w).Encode(baselineResponse{
			Node:     &types.Node{ID: "root", Namespace: "ns1", Kind: types.KindFolder},
			Children: []*types.Node{{ID: "a", Namespace: "ns1", Kind: types.KindFolder, ParentID: "root"}},
		})
	}))
	defer server.Close()

	s := New(storage.NewMemStore(), server.URL, config.Defaults().Sync, time.Second)

	node, children, err := s.FetchBaseline(context.Background(), "ns1", "root")
	require.NoError(t, err)
	require.Equal(t, "root", node.ID)
	require.Len(t, children, 1)
	require.Equal(t, "a", children[0].ID)
}

func TestFetchBaselineSurfacesHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	s := New(storage.NewMemStore(), server.URL, config.Defaults().Sync, time.Second)

	_, _, err := s.FetchBaseline(context.Background(), "ns1", "root")
	require.Error(t, err)
}
