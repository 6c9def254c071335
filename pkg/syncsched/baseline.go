package syncsched

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cuemby/bkmsync/pkg/errs"
	"github.com/cuemby/bkmsync/pkg/types"
)

// baselineResponse matches GET /namespaces/{namespace}/tree/{nodeId}'s
// JSON body: the authoritative subtree rooted at nodeId.
type baselineResponse struct {
	Node     *types.Node   `json:"node"`
	Children []*types.Node `json:"children"`
}

// FetchBaseline retrieves the authoritative subtree for nodeId, used by
// the kernel on stable reconnect (and on namespace switch) to supersede
// local drift with server state.
func (s *Scheduler) FetchBaseline(ctx context.Context, namespace, nodeID string) (*types.Node, []*types.Node, error) {
	url := fmt.Sprintf("%s/namespaces/%s/tree/%s", s.baseURL, namespace, nodeID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, nil, errs.Wrap(errs.ErrOutboundTimeout, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, nil, errs.Wrap(errs.ErrOutboundHTTPError, resp.Status)
	}

	var body baselineResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, nil, err
	}
	return body.Node, body.Children, nil
}
