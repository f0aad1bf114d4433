package apiclient

import "context"

// OptimisticUpdate applies an optimistic local mutation before the network
// round trip completes, rolling it back if the call fails (§4.6: "caller
// supplies rollback closure"). apply runs first; if the subsequent Do call
// returns an error, rollback runs before the error is returned.
func (c *Client) OptimisticUpdate(ctx context.Context, req Request, apply func(), rollback func()) (string, *Response, error) {
	apply()
	id, resp, err := c.Do(ctx, req)
	if err != nil {
		rollback()
	}
	return id, resp, err
}
