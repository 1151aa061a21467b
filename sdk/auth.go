package sdk

import "net/http"

// HeaderRequestID carries a per-request identifier for correlating client and
// controller logs.
const HeaderRequestID = "X-Request-ID"

// addAuthHeaders sets the bearer token when the client has one.
func (c *Client) addAuthHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
