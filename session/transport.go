package session

import (
	"net/http"

	"github.com/jonwraymond/querysync/observe"
)

// Transport is an http.RoundTripper that authorizes requests with the
// session token. A 401 response triggers one token refresh and one retry
// when the session has a refresher and the request body can be replayed.
type Transport struct {
	Session *Session

	// Base performs the requests.
	// Default: http.DefaultTransport
	Base http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	header, err := t.Session.Header(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := t.base().RoundTrip(authorize(req, header))
	if err != nil || resp.StatusCode != http.StatusUnauthorized || !t.replayable(req) {
		return resp, err
	}

	token, err := t.Session.Refresh(ctx)
	if err != nil {
		t.Session.cfg.Logger.Warn(ctx, "token refresh after 401 failed",
			observe.Field{Key: "error", Value: err.Error()},
		)
		return resp, nil
	}
	_ = resp.Body.Close()

	retry := authorize(req, "Bearer "+token)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}
	return t.base().RoundTrip(retry)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) replayable(req *http.Request) bool {
	if t.Session.cfg.Refresh == nil {
		return false
	}
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

// authorize clones req, since a RoundTripper must not modify its input.
func authorize(req *http.Request, header string) *http.Request {
	out := req.Clone(req.Context())
	out.Header.Set("Authorization", header)
	return out
}
