// Package httpclient wraps the hertz HTTP client for outbound JSON calls made by the
// collaborator packages. Every call is bounded by a per-call timeout and failures are
// classified as Timeout or CollaboratorFault.
package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	errs "github.com/cloudwego/hertz/pkg/common/errors"
	"github.com/cloudwego/hertz/pkg/protocol"

	"agent-orchestration-service/internal/models"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, body)
}

// Client issues JSON requests.
type Client struct {
	hc      *client.Client
	timeout time.Duration
}

// New builds a client whose calls time out after timeout (no limit when zero).
func New(timeout time.Duration) (*Client, error) {
	hc, err := client.NewClient(
		client.WithDialTimeout(10*time.Second),
		client.WithMaxConnsPerHost(64),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create hertz client: %w", err)
	}
	return &Client{hc: hc, timeout: timeout}, nil
}

// Request describes one JSON call. Body is marshalled when non-nil; Out is decoded from a
// 2xx response when non-nil.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    any
	Out     any
}

// Do performs the request. op names the call in error messages.
func (c *Client) Do(ctx context.Context, op string, r Request) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(resp)

	req.SetRequestURI(r.URL)
	req.SetMethod(r.Method)
	req.Header.Set("Accept", "application/json")
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	if r.Body != nil {
		payload, err := json.Marshal(r.Body)
		if err != nil {
			return models.NewError(models.KindCollaboratorFault, op+": encode request", err)
		}
		req.Header.SetContentTypeBytes([]byte("application/json"))
		req.SetBody(payload)
	}

	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = c.hc.DoDeadline(ctx, req, resp, deadline)
	} else {
		err = c.hc.Do(ctx, req, resp)
	}
	if err != nil {
		return Classify(ctx, op, err)
	}

	code := resp.StatusCode()
	if code < 200 || code >= 300 {
		return models.NewError(models.KindCollaboratorFault, op, &StatusError{Code: code, Body: string(resp.Body())})
	}
	if r.Out != nil {
		if err := json.Unmarshal(resp.Body(), r.Out); err != nil {
			return models.NewError(models.KindCollaboratorFault, op+": decode response", err)
		}
	}
	return nil
}

// Classify turns a transport error into a Timeout or CollaboratorFault.
func Classify(ctx context.Context, op string, err error) error {
	var netErr net.Error
	if errors.Is(err, errs.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(ctx.Err(), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return models.NewError(models.KindTimeout, op, err)
	}
	return models.NewError(models.KindCollaboratorFault, op, err)
}
