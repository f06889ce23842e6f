package onebot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/linjianyan0229/linbot2/pkg/errors"
)

// Params are the named parameters of an action call.
type Params map[string]interface{}

// Response is the correlated result of an action call.
type Response struct {
	Status  string      `json:"status"`
	RetCode int         `json:"retcode"`
	Data    interface{} `json:"data,omitempty"`
	Echo    string      `json:"echo,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Caller invokes a protocol action with named parameters and awaits the
// correlated response or a timeout. Plugin handlers use this to send
// replies.
type Caller interface {
	Call(ctx context.Context, action string, params Params) (*Response, error)
}

// HTTPCaller is a Caller over the OneBot HTTP API.
type HTTPCaller struct {
	client  *http.Client
	baseURL string
	timeout time.Duration
}

// HTTPCallerOption customizes an HTTPCaller.
type HTTPCallerOption func(*HTTPCaller)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) HTTPCallerOption {
	return func(c *HTTPCaller) { c.timeout = d }
}

// WithHTTPClient substitutes the HTTP client, mainly for tests.
func WithHTTPClient(client *http.Client) HTTPCallerOption {
	return func(c *HTTPCaller) { c.client = client }
}

// NewHTTPCaller creates a caller against the given endpoint base URL.
func NewHTTPCaller(baseURL string, opts ...HTTPCallerOption) *HTTPCaller {
	c := &HTTPCaller{
		client:  &http.Client{},
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call posts the action to <base>/<action> and decodes the correlated
// response. Timeouts and transport failures surface as ApiError.
func (c *HTTPCaller) Call(ctx context.Context, action string, params Params) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(params)
	if err != nil {
		return nil, errors.ErrApiError("encode parameters for action "+action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+action, bytes.NewReader(body))
	if err != nil {
		return nil, errors.ErrApiError("build request for action "+action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.ErrApiError("call action "+action, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.ErrApiError("read response for action "+action, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.ErrApiError(fmt.Sprintf("action %s returned HTTP %d", action, resp.StatusCode), nil)
	}

	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.ErrApiError("decode response for action "+action, err)
	}
	if out.Status == "failed" {
		return nil, errors.ErrApiError(fmt.Sprintf("action %s failed with retcode %d: %s", action, out.RetCode, out.Message), nil)
	}
	return &out, nil
}

// SendPrivateMsg sends a private message and is a convenience wrapper over
// Call for the most common plugin reply path.
func SendPrivateMsg(ctx context.Context, c Caller, userID int64, message string) error {
	_, err := c.Call(ctx, "send_private_msg", Params{"user_id": userID, "message": message})
	return err
}

// SendGroupMsg sends a group message.
func SendGroupMsg(ctx context.Context, c Caller, groupID int64, message string) error {
	_, err := c.Call(ctx, "send_group_msg", Params{"group_id": groupID, "message": message})
	return err
}
