package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	cws "github.com/coder/websocket"
	"github.com/urfave/cli"
)

// rpcClient speaks JSON-RPC 2.0 to the daemon's /rpc endpoint.
type rpcClient struct {
	addr   string
	secret string
	http   *http.Client
}

func newRPCClient(ctx *cli.Context) *rpcClient {
	return &rpcClient{
		addr:   ctx.String("addr"),
		secret: ctx.String("secret"),
		http:   &http.Client{Timeout: 5 * time.Minute},
	}
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// call invokes one method and decodes its result into out.
func (c *rpcClient) call(ctx context.Context, method string, params, out any) error {
	req := map[string]any{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		req["params"] = params
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+"/rpc", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.secret)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var body struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return fmt.Errorf("malformed response: %w", err)
	}
	if body.Error != nil {
		return body.Error
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body.Result, out)
}

// dialWS opens the daemon's push endpoint.
func (c *rpcClient) dialWS(ctx context.Context) (*cws.Conn, error) {
	wsURL := "ws://" + c.addr + "/ws"
	conn, _, err := cws.Dial(ctx, wsURL, &cws.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + c.secret}},
	})
	if err != nil {
		return nil, fmt.Errorf("is the daemon running? %w", err)
	}
	return conn, nil
}

func (c *rpcClient) baseURL() string {
	if strings.HasPrefix(c.addr, "http://") || strings.HasPrefix(c.addr, "https://") {
		return strings.TrimRight(c.addr, "/")
	}
	return "http://" + c.addr
}

// wsChannel adapts a websocket connection to the jrpc2 Channel
// interface.
type wsChannel struct {
	conn *cws.Conn
	ctx  context.Context
}

func (c *wsChannel) Send(data []byte) error {
	return c.conn.Write(c.ctx, cws.MessageText, data)
}

func (c *wsChannel) Recv() ([]byte, error) {
	_, data, err := c.conn.Read(c.ctx)
	return data, err
}

func (c *wsChannel) Close() error {
	return c.conn.Close(cws.StatusNormalClosure, "")
}
