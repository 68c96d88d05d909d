package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/kolo/xmlrpc"

	"fseventwatcher/internal/restart"
)

// EnvServerURL is set by supervisord in the environment of its event
// listeners and points at the control socket.
const EnvServerURL = "SUPERVISOR_SERVER_URL"

const rpcPath = "/RPC2"

// ErrNotEventListener indicates the process was started outside supervisord.
var ErrNotEventListener = errors.New("must be run as a supervisor event listener (" + EnvServerURL + " is not set)")

// Client is the XML-RPC process-control client. It implements
// restart.ProcessClient.
type Client struct {
	rpc *xmlrpc.Client
}

type processInfo struct {
	Name      string `xmlrpc:"name"`
	Group     string `xmlrpc:"group"`
	State     int    `xmlrpc:"state"`
	StateName string `xmlrpc:"statename"`
	PID       int    `xmlrpc:"pid"`
}

// NewClientFromEnv builds a client from SUPERVISOR_SERVER_URL.
func NewClientFromEnv() (*Client, error) {
	serverURL := strings.TrimSpace(os.Getenv(EnvServerURL))
	if serverURL == "" {
		return nil, ErrNotEventListener
	}
	return NewClient(serverURL)
}

// NewClient connects to a supervisord control endpoint. Supported URLs are
// http(s)://host:port and unix:///path/to/supervisor.sock.
func NewClient(serverURL string) (*Client, error) {
	endpoint, transport, err := resolveEndpoint(serverURL)
	if err != nil {
		return nil, err
	}
	rpc, err := xmlrpc.NewClient(endpoint, transport)
	if err != nil {
		return nil, fmt.Errorf("create xmlrpc client: %w", err)
	}
	return &Client{rpc: rpc}, nil
}

func (client *Client) Close() error {
	if client == nil || client.rpc == nil {
		return nil
	}
	return client.rpc.Close()
}

// ListProcesses calls supervisor.getAllProcessInfo.
func (client *Client) ListProcesses() ([]restart.ProcessInfo, error) {
	var raw []processInfo
	if err := client.rpc.Call("supervisor.getAllProcessInfo", nil, &raw); err != nil {
		return nil, fmt.Errorf("getAllProcessInfo: %w", err)
	}

	infos := make([]restart.ProcessInfo, 0, len(raw))
	for _, info := range raw {
		infos = append(infos, restart.ProcessInfo{
			Name:      info.Name,
			Group:     info.Group,
			State:     info.State,
			StateName: info.StateName,
			PID:       info.PID,
		})
	}
	return infos, nil
}

// StopProcess calls supervisor.stopProcess for one namespec.
func (client *Client) StopProcess(namespec string) error {
	var ok bool
	if err := client.rpc.Call("supervisor.stopProcess", namespec, &ok); err != nil {
		return fmt.Errorf("stopProcess %s: %w", namespec, err)
	}
	return nil
}

// StartProcess calls supervisor.startProcess for one namespec.
func (client *Client) StartProcess(namespec string) error {
	var ok bool
	if err := client.rpc.Call("supervisor.startProcess", namespec, &ok); err != nil {
		return fmt.Errorf("startProcess %s: %w", namespec, err)
	}
	return nil
}

// resolveEndpoint maps a supervisord server URL onto an HTTP endpoint plus
// the transport reaching it. Unix socket URLs dial the socket while the
// request itself carries a placeholder host, matching how supervisord's own
// tooling talks to the socket.
func resolveEndpoint(serverURL string) (string, http.RoundTripper, error) {
	parsed, err := url.Parse(serverURL)
	if err != nil {
		return "", nil, fmt.Errorf("parse server url %q: %w", serverURL, err)
	}

	switch parsed.Scheme {
	case "http", "https":
		endpoint := *parsed
		if endpoint.Path == "" || endpoint.Path == "/" {
			endpoint.Path = rpcPath
		}
		return endpoint.String(), nil, nil
	case "unix":
		socketPath := parsed.Path
		if socketPath == "" {
			socketPath = parsed.Opaque
		}
		if socketPath == "" {
			return "", nil, fmt.Errorf("unix url %q has no socket path", serverURL)
		}
		transport := &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				var dialer net.Dialer
				return dialer.DialContext(ctx, "unix", socketPath)
			},
		}
		return "http://localhost" + rpcPath, transport, nil
	default:
		return "", nil, fmt.Errorf("unsupported server url scheme %q", parsed.Scheme)
	}
}
