package websocket

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tomwslape5638/vector/errors"
	"github.com/Tomwslape5638/vector/pkg/security"
	"github.com/Tomwslape5638/vector/pkg/tlsutil"
)

// Connector opens connections to one WebSocket endpoint. It holds only immutable settings
// and is safe for concurrent use, so the healthcheck and the run loop can share it.
type Connector struct {
	uri    string
	dialer *websocket.Dialer
	auth   *security.AuthConfig
}

// NewConnector resolves TLS settings for uri. TLS material that cannot be loaded is a
// configuration error.
func NewConnector(uri string, tlsCfg *security.ClientTLSConfig, auth *security.AuthConfig, handshakeTimeout time.Duration) (*Connector, error) {
	u, err := parseURI(uri)
	if err != nil {
		return nil, err
	}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}

	if tlsCfg.IsEnabled() && u.Scheme == "ws" {
		u.Scheme = "wss"
	}
	if u.Scheme == "wss" {
		tlsConfig, err := tlsutil.LoadClientTLSConfig(tlsCfg)
		if err != nil {
			return nil, err
		}
		dialer.TLSClientConfig = tlsConfig
	}

	return &Connector{uri: u.String(), dialer: dialer, auth: auth}, nil
}

// URI returns the resolved endpoint, with the scheme upgraded to wss when TLS is forced
func (c *Connector) URI() string {
	return c.uri
}

// Connect performs the opening handshake. Credentials are attached as an Authorization
// header. Every failure is transient.
func (c *Connector) Connect(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	c.auth.Apply(header)

	conn, resp, err := c.dialer.DialContext(ctx, c.uri, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w: %s: %v", errors.ErrUnexpectedStatus, resp.Status, err)
		}
		return nil, errors.WrapTransient(err, "Connector", "Connect", "websocket handshake")
	}
	return conn, nil
}

// Healthcheck connects and closes the connection again
func (c *Connector) Healthcheck(ctx context.Context) error {
	conn, err := c.Connect(ctx)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return conn.Close()
}
