package surface

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/nats-io/nats.go"

	"smartbus/internal/metrics"
	"smartbus/internal/route"
)

// Client connects the host to a remote map-rendering surface over NATS.
// The surface is an isolated single-consumer actor: outbound state goes to
// <prefix>.state, the surface announces readiness on <prefix>.ready and
// posts acknowledgments on <prefix>.events. Tracker marker positions are
// published on <prefix>.track.<route>.
type Client struct {
	nc          *nats.Conn
	prefix      string
	logSubjects bool
	metrics     *metrics.Collector
	subs        []*nats.Subscription
}

func Connect(url, prefix string, logSubjects bool, m *metrics.Collector) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.Name("smartbus-companion"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.SurfaceConnected.Set(0)
			}
			log.Printf("surface transport disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.SurfaceConnected.Set(1)
			}
			log.Printf("surface transport reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.SurfaceConnected.Set(0)
			}
			log.Printf("surface transport closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.SurfaceConnected.Set(1)
	}
	return &Client{nc: nc, prefix: prefix, logSubjects: logSubjects, metrics: m}, nil
}

// Send posts one encoded bridge message to the surface state subject. It
// satisfies the bridge Surface contract.
func (c *Client) Send(data []byte) error {
	subject := c.prefix + ".state"
	if c.logSubjects {
		log.Printf("surface publish subject=%s", subject)
	}
	return c.nc.Publish(subject, data)
}

// PublishMarker posts a tracker position. It satisfies the route
// MarkerPublisher contract.
func (c *Client) PublishMarker(routeKey string, msg route.MarkerMessage) error {
	subject := fmt.Sprintf("%s.track.%s", c.prefix, subjectToken(routeKey))
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if c.logSubjects {
		log.Printf("surface publish subject=%s", subject)
	}
	return c.nc.Publish(subject, b)
}

// ScrollTo posts a carousel scroll instruction. It satisfies the carousel
// View contract.
func (c *Client) ScrollTo(frame int, animated bool) {
	subject := c.prefix + ".carousel"
	b, _ := json.Marshal(struct {
		Frame    int  `json:"frame"`
		Animated bool `json:"animated"`
	}{Frame: frame, Animated: animated})
	if err := c.nc.Publish(subject, b); err != nil {
		log.Printf("carousel publish error: %v", err)
	}
}

// OnReady invokes fn whenever the surface announces readiness.
func (c *Client) OnReady(fn func()) error {
	sub, err := c.nc.Subscribe(c.prefix+".ready", func(_ *nats.Msg) { fn() })
	if err != nil {
		return err
	}
	c.subs = append(c.subs, sub)
	return nil
}

// OnEvent invokes fn with each raw payload the surface posts back
// (placement acknowledgments and the like).
func (c *Client) OnEvent(fn func(data []byte)) error {
	sub, err := c.nc.Subscribe(c.prefix+".events", func(m *nats.Msg) { fn(m.Data) })
	if err != nil {
		return err
	}
	c.subs = append(c.subs, sub)
	return nil
}

func (c *Client) Close() {
	for _, sub := range c.subs {
		sub.Unsubscribe()
	}
	if c.nc != nil {
		c.nc.Drain()
		c.nc.Close()
	}
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
