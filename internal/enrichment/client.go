// Package enrichment fetches raw page material for an (item, role) from the
// enrichment service over gRPC.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ak125/contentgate/internal/content"
)

// ErrNoMaterial reports that the service has nothing for the item. It is a
// neutral absence, not a failure.
var ErrNoMaterial = errors.New("enrichment: no material")

// #region config
type Config struct {
	Timeout          time.Duration // per attempt
	MaxAttempts      int
	RetryInterval    time.Duration // first backoff interval
	BreakerFailures  uint32
	BreakerOpenDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		Timeout:          10 * time.Second,
		MaxAttempts:      3,
		RetryInterval:    200 * time.Millisecond,
		BreakerFailures:  5,
		BreakerOpenDelay: 30 * time.Second,
	}
}

// #endregion config

// #region client
// Client wraps the gRPC connection to the enrichment service.
type Client struct {
	conn    grpc.ClientConnInterface
	closer  func() error
	config  Config
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

// Dial connects to the enrichment service at addr.
func Dial(addr string, config Config, log *zap.Logger) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	c := NewClientWithConn(conn, config, log)
	c.closer = conn.Close
	return c, nil
}

// NewClientWithConn builds a client over an existing connection.
func NewClientWithConn(conn grpc.ClientConnInterface, config Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.BreakerFailures == 0 {
		config.BreakerFailures = DefaultConfig().BreakerFailures
	}
	c := &Client{conn: conn, config: config, log: log}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "enrichment",
		MaxRequests: 1,
		Timeout:     config.BreakerOpenDelay,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !transient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return c
}

// Close shuts down the connection when the client owns it.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

// #endregion client

// #region fetch
// Fetch returns the material for (itemID, role) restricted to scope.
// Transient failures are retried with exponential backoff; a response with
// no section text, or a NotFound status, yields ErrNoMaterial.
func (c *Client) Fetch(ctx context.Context, itemID string, role content.Role, scope content.Scope) (content.Material, error) {
	if scope == "" {
		scope = content.ScopeDefault
	}
	req, err := encodeRequest(Request{ItemID: itemID, Role: role, Scope: scope})
	if err != nil {
		return content.Material{}, fmt.Errorf("encode request: %w", err)
	}

	attempts := 0
	operation := func() (*structpb.Struct, error) {
		attempts++
		out, err := c.breaker.Execute(func() (interface{}, error) {
			return c.invoke(ctx, req)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) || !transient(err) {
				return nil, backoff.Permanent(err)
			}
			c.log.Debug("enrichment fetch retry", zap.String("item_id", itemID), zap.Int("attempt", attempts), zap.Error(err))
			return nil, err
		}
		return out.(*structpb.Struct), nil
	}

	expo := backoff.NewExponentialBackOff()
	if c.config.RetryInterval > 0 {
		expo.InitialInterval = c.config.RetryInterval
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(c.config.MaxAttempts-1)), ctx)

	resp, err := backoff.RetryWithData(operation, policy)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return content.Material{}, ErrNoMaterial
		}
		return content.Material{}, fmt.Errorf("fetch %s/%s after %d attempts: %w", itemID, role, attempts, err)
	}

	m, err := decodeMaterial(resp)
	if err != nil {
		return content.Material{}, err
	}
	m = normalize(m, itemID)
	if m.Empty() {
		return content.Material{}, ErrNoMaterial
	}
	return m, nil
}

func (c *Client) invoke(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, FetchMethod, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// #endregion fetch

// #region helpers
func transient(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted, codes.Internal:
		return true
	}
	return false
}

func normalize(m content.Material, itemID string) content.Material {
	if m.Item.ID == "" {
		m.Item.ID = itemID
	}
	sections := m.Sections[:0]
	for _, s := range m.Sections {
		if strings.TrimSpace(s.HTML) == "" {
			continue
		}
		if s.Source == "" {
			s.Source = content.SourceRAG
		}
		sections = append(sections, s)
	}
	m.Sections = sections
	for i, e := range m.Evidence {
		if utf8.RuneCountInString(e.Excerpt) > content.MaxExcerptLen {
			m.Evidence[i].Excerpt = string([]rune(e.Excerpt)[:content.MaxExcerptLen])
		}
	}
	return m
}

// #endregion helpers
