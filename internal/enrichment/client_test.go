package enrichment

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/ak125/contentgate/internal/content"
)

// #region helpers
type fakeServer struct {
	calls   atomic.Int32
	failFor int32 // first N calls return Unavailable
	code    codes.Code
	last    atomic.Value
	reply   content.Material
}

func (f *fakeServer) Fetch(_ context.Context, req Request) (content.Material, error) {
	n := f.calls.Add(1)
	f.last.Store(req)
	if f.code != codes.OK {
		return content.Material{}, status.Error(f.code, "forced")
	}
	if n <= f.failFor {
		return content.Material{}, status.Error(codes.Unavailable, "warming up")
	}
	return f.reply, nil
}

func startClient(t *testing.T, srv Server, mutate func(*Config)) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	RegisterServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	cfg := DefaultConfig()
	cfg.Timeout = 5 * time.Second
	cfg.RetryInterval = time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}
	return NewClientWithConn(conn, cfg, nil)
}

func sampleMaterial() content.Material {
	ref := "doc-1"
	return content.Material{
		Item: content.Item{Label: "Brake pads", Description: "Friction pads", Protected: map[string]string{"title": "Brake pads"}},
		Sections: []content.RawSection{
			{Key: content.SectionIntro, HTML: "<p>Brake pads wear with use.</p>", Source: content.SourceDB},
			{Key: content.SectionFAQ, HTML: "  "},
			{Key: content.SectionTiming, HTML: "<p>Check every 20000 km.</p>"},
		},
		Claims: []content.Claim{{Kind: content.ClaimMileage, RawText: "20000 km", NormalizedValue: "20000", Unit: "km",
			SectionKey: content.SectionTiming, SourceRef: &ref, Status: content.ClaimVerified}},
		Evidence: []content.EvidenceEntry{{DocID: "doc-1", Heading: "Wear", Excerpt: strings.Repeat("a", 250), Confidence: 0.8}},
	}
}

// #endregion helpers

func TestFetch_DecodesMaterial(t *testing.T) {
	srv := &fakeServer{reply: sampleMaterial()}
	c := startClient(t, srv, nil)

	m, err := c.Fetch(context.Background(), "pads", content.RoleAdvice, "")
	require.NoError(t, err)

	req := srv.last.Load().(Request)
	assert.Equal(t, Request{ItemID: "pads", Role: content.RoleAdvice, Scope: content.ScopeDefault}, req)

	assert.Equal(t, "pads", m.Item.ID)
	assert.Equal(t, "Brake pads", m.Item.Protected["title"])
	require.Len(t, m.Sections, 2, "blank section dropped")
	assert.Equal(t, content.SourceDB, m.Sections[0].Source)
	assert.Equal(t, content.SourceRAG, m.Sections[1].Source)
	require.Len(t, m.Claims, 1)
	assert.Equal(t, "doc-1", *m.Claims[0].SourceRef)
	assert.Len(t, m.Evidence[0].Excerpt, content.MaxExcerptLen)
}

func TestFetch_RetriesTransientErrors(t *testing.T) {
	srv := &fakeServer{failFor: 2, reply: sampleMaterial()}
	c := startClient(t, srv, nil)

	_, err := c.Fetch(context.Background(), "pads", content.RoleRouter, content.ScopeEvidenceOnly)
	require.NoError(t, err)
	assert.Equal(t, int32(3), srv.calls.Load())
	assert.Equal(t, content.ScopeEvidenceOnly, srv.last.Load().(Request).Scope)
}

func TestFetch_GivesUpAfterMaxAttempts(t *testing.T) {
	srv := &fakeServer{failFor: 10, reply: sampleMaterial()}
	c := startClient(t, srv, nil)

	_, err := c.Fetch(context.Background(), "pads", content.RoleRouter, "")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoMaterial))
	assert.Equal(t, codes.Unavailable, status.Code(errors.Unwrap(err)))
	assert.Equal(t, int32(3), srv.calls.Load())
}

func TestFetch_PermanentErrorNotRetried(t *testing.T) {
	srv := &fakeServer{code: codes.InvalidArgument}
	c := startClient(t, srv, nil)

	_, err := c.Fetch(context.Background(), "pads", content.RoleRouter, "")
	require.Error(t, err)
	assert.Equal(t, int32(1), srv.calls.Load())
}

func TestFetch_NoMaterial(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		c := startClient(t, &fakeServer{code: codes.NotFound}, nil)
		_, err := c.Fetch(context.Background(), "ghost", content.RoleAdvice, "")
		assert.ErrorIs(t, err, ErrNoMaterial)
	})
	t.Run("blank sections", func(t *testing.T) {
		m := content.Material{Sections: []content.RawSection{{Key: content.SectionIntro, HTML: " "}}}
		c := startClient(t, &fakeServer{reply: m}, nil)
		_, err := c.Fetch(context.Background(), "pads", content.RoleAdvice, "")
		assert.ErrorIs(t, err, ErrNoMaterial)
	})
}

func TestFetch_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	srv := &fakeServer{failFor: 100}
	c := startClient(t, srv, func(cfg *Config) {
		cfg.MaxAttempts = 1
		cfg.BreakerFailures = 2
	})

	for i := 0; i < 2; i++ {
		_, err := c.Fetch(context.Background(), "pads", content.RoleAdvice, "")
		require.Error(t, err)
	}
	_, err := c.Fetch(context.Background(), "pads", content.RoleAdvice, "")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), srv.calls.Load())
}
