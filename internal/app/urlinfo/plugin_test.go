package urlinfo

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu     sync.Mutex
	calls  []string
	result FetchResult
	err    error
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rawURL)
	return f.result, f.err
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type sent struct {
	target string
	text   string
}

type recordingSink struct {
	mu  sync.Mutex
	out []sent
}

func (s *recordingSink) Send(_ context.Context, target, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = append(s.out, sent{target: target, text: text})
	return nil
}

func (s *recordingSink) Sent() []sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sent(nil), s.out...)
}

func htmlPage(title string) FetchResult {
	return FetchResult{
		Body:    []byte("<html><head><title>" + title + "</title></head><body>hi</body></html>"),
		Header:  http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		Status:  http.StatusOK,
		Elapsed: 1234 * time.Millisecond,
	}
}

var channelMsg = Message{Source: "#go", Nick: "alice", Channel: "#go"}

func TestPluginGenericPipeline(t *testing.T) {
	ev := NewEvents()
	require.NoError(t, ev.OnShortenAll(func(_ context.Context, req ShortenRequest) error {
		req.Acceptor.Accept("https://s.example/x")
		return nil
	}))
	fetcher := &fakeFetcher{result: htmlPage("Example Page")}
	p, err := New(ev, Options{
		Fetcher: fetcher,
		Handler: NewDefaultHandler("[ %url-short% ] %title% (%http-status-code%, %timing%s)"),
	})
	require.NoError(t, err)

	sink := &recordingSink{}
	msg := channelMsg
	msg.Text = "check http://example.com/page out"
	require.NoError(t, p.HandleMessage(context.Background(), msg, sink))
	p.Wait()

	assert.Equal(t, []string{"http://example.com/page"}, fetcher.Calls())
	assert.Equal(t, []sent{{target: "#go", text: "[ https://s.example/x ] Example Page (200, 1.23s)"}}, sink.Sent())
}

func TestPluginCorrectsSchemelessURL(t *testing.T) {
	fetcher := &fakeFetcher{result: htmlPage("Example Org")}
	p, err := New(NewEvents(), Options{Fetcher: fetcher})
	require.NoError(t, err)

	sink := &recordingSink{}
	msg := Message{Nick: "bob", Text: "see example.org"}
	require.NoError(t, p.HandleMessage(context.Background(), msg, sink))
	p.Wait()

	assert.Equal(t, []string{"http://example.org/"}, fetcher.Calls())
	assert.Equal(t, []sent{{target: "bob", text: "[ http://example.org/ ] Example Org"}}, sink.Sent())
}

func TestPluginIgnoresMailAddresses(t *testing.T) {
	fetcher := &fakeFetcher{result: htmlPage("x")}
	p, err := New(NewEvents(), Options{Fetcher: fetcher})
	require.NoError(t, err)

	sink := &recordingSink{}
	msg := channelMsg
	msg.Text = "mail alice@example.com"
	require.NoError(t, p.HandleMessage(context.Background(), msg, sink))

	handled, err := p.HandleURL(context.Background(), "alice@example.com", channelMsg, sink)
	require.NoError(t, err)
	assert.False(t, handled)
	p.Wait()

	assert.Empty(t, fetcher.Calls())
	assert.Empty(t, sink.Sent())
}

func TestPluginSchemelessURLWithQueryIsNotCorrected(t *testing.T) {
	ev := NewEvents()
	hostCalled := false
	require.NoError(t, ev.OnHost("youtube.com", func(context.Context, *Request) error {
		hostCalled = true
		return nil
	}))
	fetcher := &fakeFetcher{err: errors.New(`unsupported protocol scheme ""`)}
	p, err := New(ev, Options{Fetcher: fetcher})
	require.NoError(t, err)

	sink := &recordingSink{}
	msg := channelMsg
	msg.Text = "watch youtube.com/watch?v=x"
	require.NoError(t, p.HandleMessage(context.Background(), msg, sink))
	p.Wait()

	assert.False(t, hostCalled)
	assert.Equal(t, []string{"youtube.com/watch?v=x"}, fetcher.Calls())
	assert.Equal(t, []sent{{target: "#go", text: `[ youtube.com/watch?v=x ] error: unsupported protocol scheme ""`}}, sink.Sent())
}

func TestPluginHostOverrideSkipsFetch(t *testing.T) {
	ev := NewEvents()
	var order []string
	require.NoError(t, ev.OnHost("youtube.com", func(ctx context.Context, req *Request) error {
		order = append(order, "host:"+req.URL)
		return req.Reply(ctx, "video!")
	}))
	require.NoError(t, ev.OnAnyURL(func(_ context.Context, req *Request) error {
		order = append(order, "all:"+req.URL)
		return nil
	}))
	fetcher := &fakeFetcher{}
	p, err := New(ev, Options{Fetcher: fetcher})
	require.NoError(t, err)

	sink := &recordingSink{}
	handled, err := p.HandleURL(context.Background(), "https://YouTube.com/watch?v=1", channelMsg, sink)
	p.Wait()

	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []string{
		"host:https://YouTube.com/watch?v=1",
		"all:https://YouTube.com/watch?v=1",
	}, order)
	assert.Empty(t, fetcher.Calls())
	assert.Equal(t, []sent{{target: "#go", text: "video!"}}, sink.Sent())
}

func TestPluginGenericStillEmitsAll(t *testing.T) {
	ev := NewEvents()
	seen := 0
	require.NoError(t, ev.OnAnyURL(func(context.Context, *Request) error {
		seen++
		return nil
	}))
	fetcher := &fakeFetcher{result: htmlPage("x")}
	p, err := New(ev, Options{Fetcher: fetcher})
	require.NoError(t, err)

	_, err = p.HandleURL(context.Background(), "http://example.com/", channelMsg, &recordingSink{})
	p.Wait()

	require.NoError(t, err)
	assert.Equal(t, 1, seen)
	assert.Len(t, fetcher.Calls(), 1)
}

func TestPluginEmitsOnly(t *testing.T) {
	ev := NewEvents()
	var seen []string
	require.NoError(t, ev.OnAnyURL(func(_ context.Context, req *Request) error {
		seen = append(seen, req.URL)
		return nil
	}))
	p, err := New(ev, Options{HostURLEmitsOnly: true})
	require.NoError(t, err)

	sink := &recordingSink{}
	msg := channelMsg
	msg.Text = "http://example.com/a and http://example.net/b"
	require.NoError(t, p.HandleMessage(context.Background(), msg, sink))
	p.Wait()

	assert.Equal(t, []string{"http://example.com/a", "http://example.net/b"}, seen)
	assert.Empty(t, sink.Sent())
}

func TestPluginMessageWithoutURLs(t *testing.T) {
	fetcher := &fakeFetcher{}
	p, err := New(NewEvents(), Options{Fetcher: fetcher})
	require.NoError(t, err)

	sink := &recordingSink{}
	msg := channelMsg
	msg.Text = "nothing to see here"
	require.NoError(t, p.HandleMessage(context.Background(), msg, sink))
	p.Wait()

	assert.Empty(t, fetcher.Calls())
	assert.Empty(t, sink.Sent())
}

func TestPluginFilterSuppresses(t *testing.T) {
	fetcher := &fakeFetcher{result: htmlPage("ok")}
	p, err := New(NewEvents(), Options{
		Fetcher: fetcher,
		Filter: FilterFunc(func(_ context.Context, rawURL string, _ Message) Decision {
			if HostOf(rawURL) == "blocked.net" {
				return Suppress
			}
			return Abstain
		}),
	})
	require.NoError(t, err)

	msg := channelMsg
	msg.Text = "http://blocked.net/x http://example.com/y"
	require.NoError(t, p.HandleMessage(context.Background(), msg, &recordingSink{}))
	p.Wait()

	assert.Equal(t, []string{"http://example.com/y"}, fetcher.Calls())
}

func TestPluginFetchErrorIsReported(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("connection refused")}
	p, err := New(NewEvents(), Options{Fetcher: fetcher})
	require.NoError(t, err)

	sink := &recordingSink{}
	_, err = p.HandleURL(context.Background(), "http://example.com/", channelMsg, sink)
	require.NoError(t, err)
	p.Wait()

	assert.Equal(t, []sent{{target: "#go", text: "[ http://example.com/ ] error: connection refused"}}, sink.Sent())
}

func TestPluginRejectsInvalidURL(t *testing.T) {
	ev := NewEvents()
	called := false
	require.NoError(t, ev.OnAnyURL(func(context.Context, *Request) error {
		called = true
		return nil
	}))
	fetcher := &fakeFetcher{}
	p, err := New(ev, Options{Fetcher: fetcher})
	require.NoError(t, err)

	for _, raw := range []string{"mailto:someone@example.com", "http://", ""} {
		handled, err := p.HandleURL(context.Background(), raw, channelMsg, &recordingSink{})
		require.NoError(t, err)
		assert.False(t, handled, raw)
	}
	p.Wait()

	assert.False(t, called)
	assert.Empty(t, fetcher.Calls())
}

func TestPluginListenerErrorSurfaces(t *testing.T) {
	ev := NewEvents()
	errOverride := errors.New("override broke")
	allCalled := false
	require.NoError(t, ev.OnHost("example.com", func(context.Context, *Request) error { return errOverride }))
	require.NoError(t, ev.OnAnyURL(func(context.Context, *Request) error {
		allCalled = true
		return nil
	}))
	p, err := New(ev, Options{HostURLEmitsOnly: true})
	require.NoError(t, err)

	handled, err := p.HandleURL(context.Background(), "http://example.com/", channelMsg, &recordingSink{})

	assert.True(t, handled)
	require.Error(t, err)
	assert.ErrorIs(t, err, errOverride)
	assert.True(t, allCalled)
}

func TestPluginHandleMessageJoinsErrors(t *testing.T) {
	ev := NewEvents()
	errOverride := errors.New("override broke")
	require.NoError(t, ev.OnHost("example.com", func(context.Context, *Request) error { return errOverride }))
	p, err := New(ev, Options{HostURLEmitsOnly: true})
	require.NoError(t, err)

	msg := channelMsg
	msg.Text = "http://example.com/1 http://example.com/2"
	err = p.HandleMessage(context.Background(), msg, &recordingSink{})

	require.Error(t, err)
	assert.ErrorIs(t, err, errOverride)
}

func TestPluginNilSink(t *testing.T) {
	p, err := New(NewEvents(), Options{HostURLEmitsOnly: true})
	require.NoError(t, err)
	assert.ErrorIs(t, p.HandleMessage(context.Background(), channelMsg, nil), ErrNoSink)
}

func TestNewValidatesAndSeals(t *testing.T) {
	_, err := New(nil, Options{HostURLEmitsOnly: true})
	assert.Error(t, err)

	_, err = New(NewEvents(), Options{})
	assert.Error(t, err, "fetcher is required for the generic pipeline")

	ev := NewEvents()
	p, err := New(ev, Options{Fetcher: &fakeFetcher{}})
	require.NoError(t, err)
	assert.Equal(t, DefaultShortenTimeout, p.Race().Timeout())
	assert.IsType(t, &DefaultHandler{}, p.Handler())
	assert.ErrorIs(t, ev.OnHost("example.com", func(context.Context, *Request) error { return nil }), ErrRouterSealed)
}
