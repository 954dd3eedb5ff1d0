package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"

	"github.com/okharin/mv-parser/internal/scrape"
)

func TestClassifyRunError(t *testing.T) {
	t.Parallel()

	f := &Fetcher{}
	bg := context.Background()

	cancelled, cancel := context.WithCancel(bg)
	cancel()
	err := f.classifyRunError(cancelled, bg, "https://shop.test/p/1", errors.New("boom"))
	if kind := scrape.Classify(err); kind != scrape.KindCancelled {
		t.Fatalf("expected cancelled, got %s", kind)
	}

	expired, expire := context.WithDeadline(bg, time.Now().Add(-time.Second))
	defer expire()
	err = f.classifyRunError(bg, expired, "https://shop.test/p/1", errors.New("boom"))
	if kind := scrape.Classify(err); kind != scrape.KindTimeout {
		t.Fatalf("expected timeout, got %s", kind)
	}

	err = f.classifyRunError(bg, bg, "https://shop.test/p/1", errors.New("page load error net::ERR_NAME_NOT_RESOLVED"))
	if kind := scrape.Classify(err); kind != scrape.KindNavigationFailed {
		t.Fatalf("expected navigation failure, got %s", kind)
	}

	err = f.classifyRunError(bg, bg, "https://shop.test/p/1", errors.New("websocket: close 1006"))
	if kind := scrape.Classify(err); kind != scrape.KindBrowserCrashed {
		t.Fatalf("expected browser crash, got %s", kind)
	}
}

func TestResponseMetaCapture(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	if got := meta.statusOr(200); got != 200 {
		t.Fatalf("expected fallback 200, got %d", got)
	}

	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 404},
	})
	if got := meta.statusOr(200); got != 200 {
		t.Fatalf("subresource status must not be recorded, got %d", got)
	}

	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 301},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 200},
	})
	if got := meta.statusOr(0); got != 200 {
		t.Fatalf("expected last document status, got %d", got)
	}
}

func TestPolitenessDelayBounds(t *testing.T) {
	t.Parallel()

	f := &Fetcher{}
	if err := f.politenessDelay(context.Background()); err != nil {
		t.Fatalf("zero delay must not wait or fail: %v", err)
	}

	f = &Fetcher{cfg: Config{MinDelay: time.Hour, MaxDelay: 2 * time.Hour}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := f.politenessDelay(ctx)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if kind := scrape.Classify(err); kind != scrape.KindCancelled {
		t.Fatalf("expected cancelled, got %s", kind)
	}
}

func TestUserAgentRotation(t *testing.T) {
	t.Parallel()

	f := &Fetcher{}
	if got := f.userAgent(); got != "" {
		t.Fatalf("expected empty user-agent, got %q", got)
	}

	f = &Fetcher{cfg: Config{UserAgents: []string{"ua-1", "ua-2"}}}
	for i := 0; i < 20; i++ {
		got := f.userAgent()
		if got != "ua-1" && got != "ua-2" {
			t.Fatalf("unexpected user-agent %q", got)
		}
	}
}

func TestIsNavigationError(t *testing.T) {
	t.Parallel()

	if isNavigationError(nil) {
		t.Fatal("nil error is not a navigation failure")
	}
	if !isNavigationError(errors.New("net::ERR_CONNECTION_REFUSED")) {
		t.Fatal("expected chrome network error to match")
	}
	if isNavigationError(errors.New("context deadline exceeded")) {
		t.Fatal("timeouts are classified separately")
	}
}
