package webrequest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lumen-browser/extengine/internal/shared/types"
)

func details(id, url string, resType types.ResourceType, tabID int) types.RequestDetails {
	return types.RequestDetails{
		RequestID: id,
		URL:       url,
		Method:    "GET",
		FrameID:   0,
		TabID:     tabID,
		Type:      resType,
		Timestamp: time.Now(),
	}
}

func continueListener() ListenerFunc {
	return func(ctx context.Context, d types.RequestDetails) (types.RequestAction, error) {
		return types.Continue(), nil
	}
}

func TestFireEventCollectsActions(t *testing.T) {
	e := NewEngine(nil)

	e.AddListener("ext-a", types.OnBeforeRequest, types.NewRequestFilter(), continueListener())
	e.AddListener("ext-b", types.OnBeforeRequest, types.NewRequestFilter(),
		func(ctx context.Context, d types.RequestDetails) (types.RequestAction, error) {
			return types.Cancel(), nil
		})

	actions := e.FireEvent(context.Background(), types.OnBeforeRequest,
		details("req-1", "https://example.com/", types.ResourceMainFrame, 1))

	if len(actions) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(actions))
	}
	if actions[0].Kind != types.ActionContinue || actions[1].Kind != types.ActionCancel {
		t.Errorf("actions must be collected in registration order: %v", actions)
	}
}

func TestFilterMatching(t *testing.T) {
	e := NewEngine(nil)

	urlFilter := types.NewRequestFilter("https://example.com/*")
	e.AddListener("ext-url", types.OnBeforeRequest, urlFilter, continueListener())

	typeFilter := types.NewRequestFilter()
	typeFilter.Types = []types.ResourceType{types.ResourceImage}
	e.AddListener("ext-type", types.OnBeforeRequest, typeFilter, continueListener())

	tabFilter := types.NewRequestFilter()
	tabFilter.TabID = 7
	e.AddListener("ext-tab", types.OnBeforeRequest, tabFilter, continueListener())

	// Matches URL filter only.
	actions := e.FireEvent(context.Background(), types.OnBeforeRequest,
		details("r1", "https://example.com/a", types.ResourceScript, 1))
	if len(actions) != 1 {
		t.Errorf("expected only the url-filtered listener, got %d actions", len(actions))
	}

	// Matches type and tab filters, not the URL filter.
	actions = e.FireEvent(context.Background(), types.OnBeforeRequest,
		details("r2", "https://other.com/img.png", types.ResourceImage, 7))
	if len(actions) != 2 {
		t.Errorf("expected type and tab listeners, got %d actions", len(actions))
	}
}

func TestFailingListenerIsSkipped(t *testing.T) {
	e := NewEngine(nil)

	e.AddListener("ext-broken", types.OnBeforeRequest, types.NewRequestFilter(),
		func(ctx context.Context, d types.RequestDetails) (types.RequestAction, error) {
			return types.RequestAction{}, errors.New("remote policy unavailable")
		})
	e.AddListener("ext-ok", types.OnBeforeRequest, types.NewRequestFilter(),
		func(ctx context.Context, d types.RequestDetails) (types.RequestAction, error) {
			return types.Redirect("https://safe.example/"), nil
		})

	actions := e.FireEvent(context.Background(), types.OnBeforeRequest,
		details("r1", "https://example.com/", types.ResourceMainFrame, 1))

	if len(actions) != 1 || actions[0].Kind != types.ActionRedirect {
		t.Errorf("failing listener must be skipped without blocking others: %v", actions)
	}
}

func TestActiveRequestLifecycle(t *testing.T) {
	e := NewEngine(nil)
	d := details("req-9", "https://example.com/", types.ResourceMainFrame, 1)

	e.FireEvent(context.Background(), types.OnBeforeRequest, d)
	if _, ok := e.RequestDetails("req-9"); !ok {
		t.Fatal("request should be tracked after OnBeforeRequest")
	}
	if len(e.ActiveRequests()) != 1 {
		t.Fatal("active table should hold one request")
	}

	d.StatusCode = 200
	e.FireEvent(context.Background(), types.OnCompleted, d)
	if _, ok := e.RequestDetails("req-9"); ok {
		t.Error("OnCompleted must remove the request from the active table")
	}
	if len(e.ActiveRequests()) != 0 {
		t.Error("active table should be empty after completion")
	}
}

func TestErrorOccurredFreesRequest(t *testing.T) {
	e := NewEngine(nil)
	d := details("req-err", "https://example.com/", types.ResourceMainFrame, 1)

	e.FireEvent(context.Background(), types.OnBeforeRequest, d)
	e.FireEvent(context.Background(), types.OnErrorOccurred, d)

	if _, ok := e.RequestDetails("req-err"); ok {
		t.Error("OnErrorOccurred must remove the request from the active table")
	}
}

func TestRemoveExtensionListeners(t *testing.T) {
	e := NewEngine(nil)
	e.AddListener("ext-a", types.OnBeforeRequest, types.NewRequestFilter(), continueListener())
	e.AddListener("ext-a", types.OnCompleted, types.NewRequestFilter(), continueListener())
	e.AddListener("ext-b", types.OnBeforeRequest, types.NewRequestFilter(), continueListener())

	e.RemoveExtensionListeners("ext-a")

	if n := e.ListenerCount(types.OnBeforeRequest); n != 1 {
		t.Errorf("expected 1 remaining on_before_request listener, got %d", n)
	}
	if n := e.ListenerCount(types.OnCompleted); n != 0 {
		t.Errorf("expected 0 remaining on_completed listeners, got %d", n)
	}
}

func TestResolveActions(t *testing.T) {
	redirect := types.Redirect("https://r.example/")

	cases := []struct {
		name    string
		actions []types.RequestAction
		want    types.ActionKind
	}{
		{"cancel beats everything", []types.RequestAction{types.Continue(), redirect, types.Cancel()}, types.ActionCancel},
		{"redirect beats continue", []types.RequestAction{types.Continue(), redirect}, types.ActionRedirect},
		{"continue alone", []types.RequestAction{types.Continue()}, types.ActionContinue},
		{"empty means continue", nil, types.ActionContinue},
		{"headers beat auth", []types.RequestAction{types.Auth("u", "p"), types.ModifyHeaders(map[string]string{"X": "1"})}, types.ActionModifyHeaders},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolveActions(tc.actions)
			if got.Kind != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got.Kind)
			}
		})
	}
}

func TestResolveActionsFirstOfKindWins(t *testing.T) {
	first := types.Redirect("https://first.example/")
	second := types.Redirect("https://second.example/")

	got := ResolveActions([]types.RequestAction{types.Continue(), first, second})
	if got.RedirectURL != first.RedirectURL {
		t.Errorf("first redirect in registration order must win, got %s", got.RedirectURL)
	}
}

func TestBreakerShortCircuitsFailingListener(t *testing.T) {
	e := NewEngine(nil)

	calls := 0
	e.AddListener("ext-flaky", types.OnBeforeRequest, types.NewRequestFilter(),
		func(ctx context.Context, d types.RequestDetails) (types.RequestAction, error) {
			calls++
			return types.RequestAction{}, errors.New("backend down")
		})

	for i := 0; i < breakerFailureThreshold; i++ {
		e.FireEvent(context.Background(), types.OnBeforeRequest,
			details("r", "https://example.com/", types.ResourceMainFrame, 1))
	}
	if calls != breakerFailureThreshold {
		t.Fatalf("expected %d calls before tripping, got %d", breakerFailureThreshold, calls)
	}

	// Tripped: further events skip the callback entirely.
	e.FireEvent(context.Background(), types.OnBeforeRequest,
		details("r", "https://example.com/", types.ResourceMainFrame, 1))
	if calls != breakerFailureThreshold {
		t.Errorf("open breaker must skip the callback, got %d calls", calls)
	}
}

func TestObserverSeesEveryEvent(t *testing.T) {
	e := NewEngine(nil)
	var seen []types.RequestEvent
	e.AddObserver(func(event types.RequestEvent, d types.RequestDetails) {
		seen = append(seen, event)
	})

	d := details("r", "https://example.com/", types.ResourceMainFrame, 1)
	e.FireEvent(context.Background(), types.OnBeforeRequest, d)
	e.FireEvent(context.Background(), types.OnCompleted, d)

	if len(seen) != 2 || seen[0] != types.OnBeforeRequest || seen[1] != types.OnCompleted {
		t.Errorf("observer should see both events in order, got %v", seen)
	}
}
