package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-browser/extengine/internal/domain/extension"
	"github.com/lumen-browser/extengine/internal/domain/inject"
	"github.com/lumen-browser/extengine/internal/domain/messaging"
	"github.com/lumen-browser/extengine/internal/domain/webrequest"
	"github.com/lumen-browser/extengine/internal/infrastructure/monitoring"
	"github.com/lumen-browser/extengine/internal/shared/types"
	"github.com/lumen-browser/extengine/internal/ws"
)

type testEnv struct {
	router   *gin.Engine
	manager  *extension.Manager
	injector *inject.Injector
	engine   *webrequest.Engine
	bus      *messaging.Bus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	injector := inject.NewInjector(nil)
	engine := webrequest.NewEngine(nil)
	bus := messaging.NewBus(0, nil)
	channels := ws.NewHandler(engine, bus, nil, nil)
	manager := extension.NewManager(injector, engine, channels, nil)
	metrics := monitoring.NewMetricsWith(prometheus.NewRegistry())

	handlers := NewHandlers(manager, injector, engine, bus, metrics, time.Second, nil)
	router := gin.New()
	handlers.Register(router)

	return &testEnv{
		router:   router,
		manager:  manager,
		injector: injector,
		engine:   engine,
		bus:      bus,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func installExtension(t *testing.T, e *testEnv, manifest string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/extensions", manifest)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	ext := body["extension"].(map[string]interface{})
	return ext["id"].(string)
}

const earlyBirdManifest = `{
	"name": "early-bird",
	"version": "1.0.0",
	"manifest_version": 3,
	"content_scripts": [
		{"matches": ["https://*/*"], "js": ["a.js"], "run_at": "document_start"}
	]
}`

const lateRiserManifest = `{
	"name": "late-riser",
	"version": "1.0.0",
	"manifest_version": 3,
	"content_scripts": [
		{"matches": ["https://*/*"], "js": ["b.js"]}
	]
}`

func TestInjectionTimingFlow(t *testing.T) {
	e := newTestEnv(t)

	idA := installExtension(t, e, earlyBirdManifest)
	idB := installExtension(t, e, lateRiserManifest)

	for _, id := range []string{idA, idB} {
		w := e.do(t, http.MethodPost, "/extensions/"+id+"/enable", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	// document_start serves only a.js.
	w := e.do(t, http.MethodGet, "/injections?url=https://x.com&run_at=document_start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	scripts := body["scripts"].([]interface{})
	require.Len(t, scripts, 1)
	assert.Equal(t, "a.js", scripts[0].(map[string]interface{})["source"])

	// b.js declared no timing, so it defaults to document_idle.
	w = e.do(t, http.MethodGet, "/injections?url=https://x.com&run_at=document_idle", nil)
	body = decode(t, w)
	scripts = body["scripts"].([]interface{})
	require.Len(t, scripts, 1)
	assert.Equal(t, "b.js", scripts[0].(map[string]interface{})["source"])

	// Without a timing filter both are returned.
	w = e.do(t, http.MethodGet, "/injections?url=https://x.com", nil)
	body = decode(t, w)
	assert.Len(t, body["scripts"].([]interface{}), 2)

	// Disabling an extension removes its scripts immediately.
	w = e.do(t, http.MethodPost, "/extensions/"+idA+"/disable", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, http.MethodGet, "/injections?url=https://x.com&run_at=document_start", nil)
	body = decode(t, w)
	assert.Empty(t, body["scripts"])
}

func TestInstallRejectsInvalidManifest(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/extensions", `{"name": "no-version"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/extensions", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInstallDuplicateConflicts(t *testing.T) {
	e := newTestEnv(t)

	installExtension(t, e, earlyBirdManifest)
	w := e.do(t, http.MethodPost, "/extensions", earlyBirdManifest)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestEnableDangerousNeedsConsent(t *testing.T) {
	e := newTestEnv(t)
	id := installExtension(t, e, `{
		"name": "snoop",
		"version": "1.0.0",
		"manifest_version": 3,
		"permissions": ["history"]
	}`)

	w := e.do(t, http.MethodPost, "/extensions/"+id+"/enable", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, http.MethodPost, "/extensions/"+id+"/enable", map[string]bool{"consent": true})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetUnknownExtension(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodGet, "/extensions/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListFiltersByState(t *testing.T) {
	e := newTestEnv(t)
	idA := installExtension(t, e, earlyBirdManifest)
	installExtension(t, e, lateRiserManifest)
	e.do(t, http.MethodPost, "/extensions/"+idA+"/enable", nil)

	w := e.do(t, http.MethodGet, "/extensions?state=enabled", nil)
	body := decode(t, w)
	assert.Equal(t, float64(1), body["count"])

	w = e.do(t, http.MethodGet, "/extensions", nil)
	body = decode(t, w)
	assert.Equal(t, float64(2), body["count"])
}

func TestFireRequestEventResolvesCancel(t *testing.T) {
	e := newTestEnv(t)

	e.engine.AddListener("blocker", types.OnBeforeRequest,
		types.NewRequestFilter("https://ads.example/*"),
		func(ctx context.Context, d types.RequestDetails) (types.RequestAction, error) {
			return types.Cancel(), nil
		})

	w := e.do(t, http.MethodPost, "/requests/events", map[string]interface{}{
		"event": "on_before_request",
		"details": map[string]interface{}{
			"url":    "https://ads.example/banner.js",
			"method": "GET",
			"type":   "script",
			"tab_id": 1,
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	action := body["action"].(map[string]interface{})
	assert.Equal(t, "cancel", action["kind"])
	assert.NotEmpty(t, body["request_id"], "engine must assign a request id")

	// Unmatched URL continues.
	w = e.do(t, http.MethodPost, "/requests/events", map[string]interface{}{
		"event": "on_before_request",
		"details": map[string]interface{}{
			"url":    "https://news.example/",
			"method": "GET",
			"type":   "main_frame",
		},
	})
	body = decode(t, w)
	assert.Equal(t, "continue", body["action"].(map[string]interface{})["kind"])
}

func TestActiveRequestsLifecycleOverAPI(t *testing.T) {
	e := newTestEnv(t)

	details := map[string]interface{}{
		"request_id": "req-42",
		"url":        "https://example.com/",
		"method":     "GET",
		"type":       "main_frame",
	}
	e.do(t, http.MethodPost, "/requests/events", map[string]interface{}{
		"event": "on_before_request", "details": details,
	})

	w := e.do(t, http.MethodGet, "/requests/active", nil)
	body := decode(t, w)
	assert.Equal(t, float64(1), body["count"])

	e.do(t, http.MethodPost, "/requests/events", map[string]interface{}{
		"event": "on_completed", "details": details,
	})
	w = e.do(t, http.MethodGet, "/requests/active", nil)
	body = decode(t, w)
	assert.Equal(t, float64(0), body["count"])
}

func TestMessagingRoundTripOverAPI(t *testing.T) {
	e := newTestEnv(t)
	ch := e.bus.RegisterChannel("ext-bg")

	go func() {
		msg := <-ch.C
		e.bus.HandleResponse(msg.ID, types.MessageResponse{Data: "pong"})
	}()

	w := e.do(t, http.MethodPost, "/messages/send-wait", map[string]interface{}{
		"from": "ext-bg",
		"message": map[string]interface{}{
			"target":  map[string]interface{}{"kind": "background"},
			"payload": "ping",
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	resp := body["response"].(map[string]interface{})
	assert.Equal(t, "pong", resp["data"])
}

func TestEnableWiresBackgroundChannel(t *testing.T) {
	e := newTestEnv(t)
	id := installExtension(t, e, earlyBirdManifest)

	w := e.do(t, http.MethodPost, "/extensions/"+id+"/enable", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// The enabled extension has a live background channel, so routing a
	// message to it succeeds without any manual channel setup.
	send := map[string]interface{}{
		"from": id,
		"message": map[string]interface{}{
			"target":  map[string]interface{}{"kind": "background"},
			"payload": "hello",
		},
	}
	w = e.do(t, http.MethodPost, "/messages/send", send)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Disabling tears the channel down again.
	w = e.do(t, http.MethodPost, "/extensions/"+id+"/disable", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, http.MethodPost, "/messages/send", send)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestSendToMissingChannel(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/messages/send", map[string]interface{}{
		"from": "ghost",
		"message": map[string]interface{}{
			"target": map[string]interface{}{"kind": "background"},
		},
	})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestSendWaitTimesOut(t *testing.T) {
	e := newTestEnv(t)
	e.bus.RegisterChannel("ext-bg")

	// Nobody answers; handler timeout is one second.
	w := e.do(t, http.MethodPost, "/messages/send-wait", map[string]interface{}{
		"from": "ext-bg",
		"message": map[string]interface{}{
			"target": map[string]interface{}{"kind": "background"},
		},
	})
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestContextMenusOverAPI(t *testing.T) {
	e := newTestEnv(t)
	id := installExtension(t, e, earlyBirdManifest)

	w := e.do(t, http.MethodPost, "/extensions/"+id+"/menus", map[string]interface{}{
		"id": "look-up", "title": "Look up selection", "contexts": []string{"selection"},
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = e.do(t, http.MethodDelete, "/extensions/"+id+"/menus/look-up", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodDelete, "/extensions/"+id+"/menus/look-up", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsJSON(t *testing.T) {
	e := newTestEnv(t)
	installExtension(t, e, earlyBirdManifest)

	w := e.do(t, http.MethodGet, "/metrics/json", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	metrics := body["metrics"].(map[string]interface{})
	assert.Equal(t, float64(1), metrics["extensions_installed"])
}
