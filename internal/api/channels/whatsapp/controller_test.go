package whatsapp

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

const textDelivery = `{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{
	"messaging_product":"whatsapp",
	"contacts":[{"wa_id":"5511","profile":{"name":"Ana"}}],
	"messages":[{"from":"5511","id":"wamid.1","timestamp":"1767225600","type":"text","text":{"body":"hello"}}]}}]}]}`

func newTestRouter(t *testing.T, appSecret string) (*gin.Engine, *harness) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := newHarness(t, "")
	router := gin.New()
	RegisterRoutes(router, NewController(h.svc, "verify-me", appSecret))
	return router, h
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestVerifyWebhookEchoesChallenge(t *testing.T) {
	router, _ := newTestRouter(t, "")

	w := serve(router, httptest.NewRequest(http.MethodGet, WebhookPath+"?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=1158201444", nil))
	if w.Code != http.StatusOK || w.Body.String() != "1158201444" {
		t.Errorf("Got %d %q, want 200 with challenge", w.Code, w.Body.String())
	}

	w = serve(router, httptest.NewRequest(http.MethodGet, WebhookPath+"?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=1", nil))
	if w.Code != http.StatusForbidden {
		t.Errorf("Got %d, want 403 for wrong token", w.Code)
	}
}

func TestWebhookProcessesAndAcknowledges(t *testing.T) {
	router, h := newTestRouter(t, "")

	w := serve(router, httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(textDelivery)))
	if w.Code != http.StatusOK {
		t.Fatalf("Got %d, want 200", w.Code)
	}
	if b := h.sender.bodies(); len(b) != 1 || b[0] != "generated reply" {
		t.Errorf("Expected one generated reply, got %v", b)
	}

	// provider retry of the same delivery
	w = serve(router, httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(textDelivery)))
	if w.Code != http.StatusOK || len(h.sender.bodies()) != 1 {
		t.Errorf("Retry must be acknowledged without a second reply")
	}
}

func TestWebhookAlwaysReturns200(t *testing.T) {
	router, h := newTestRouter(t, "")

	bodies := []string{
		`not json`,
		`{}`,
		`{"entry":[{"changes":[{"value":{"statuses":[{"id":"x","status":"read"}]}}]}]}`,
	}
	for _, body := range bodies {
		w := serve(router, httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(body)))
		if w.Code != http.StatusOK {
			t.Errorf("Body %q: got %d, want 200", body, w.Code)
		}
	}
	if len(h.sender.bodies()) != 0 {
		t.Error("Nothing should be sent for empty or malformed deliveries")
	}
}

func TestWebhookSignatureCheck(t *testing.T) {
	router, h := newTestRouter(t, "app-secret")

	req := httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(textDelivery))
	req.Header.Set(SignatureHeader, "sha256=deadbeef")
	if w := serve(router, req); w.Code != http.StatusOK {
		t.Errorf("Bad signature: got %d, want 200", w.Code)
	}
	if len(h.sender.bodies()) != 0 {
		t.Fatal("Unsigned delivery must not be processed")
	}

	req = httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(textDelivery))
	req.Header.Set(SignatureHeader, Sign([]byte(textDelivery), "app-secret"))
	serve(router, req)
	if len(h.sender.bodies()) != 1 {
		t.Error("Signed delivery must be processed")
	}
}

func TestWebhookRejectsOtherMethods(t *testing.T) {
	router, _ := newTestRouter(t, "")

	for _, method := range []string{http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions} {
		w := serve(router, httptest.NewRequest(method, WebhookPath, nil))
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s: got %d, want 405", method, w.Code)
		}
		if w.Header().Get("Allow") != "GET, POST" {
			t.Errorf("%s: Allow = %q", method, w.Header().Get("Allow"))
		}
	}
}
