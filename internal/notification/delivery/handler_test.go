package delivery

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nalgeon/be"
	"github.com/usemox/mox/pkg/logger"
)

type payloadRecorder struct {
	payloads []string
	err      error
}

func (p *payloadRecorder) HandlePayload(_ context.Context, data []byte) error {
	p.payloads = append(p.payloads, string(data))
	return p.err
}

func newRouter(h *PushHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.Register(r.Group("/api"))
	return r
}

func post(r http.Handler, url, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func envelope(payload string) string {
	return `{"message":{"data":"` + base64.StdEncoding.EncodeToString([]byte(payload)) + `","messageId":"1"},"subscription":"s"}`
}

func TestPushDecodesEnvelope(t *testing.T) {
	rec := &payloadRecorder{}
	r := newRouter(NewPushHandler(rec, "", logger.Discard()))

	w := post(r, "/api/push", envelope(`{"emailAddress":"a@example.com","historyId":5}`))
	be.Equal(t, w.Code, http.StatusNoContent)
	be.Equal(t, rec.payloads, []string{`{"emailAddress":"a@example.com","historyId":5}`})
}

func TestPushAcksRejectedPayload(t *testing.T) {
	rec := &payloadRecorder{err: context.DeadlineExceeded}
	r := newRouter(NewPushHandler(rec, "", logger.Discard()))

	w := post(r, "/api/push", envelope(`{}`))
	be.Equal(t, w.Code, http.StatusNoContent)
}

func TestPushRejectsMalformedEnvelope(t *testing.T) {
	rec := &payloadRecorder{}
	r := newRouter(NewPushHandler(rec, "", logger.Discard()))

	be.Equal(t, post(r, "/api/push", `not json`).Code, http.StatusBadRequest)
	be.Equal(t, post(r, "/api/push", `{"message":{"data":"%%%"}}`).Code, http.StatusBadRequest)
	be.Equal(t, len(rec.payloads), 0)
}

func TestPushChecksToken(t *testing.T) {
	rec := &payloadRecorder{}
	r := newRouter(NewPushHandler(rec, "s3cret", logger.Discard()))

	be.Equal(t, post(r, "/api/push", envelope(`{}`)).Code, http.StatusUnauthorized)
	be.Equal(t, post(r, "/api/push?token=s3cret", envelope(`{}`)).Code, http.StatusNoContent)
	be.Equal(t, len(rec.payloads), 1)
}
