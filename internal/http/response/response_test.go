package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func TestErrorAttachesRequestID(t *testing.T) {
	c, w := newTestContext()
	c.Set("request_id", "req-1")
	ErrorWithData(c, CodeConflict, "insufficient stock", map[string]interface{}{"product_id": 3})

	if w.Code != http.StatusOK {
		t.Fatalf("envelope errors keep HTTP 200, got %d", w.Code)
	}
	var body struct {
		StatusCode int                    `json:"status_code"`
		Data       map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.StatusCode != CodeConflict || body.Data["request_id"] != "req-1" || body.Data["product_id"] != float64(3) {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}

func TestAbortWithHTTPStatus(t *testing.T) {
	c, w := newTestContext()
	AbortWithHTTPStatus(c, http.StatusUnauthorized, CodeUnauthorized, "signature invalid")
	if w.Code != http.StatusUnauthorized || !c.IsAborted() {
		t.Fatalf("expected aborted 401, got %d aborted=%v", w.Code, c.IsAborted())
	}
}

func TestBuildPagination(t *testing.T) {
	p := BuildPagination(2, 20, 41)
	if p.TotalPage != 3 || p.Page != 2 {
		t.Fatalf("unexpected pagination %+v", p)
	}
	if BuildPagination(1, 0, 5).TotalPage != 0 {
		t.Fatalf("zero page size should yield zero pages")
	}
}
