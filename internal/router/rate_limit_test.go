package router

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestKeyByIPAndJSONField(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(`{"username":" Finance.Ops "}`))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Request.RemoteAddr = "1.2.3.4:5678"

	key := KeyByIPAndJSONField("username")(c)
	if key != "finance.ops|1.2.3.4" {
		t.Fatalf("key want finance.ops|1.2.3.4 got %s", key)
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		t.Fatalf("read body after key extraction failed: %v", err)
	}
	if !strings.Contains(string(body), "Finance.Ops") {
		t.Fatalf("request body should be restored after reading field")
	}
}

func TestRateLimitMiddlewareWithoutClient(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimitMiddleware(nil, RateLimitRule{WindowSeconds: 60, MaxRequests: 1}, KeyByIP))
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok":true`) {
		t.Fatalf("expected handler response body, got %s", w.Body.String())
	}
}

func TestKeyByUserID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/affiliate/payout-request", nil)
	c.Request.RemoteAddr = "5.6.7.8:1234"

	if key := KeyByUserID(c); key != "5.6.7.8" {
		t.Fatalf("anonymous key should fall back to ip, got %s", key)
	}
	c.Set(userIDContextKey, uint(42))
	if key := KeyByUserID(c); key != "user:42" {
		t.Fatalf("key want user:42 got %s", key)
	}
}

func TestKeyByIPAndJSONFieldIgnoresNonString(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(`{"username":42}`))
	c.Request.RemoteAddr = "9.9.9.9:1000"

	if key := KeyByIPAndJSONField("username")(c); key != "9.9.9.9" {
		t.Fatalf("non-string field should fall back to ip, got %s", key)
	}
}

func TestRateLimitKeyAndRuleDefaults(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/affiliate/payout-request", nil)
	c.Request.RemoteAddr = "5.6.7.8:1234"

	if key := rateLimitKey(c, "payout", nil); key != "payout:5.6.7.8" {
		t.Fatalf("unexpected key %s", key)
	}
	if key := rateLimitKey(c, "", func(*gin.Context) string { return " user:3 " }); key != "user:3" {
		t.Fatalf("unexpected key %s", key)
	}
	if (RateLimitRule{WindowSeconds: 60}).enabled() {
		t.Fatalf("rule without max requests should be disabled")
	}
	if got := (RateLimitRule{}).messageKey(); got != "error.rate_limited" {
		t.Fatalf("unexpected default message key %s", got)
	}
	if got := (RateLimitRule{MessageKey: "error.login_too_many"}).messageKey(); got != "error.login_too_many" {
		t.Fatalf("unexpected message key %s", got)
	}
}
