package middleware_test

import (
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"refledger.app/bot/internal/http/middleware"
)

var _ = Describe("RequireAdminAPIKey", func() {
	newRouter := func(key string) *gin.Engine {
		gin.SetMode(gin.TestMode)
		r := gin.New()
		r.Use(middleware.Recovery())
		r.GET("/admin", middleware.RequireAdminAPIKey(key), func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"ok": true})
		})
		r.GET("/panic", func(*gin.Context) { panic("boom") })
		return r
	}

	get := func(r *gin.Engine, path string, headers map[string]string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	It("is disabled without a configured key", func() {
		Expect(get(newRouter(""), "/admin", map[string]string{"X-Admin-API-Key": ""})).To(Equal(http.StatusServiceUnavailable))
	})

	It("accepts the key header", func() {
		Expect(get(newRouter("k"), "/admin", map[string]string{"X-Admin-API-Key": "k"})).To(Equal(http.StatusOK))
	})

	It("accepts a bearer token", func() {
		Expect(get(newRouter("k"), "/admin", map[string]string{"Authorization": "Bearer k"})).To(Equal(http.StatusOK))
	})

	It("rejects a wrong or missing key", func() {
		r := newRouter("k")
		Expect(get(r, "/admin", map[string]string{"X-Admin-API-Key": "nope"})).To(Equal(http.StatusUnauthorized))
		Expect(get(r, "/admin", nil)).To(Equal(http.StatusUnauthorized))
	})

	It("turns panics into 500", func() {
		Expect(get(newRouter("k"), "/panic", nil)).To(Equal(http.StatusInternalServerError))
	})
})
