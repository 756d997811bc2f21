// internal/web/favicon.go
package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// A pulse line over a globe.
const faviconSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 32 32" width="32" height="32">
  <defs>
    <linearGradient id="bg" x1="0%" y1="0%" x2="100%" y2="100%">
      <stop offset="0%" style="stop-color:#0f766e;stop-opacity:1" />
      <stop offset="100%" style="stop-color:#134e4a;stop-opacity:1" />
    </linearGradient>
  </defs>
  <circle cx="16" cy="16" r="16" fill="url(#bg)"/>
  <g fill="none" stroke="#ccfbf1" stroke-width="1" opacity="0.6">
    <circle cx="16" cy="16" r="10"/>
    <ellipse cx="16" cy="16" rx="4.5" ry="10"/>
    <line x1="6" y1="16" x2="26" y2="16"/>
  </g>
  <polyline points="4,17 10,17 13,10 17,23 20,14 22,17 28,17"
    fill="none" stroke="#ffffff" stroke-width="2.2" stroke-linejoin="round" stroke-linecap="round"/>
</svg>`

func (s *Server) serveFavicon(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, "image/svg+xml", []byte(faviconSVG))
}
