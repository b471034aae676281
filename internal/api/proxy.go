package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// hopHeaders are stripped before forwarding in either direction.
var hopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

// proxy forwards the request to the provider API with the resolved bearer
// token, streaming the response back untouched. Payload translation is out of
// scope; this gateway only owns the credential.
func (s *Server) proxy(c *gin.Context) {
	token := c.GetString(accessTokenKey)
	upstreamURL := strings.TrimSuffix(s.cfg.Provider.APIBaseURL, "/") + c.Param("path")
	if raw := c.Request.URL.RawQuery; raw != "" {
		upstreamURL += "?" + raw
	}

	req, errReq := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, upstreamURL, c.Request.Body)
	if errReq != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": gin.H{"message": "failed to build upstream request"}})
		return
	}
	req.Header = c.Request.Header.Clone()
	for _, h := range hopHeaders {
		req.Header.Del(h)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, errDo := s.httpClient.Do(req)
	if errDo != nil {
		log.Errorf("proxy: upstream request failed: %v", errDo)
		c.JSON(http.StatusBadGateway, gin.H{"error": gin.H{"message": "upstream request failed"}})
		return
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("proxy: close upstream body: %v", errClose)
		}
	}()

	for _, h := range hopHeaders {
		resp.Header.Del(h)
	}
	for key, values := range resp.Header {
		for _, value := range values {
			c.Writer.Header().Add(key, value)
		}
	}
	c.Status(resp.StatusCode)
	if _, errCopy := io.Copy(c.Writer, resp.Body); errCopy != nil {
		log.Debugf("proxy: stream response: %v", errCopy)
	}
}
