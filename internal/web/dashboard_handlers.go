// internal/web/dashboard_handlers.go - dashboard pages and layout preferences
package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"sitemonitor/internal/adapters"
	"sitemonitor/internal/database"
	"sitemonitor/internal/monitoring"
)

// PreferenceRequest is a layout save. The dashboard form posts nothing for a
// column the user emptied, so a missing column is stored as empty.
type PreferenceRequest struct {
	Site string   `json:"site" form:"site" binding:"required"`
	Col1 []string `json:"col1" form:"sort1[]"`
	Col2 []string `json:"col2" form:"sort2[]"`
}

func (s *Server) monitorIndex(c *gin.Context) {
	sites, err := s.store.GetSites(c.Request.Context())
	if err != nil {
		logger(c).WithError(err).Error("Failed to list sites")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sites"})
		return
	}

	s.render(c, "index.html", gin.H{
		"title":       s.config.Web.Title,
		"header_link": s.config.Web.HeaderLink,
		"page":        monitoring.PageIndex,
		"sites":       sites,
	})
}

func (s *Server) monitorPage(c *gin.Context) {
	opts := monitoring.Options{HostName: c.Query("host")}
	if raw := c.Query("port"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port < 1 || port > 65535 {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid port %q", raw)})
			return
		}
		opts.PortOverride = port
	}

	r, err := parseRange(c.Query("from"), c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	opts.Range = r

	page := c.Param("page")
	country := strings.ToUpper(c.Param("country"))
	endPoint := c.Param("name")

	dash, err := s.assembler.Assemble(c.Request.Context(), page, country, endPoint, opts)
	if err != nil {
		logger(c).WithError(err).WithFields(logrus.Fields{
			"page":    page,
			"country": country,
			"site":    endPoint,
		}).Error("Failed to assemble dashboard")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to assemble dashboard"})
		return
	}

	name := page + ".html"
	if s.templates == nil || s.templates.Lookup(name) == nil {
		name = "dashboard.html"
	}
	s.render(c, name, gin.H{
		"title":       s.config.Web.Title,
		"header_link": s.config.Web.HeaderLink,
		"refresh":     s.config.Server.RefreshInterval.Seconds(),
		"dashboard":   dash,
	})
}

// render writes an HTML template when the client asks for HTML and the
// template exists, and the data as JSON otherwise.
func (s *Server) render(c *gin.Context, name string, data gin.H) {
	if s.templates != nil && s.templates.Lookup(name) != nil &&
		c.NegotiateFormat(gin.MIMEJSON, gin.MIMEHTML) == gin.MIMEHTML {
		c.HTML(http.StatusOK, name, data)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

func (s *Server) savePreference(c *gin.Context) {
	var req PreferenceRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	siteID, err := strconv.ParseInt(req.Site, 10, 64)
	if err != nil || siteID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid site %q", req.Site)})
		return
	}

	pref := &database.Preference{
		SiteID: siteID,
		Data:   database.PreferenceData{Site: req.Site, Col1: orEmpty(req.Col1), Col2: orEmpty(req.Col2)},
	}
	if err := s.store.SavePreference(c.Request.Context(), pref); err != nil {
		if database.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		logger(c).WithError(err).Error("Failed to save preference")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save preference"})
		return
	}

	logger(c).WithField("site_id", siteID).Debug("Preference saved")
	c.JSON(http.StatusOK, pref.Data)
}

func orEmpty(col []string) []string {
	if col == nil {
		return []string{}
	}
	return col
}

// parseRange reads the optional from/to bounds of an adapter query, each as
// RFC 3339 or unix seconds. Both or neither must be given.
func parseRange(from, to string) (*adapters.TimeRange, error) {
	if from == "" && to == "" {
		return nil, nil
	}
	if from == "" || to == "" {
		return nil, fmt.Errorf("from and to must be given together")
	}

	start, err := parseTime(from)
	if err != nil {
		return nil, fmt.Errorf("invalid from %q: %w", from, err)
	}
	end, err := parseTime(to)
	if err != nil {
		return nil, fmt.Errorf("invalid to %q: %w", to, err)
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("from must be before to")
	}
	return &adapters.TimeRange{From: start, To: end}, nil
}

func parseTime(value string) (time.Time, error) {
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Parse(time.RFC3339, value)
}
