// internal/web/handlers.go - admin CRUD for the catalog
package web

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"sitemonitor/internal/database"
)

const defaultPageLimit = 10

// Message is the structured reply to every admin write.
type Message struct {
	Status  int         `json:"status"`
	Form    string      `json:"form,omitempty"`
	Title   string      `json:"title"`
	Message string      `json:"message"`
	ID      int64       `json:"id,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type SiteRequest struct {
	Name        string  `json:"name" binding:"required,max=255"`
	EndPoint    string  `json:"end_point" binding:"required,endpoint"`
	CountryCode string  `json:"country_code" binding:"required,len=2,alpha,uppercase"`
	HostIDs     []int64 `json:"host_ids"`
	MonitorIDs  []int64 `json:"monitor_ids"`
}

type HostRequest struct {
	Name string `json:"name" binding:"required,max=255"`
	IP   string `json:"ip" binding:"omitempty,ip"`
	Port int    `json:"port" binding:"omitempty,min=1,max=65535"`
	VIP  string `json:"vip" binding:"max=255"`
}

type MonitorRequest struct {
	Name     string `json:"name" binding:"required,max=255"`
	EndPoint string `json:"end_point" binding:"required,endpoint"`
}

type ApplicationRequest struct {
	Name string `json:"name" binding:"required,max=255"`
	URL  string `json:"url" binding:"required,url"`
}

// Pagination mirrors the admin console's prev/next links. Zero means no
// link in that direction.
type Pagination struct {
	Total  int `json:"total"`
	Length int `json:"length"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Prev   int `json:"prev"`
	Next   int `json:"next"`
}

func prevNext(total, length, limit, offset int) Pagination {
	p := Pagination{Total: total, Length: length, Limit: limit, Offset: offset}

	if offset > 0 {
		p.Prev = offset - limit
	}
	if p.Prev < 0 {
		p.Prev = 0
	}

	switch {
	case length < limit:
		p.Next = 0
	case total == offset+limit:
		p.Next = 0
	case total > limit:
		p.Next = limit + offset
	}
	return p
}

func reply(c *gin.Context, msg Message) {
	c.JSON(msg.Status, msg)
}

func parseID(c *gin.Context, form string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		reply(c, Message{
			Status:  http.StatusBadRequest,
			Form:    form,
			Title:   "Invalid ID",
			Message: fmt.Sprintf("%q is not a valid %s id", c.Param("id"), form),
		})
		return 0, false
	}
	return id, true
}

func bindError(c *gin.Context, form, title string, err error) {
	reply(c, Message{Status: http.StatusBadRequest, Form: form, Title: title, Message: err.Error()})
}

// storeError maps store failures onto the admin message shape.
func storeError(c *gin.Context, form, title string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, database.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, database.ErrConflict):
		status = http.StatusConflict
	default:
		logger(c).WithError(err).Error(title)
	}
	reply(c, Message{Status: status, Form: form, Title: title, Message: err.Error()})
}

// Sites

func (s *Server) getSites(c *gin.Context) {
	ctx := c.Request.Context()

	if c.Query("limit") == "" && c.Query("offset") == "" {
		sites, err := s.store.GetSites(ctx)
		if err != nil {
			storeError(c, "site", "Failed to get sites", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": sites, "count": len(sites)})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageLimit)))
	if err != nil || limit < 1 {
		limit = defaultPageLimit
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	sites, total, err := s.store.GetSitePage(ctx, limit, offset)
	if err != nil {
		storeError(c, "site", "Failed to get sites", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       sites,
		"count":      len(sites),
		"pagination": prevNext(total, len(sites), limit, offset),
	})
}

func (s *Server) getSite(c *gin.Context) {
	id, ok := parseID(c, "site")
	if !ok {
		return
	}

	site, err := s.store.GetSite(c.Request.Context(), id)
	if err != nil {
		storeError(c, "site", "Failed to get site", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": site.Serialize()})
}

func (s *Server) createSite(c *gin.Context) {
	var req SiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, "site", "Error Creating Site", err)
		return
	}

	site := &database.Site{
		Name:        req.Name,
		EndPoint:    req.EndPoint,
		CountryCode: req.CountryCode,
		CreatedDate: time.Now(),
		HostIDs:     req.HostIDs,
		MonitorIDs:  req.MonitorIDs,
	}
	if err := s.store.CreateSite(c.Request.Context(), site); err != nil {
		storeError(c, "site", "Error Creating Site", err)
		return
	}

	logger(c).WithField("site", site.Label()).Info("Site created")
	reply(c, Message{
		Status:  http.StatusCreated,
		Form:    "site",
		Title:   "Successfully Created Site",
		Message: fmt.Sprintf("Site %s successfully created.", site.Path()),
		ID:      site.ID,
		Data:    site,
	})
}

func (s *Server) updateSite(c *gin.Context) {
	id, ok := parseID(c, "site")
	if !ok {
		return
	}

	var req SiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, "site", "Error Updating Site", err)
		return
	}

	ctx := c.Request.Context()
	site, err := s.store.GetSite(ctx, id)
	if err != nil {
		storeError(c, "site", "Error Updating Site", err)
		return
	}

	site.Name = req.Name
	site.EndPoint = req.EndPoint
	site.CountryCode = req.CountryCode
	site.HostIDs = req.HostIDs
	site.MonitorIDs = req.MonitorIDs
	site.Hosts, site.Monitors = nil, nil

	if err := s.store.UpdateSite(ctx, site); err != nil {
		storeError(c, "site", "Error Updating Site", err)
		return
	}

	logger(c).WithField("site", site.Label()).Info("Site updated")
	reply(c, Message{
		Status:  http.StatusOK,
		Form:    "site",
		Title:   "Successfully Updated Site",
		Message: fmt.Sprintf("Site %s successfully updated.", site.Path()),
		ID:      site.ID,
		Data:    site,
	})
}

func (s *Server) deleteSite(c *gin.Context) {
	id, ok := parseID(c, "site")
	if !ok {
		return
	}

	if err := s.store.DeleteSite(c.Request.Context(), id); err != nil {
		storeError(c, "site", "Error Deleting Site", err)
		return
	}

	logger(c).WithField("site_id", id).Info("Site deleted")
	reply(c, Message{
		Status:  http.StatusOK,
		Form:    "site",
		Title:   "Successfully Deleted Site",
		Message: fmt.Sprintf("Site %d successfully deleted.", id),
		ID:      id,
	})
}

// Hosts

func (s *Server) getHosts(c *gin.Context) {
	hosts, err := s.store.GetHosts(c.Request.Context(), database.HostFilters{
		VIP:  c.Query("vip"),
		Name: c.Query("name"),
	})
	if err != nil {
		storeError(c, "host", "Failed to get hosts", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": database.SerializeAll(hosts), "count": len(hosts)})
}

func (s *Server) getHost(c *gin.Context) {
	id, ok := parseID(c, "host")
	if !ok {
		return
	}

	host, err := s.store.GetHost(c.Request.Context(), id)
	if err != nil {
		storeError(c, "host", "Failed to get host", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": host.Serialize()})
}

func (s *Server) getVIPs(c *gin.Context) {
	vips, err := s.store.GetVIPs(c.Request.Context())
	if err != nil {
		storeError(c, "host", "Failed to get VIPs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": vips, "count": len(vips)})
}

func (s *Server) createHost(c *gin.Context) {
	var req HostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, "host", "Error Creating Host", err)
		return
	}

	host := &database.Host{Name: req.Name, IP: req.IP, Port: req.Port, VIP: req.VIP}
	if err := s.store.CreateHost(c.Request.Context(), host); err != nil {
		storeError(c, "host", "Error Creating Host", err)
		return
	}

	logger(c).WithField("host", host.Label()).Info("Host created")
	reply(c, Message{
		Status:  http.StatusCreated,
		Form:    "host",
		Title:   "Successfully Created Host",
		Message: fmt.Sprintf("Host %s successfully created.", host.Label()),
		ID:      host.ID,
		Data:    host,
	})
}

func (s *Server) updateHost(c *gin.Context) {
	id, ok := parseID(c, "host")
	if !ok {
		return
	}

	var req HostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, "host", "Error Updating Host", err)
		return
	}

	ctx := c.Request.Context()
	host, err := s.store.GetHost(ctx, id)
	if err != nil {
		storeError(c, "host", "Error Updating Host", err)
		return
	}

	host.Name = req.Name
	host.IP = req.IP
	host.Port = req.Port
	host.VIP = req.VIP

	if err := s.store.UpdateHost(ctx, host); err != nil {
		storeError(c, "host", "Error Updating Host", err)
		return
	}

	reply(c, Message{
		Status:  http.StatusOK,
		Form:    "host",
		Title:   "Successfully Updated Host",
		Message: fmt.Sprintf("Host %s successfully updated.", host.Label()),
		ID:      host.ID,
		Data:    host,
	})
}

func (s *Server) deleteHost(c *gin.Context) {
	id, ok := parseID(c, "host")
	if !ok {
		return
	}

	if err := s.store.DeleteHost(c.Request.Context(), id); err != nil {
		storeError(c, "host", "Error Deleting Host", err)
		return
	}

	logger(c).WithField("host_id", id).Info("Host deleted")
	reply(c, Message{
		Status:  http.StatusOK,
		Form:    "host",
		Title:   "Successfully Deleted Host",
		Message: fmt.Sprintf("Host %d successfully deleted.", id),
		ID:      id,
	})
}

// Monitors

func (s *Server) getMonitors(c *gin.Context) {
	monitors, err := s.store.GetMonitors(c.Request.Context())
	if err != nil {
		storeError(c, "monitor", "Failed to get monitors", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": database.SerializeAll(monitors), "count": len(monitors)})
}

func (s *Server) getMonitor(c *gin.Context) {
	id, ok := parseID(c, "monitor")
	if !ok {
		return
	}

	monitor, err := s.store.GetMonitor(c.Request.Context(), id)
	if err != nil {
		storeError(c, "monitor", "Failed to get monitor", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": monitor.Serialize()})
}

func (s *Server) createMonitor(c *gin.Context) {
	var req MonitorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, "monitor", "Error Creating Monitor", err)
		return
	}

	monitor := &database.Monitor{Name: req.Name, EndPoint: req.EndPoint, CreatedDate: time.Now()}
	if err := s.store.CreateMonitor(c.Request.Context(), monitor); err != nil {
		storeError(c, "monitor", "Error Creating Monitor", err)
		return
	}

	logger(c).WithField("monitor", monitor.Label()).Info("Monitor created")
	reply(c, Message{
		Status:  http.StatusCreated,
		Form:    "monitor",
		Title:   "Successfully Created Monitor",
		Message: fmt.Sprintf("Monitor %s successfully created.", monitor.EndPoint),
		ID:      monitor.ID,
		Data:    monitor,
	})
}

func (s *Server) updateMonitor(c *gin.Context) {
	id, ok := parseID(c, "monitor")
	if !ok {
		return
	}

	var req MonitorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, "monitor", "Error Updating Monitor", err)
		return
	}

	ctx := c.Request.Context()
	monitor, err := s.store.GetMonitor(ctx, id)
	if err != nil {
		storeError(c, "monitor", "Error Updating Monitor", err)
		return
	}

	monitor.Name = req.Name
	monitor.EndPoint = req.EndPoint
	if err := s.store.UpdateMonitor(ctx, monitor); err != nil {
		storeError(c, "monitor", "Error Updating Monitor", err)
		return
	}

	reply(c, Message{
		Status:  http.StatusOK,
		Form:    "monitor",
		Title:   "Successfully Updated Monitor",
		Message: fmt.Sprintf("Monitor %s successfully updated.", monitor.EndPoint),
		ID:      monitor.ID,
		Data:    monitor,
	})
}

func (s *Server) deleteMonitor(c *gin.Context) {
	id, ok := parseID(c, "monitor")
	if !ok {
		return
	}

	if err := s.store.DeleteMonitor(c.Request.Context(), id); err != nil {
		storeError(c, "monitor", "Error Deleting Monitor", err)
		return
	}

	reply(c, Message{
		Status:  http.StatusOK,
		Form:    "monitor",
		Title:   "Successfully Deleted Monitor",
		Message: fmt.Sprintf("Monitor %d successfully deleted.", id),
		ID:      id,
	})
}

// Applications

func (s *Server) getApplications(c *gin.Context) {
	apps, err := s.store.GetApplications(c.Request.Context())
	if err != nil {
		storeError(c, "application", "Failed to get applications", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": database.SerializeAll(apps), "count": len(apps)})
}

func (s *Server) getApplication(c *gin.Context) {
	id, ok := parseID(c, "application")
	if !ok {
		return
	}

	app, err := s.store.GetApplication(c.Request.Context(), id)
	if err != nil {
		storeError(c, "application", "Failed to get application", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": app.Serialize()})
}

func (s *Server) createApplication(c *gin.Context) {
	var req ApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, "application", "Error Creating Application", err)
		return
	}

	app := &database.Application{Name: req.Name, URL: req.URL}
	if err := s.store.CreateApplication(c.Request.Context(), app); err != nil {
		storeError(c, "application", "Error Creating Application", err)
		return
	}

	reply(c, Message{
		Status:  http.StatusCreated,
		Form:    "application",
		Title:   "Successfully Created Application",
		Message: fmt.Sprintf("Application %s successfully created.", app.Name),
		ID:      app.ID,
		Data:    app,
	})
}

func (s *Server) updateApplication(c *gin.Context) {
	id, ok := parseID(c, "application")
	if !ok {
		return
	}

	var req ApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, "application", "Error Updating Application", err)
		return
	}

	app := &database.Application{ID: id, Name: req.Name, URL: req.URL}
	if err := s.store.UpdateApplication(c.Request.Context(), app); err != nil {
		storeError(c, "application", "Error Updating Application", err)
		return
	}

	reply(c, Message{
		Status:  http.StatusOK,
		Form:    "application",
		Title:   "Successfully Updated Application",
		Message: fmt.Sprintf("Application %s successfully updated.", app.Name),
		ID:      app.ID,
		Data:    app,
	})
}

func (s *Server) deleteApplication(c *gin.Context) {
	id, ok := parseID(c, "application")
	if !ok {
		return
	}

	if err := s.store.DeleteApplication(c.Request.Context(), id); err != nil {
		storeError(c, "application", "Error Deleting Application", err)
		return
	}

	reply(c, Message{
		Status:  http.StatusOK,
		Form:    "application",
		Title:   "Successfully Deleted Application",
		Message: fmt.Sprintf("Application %d successfully deleted.", id),
		ID:      id,
	})
}
