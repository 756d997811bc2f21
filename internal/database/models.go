// internal/database/models.go
package database

import (
	"fmt"
	"time"
)

// SerializationVersion is stamped on every Serialize() map so API consumers
// can detect field list changes.
const SerializationVersion = 1

// Serializable is implemented by every persisted entity. The returned map
// carries an explicit, stable field list.
type Serializable interface {
	Serialize() map[string]interface{}
}

// Host status values. Status is the cached up/down flag.
const (
	HostDown = 0
	HostUp   = 1
)

type Site struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	EndPoint    string    `json:"end_point"`
	CountryCode string    `json:"country_code"`
	CreatedDate time.Time `json:"created_date"`
	HostIDs     []int64   `json:"host_ids"`
	MonitorIDs  []int64   `json:"monitor_ids"`

	// Resolved on single-site reads, never stored.
	Hosts    []Host    `json:"hosts,omitempty"`
	Monitors []Monitor `json:"monitors,omitempty"`
}

type Host struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	IP     string `json:"ip"`
	Port   int    `json:"port"`
	VIP    string `json:"vip"`
	Status int    `json:"status"`

	// HealthCheck is request scoped and never written to storage.
	HealthCheck *bool `json:"health_check,omitempty"`
}

type Monitor struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	EndPoint    string    `json:"end_point"`
	CreatedDate time.Time `json:"created_date"`
}

type Application struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// PreferenceData is the stored column layout for one site. A nil column means
// "no preference for this column"; an empty non-nil column is an explicit
// empty ordering.
type PreferenceData struct {
	Site string   `json:"site"`
	Col1 []string `json:"col1"`
	Col2 []string `json:"col2"`
}

type Preference struct {
	ID        int64          `json:"id"`
	SiteID    int64          `json:"site_id"`
	Data      PreferenceData `json:"data"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type HostFilters struct {
	VIP  string
	Name string
}

// Label returns the admin console label of a site.
func (s *Site) Label() string {
	return fmt.Sprintf("%d-%s-%s-%s", s.ID, s.Name, s.EndPoint, s.CountryCode)
}

// Path returns the dashboard path segment pair, e.g. "US/publisher".
func (s *Site) Path() string {
	return fmt.Sprintf("%s/%s", s.CountryCode, s.EndPoint)
}

func (s *Site) Serialize() map[string]interface{} {
	hostIDs := s.HostIDs
	if hostIDs == nil {
		hostIDs = []int64{}
	}
	monitorIDs := s.MonitorIDs
	if monitorIDs == nil {
		monitorIDs = []int64{}
	}
	return map[string]interface{}{
		"version":      SerializationVersion,
		"type":         "site",
		"id":           s.ID,
		"label":        s.Label(),
		"name":         s.Name,
		"end_point":    s.EndPoint,
		"country_code": s.CountryCode,
		"path":         s.Path(),
		"created_date": s.CreatedDate.Format(time.RFC3339),
		"host_ids":     hostIDs,
		"monitor_ids":  monitorIDs,
	}
}

func (h *Host) Label() string {
	return fmt.Sprintf("%s (%d)", h.Name, h.ID)
}

func (h *Host) Serialize() map[string]interface{} {
	return map[string]interface{}{
		"version": SerializationVersion,
		"type":    "host",
		"id":      h.ID,
		"label":   h.Label(),
		"name":    h.Name,
		"ip":      h.IP,
		"port":    h.Port,
		"vip":     h.VIP,
		"status":  h.Status,
	}
}

func (m *Monitor) Label() string {
	return fmt.Sprintf("%d-%s-%s", m.ID, m.Name, m.EndPoint)
}

func (m *Monitor) Serialize() map[string]interface{} {
	return map[string]interface{}{
		"version":      SerializationVersion,
		"type":         "monitor",
		"id":           m.ID,
		"label":        m.Label(),
		"name":         m.Name,
		"end_point":    m.EndPoint,
		"created_date": m.CreatedDate.Format(time.RFC3339),
	}
}

func (a *Application) Serialize() map[string]interface{} {
	return map[string]interface{}{
		"version": SerializationVersion,
		"type":    "application",
		"id":      a.ID,
		"label":   fmt.Sprintf("%d-%s", a.ID, a.Name),
		"name":    a.Name,
		"url":     a.URL,
	}
}

func (p *Preference) Serialize() map[string]interface{} {
	return map[string]interface{}{
		"version":    SerializationVersion,
		"type":       "preference",
		"id":         p.ID,
		"site_id":    p.SiteID,
		"data":       p.Data,
		"updated_at": p.UpdatedAt.Format(time.RFC3339),
	}
}

// SerializeAll maps a slice of entities to their serialized form.
func SerializeAll[T any, PT interface {
	*T
	Serializable
}](items []T) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(items))
	for i := range items {
		out = append(out, PT(&items[i]).Serialize())
	}
	return out
}
