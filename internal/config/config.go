// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

// Probe port policies. PortPolicyLiteral reproduces the long-standing
// behaviour: a host is probed on its own port unless an override is given,
// in which case port 80 is used. PortPolicyExplicit probes the override when
// one is given.
const (
	PortPolicyLiteral  = "literal"
	PortPolicyExplicit = "explicit"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Web        WebConfig        `yaml:"web"`
	Database   DatabaseConfig   `yaml:"database"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	Probe      ProbeConfig      `yaml:"probe"`
	Adapters   AdaptersConfig   `yaml:"adapters"`
	Logging    LoggingConfig    `yaml:"logging"`
	Seed       SeedConfig       `yaml:"seed"`
	Include    IncludeConfig    `yaml:"include"`

	// Secrets are read from the environment, never from YAML.
	Secrets Secrets `yaml:"-"`
}

type IncludeConfig struct {
	Directory string `yaml:"directory"`
	Pattern   string `yaml:"pattern"`
	Enabled   bool   `yaml:"enabled"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	PageTimeout     time.Duration `yaml:"page_timeout"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	AdminRateLimit  float64       `yaml:"admin_rate_limit"` // admin writes per second per client IP
	AdminBurst      int           `yaml:"admin_burst"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

type WebConfig struct {
	TemplatesDir string `yaml:"templates_dir"`
	StaticDir    string `yaml:"static_dir"`
	Title        string `yaml:"title"`
	HeaderLink   string `yaml:"header_link"`
}

type DatabaseConfig struct {
	Type            string        `yaml:"type"`
	Path            string        `yaml:"path"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

type PrometheusConfig struct {
	Enabled     bool   `yaml:"enabled"`
	MetricsPath string `yaml:"metrics_path"`
}

type ProbeConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	Concurrency   int           `yaml:"concurrency"`
	PortPolicy    string        `yaml:"port_policy"`
	AddressField  string        `yaml:"address_field"` // "name" or "ip"
	PersistStatus bool          `yaml:"persist_status"`
}

type AdaptersConfig struct {
	Timeout   time.Duration   `yaml:"timeout"`
	LogSearch LogSearchConfig `yaml:"log_search"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Synthetic SyntheticConfig `yaml:"synthetic"`
	Portal    PortalConfig    `yaml:"portal"`
}

type LogSearchConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Monitor      string        `yaml:"monitor"`
	Addresses    []string      `yaml:"addresses"`
	Index        string        `yaml:"index"`
	Query        string        `yaml:"query"` // query_string template
	TimeField    string        `yaml:"time_field"`
	Interval     string        `yaml:"interval"` // date_histogram fixed_interval
	Range        time.Duration `yaml:"range"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxPolls     int           `yaml:"max_polls"`
}

type MetricsConfig struct {
	Enabled bool          `yaml:"enabled"`
	Monitor string        `yaml:"monitor"`
	URL     string        `yaml:"url"`
	Query   string        `yaml:"query"` // PromQL template
	Range   time.Duration `yaml:"range"`
	Step    time.Duration `yaml:"step"`
}

type SyntheticConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Monitor   string  `yaml:"monitor"`
	BaseURL   string  `yaml:"base_url"`
	Path      string  `yaml:"path"` // path template
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

type PortalConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Monitor       string `yaml:"monitor"`
	LoginURL      string `yaml:"login_url"`
	SearchURL     string `yaml:"search_url"`
	UserField     string `yaml:"user_field"`
	PasswordField string `yaml:"password_field"`
	QueryField    string `yaml:"query_field"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type SeedConfig struct {
	OnStart  bool          `yaml:"on_start"`
	Monitors []SeedMonitor `yaml:"monitors"`
	Hosts    []SeedHost    `yaml:"hosts"`
	Sites    []SeedSite    `yaml:"sites"`
}

type SeedMonitor struct {
	Name     string `yaml:"name"`
	EndPoint string `yaml:"end_point"`
}

type SeedHost struct {
	Name string `yaml:"name"`
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`
	VIP  string `yaml:"vip"`
}

// SeedSite references hosts by name and monitors by endpoint.
type SeedSite struct {
	Name        string   `yaml:"name"`
	EndPoint    string   `yaml:"end_point"`
	CountryCode string   `yaml:"country_code"`
	Hosts       []string `yaml:"hosts"`
	Monitors    []string `yaml:"monitors"`
}

// PartialConfig represents a partial configuration that can be merged
type PartialConfig struct {
	Server     *ServerConfig     `yaml:"server,omitempty"`
	Web        *WebConfig        `yaml:"web,omitempty"`
	Database   *DatabaseConfig   `yaml:"database,omitempty"`
	Prometheus *PrometheusConfig `yaml:"prometheus,omitempty"`
	Probe      *ProbeConfig      `yaml:"probe,omitempty"`
	Adapters   *AdaptersConfig   `yaml:"adapters,omitempty"`
	Logging    *LoggingConfig    `yaml:"logging,omitempty"`
	Seed       *SeedConfig       `yaml:"seed,omitempty"`
}

func Load(filename string) (*Config, error) {
	// Load the main config file
	config, err := loadConfigFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to load main config file: %w", err)
	}

	// Process includes if enabled
	if config.Include.Enabled && config.Include.Directory != "" {
		if err := loadIncludes(config, filepath.Dir(filename)); err != nil {
			return nil, fmt.Errorf("failed to load includes: %w", err)
		}
	}

	setDefaults(config)

	if err := validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Default returns a configuration with every default applied, used when no
// config file is given.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func loadConfigFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &config, nil
}

func loadIncludes(config *Config, baseDir string) error {
	includeDir := config.Include.Directory

	// Make include directory relative to main config file if not absolute
	if !filepath.IsAbs(includeDir) {
		includeDir = filepath.Join(baseDir, includeDir)
	}

	if _, err := os.Stat(includeDir); os.IsNotExist(err) {
		return fmt.Errorf("include directory does not exist: %s", includeDir)
	}

	pattern := config.Include.Pattern
	if pattern == "" {
		pattern = "*.yaml"
	}

	matches, err := filepath.Glob(filepath.Join(includeDir, pattern))
	if err != nil {
		return fmt.Errorf("failed to glob include pattern: %w", err)
	}

	// Also pick up .yml files for the default pattern
	if pattern == "*.yaml" {
		ymlMatches, err := filepath.Glob(filepath.Join(includeDir, "*.yml"))
		if err != nil {
			return fmt.Errorf("failed to glob .yml files: %w", err)
		}
		matches = append(matches, ymlMatches...)
	}

	sort.Slice(matches, func(i, j int) bool {
		return filepath.Base(matches[i]) < filepath.Base(matches[j])
	})

	for _, match := range matches {
		if err := loadAndMergeInclude(config, match); err != nil {
			return fmt.Errorf("failed to load include file %s: %w", match, err)
		}
	}

	return nil
}

func loadAndMergeInclude(config *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read include file: %w", err)
	}

	var partial PartialConfig
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("failed to parse include file YAML: %w", err)
	}

	mergePartialConfig(config, &partial)
	return nil
}

func mergePartialConfig(config *Config, partial *PartialConfig) {
	// Seed lists append; everything else overrides field by field
	if partial.Seed != nil {
		config.Seed.Monitors = append(config.Seed.Monitors, partial.Seed.Monitors...)
		config.Seed.Hosts = append(config.Seed.Hosts, partial.Seed.Hosts...)
		config.Seed.Sites = append(config.Seed.Sites, partial.Seed.Sites...)
		if partial.Seed.OnStart {
			config.Seed.OnStart = true
		}
	}

	if partial.Server != nil {
		mergeServerConfig(&config.Server, partial.Server)
	}
	if partial.Web != nil {
		mergeWebConfig(&config.Web, partial.Web)
	}
	if partial.Database != nil {
		mergeDatabaseConfig(&config.Database, partial.Database)
	}
	if partial.Prometheus != nil {
		config.Prometheus.Enabled = partial.Prometheus.Enabled
		if partial.Prometheus.MetricsPath != "" {
			config.Prometheus.MetricsPath = partial.Prometheus.MetricsPath
		}
	}
	if partial.Probe != nil {
		mergeProbeConfig(&config.Probe, partial.Probe)
	}
	if partial.Adapters != nil {
		mergeAdaptersConfig(&config.Adapters, partial.Adapters)
	}
	if partial.Logging != nil {
		if partial.Logging.Level != "" {
			config.Logging.Level = partial.Logging.Level
		}
		if partial.Logging.Format != "" {
			config.Logging.Format = partial.Logging.Format
		}
	}
}

func mergeServerConfig(main *ServerConfig, partial *ServerConfig) {
	if partial.Port != "" {
		main.Port = partial.Port
	}
	if partial.ReadTimeout != 0 {
		main.ReadTimeout = partial.ReadTimeout
	}
	if partial.WriteTimeout != 0 {
		main.WriteTimeout = partial.WriteTimeout
	}
	if partial.PageTimeout != 0 {
		main.PageTimeout = partial.PageTimeout
	}
	if partial.RefreshInterval != 0 {
		main.RefreshInterval = partial.RefreshInterval
	}
	if partial.AdminRateLimit != 0 {
		main.AdminRateLimit = partial.AdminRateLimit
	}
	if partial.AdminBurst != 0 {
		main.AdminBurst = partial.AdminBurst
	}
	if len(partial.CORSOrigins) > 0 {
		main.CORSOrigins = partial.CORSOrigins
	}
}

func mergeWebConfig(main *WebConfig, partial *WebConfig) {
	if partial.TemplatesDir != "" {
		main.TemplatesDir = partial.TemplatesDir
	}
	if partial.StaticDir != "" {
		main.StaticDir = partial.StaticDir
	}
	if partial.Title != "" {
		main.Title = partial.Title
	}
	if partial.HeaderLink != "" {
		main.HeaderLink = partial.HeaderLink
	}
}

func mergeDatabaseConfig(main *DatabaseConfig, partial *DatabaseConfig) {
	if partial.Type != "" {
		main.Type = partial.Type
	}
	if partial.Path != "" {
		main.Path = partial.Path
	}
	if partial.CleanupInterval != 0 {
		main.CleanupInterval = partial.CleanupInterval
	}
}

func mergeProbeConfig(main *ProbeConfig, partial *ProbeConfig) {
	if partial.Timeout != 0 {
		main.Timeout = partial.Timeout
	}
	if partial.Concurrency != 0 {
		main.Concurrency = partial.Concurrency
	}
	if partial.PortPolicy != "" {
		main.PortPolicy = partial.PortPolicy
	}
	if partial.AddressField != "" {
		main.AddressField = partial.AddressField
	}
	if partial.PersistStatus {
		main.PersistStatus = true
	}
}

// mergeAdaptersConfig replaces an adapter block wholesale when the include
// enables it, so one include file can carry one backend.
func mergeAdaptersConfig(main *AdaptersConfig, partial *AdaptersConfig) {
	if partial.Timeout != 0 {
		main.Timeout = partial.Timeout
	}
	if partial.LogSearch.Enabled {
		main.LogSearch = partial.LogSearch
	}
	if partial.Metrics.Enabled {
		main.Metrics = partial.Metrics
	}
	if partial.Synthetic.Enabled {
		main.Synthetic = partial.Synthetic
	}
	if partial.Portal.Enabled {
		main.Portal = partial.Portal
	}
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8000"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.PageTimeout == 0 {
		cfg.Server.PageTimeout = 10 * time.Second
	}
	if cfg.Server.RefreshInterval == 0 {
		cfg.Server.RefreshInterval = 30 * time.Second
	}
	if cfg.Server.AdminRateLimit == 0 {
		cfg.Server.AdminRateLimit = 5
	}
	if cfg.Server.AdminBurst == 0 {
		cfg.Server.AdminBurst = 10
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}

	if cfg.Web.Title == "" {
		cfg.Web.Title = "Site Monitor"
	}

	if cfg.Database.Type == "" {
		cfg.Database.Type = "boltdb"
	}
	if cfg.Database.Path == "" {
		if cfg.Database.Type == "sqlite" {
			cfg.Database.Path = "./data/sitemonitor.sqlite"
		} else {
			cfg.Database.Path = "./data/sitemonitor.db"
		}
	}

	if cfg.Prometheus.MetricsPath == "" {
		cfg.Prometheus.MetricsPath = "/metrics"
	}

	if cfg.Probe.Timeout == 0 {
		cfg.Probe.Timeout = 2 * time.Second
	}
	if cfg.Probe.Concurrency == 0 {
		cfg.Probe.Concurrency = 8
	}
	if cfg.Probe.PortPolicy == "" {
		cfg.Probe.PortPolicy = PortPolicyLiteral
	}
	if cfg.Probe.AddressField == "" {
		cfg.Probe.AddressField = "name"
	}

	setAdapterDefaults(&cfg.Adapters, cfg.Probe.Timeout)

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	if len(cfg.Seed.Monitors) == 0 && len(cfg.Seed.Sites) == 0 {
		cfg.Seed.Monitors = []SeedMonitor{
			{Name: "Health Check", EndPoint: "healthcheck"},
			{Name: "Splunk", EndPoint: "splunk"},
			{Name: "Graphite", EndPoint: "graphite"},
			{Name: "Keynote", EndPoint: "keynote"},
		}
		cfg.Seed.Sites = []SeedSite{{
			Name:        "Publisher",
			EndPoint:    "publisher",
			CountryCode: "US",
			Monitors:    []string{"healthcheck", "splunk", "graphite", "keynote"},
		}}
	}
}

func setAdapterDefaults(a *AdaptersConfig, timeout time.Duration) {
	if a.Timeout == 0 {
		a.Timeout = timeout
	}

	ls := &a.LogSearch
	if ls.Monitor == "" {
		ls.Monitor = "splunk"
	}
	if len(ls.Addresses) == 0 {
		ls.Addresses = []string{"http://localhost:9200"}
	}
	if ls.Index == "" {
		ls.Index = "logs-*"
	}
	if ls.Query == "" {
		ls.Query = `site:"{{.Site.EndPoint}}"{{if .Host}} AND host:"{{.Host.Name}}"{{end}}`
	}
	if ls.TimeField == "" {
		ls.TimeField = "@timestamp"
	}
	if ls.Interval == "" {
		ls.Interval = "5m"
	}
	if ls.Range == 0 {
		ls.Range = time.Hour
	}
	if ls.PollInterval == 0 {
		ls.PollInterval = time.Second
	}
	if ls.MaxPolls == 0 {
		ls.MaxPolls = 30
	}

	m := &a.Metrics
	if m.Monitor == "" {
		m.Monitor = "graphite"
	}
	if m.URL == "" {
		m.URL = "http://localhost:9090"
	}
	if m.Query == "" {
		m.Query = `sum by (instance) (rate(http_requests_total{site="{{.Site.EndPoint}}"{{if .Host}},instance=~"{{.Host.Name}}.*"{{end}}}[5m]))`
	}
	if m.Range == 0 {
		m.Range = time.Hour
	}
	if m.Step == 0 {
		m.Step = time.Minute
	}

	s := &a.Synthetic
	if s.Monitor == "" {
		s.Monitor = "keynote"
	}
	if s.Path == "" {
		s.Path = "/v1/slots/{{.Site.CountryCode}}-{{.Site.EndPoint}}/status"
	}
	if s.RateLimit == 0 {
		s.RateLimit = 2
	}
	if s.Burst == 0 {
		s.Burst = 1
	}

	p := &a.Portal
	if p.Monitor == "" {
		p.Monitor = "search"
	}
	if p.UserField == "" {
		p.UserField = "username"
	}
	if p.PasswordField == "" {
		p.PasswordField = "password"
	}
	if p.QueryField == "" {
		p.QueryField = "q"
	}
}

func validate(cfg *Config) error {
	if cfg.Database.Type != "boltdb" && cfg.Database.Type != "sqlite" {
		return fmt.Errorf("database.type must be boltdb or sqlite, got %q", cfg.Database.Type)
	}

	if cfg.Probe.Timeout <= 0 {
		return fmt.Errorf("probe.timeout must be positive")
	}
	if cfg.Probe.Concurrency < 1 {
		return fmt.Errorf("probe.concurrency must be at least 1")
	}
	if cfg.Probe.PortPolicy != PortPolicyLiteral && cfg.Probe.PortPolicy != PortPolicyExplicit {
		return fmt.Errorf("probe.port_policy must be %q or %q, got %q",
			PortPolicyLiteral, PortPolicyExplicit, cfg.Probe.PortPolicy)
	}
	if cfg.Probe.AddressField != "name" && cfg.Probe.AddressField != "ip" {
		return fmt.Errorf("probe.address_field must be name or ip, got %q", cfg.Probe.AddressField)
	}
	if cfg.Server.PageTimeout < cfg.Probe.Timeout {
		return fmt.Errorf("server.page_timeout (%s) must not be shorter than probe.timeout (%s)",
			cfg.Server.PageTimeout, cfg.Probe.Timeout)
	}

	if cfg.Web.HeaderLink != "" && !isValidURL(cfg.Web.HeaderLink) {
		return fmt.Errorf("web.header_link must be a valid URL")
	}
	if cfg.Web.TemplatesDir != "" {
		if _, err := os.Stat(cfg.Web.TemplatesDir); err != nil {
			return fmt.Errorf("web.templates_dir '%s' does not exist or is not accessible: %w", cfg.Web.TemplatesDir, err)
		}
	}

	if cfg.Include.Enabled {
		if cfg.Include.Directory == "" {
			return fmt.Errorf("include.directory must be specified when include.enabled is true")
		}
		if cfg.Include.Pattern != "" && !isValidGlobPattern(cfg.Include.Pattern) {
			return fmt.Errorf("include.pattern contains invalid glob pattern: %s", cfg.Include.Pattern)
		}
	}

	if err := validateAdapters(&cfg.Adapters); err != nil {
		return err
	}

	return validateSeed(&cfg.Seed)
}

func validateAdapters(a *AdaptersConfig) error {
	monitors := make(map[string]string)
	claim := func(adapter, monitor string) error {
		if other, taken := monitors[monitor]; taken {
			return fmt.Errorf("adapters.%s and adapters.%s both claim monitor %q", other, adapter, monitor)
		}
		monitors[monitor] = adapter
		return nil
	}

	if a.LogSearch.Enabled {
		if err := claim("log_search", a.LogSearch.Monitor); err != nil {
			return err
		}
		for _, addr := range a.LogSearch.Addresses {
			if !isValidURL(addr) {
				return fmt.Errorf("adapters.log_search.addresses contains invalid URL: %s", addr)
			}
		}
		if a.LogSearch.MaxPolls < 1 {
			return fmt.Errorf("adapters.log_search.max_polls must be at least 1")
		}
		if err := checkTemplate("adapters.log_search.query", a.LogSearch.Query); err != nil {
			return err
		}
	}

	if a.Metrics.Enabled {
		if err := claim("metrics", a.Metrics.Monitor); err != nil {
			return err
		}
		if !isValidURL(a.Metrics.URL) {
			return fmt.Errorf("adapters.metrics.url must be a valid URL")
		}
		if a.Metrics.Step <= 0 || a.Metrics.Range <= 0 {
			return fmt.Errorf("adapters.metrics.range and step must be positive")
		}
		if err := checkTemplate("adapters.metrics.query", a.Metrics.Query); err != nil {
			return err
		}
	}

	if a.Synthetic.Enabled {
		if err := claim("synthetic", a.Synthetic.Monitor); err != nil {
			return err
		}
		if !isValidURL(a.Synthetic.BaseURL) {
			return fmt.Errorf("adapters.synthetic.base_url must be a valid URL")
		}
		if err := checkTemplate("adapters.synthetic.path", a.Synthetic.Path); err != nil {
			return err
		}
	}

	if a.Portal.Enabled {
		if err := claim("portal", a.Portal.Monitor); err != nil {
			return err
		}
		if !isValidURL(a.Portal.LoginURL) || !isValidURL(a.Portal.SearchURL) {
			return fmt.Errorf("adapters.portal.login_url and search_url must be valid URLs")
		}
	}

	return nil
}

func validateSeed(seed *SeedConfig) error {
	hostNames := make(map[string]bool)
	for _, h := range seed.Hosts {
		if h.Name == "" {
			return fmt.Errorf("seed host with empty name")
		}
		if hostNames[h.Name] {
			return fmt.Errorf("duplicate seed host: %s", h.Name)
		}
		hostNames[h.Name] = true
	}

	endPoints := make(map[string]bool)
	for _, m := range seed.Monitors {
		if m.EndPoint == "" {
			return fmt.Errorf("seed monitor %q has empty end_point", m.Name)
		}
		endPoints[m.EndPoint] = true
	}

	keys := make(map[string]bool)
	for _, s := range seed.Sites {
		if s.EndPoint == "" || s.CountryCode == "" {
			return fmt.Errorf("seed site %q needs end_point and country_code", s.Name)
		}
		key := s.CountryCode + "/" + s.EndPoint
		if keys[key] {
			return fmt.Errorf("duplicate seed site: %s", key)
		}
		keys[key] = true
	}
	return nil
}

func checkTemplate(field, text string) error {
	if _, err := template.New(field).Parse(text); err != nil {
		return fmt.Errorf("%s is not a valid template: %w", field, err)
	}
	return nil
}

// isValidURL checks if a string is an http(s) URL
func isValidURL(str string) bool {
	return strings.HasPrefix(str, "http://") && len(str) > 7 ||
		strings.HasPrefix(str, "https://") && len(str) > 8
}

// isValidGlobPattern checks if a string is a valid glob pattern
func isValidGlobPattern(pattern string) bool {
	if strings.Contains(pattern, "/") || strings.Contains(pattern, "\\") {
		return false
	}
	_, err := filepath.Match(pattern, "test.yaml")
	return err == nil
}
