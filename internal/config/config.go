package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from the usual YAML string
// form, e.g. "30s" or "2m".
type Duration time.Duration

// Std returns the value as a standard time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// SharePointConfig describes the source side: the Graph API plus the tenant
// used for the client-credential flow.
type SharePointConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	SiteID       string `yaml:"site_id"`
	GraphBaseURL string `yaml:"graph_base_url"`
	WebBaseURL   string `yaml:"web_base_url"` // e.g. https://contoso.sharepoint.com
}

// ServiceNowConfig describes the target knowledge base.
type ServiceNowConfig struct {
	BaseURL         string `yaml:"base_url"`
	APIKey          string `yaml:"api_key"`
	KBPath          string `yaml:"kb_path"` // table API path, e.g. api/now/table
	KnowledgeBaseID string `yaml:"knowledge_base_id"`
	CategoryID      string `yaml:"category_id"`
	Author          string `yaml:"author"`
	Editor          string `yaml:"editor"`
}

// Config holds everything a migration run needs. Values come from the YAML
// file, overridden by KBM_* environment variables so secrets can stay out of
// the file.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	PrettyLog bool   `yaml:"pretty_log"`

	SharePoint SharePointConfig `yaml:"sharepoint"`
	ServiceNow ServiceNowConfig `yaml:"servicenow"`

	DataDir   string `yaml:"data_dir"`
	ImagesDir string `yaml:"images_dir"`

	RequestTimeout Duration `yaml:"request_timeout"`
	MaxAttempts    int      `yaml:"max_attempts"`

	Workers           int `yaml:"workers"`
	PublishWorkers    int `yaml:"publish_workers"`
	DiscoveryPageSize int `yaml:"discovery_page_size"`
}

// Load reads the YAML file (if path is non-empty), overlays environment
// variables, then applies defaults for anything still unset.
func Load(path string) (*Config, error) {
	c := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	c.overlayEnv()
	c.applyDefaults()
	return c, nil
}

func (c *Config) overlayEnv() {
	setenv(&c.LogLevel, "KBM_LOG_LEVEL")

	setenv(&c.SharePoint.TenantID, "KBM_TENANT_ID")
	setenv(&c.SharePoint.ClientID, "KBM_CLIENT_ID")
	setenv(&c.SharePoint.ClientSecret, "KBM_CLIENT_SECRET")
	setenv(&c.SharePoint.SiteID, "KBM_SITE_ID")
	setenv(&c.SharePoint.GraphBaseURL, "KBM_GRAPH_BASE_URL")
	setenv(&c.SharePoint.WebBaseURL, "KBM_WEB_BASE_URL")

	setenv(&c.ServiceNow.BaseURL, "KBM_SN_BASE_URL")
	setenv(&c.ServiceNow.APIKey, "KBM_SN_API_KEY")
	setenv(&c.ServiceNow.KBPath, "KBM_SN_KB_PATH")
	setenv(&c.ServiceNow.KnowledgeBaseID, "KBM_SN_KNOWLEDGE_BASE_ID")
	setenv(&c.ServiceNow.CategoryID, "KBM_SN_CATEGORY_ID")
	setenv(&c.ServiceNow.Author, "KBM_SN_AUTHOR")
	setenv(&c.ServiceNow.Editor, "KBM_SN_EDITOR")

	setenv(&c.DataDir, "KBM_DATA_DIR")
	setenv(&c.ImagesDir, "KBM_IMAGES_DIR")

	if v, ok := os.LookupEnv("KBM_WORKERS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Workers = n
		}
	}
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.SharePoint.GraphBaseURL == "" {
		c.SharePoint.GraphBaseURL = "https://graph.microsoft.com/v1.0"
	}
	if c.ServiceNow.KBPath == "" {
		c.ServiceNow.KBPath = "api/now/table"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.ImagesDir == "" {
		c.ImagesDir = "images"
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = Duration(30 * time.Second)
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 8
	}
	if c.Workers <= 0 {
		c.Workers = 5
	}
	if c.PublishWorkers <= 0 {
		c.PublishWorkers = 10
	}
	if c.DiscoveryPageSize <= 0 {
		c.DiscoveryPageSize = 10
	}
}

// ValidateSource checks the settings the SharePoint stages cannot run without.
func (c *Config) ValidateSource() error {
	switch {
	case c.SharePoint.TenantID == "":
		return fmt.Errorf("sharepoint.tenant_id is required")
	case c.SharePoint.ClientID == "":
		return fmt.Errorf("sharepoint.client_id is required")
	case c.SharePoint.ClientSecret == "":
		return fmt.Errorf("sharepoint.client_secret is required (KBM_CLIENT_SECRET)")
	case c.SharePoint.SiteID == "":
		return fmt.Errorf("sharepoint.site_id is required")
	}
	return nil
}

// ValidateTarget checks the settings the ServiceNow stages cannot run without.
func (c *Config) ValidateTarget() error {
	switch {
	case c.ServiceNow.BaseURL == "":
		return fmt.Errorf("servicenow.base_url is required")
	case c.ServiceNow.APIKey == "":
		return fmt.Errorf("servicenow.api_key is required (KBM_SN_API_KEY)")
	}
	return nil
}

func setenv(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}
