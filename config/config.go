package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Configuration wraps everything the server needs to know at startup.
type Configuration struct {
	ExternalURL string `mapstructure:"external_url"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	// DefaultTimeout is the deadline (in ms) given to the GDPR vendor-consent lookup.
	DefaultTimeoutMS uint64 `mapstructure:"default_timeout_ms"`
	// StatusResponse is the body served on /status; empty means a bare 204.
	StatusResponse string     `mapstructure:"status_response"`
	HostCookie     HostCookie `mapstructure:"host_cookie"`
	GDPR           GDPR       `mapstructure:"gdpr"`
	UserSync       UserSync   `mapstructure:"usersync"`
	Metrics        Metrics    `mapstructure:"metrics"`
	Analytics      Analytics  `mapstructure:"analytics"`
	// HostBidder is the bidder operated by the company hosting this server. It receives
	// special placement in cookie sync responses so /setuid calls carry the account param.
	HostBidder string            `mapstructure:"host_bidder"`
	Bidders    map[string]Bidder `mapstructure:"bidders"`
}

// HostCookie configures the uids cookie and the host-level identity cookie.
type HostCookie struct {
	Domain string `mapstructure:"domain"`
	Family string `mapstructure:"family"`
	// CookieName is the name of the host's own identity cookie, if it sets one.
	CookieName string `mapstructure:"cookie_name"`
	// AuditCookieName is the identity-audit cookie checked before forcing a host-bidder sync.
	AuditCookieName string `mapstructure:"audit_cookie_name"`
	OptOutCookie    OptOutCookie `mapstructure:"optout_cookie"`
	TTLDays         int          `mapstructure:"ttl_days"`
}

func (cfg *HostCookie) TTLDuration() time.Duration {
	return time.Duration(cfg.TTLDays) * 24 * time.Hour
}

type OptOutCookie struct {
	Name  string `mapstructure:"name"`
	Value string `mapstructure:"value"`
}

type GDPR struct {
	HostVendorID int `mapstructure:"host_vendor_id"`
	// UsersyncIfAmbiguous controls whether syncs proceed when no gdpr signal was supplied.
	UsersyncIfAmbiguous bool `mapstructure:"usersync_if_ambiguous"`
}

type UserSync struct {
	// Enabled gates the /cookie_sync endpoint entirely.
	Enabled bool `mapstructure:"enabled"`
	// CoopSyncDefault applies when the request leaves coop_sync unset.
	CoopSyncDefault bool `mapstructure:"coop_sync_default"`
	// PriorityGroups are walked highest priority first when expanding a cooperative sync.
	PriorityGroups [][]string `mapstructure:"priority_groups"`
}

type Bidder struct {
	Active       bool   `mapstructure:"active"`
	AliasOf      string `mapstructure:"alias_of"`
	CookieFamily string `mapstructure:"cookie_family"`
	GDPRVendorID uint16 `mapstructure:"gdpr_vendor_id"`
	UsersyncURL  string `mapstructure:"usersync_url"`
	UsersyncType string `mapstructure:"usersync_type"`
	SupportCORS  bool   `mapstructure:"support_cors"`
}

type Metrics struct {
	Influxdb   InfluxMetrics     `mapstructure:"influxdb"`
	Prometheus PrometheusMetrics `mapstructure:"prometheus"`
}

type InfluxMetrics struct {
	Host               string `mapstructure:"host"`
	Database           string `mapstructure:"database"`
	Username           string `mapstructure:"username"`
	Password           string `mapstructure:"password"`
	MetricSendInterval int    `mapstructure:"metric_send_interval"`
}

type PrometheusMetrics struct {
	Port      int    `mapstructure:"port"`
	Namespace string `mapstructure:"namespace"`
	Subsystem string `mapstructure:"subsystem"`
}

func (m *InfluxMetrics) Enabled() bool {
	return m.Host != ""
}

func (m *PrometheusMetrics) Enabled() bool {
	return m.Port != 0
}

type Analytics struct {
	File FileLogs `mapstructure:"file"`
}

// FileLogs configures a file-based analytics module. Empty filename disables it.
type FileLogs struct {
	Filename string `mapstructure:"filename"`
}

// New validates the viper config and converts it to our Configuration struct.
func New(v *viper.Viper) (*Configuration, error) {
	var c Configuration
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("viper failed to unmarshal app config: %v", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (cfg *Configuration) validate() error {
	if _, err := url.Parse(cfg.ExternalURL); err != nil {
		return fmt.Errorf("invalid external_url %s: %v", cfg.ExternalURL, err)
	}
	if strings.HasSuffix(cfg.ExternalURL, "/") {
		cfg.ExternalURL = strings.TrimSuffix(cfg.ExternalURL, "/")
	}
	if cfg.GDPR.HostVendorID < 0 || cfg.GDPR.HostVendorID > 0xffff {
		return fmt.Errorf("gdpr.host_vendor_id must fit in 16 bits: got %d", cfg.GDPR.HostVendorID)
	}
	for name, bidder := range cfg.Bidders {
		if bidder.AliasOf != "" {
			target, ok := cfg.Bidders[bidder.AliasOf]
			if !ok {
				return fmt.Errorf("bidders.%s is an alias of unknown bidder %s", name, bidder.AliasOf)
			}
			if target.AliasOf != "" {
				return fmt.Errorf("bidders.%s: aliases of aliases are not supported", name)
			}
		}
	}
	seen := make(map[string]struct{})
	for _, group := range cfg.UserSync.PriorityGroups {
		for _, name := range group {
			if _, ok := seen[name]; ok {
				return fmt.Errorf("usersync.priority_groups: %s appears in more than one group", name)
			}
			seen[name] = struct{}{}
		}
	}
	return nil
}

// SetupViper sets the viper defaults and binds the config file and env vars.
func SetupViper(v *viper.Viper, filename string) {
	if filename != "" {
		v.SetConfigName(filename)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/config")
	}
	v.SetDefault("external_url", "http://localhost:8000")
	v.SetDefault("host", "")
	v.SetDefault("port", 8000)
	v.SetDefault("default_timeout_ms", 250)
	v.SetDefault("host_cookie.ttl_days", 90)
	v.SetDefault("host_cookie.audit_cookie_name", "uids-audit")
	v.SetDefault("gdpr.host_vendor_id", 52)
	v.SetDefault("gdpr.usersync_if_ambiguous", false)
	v.SetDefault("usersync.enabled", true)
	v.SetDefault("usersync.coop_sync_default", false)
	v.SetDefault("metrics.influxdb.metric_send_interval", 20)
	v.SetDefault("host_bidder", "adnexal")

	v.SetEnvPrefix("BIDSERVER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.ReadInConfig()
}
