package types

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
)

const (
	CacheBackendDisk  = "disk"
	CacheBackendRedis = "redis"
	CacheBackendDDB   = "ddb"

	DefaultRefreshInterval = 60 * time.Second
	DefaultTimeout         = 10 * time.Second
	DefaultPollTimeout     = 90 * time.Second

	EnvServerURL       = "APOLLO_SERVER_URL"
	EnvAppID           = "APOLLO_APP_ID"
	EnvSecret          = "APOLLO_SECRET"
	EnvAppSecret       = "APOLLO_APP_SECRET"
	EnvCluster         = "APOLLO_CLUSTER"
	EnvNamespace       = "APOLLO_NAMESPACE"
	EnvNamespaces      = "APOLLO_NAMESPACES"
	EnvRefreshInterval = "APOLLO_REFRESH_INTERVAL"
	EnvCaseSensitive   = "APOLLO_CASE_SENSITIVE"
	EnvCacheDir        = "APOLLO_CACHE_DIR"
	EnvCacheBackend    = "APOLLO_CACHE_BACKEND"
	EnvTimeout         = "APOLLO_TIMEOUT"
	EnvPollTimeout     = "APOLLO_POLL_TIMEOUT"
	EnvOpenAPI         = "APOLLO_OPENAPI"
	EnvDiscovery       = "APOLLO_DISCOVERY"
	EnvIP              = "APOLLO_IP"
	EnvChangeTopicARN  = "APOLLO_CHANGE_TOPIC_ARN"
)

// Options drives one client: which config service to talk to, which namespaces to keep fresh and where the
// last-known-good copies are persisted.
// ServerURL is the meta server when Discovery is on, otherwise the config service (or the portal in OpenAPI mode).
// Secret is optional; without it requests are sent unsigned.
// RefreshInterval bounds how stale a read may be before the mapping refreshes synchronously.
// Timeout applies to config and discovery requests, PollTimeout to the long-poll request.
type Options struct {
	ServerURL       string        `json:"server_url" yaml:"server_url" validate:"required,url"`
	AppID           string        `json:"app_id" yaml:"app_id" validate:"required"`
	Secret          string        `json:"-" yaml:"secret"`
	Cluster         string        `json:"cluster" yaml:"cluster" validate:"required"`
	Namespaces      []string      `json:"namespaces" yaml:"namespaces" validate:"required,min=1,dive,required"`
	RefreshInterval time.Duration `json:"refresh_interval" yaml:"-" validate:"gt=0"`
	CaseSensitive   bool          `json:"case_sensitive" yaml:"case_sensitive"`
	CacheDir        string        `json:"cache_dir" yaml:"cache_dir"`
	CacheBackend    string        `json:"cache_backend" yaml:"cache_backend" validate:"oneof=disk redis ddb"`
	Timeout         time.Duration `json:"timeout" yaml:"-" validate:"gt=0"`
	PollTimeout     time.Duration `json:"poll_timeout" yaml:"-" validate:"gt=0"`
	OpenAPI         bool          `json:"openapi" yaml:"openapi"`
	Discovery       bool          `json:"discovery" yaml:"discovery"`
	IP              string        `json:"ip,omitempty" yaml:"ip"`
	ChangeTopicARN  string        `json:"change_topic_arn,omitempty" yaml:"change_topic_arn"`
}

// DefaultOptions returns the options every other source is layered on.
func DefaultOptions() Options {
	return Options{
		Cluster:         DefaultCluster,
		Namespaces:      []string{DefaultNamespace},
		RefreshInterval: DefaultRefreshInterval,
		CaseSensitive:   true,
		CacheDir:        DefaultCacheDir(),
		CacheBackend:    CacheBackendDisk,
		Timeout:         DefaultTimeout,
		PollTimeout:     DefaultPollTimeout,
		Discovery:       true,
	}
}

// DefaultCacheDir is the per-user cache directory, or the temp dir when the platform has none.
func DefaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil || base == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, "apollocfg")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate normalizes the server URL and checks the struct constraints.
func (o *Options) Validate() error {
	o.ServerURL = strings.TrimRight(strings.TrimSpace(o.ServerURL), "/")
	if err := validate.Struct(o); err != nil {
		return Err(ErrInvalidOptions, err, "")
	}
	if o.PollTimeout <= o.Timeout {
		return Err(ErrInvalidOptions, nil, "poll_timeout (%s) must be greater than timeout (%s)", o.PollTimeout, o.Timeout)
	}
	if o.CacheBackend == CacheBackendDisk && o.CacheDir == "" {
		return Err(ErrInvalidOptions, nil, "cache_dir is required for the disk cache backend")
	}
	seen := make(map[string]struct{}, len(o.Namespaces))
	for _, ns := range o.Namespaces {
		if _, dup := seen[ns]; dup {
			return Err(ErrInvalidOptions, nil, "namespace %q listed twice", ns)
		}
		seen[ns] = struct{}{}
	}
	return nil
}

// fileOptions mirrors Options for YAML files. Pointers tell "absent" from "zero" so a file only overrides what it
// names. Durations are whole seconds.
type fileOptions struct {
	ServerURL       *string  `yaml:"server_url"`
	AppID           *string  `yaml:"app_id"`
	Secret          *string  `yaml:"secret"`
	AppSecret       *string  `yaml:"app_secret"`
	Cluster         *string  `yaml:"cluster"`
	Namespace       *string  `yaml:"namespace"`
	Namespaces      []string `yaml:"namespaces"`
	RefreshInterval *int     `yaml:"refresh_interval"`
	CaseSensitive   *bool    `yaml:"case_sensitive"`
	CacheDir        *string  `yaml:"cache_dir"`
	CacheBackend    *string  `yaml:"cache_backend"`
	Timeout         *int     `yaml:"timeout"`
	PollTimeout     *int     `yaml:"poll_timeout"`
	OpenAPI         *bool    `yaml:"openapi"`
	Discovery       *bool    `yaml:"discovery"`
	IP              *string  `yaml:"ip"`
	ChangeTopicARN  *string  `yaml:"change_topic_arn"`
}

// LoadOptionsFile layers the YAML file at path on top of base.
func LoadOptionsFile(path string, base Options) (Options, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read options file: %w", err)
	}
	return ParseOptionsYAML(b, base)
}

// ParseOptionsYAML layers a YAML document on top of base.
func ParseOptionsYAML(b []byte, base Options) (Options, error) {
	var f fileOptions
	if err := yaml.Unmarshal(b, &f); err != nil {
		return base, Err(ErrInvalidOptions, err, "parse options yaml")
	}
	o := base
	setString(&o.ServerURL, f.ServerURL)
	setString(&o.AppID, f.AppID)
	setString(&o.Secret, f.AppSecret)
	setString(&o.Secret, f.Secret)
	setString(&o.Cluster, f.Cluster)
	if f.Namespace != nil {
		o.Namespaces = []string{*f.Namespace}
	}
	if len(f.Namespaces) > 0 {
		o.Namespaces = append([]string(nil), f.Namespaces...)
	}
	setSeconds(&o.RefreshInterval, f.RefreshInterval)
	setBool(&o.CaseSensitive, f.CaseSensitive)
	setString(&o.CacheDir, f.CacheDir)
	setString(&o.CacheBackend, f.CacheBackend)
	setSeconds(&o.Timeout, f.Timeout)
	setSeconds(&o.PollTimeout, f.PollTimeout)
	setBool(&o.OpenAPI, f.OpenAPI)
	setBool(&o.Discovery, f.Discovery)
	setString(&o.IP, f.IP)
	setString(&o.ChangeTopicARN, f.ChangeTopicARN)
	return o, nil
}

// ApplyEnv layers APOLLO_* environment variables on top of base. Unset or empty variables are ignored.
func ApplyEnv(base Options) (Options, error) {
	o := base
	o.ServerURL = getenv(EnvServerURL, o.ServerURL)
	o.AppID = getenv(EnvAppID, o.AppID)
	o.Secret = getenv(EnvAppSecret, o.Secret)
	o.Secret = getenv(EnvSecret, o.Secret)
	o.Cluster = getenv(EnvCluster, o.Cluster)
	if v := os.Getenv(EnvNamespace); v != "" {
		o.Namespaces = []string{strings.TrimSpace(v)}
	}
	if v := os.Getenv(EnvNamespaces); v != "" {
		o.Namespaces = SplitList(v)
	}
	o.CacheDir = getenv(EnvCacheDir, o.CacheDir)
	o.CacheBackend = getenv(EnvCacheBackend, o.CacheBackend)
	o.IP = getenv(EnvIP, o.IP)
	o.ChangeTopicARN = getenv(EnvChangeTopicARN, o.ChangeTopicARN)

	for key, dst := range map[string]*time.Duration{
		EnvRefreshInterval: &o.RefreshInterval,
		EnvTimeout:         &o.Timeout,
		EnvPollTimeout:     &o.PollTimeout,
	} {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		secs, err := strconv.Atoi(v)
		if err != nil {
			return base, Err(ErrInvalidOptions, err, "%s must be whole seconds", key)
		}
		*dst = time.Duration(secs) * time.Second
	}
	for key, dst := range map[string]*bool{
		EnvCaseSensitive: &o.CaseSensitive,
		EnvOpenAPI:       &o.OpenAPI,
		EnvDiscovery:     &o.Discovery,
	} {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return base, Err(ErrInvalidOptions, err, "%s must be a boolean", key)
		}
		*dst = b
	}
	return o, nil
}

// SplitList splits a comma separated list, trimming blanks and dropping empty items.
func SplitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setSeconds(dst *time.Duration, v *int) {
	if v != nil {
		*dst = time.Duration(*v) * time.Second
	}
}
