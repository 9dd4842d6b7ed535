package transport

import (
	"fmt"
	"net/url"
)

const openAPIPrefix = "/openapi/v1"

// Endpoints builds request URLs for one app/cluster against a config service base URL.
// In OpenAPI mode every path is prefixed with /openapi/v1.
type Endpoints struct {
	AppID   string
	Cluster string
	OpenAPI bool
	// IP is reported to the config service for grey releases; omitted when empty.
	IP string
}

func (e Endpoints) prefix() string {
	if e.OpenAPI {
		return openAPIPrefix
	}
	return ""
}

// Config is GET {base}/configs/{appId}/{cluster}/{namespace}. releaseKey lets the service answer 304 when the
// caller already holds that release.
func (e Endpoints) Config(base, namespace, releaseKey string) string {
	u := fmt.Sprintf("%s%s/configs/%s/%s/%s", base, e.prefix(),
		url.PathEscape(e.AppID), url.PathEscape(e.Cluster), url.PathEscape(namespace))
	q := url.Values{}
	if releaseKey != "" {
		q.Set("releaseKey", releaseKey)
	}
	if e.IP != "" {
		q.Set("ip", e.IP)
	}
	if len(q) == 0 {
		return u
	}
	return u + "?" + q.Encode()
}

// Notifications is GET {base}/notifications/v2 carrying the JSON encoded notification list.
func (e Endpoints) Notifications(base string, notifications []byte) string {
	q := url.Values{}
	q.Set("appId", e.AppID)
	q.Set("cluster", e.Cluster)
	q.Set("notifications", string(notifications))
	if e.IP != "" {
		q.Set("ip", e.IP)
	}
	return fmt.Sprintf("%s%s/notifications/v2?%s", base, e.prefix(), q.Encode())
}
