package types

// ConfigResponse is the body of GET /configs/{appId}/{cluster}/{namespace}.
type ConfigResponse struct {
	AppID          string            `json:"appId"`
	Cluster        string            `json:"cluster"`
	NamespaceName  string            `json:"namespaceName"`
	Configurations map[string]string `json:"configurations"`
	ReleaseKey     string            `json:"releaseKey"`
}

// Notification is one entry of the notifications/v2 exchange. The client sends NamespaceName and
// NotificationID; the server answers with the new NotificationID and, optionally, Messages.
type Notification struct {
	NamespaceName  string                `json:"namespaceName"`
	NotificationID int64                 `json:"notificationId"`
	Messages       *NotificationMessages `json:"messages,omitempty"`
}

// NotificationMessages maps a message key (appId+cluster+namespace) to its latest message id.
type NotificationMessages struct {
	Details map[string]int64 `json:"details"`
}

// Merge copies other's details into m. A key present in both takes other's id.
func (m *NotificationMessages) Merge(other *NotificationMessages) {
	if other == nil {
		return
	}
	if m.Details == nil {
		m.Details = make(map[string]int64, len(other.Details))
	}
	for k, v := range other.Details {
		m.Details[k] = v
	}
}

// ServiceInstance is one entry of GET /services/config.
type ServiceInstance struct {
	AppName     string `json:"appName"`
	InstanceID  string `json:"instanceId"`
	HomepageURL string `json:"homepageUrl"`
}

// HTTPResponse is what the transport hands back for any completed request, whatever its status.
type HTTPResponse struct {
	StatusCode int
	Body       []byte
}
