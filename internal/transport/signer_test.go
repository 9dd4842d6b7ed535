package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortQuery(t *testing.T) {
	assert.Equal(t, "appId=a&cluster=default&notifications=%5B%5D", SortQuery("notifications=%5B%5D&appId=a&cluster=default"))
	assert.Equal(t, "a=2&a=1&b", SortQuery("b&a=2&a=1"))
	assert.Equal(t, "", SortQuery(""))
}

func TestCanonicalPathWithQuery(t *testing.T) {
	p, err := CanonicalPathWithQuery("http://localhost:8080/configs/app/default/application?releaseKey=r1&ip=10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "/configs/app/default/application?ip=10.0.0.1&releaseKey=r1", p)

	p, err = CanonicalPathWithQuery("http://localhost:8080")
	require.NoError(t, err)
	assert.Equal(t, "/", p)
}

func TestSignKnownVector(t *testing.T) {
	// HMAC-SHA1("secret", "1576478257344\n/configs/100004458/default/application?ip=10.0.0.1")
	sig := Sign("1576478257344\n/configs/100004458/default/application?ip=10.0.0.1", "df23df3f59884980844ff3dada30fa97")
	assert.Equal(t, "EoKyziXvKqzHgwx+ijDJwgVTDgE=", sig)
}

func TestSignHeaders(t *testing.T) {
	SetTimeNowFn(func() time.Time { return time.UnixMilli(1576478257344) })
	defer RestoreTimeNow()

	h, err := SignHeaders("http://host/configs/100004458/default/application?ip=10.0.0.1", "100004458", "df23df3f59884980844ff3dada30fa97")
	require.NoError(t, err)
	assert.Equal(t, "1576478257344", h.Get(HeaderTimestamp))
	assert.Equal(t, "Apollo 100004458:EoKyziXvKqzHgwx+ijDJwgVTDgE=", h.Get(HeaderAuthorization))

	h, err = SignHeaders("http://host/configs/a/default/application", "a", "")
	require.NoError(t, err)
	assert.Empty(t, h)
}

func TestSignHeadersIgnoresQueryOrder(t *testing.T) {
	SetTimeNowFn(func() time.Time { return time.UnixMilli(1700000000000) })
	defer RestoreTimeNow()

	h1, err := SignHeaders("http://host/notifications/v2?cluster=default&appId=a", "a", "s")
	require.NoError(t, err)
	h2, err := SignHeaders("http://host/notifications/v2?appId=a&cluster=default", "a", "s")
	require.NoError(t, err)
	assert.Equal(t, h1.Get(HeaderAuthorization), h2.Get(HeaderAuthorization))
}

func TestEndpoints(t *testing.T) {
	e := Endpoints{AppID: "app", Cluster: "default"}
	assert.Equal(t, "http://cfg/configs/app/default/application", e.Config("http://cfg", "application", ""))
	assert.Equal(t, "http://cfg/configs/app/default/application?releaseKey=r1", e.Config("http://cfg", "application", "r1"))

	e.OpenAPI = true
	e.IP = "10.0.0.1"
	assert.Equal(t, "http://cfg/openapi/v1/configs/app/default/db.yaml?ip=10.0.0.1&releaseKey=r1",
		e.Config("http://cfg", "db.yaml", "r1"))

	n := e.Notifications("http://cfg", []byte(`[{"namespaceName":"application","notificationId":-1}]`))
	assert.Equal(t, "http://cfg/openapi/v1/notifications/v2?appId=app&cluster=default&ip=10.0.0.1"+
		"&notifications=%5B%7B%22namespaceName%22%3A%22application%22%2C%22notificationId%22%3A-1%7D%5D", n)
}
