package transport

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderTimestamp     = "Timestamp"

	authorizationFormat = "Apollo %s:%s"
)

var timeNow = time.Now

func SetTimeNowFn(f func() time.Time) {
	timeNow = f
}

func RestoreTimeNow() {
	timeNow = time.Now
}

// SignHeaders builds the Authorization and Timestamp headers for rawURL. An empty secret yields no headers;
// the config service accepts anonymous access for apps without a secret.
func SignHeaders(rawURL, appID, secret string) (http.Header, error) {
	h := http.Header{}
	if secret == "" {
		return h, nil
	}
	pathWithQuery, err := CanonicalPathWithQuery(rawURL)
	if err != nil {
		return nil, err
	}
	timestamp := strconv.FormatInt(timeNow().UnixMilli(), 10)
	signature := Sign(timestamp+"\n"+pathWithQuery, secret)
	h.Set(HeaderAuthorization, fmt.Sprintf(authorizationFormat, appID, signature))
	h.Set(HeaderTimestamp, timestamp)
	return h, nil
}

// Sign returns base64(HMAC-SHA1(secret, stringToSign)).
func Sign(stringToSign, secret string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	// hash.Hash.Write never returns an error according to the interface contract
	_, _ = mac.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// CanonicalPathWithQuery returns "path?query" with the query parameters ordered by key. Parameters are kept in
// their escaped form and parameters sharing a key keep their relative order; the server canonicalizes the same
// way, so any other ordering fails authentication.
func CanonicalPathWithQuery(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery == "" {
		return path, nil
	}
	return path + "?" + SortQuery(u.RawQuery), nil
}

// SortQuery orders the "&"-separated parameters of an escaped query string by key.
func SortQuery(rawQuery string) string {
	params := strings.Split(rawQuery, "&")
	sort.SliceStable(params, func(i, j int) bool {
		return queryKey(params[i]) < queryKey(params[j])
	})
	return strings.Join(params, "&")
}

func queryKey(param string) string {
	if i := strings.IndexByte(param, '='); i >= 0 {
		return param[:i]
	}
	return param
}
