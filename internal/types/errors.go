package types

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidOptions = errors.New("invalid options")
	ErrInvalidBackend = errors.New("invalid backend")

	ErrTransport = errors.New("transport error")
	ErrAuth      = errors.New("signature rejected")
	ErrCache     = errors.New("cache read/write error")
	ErrProtocol  = errors.New("malformed response body")
)

func Err(typedError error, innerErr error, msgTemplate string, args ...any) error {
	if msgTemplate == "" {
		return errors.Join(typedError, innerErr)
	} else {
		return errors.Join(typedError, innerErr, fmt.Errorf(msgTemplate, args...))
	}
}

// TransportKind classifies why a request to the config service did not produce a usable response.
type TransportKind int

const (
	KindTimeout TransportKind = iota
	KindConnection
	KindServer
)

var transportKindText = map[TransportKind]string{
	KindTimeout:    "timeout",
	KindConnection: "connection",
	KindServer:     "server",
}

func (k TransportKind) String() string {
	if s, ok := transportKindText[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// TransportError is returned for every failed request. StatusCode is only set for KindServer.
// errors.Is(err, ErrTransport) always holds; a 401/403 also matches ErrAuth.
type TransportError struct {
	Kind       TransportKind
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.Kind == KindServer {
		return fmt.Sprintf("%s: %s %s: status %d", ErrTransport, e.Kind, e.URL, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s %s: %v", ErrTransport, e.Kind, e.URL, e.Err)
	}
	return fmt.Sprintf("%s: %s %s", ErrTransport, e.Kind, e.URL)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool {
	switch target {
	case ErrTransport:
		return true
	case ErrAuth:
		return e.Kind == KindServer && (e.StatusCode == 401 || e.StatusCode == 403)
	}
	return false
}

// IsTimeout reports whether err is a TransportError of kind KindTimeout.
func IsTimeout(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Kind == KindTimeout
}
