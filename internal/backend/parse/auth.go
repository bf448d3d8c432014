package parse

import (
	"net/http"

	"grocerysync/internal/backend"
)

type AuthEngine interface {
	SetHeaders(request *http.Request, cred backend.Credential)
}

// KeyAuth sends the application keys on every request and the session token when there is one.
// The master key goes out only when explicitly enabled.
type KeyAuth struct {
	applicationID string
	javaScriptKey string
	masterKey     string
}

func NewKeyAuth(applicationID, javaScriptKey, masterKey string, useMasterKey bool) *KeyAuth {
	auth := &KeyAuth{applicationID: applicationID, javaScriptKey: javaScriptKey}
	if useMasterKey {
		auth.masterKey = masterKey
	}
	return auth
}

func (a *KeyAuth) SetHeaders(request *http.Request, cred backend.Credential) {
	request.Header.Set("X-Parse-Application-Id", a.applicationID)
	if a.javaScriptKey != "" {
		request.Header.Set("X-Parse-Javascript-Key", a.javaScriptKey)
	}
	if a.masterKey != "" {
		request.Header.Set("X-Parse-Master-Key", a.masterKey)
	}
	if cred.Token != "" {
		request.Header.Set("X-Parse-Session-Token", cred.Token)
	}
}
