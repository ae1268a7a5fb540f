package core

// AuthKind identifies the shape of a forwarded credential.
type AuthKind string

const (
	AuthKindNone   AuthKind = "none"
	AuthKindBearer AuthKind = "bearer"
	AuthKindCookie AuthKind = "cookie"
)

// AuthBlob is the opaque credential the caller hands the orchestrator to
// forward to the target HTTP service. Auth extraction itself is an external
// collaborator; the core only knows how to render one of these into headers.
type AuthBlob struct {
	Kind        AuthKind `json:"kind"`
	Token       string   `json:"token,omitempty"`
	CookieName  string   `json:"cookieName,omitempty"`
	CookieValue string   `json:"cookieValue,omitempty"`
}

// Headers renders the credential into the headers that must be merged into
// an outbound request. Returns an empty map for AuthKindNone or a nil blob.
func (a *AuthBlob) Headers() map[string]string {
	if a == nil {
		return map[string]string{}
	}
	switch a.Kind {
	case AuthKindBearer:
		if a.Token == "" {
			return map[string]string{}
		}
		return map[string]string{"Authorization": "Bearer " + a.Token}
	case AuthKindCookie:
		if a.CookieName == "" {
			return map[string]string{}
		}
		return map[string]string{"Cookie": a.CookieName + "=" + a.CookieValue}
	default:
		return map[string]string{}
	}
}
