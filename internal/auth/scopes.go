package auth

// Known OAuth scopes used by the presence services.
const (
	ScopePresenceRead  = "presence:read"
	ScopePresenceAdmin = "presence:admin"
)
