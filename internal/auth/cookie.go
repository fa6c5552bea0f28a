package auth

const (
	// CookieName carries the signed token for browser clients.
	CookieName = "jwt"
	// LoggedOutValue overwrites the cookie on logout; it is never a token.
	LoggedOutValue = "loggedout"
)
