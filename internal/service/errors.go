package service

// Kind is the internal classification of a service failure. Handlers map
// kinds to HTTP statuses at the boundary; the client-facing message stays
// deliberately generic where leaking the cause would help enumeration.
type Kind int

const (
	KindInternal Kind = iota
	KindConflict
	KindInvalidCredentials
	KindAccountDisabled
	KindMissingToken
	KindInvalidToken
	KindTokenExpired
	KindNotFound
	KindSelfDeletion
	KindInvalidRole
)

type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

var (
	errEmailTaken         = newError(KindConflict, "Email is already in use")
	errInvalidCredentials = newError(KindInvalidCredentials, "Email or password is incorrect")
	errAccountDisabled    = newError(KindAccountDisabled, "Account is disabled")
	errMissingToken       = newError(KindMissingToken, "Refresh token is required")
	errInvalidToken       = newError(KindInvalidToken, "Invalid or expired token")
	errTokenExpired       = newError(KindTokenExpired, "Token has expired")
	errUserNotFound       = newError(KindNotFound, "User not found")
	errSelfDeletion       = newError(KindSelfDeletion, "You cannot delete your own account")
	errInvalidRole        = newError(KindInvalidRole, "Unknown role")
)
