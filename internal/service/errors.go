package service

import "errors"

// Sentinel errors for the billing flow. Their messages are user facing:
// the checkout completion handler puts them verbatim into the redirect
// query string.
var (
	ErrWrongSession     = errors.New("Wrong session")
	ErrUserNotFound     = errors.New("User not found")
	ErrTeamNotFound     = errors.New("Team not found")
	ErrPermissionDenied = errors.New("Permission denied")
	ErrNoSubscription   = errors.New("Team has no active subscription")
	ErrNoCardOnFile     = errors.New("No card on file")
	ErrAlreadyPaying    = errors.New("Team is already subscribed")
	ErrInvalidLogin     = errors.New("Invalid email or password")
)
