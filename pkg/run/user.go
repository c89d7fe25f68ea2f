package run

import (
	"os"
	"os/user"
)

// CurrentUser returns the login name of the process owner. When the user
// database is unavailable it falls back to $USER.
func CurrentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}
