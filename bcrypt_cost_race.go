//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

// Race builds hash a lot of passwords under the detector, so they trade the
// production work factor for bcrypt's library default.
func passwordHashCost() int {
	return bcrypt.DefaultCost
}
