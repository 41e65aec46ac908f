package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var ErrBadCredentials = errors.New("invalid username or password")

// Credentials is the single login allowed on the server. Only a bcrypt
// hash of the password is kept.
type Credentials struct {
	username string
	hash     []byte
}

func NewCredentials(username, password string) (*Credentials, error) {
	return newCredentials(username, password, bcrypt.DefaultCost)
}

func newCredentials(username, password string, cost int) (*Credentials, error) {
	if username == "" || password == "" {
		return nil, errors.New("username and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return &Credentials{username: username, hash: hash}, nil
}

func (c *Credentials) Username() string {
	return c.username
}

// Verify checks a login attempt.
func (c *Credentials) Verify(username, password string) error {
	nameOK := subtle.ConstantTimeCompare([]byte(username), []byte(c.username)) == 1
	passErr := bcrypt.CompareHashAndPassword(c.hash, []byte(password))
	if !nameOK || passErr != nil {
		return ErrBadCredentials
	}
	return nil
}
