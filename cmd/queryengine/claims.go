package main

import (
	gojwt "github.com/golang-jwt/jwt/v5"
)

// Claims is the query engine's bearer-token claims shape: the registered
// claim set plus the caller's subject role, used only to distinguish
// read-only callers from callers allowed to manage the data-source catalog.
type Claims struct {
	gojwt.RegisteredClaims
	Role string `json:"role"`
}

// newEmptyClaims satisfies jwt.NewService's newEmpty parameter.
func newEmptyClaims() *Claims {
	return &Claims{}
}
