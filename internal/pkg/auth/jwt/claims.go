package jwt

import "github.com/golang-jwt/jwt"

// RoleOperator is the only role the admin API accepts.
const RoleOperator = "operator"

// Payload defines the claims carried by an admin API token.
type Payload struct {
	// StandardClaims contributes the registered exp, iat and iss claims at the top level.
	jwt.StandardClaims

	// ID names the operator the token was minted for (the console host by default).
	ID string `json:"id"`

	// Role gates admin routes; see RoleOperator.
	Role string `json:"role"`
}
