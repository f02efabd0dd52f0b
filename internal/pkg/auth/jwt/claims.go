package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the structure of the JSON Web Token (JWT) claims for the
// collaboration server. It includes standard claims required by the JWT
// specification and custom claims identifying the connected user.
type Payload struct {
	// StandardClaims embeds the necessary JWT standard fields such as Exp (Expiration),
	// Iat (Issued At), and Iss (Issuer). These are crucial for token validity checks.
	jwt.StandardClaims `json:"standard_claims"`

	// ID is the unique identifier of the authenticated user.
	ID string `json:"id"`

	// Username is the user's login name, carried so the websocket layer can
	// build its session entry without an extra lookup on reconnect.
	Username string `json:"username"`
}
