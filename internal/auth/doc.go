// Package auth provides authentication for threadwell.
//
// # Authentication Method
//
// API clients authenticate with JWT tokens signed with HS256 using the
// configured jwt_secret. The token's "sub" claim carries the user ID that
// owns conversations.
//
// # Token Transport
//
// Tokens arrive as a bearer token in the Authorization header:
//
//	Authorization: Bearer <token>
//
// Browser WebSocket clients cannot set request headers, so stream upgrades
// also accept the token via an "authorization" query parameter:
//
//	GET /api/conversations/{ref}/stream?authorization=<token>
//
// # Middleware
//
// HTTPAuthMiddleware wraps handlers and places an AuthContext in the request
// context. Handlers retrieve the authenticated identity with FromContext:
//
//	authCtx := auth.FromContext(r.Context())
//	ownerID := authCtx.UserID
//
// # Token Management
//
// Tokens are generated and verified through JWTVerifier:
//
//	verifier := auth.NewJWTVerifier(secret)
//	token, err := verifier.Generate(userID, 24*time.Hour)
//	userID, err := verifier.Verify(token)
package auth
