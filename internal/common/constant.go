package common

// AuthorizationHeaderName is the request header carrying the bearer token.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the token inside the Authorization header.
const BearerPrefix = "Bearer "

// APIPrefix is the mount point of all versioned API routes.
const APIPrefix = "/api/v1"
