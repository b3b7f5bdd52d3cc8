package goRotate

import (
	"github.com/MrEthical07/goRotate/jwt"
	"github.com/MrEthical07/goRotate/store"
)

// TokenPair is the access/refresh pair returned by Issue and Refresh.
// JSON field names are accessToken and refreshToken.
type TokenPair = jwt.Pair

// Claims is the verified payload of an access or refresh token.
type Claims = jwt.Claims

// Store is the durable refresh token store the Engine rotates against.
type Store = store.Store
