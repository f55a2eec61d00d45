package testutil

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var signingKey = []byte("testutil-signing-key")

// MarketplaceToken returns a signed access token whose cid claim names
// marketplaceID, shaped like the platform's client-credentials tokens.
func MarketplaceToken(marketplaceID string) string {
	claims := jwt.MapClaims{
		"cid":  marketplaceID,
		"usr":  "api-client",
		"role": []string{"FullAccess"},
		"exp":  time.Now().Add(10 * time.Hour).Unix(),
		"nbf":  time.Now().Add(-time.Minute).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		panic("testutil: sign token: " + err.Error())
	}
	return signed
}
