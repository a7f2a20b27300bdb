package auth

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bloodlink-dev/bloodlink/internal/types"
)

var jwtSecret string

func InitJWTSecret(secret string) error {
	if secret == "" {
		secret = os.Getenv("JWT_SECRET")
	}
	if secret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is not set")
	}
	jwtSecret = secret
	return nil
}

func GenerateJWT(userID uint, role types.Role, email string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    string(role),
		"email":   email,
		"exp":     time.Now().Add(time.Hour * 24).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(jwtSecret))
}

// VerifyJWT validates the token and extracts the identity the core trusts.
func VerifyJWT(tokenString string) (types.Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(jwtSecret), nil
	})

	if err != nil || !token.Valid {
		return types.Identity{}, fmt.Errorf("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return types.Identity{}, fmt.Errorf("invalid token claims")
	}

	userIDFloat, ok := claims["user_id"].(float64)
	if !ok {
		return types.Identity{}, fmt.Errorf("invalid user ID in token claims")
	}

	roleStr, ok := claims["role"].(string)
	if !ok {
		return types.Identity{}, fmt.Errorf("missing role in token claims")
	}
	role, err := types.ParseRole(roleStr)
	if err != nil {
		return types.Identity{}, fmt.Errorf("invalid role in token claims: %w", err)
	}

	return types.Identity{ID: uint(userIDFloat), Role: role}, nil
}
