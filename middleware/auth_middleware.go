package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	jwtware "github.com/gofiber/jwt/v3"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/powerca/backoffice/models"
)

const sessionLocal = "session"

// ErrNoSecret is returned when tokens would be signed or checked with an empty key.
var ErrNoSecret = errors.New("jwt secret is not configured")

// Session is the caller identity carried by a bearer JWT.
type Session struct {
	UserID uuid.UUID
	Email  string
	Name   string
	Role   string
}

func IssueToken(secret string, user *models.User, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	claims := jwt.MapClaims{
		"user_id": user.ID.String(),
		"email":   user.Email,
		"name":    user.FullName,
		"role":    user.Role,
		"exp":     time.Now().Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseToken(secret, tokenString string) (*Session, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}
	return sessionFromClaims(claims)
}

func sessionFromClaims(claims jwt.MapClaims) (*Session, error) {
	rawID, _ := claims["user_id"].(string)
	userID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, errors.New("token has no valid user_id")
	}
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	role, _ := claims["role"].(string)
	return &Session{UserID: userID, Email: email, Name: name, Role: role}, nil
}

func Protected(secret string) fiber.Handler {
	if secret == "" {
		// an empty HMAC key would accept tokens anyone can sign
		return func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"error":   fiber.Map{"kind": "CONFIGURATION", "message": "Authentication is not configured"},
			})
		}
	}
	return jwtware.New(jwtware.Config{
		SigningKey:     []byte(secret),
		ErrorHandler:   jwtError,
		SuccessHandler: storeSession,
	})
}

func storeSession(c *fiber.Ctx) error {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok {
		return jwtError(c, errors.New("invalid or expired JWT"))
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return jwtError(c, errors.New("invalid or expired JWT"))
	}
	session, err := sessionFromClaims(claims)
	if err != nil {
		return jwtError(c, err)
	}
	c.Locals(sessionLocal, session)
	return c.Next()
}

func jwtError(c *fiber.Ctx, err error) error {
	message := "Invalid or expired JWT"
	if err.Error() == "Missing or malformed JWT" {
		message = "Missing or malformed JWT"
	}
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"success": false,
		"error":   fiber.Map{"kind": "AUTHENTICATION", "message": message},
	})
}

func AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		session := SessionFrom(c)
		if session == nil || session.Role != models.RoleAdmin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"success": false,
				"error":   fiber.Map{"kind": "AUTHORIZATION", "message": "Forbidden: Admin access required"},
			})
		}
		return c.Next()
	}
}

// OptionalSession attaches the session when a valid bearer token is present and
// otherwise lets the request through anonymously.
func OptionalSession(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if secret == "" || !strings.HasPrefix(header, "Bearer ") {
			return c.Next()
		}
		if session, err := ParseToken(secret, strings.TrimPrefix(header, "Bearer ")); err == nil {
			c.Locals(sessionLocal, session)
		}
		return c.Next()
	}
}

func SessionFrom(c *fiber.Ctx) *Session {
	session, _ := c.Locals(sessionLocal).(*Session)
	return session
}
