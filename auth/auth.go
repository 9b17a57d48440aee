package auth

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-redis/redis/v7"
	"go.uber.org/zap"
)

// ContextKey is a defined type to be used in context.Context containing the Claims
type ContextKey string

// Context is key used in context.Context containing the Claims
const Context ContextKey = "authContext"

// Environment is the type for defining the running environment
type Environment string

// define constants
const (
	EnvDevelopment Environment = "Dev"
	EnvProduction  Environment = "Prod"
)

const loginKeyPrefix = "login:"

// Auth provides password verification and JWT session tokens
type Auth struct {
	Options
	jwtKey []byte
}

// Options provides initialization parameters for Auth
type Options struct {
	Redis  redis.UniversalClient
	Logger *zap.Logger

	JWTSigningKey  string
	PasswordPepper string

	Environment Environment
}

func (o *Options) validate() error {
	if o == nil {
		return fmt.Errorf("nil option is invalid")
	}
	if o.Redis == nil {
		return fmt.Errorf("nil redisClient is invalid")
	}
	if o.Logger == nil {
		return fmt.Errorf("nil Logger is invalid")
	}
	if len(o.JWTSigningKey) < 16 {
		return fmt.Errorf("jwt signing key must be longer than 16 characters")
	}
	if len(o.PasswordPepper) == 0 {
		return fmt.Errorf("empty password pepper is invalid")
	}
	if o.Environment == "" {
		o.Environment = EnvDevelopment
	}
	return nil
}

// New will return a new instance of Auth for authentication
func New(option Options) (*Auth, error) {
	if err := option.validate(); err != nil {
		return nil, err
	}
	return &Auth{
		Options: option,
		jwtKey:  []byte(option.JWTSigningKey),
	}, nil
}

// HashPassword derives the stored password hash (HMAC-SHA512 with a
// server-side pepper)
func (a *Auth) HashPassword(password string) string {
	mac := hmac.New(sha512.New, []byte(a.PasswordPepper))
	mac.Write([]byte(password))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyPassword compares a candidate password against the stored hash in
// constant time
func (a *Auth) VerifyPassword(password, storedHash string) bool {
	return hmac.Equal([]byte(a.HashPassword(password)), []byte(storedHash))
}

// RecordLogin stores the user's last login time in redis
func (a *Auth) RecordLogin(userID string) error {
	return a.Redis.Set(loginKeyPrefix+userID, time.Now().Unix(), 0).Err()
}

// LastLogin returns the user's last recorded login time, or zero time
func (a *Auth) LastLogin(userID string) (time.Time, error) {
	unix, err := a.Redis.Get(loginKeyPrefix + userID).Int64()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(unix, 0), nil
}
