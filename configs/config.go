package config

import (
	"errors"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

var loadOnce sync.Once

func loadEnvFile() {
	loadOnce.Do(func() {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("Warning: .env file not found, reading from system environment variables")
		}
	})
}

func Config(key string) string {
	loadEnvFile()
	return os.Getenv(key)
}

// GetEnv returns the value for key, or def when it is unset or empty.
func GetEnv(key, def string) string {
	if val := Config(key); val != "" {
		return val
	}
	return def
}

func GetBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(Config(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

type Settings struct {
	AppEnv   string
	Port     string
	LogLevel string

	DatabaseURL string
	RedisURL    string

	RazorpayKeyID     string
	RazorpayKeySecret string
	RazorpayBaseURL   string

	JWTSecret string

	BrevoAPIKey     string
	SendGridAPIKey  string
	EmailSender     string
	EmailSenderName string

	HubSpotToken   string
	HubSpotBaseURL string

	CloudinaryURL string
	SentryDSN     string

	GSTExempt       bool
	SellerStateCode string
	SellerGSTIN     string
	CompanyName     string

	AdminEmail    string
	AdminPassword string
	AdminFullName string

	ReconcileSchedule string
	ChromeDisabled    bool
}

var nonProductionEnvs = map[string]bool{
	"development": true,
	"dev":         true,
	"test":        true,
	"staging":     true,
	"local":       true,
}

// IsProduction reports whether the process runs against live money.
// An unset APP_ENV counts as production.
func (s *Settings) IsProduction() bool {
	return !nonProductionEnvs[strings.ToLower(strings.TrimSpace(s.AppEnv))]
}

// Validate reports settings the server cannot safely start without.
func (s *Settings) Validate() error {
	if strings.TrimSpace(s.JWTSecret) == "" {
		return errors.New("JWT_SECRET must be set")
	}
	return nil
}

func Load() *Settings {
	return &Settings{
		AppEnv: GetEnv("APP_ENV", "production"),
		Port:   GetEnv("PORT", "8080"),

		LogLevel: GetEnv("LOG_LEVEL", "info"),

		DatabaseURL: Config("DATABASE_URL"),
		RedisURL:    Config("REDIS_URL"),

		RazorpayKeyID:     Config("RAZORPAY_KEY_ID"),
		RazorpayKeySecret: Config("RAZORPAY_KEY_SECRET"),
		RazorpayBaseURL:   GetEnv("RAZORPAY_API_BASE_URL", "https://api.razorpay.com"),

		JWTSecret: Config("JWT_SECRET"),

		BrevoAPIKey:     Config("BREVO_API_KEY"),
		SendGridAPIKey:  Config("SENDGRID_API_KEY"),
		EmailSender:     Config("EMAIL_SENDER"),
		EmailSenderName: GetEnv("EMAIL_SENDER_NAME", "PowerCA"),

		HubSpotToken:   Config("HUBSPOT_ACCESS_TOKEN"),
		HubSpotBaseURL: GetEnv("HUBSPOT_API_BASE_URL", "https://api.hubapi.com"),

		CloudinaryURL: Config("CLOUDINARY_URL"),
		SentryDSN:     Config("SENTRY_DSN"),

		GSTExempt:       GetBool("GST_EXEMPT", false),
		SellerStateCode: GetEnv("SELLER_STATE_CODE", "33"),
		SellerGSTIN:     Config("SELLER_GSTIN"),
		CompanyName:     GetEnv("COMPANY_NAME", "PowerCA"),

		AdminEmail:    Config("ADMIN_EMAIL"),
		AdminPassword: Config("ADMIN_PASSWORD"),
		AdminFullName: GetEnv("ADMIN_FULL_NAME", "PowerCA Admin"),

		ReconcileSchedule: GetEnv("RECONCILE_SCHEDULE", "*/15 * * * *"),
		ChromeDisabled:    GetBool("CHROME_DISABLED", false),
	}
}
