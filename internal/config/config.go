package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"capslock/backend/internal/domain"
)

type Config struct {
	Port          string
	AllowedOrigin string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ReportTTLSeconds      int
	AuthSecret            string
	AccessTokenTTLMinutes int
	AdminPassword         string
	OperatorPassword      string

	WhatsAppGatewayURL   string
	WhatsAppGatewayToken string
	TelegramBotToken     string
	TelegramChatID       string

	Shop domain.ShopProfile
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	reportTTL, err := strconv.Atoi(getEnv("REPORT_TTL_SECONDS", "60"))
	if err != nil || reportTTL < 1 {
		reportTTL = 60
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}

	cfg := Config{
		Port:          getEnv("PORT", "8080"),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,

		ReportTTLSeconds:      reportTTL,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		AdminPassword:         strings.TrimSpace(os.Getenv("ADMIN_PASSWORD")),
		OperatorPassword:      strings.TrimSpace(os.Getenv("OPERATOR_PASSWORD")),

		WhatsAppGatewayURL:   strings.TrimSpace(os.Getenv("WA_GATEWAY_URL")),
		WhatsAppGatewayToken: strings.TrimSpace(os.Getenv("WA_GATEWAY_TOKEN")),
		TelegramBotToken:     strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
		TelegramChatID:       strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")),

		Shop: domain.ShopProfile{
			Name:    getEnv("SHOP_NAME", "Capslock Komputer"),
			Address: getEnv("SHOP_ADDRESS", "Jl. Buluh Cina, Panam"),
			Phone:   getEnv("SHOP_PHONE", "0851-7217-4759"),
		},
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
