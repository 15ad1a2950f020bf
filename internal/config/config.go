package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath     string
	RawMailDir string
	OutputDir  string

	// Matching calibration. Defaults are what the scoring tiers were tuned
	// against; change them only together with the engine tests.
	MatchCandidateFloor  float64
	MatchFuzzyCap        float64
	MatchExactConfidence float64
	MatchRuleSimilarity  float64
	MatchTopCandidates   int

	GarbageTextRatio float64

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	MailListenerProvider    string
	MailListenerLabel       string
	MailListenerIntervalSec int
	MailListenerFetchMax    int
	MailListenerBatch       int
	MailListenerProjectID   int
	MailListenerAutoExport  bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:     getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),
		RawMailDir: getEnv("MAIL_RAW_DIR", filepath.Join(cwd, "data", "raw")),
		OutputDir:  getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		MatchCandidateFloor:  getEnvFloat("MATCH_CANDIDATE_FLOOR", 0.4),
		MatchFuzzyCap:        getEnvFloat("MATCH_FUZZY_CAP", 0.94),
		MatchExactConfidence: getEnvFloat("MATCH_EXACT_CONFIDENCE", 0.95),
		MatchRuleSimilarity:  getEnvFloat("MATCH_RULE_SIMILARITY", 0.8),
		MatchTopCandidates:   getEnvInt("MATCH_TOP_CANDIDATES", 3),

		GarbageTextRatio: getEnvFloat("GARBAGE_TEXT_RATIO", 0.3),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		MailListenerProvider:    getEnv("MAIL_LISTENER_PROVIDER", "imap"),
		MailListenerLabel:       getEnv("MAIL_LISTENER_LABEL", "INBOX"),
		MailListenerIntervalSec: getEnvInt("MAIL_LISTENER_INTERVAL_SEC", 60),
		MailListenerFetchMax:    getEnvInt("MAIL_LISTENER_FETCH_MAX", 20),
		MailListenerBatch:       getEnvInt("MAIL_LISTENER_PROCESS_BATCH", 20),
		MailListenerProjectID:   getEnvInt("MAIL_LISTENER_PROJECT_ID", 0),
		MailListenerAutoExport:  getEnvBool("MAIL_LISTENER_AUTO_EXPORT", false),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
