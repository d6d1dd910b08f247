package front

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Abdirhman569167/astaan-dubing-sub000/internal/logging"
	"github.com/Abdirhman569167/astaan-dubing-sub000/internal/tasksync"
)

type Config struct {
	ConfigPath string
	Profile    string
	ApiGinMode string

	Ip   string
	Port string

	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string

	// kc
	AuthAddress   string
	Issuer        string
	Audience      string
	Realm         string
	ClientID      string
	ClientSecret  string
	RequiredRoles []string

	// downstream REST services
	ApiBaseURL         string
	RequestTimeout     time.Duration
	ChatTimeout        time.Duration
	CreateRefreshDelay time.Duration
	ChatRefreshDelays  []time.Duration
	BreakerMaxFailures int
	BreakerTimeout     time.Duration
	MaxViews           int

	LogFile  string
	LogLevel string
}

func loadConfig(path string) Config {
	if err := godotenv.Load(path); err != nil {
		logging.Logger.Warnf("failed to load the config file at %s, using default ones...", path)
	}

	s := strings.Split(path, "/")
	config := Config{
		ConfigPath: s[len(s)-1],
		Profile:    getEnv("PROFILE", "baremetal"),
		ApiGinMode: getEnv("GIN_MODE", "debug"),

		Ip:             getEnv("IP", "localhost"),
		Port:           getEnv("PORT", "5050"),
		AllowedOrigins: getEnvFields("ALLOW_ORIGINS", []string{"*"}),
		AllowedMethods: getEnvFields("ALLOW_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		AllowedHeaders: getEnvFields("ALLOW_HEADERS", []string{"Origin", "Content-Type", "Authorization"}),

		AuthAddress:   getEnv("AUTH_ADDRESS", "localhost:5555"),
		Issuer:        getEnv("KC_ISSUER", "http://localhost:5555/realms/dubbing"),
		Audience:      getEnv("KC_AUDIENCE", ""),
		Realm:         getEnv("KC_REALM", "dubbing"),
		ClientID:      getEnv("KC_CLIENT", "pms-front"),
		ClientSecret:  getEnv("KC_CLIENT_SECRET", ""),
		RequiredRoles: getEnvFields("KC_REQUIRED_ROLES", []string{"admin", "supervisor"}),

		ApiBaseURL:         getEnv("API_BASE_URL", "http://localhost:5000/api"),
		RequestTimeout:     getDurationEnv("REQUEST_TIMEOUT", 0), // 0 keeps the transport default
		ChatTimeout:        getDurationEnv("CHAT_TIMEOUT", 10*time.Second),
		CreateRefreshDelay: getDurationEnv("CREATE_REFRESH_DELAY", time.Second),
		ChatRefreshDelays:  getDurationsEnv("CHAT_REFRESH_DELAYS", []time.Duration{500 * time.Millisecond, time.Second}),
		BreakerMaxFailures: getIntEnv("BREAKER_MAX_FAILURES", 3),
		BreakerTimeout:     getDurationEnv("BREAKER_TIMEOUT", 5*time.Second),
		MaxViews:           getIntEnv("MAX_VIEWS", 256),

		LogFile:  getEnv("LOG_FILE", ""),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return config
}

// delays maps the configured timings onto the mutation pipeline.
func (cfg *Config) delays() tasksync.Delays {
	d := tasksync.DefaultDelays()
	d.CreateRefresh = cfg.CreateRefreshDelay
	d.ChatRefresh = cfg.ChatRefreshDelays
	d.ChatTimeout = cfg.ChatTimeout
	return d
}

func getEnv(env, fallback string) string {
	if value, exists := os.LookupEnv(env); exists {
		return value
	}

	return fallback
}

func getEnvFields(env string, fallback []string) []string {
	if value, exists := os.LookupEnv(env); exists {
		fields := strings.Split(strings.TrimSpace(value), ",")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}

		return fields
	}

	return fallback
}

func getIntEnv(env string, fallback int) int {
	if value, exists := os.LookupEnv(env); exists {
		intValue, err := strconv.Atoi(value)
		if err == nil {
			return intValue
		}
	}

	return fallback
}

// getDurationEnv accepts Go durations ("750ms") and bare milliseconds ("750").
func getDurationEnv(env string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(env); exists {
		if d, ok := parseDuration(value); ok {
			return d
		}
		logging.Logger.Warnf("[CFG] invalid duration %s=%q, using %s", env, value, fallback)
	}

	return fallback
}

func getDurationsEnv(env string, fallback []time.Duration) []time.Duration {
	value, exists := os.LookupEnv(env)
	if !exists {
		return fallback
	}

	out := make([]time.Duration, 0, 2)
	for _, f := range strings.Split(value, ",") {
		if strings.TrimSpace(f) == "" {
			continue
		}
		d, ok := parseDuration(f)
		if !ok {
			logging.Logger.Warnf("[CFG] invalid duration list %s=%q, using %v", env, value, fallback)
			return fallback
		}
		out = append(out, d)
	}

	return out
}

func parseDuration(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.Atoi(s); err == nil && ms >= 0 {
		return time.Duration(ms) * time.Millisecond, true
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, false
	}

	return d, true
}

func (cfg *Config) toString() string {
	var strBuilder strings.Builder

	reflectedValues := reflect.ValueOf(cfg).Elem()
	reflectedTypes := reflect.TypeOf(cfg).Elem()

	strBuilder.WriteString(fmt.Sprintf("[CFG]CONFIGURATION: %s\n", cfg.ConfigPath))

	for i := 0; i < reflectedValues.NumField(); i++ {
		fieldName := reflectedTypes.Field(i).Name
		fieldValue := reflectedValues.Field(i).Interface()

		if fieldName == "ClientSecret" && fieldValue != "" {
			fieldValue = "********"
		}

		strBuilder.WriteString("[CFG]")
		if i < 9 {
			strBuilder.WriteString(fmt.Sprintf("%d.  ", i+1))
		} else {
			strBuilder.WriteString(fmt.Sprintf("%d. ", i+1))
		}
		if len(fieldName) <= 6 {
			strBuilder.WriteString(fmt.Sprintf("%v\t\t\t\t\t-> %v\n", fieldName, fieldValue))
		} else if len(fieldName) <= 14 {
			strBuilder.WriteString(fmt.Sprintf("%v\t\t\t\t-> %v\n", fieldName, fieldValue))
		} else {
			strBuilder.WriteString(fmt.Sprintf("%v\t\t\t-> %v\n", fieldName, fieldValue))
		}
	}

	return strBuilder.String()
}
