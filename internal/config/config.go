package config

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/pem"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	ld "github.com/launchdarkly/go-server-sdk/v7"
	"github.com/poofware/patrol-service/internal/utils"
)

type Config struct {
	OrganizationName string
	AppName          string
	AppPort          string
	AppUrl           string
	Env              string

	// Storage
	DBUrl    string
	RedisURL string

	// Challenges
	ChallengeSigningKey []byte
	ChallengeTTL        time.Duration
	LedgerRetention     time.Duration

	// Auth
	RSAPublicKey *rsa.PublicKey

	// Feature flags
	LDFlag_EvaluateScanPolicy  bool
	LDFlag_CORSHighSecurity    bool
	LDFlag_SeedDbWithTestData  bool
	LDFlag_LedgerFastPathCheck bool
}

const (
	OrganizationName       = utils.OrganizationName
	LDConnectionTimeout    = 5 * time.Second
	DefaultChallengeTTL    = 60 * time.Second
	DefaultLedgerRetention = 24 * time.Hour
	minChallengeKeyLen     = 32
)

// build-time overrides
var (
	AppName             = "patrol-service"
	LDServerContextKey  = "patrol-service"
	LDServerContextKind = "service"
)

func LoadConfig() *Config {
	if AppName == "" {
		utils.Logger.Fatal("AppName ldflag missing")
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		utils.Logger.WithError(err).Warn("Failed to load .env file")
	}

	utils.Logger.Info("Loading config for app: ", AppName)

	env := requireEnv("ENV")
	appUrl := requireEnv("APP_URL_FROM_ANYWHERE")
	appPort := requireEnv("APP_PORT")
	dbURL := requireEnv("DB_URL")
	redisURL := os.Getenv("REDIS_URL")

	keyB64 := requireEnv("CHALLENGE_SIGNING_KEY_BASE64")
	challengeKey, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil || len(challengeKey) < minChallengeKeyLen {
		utils.Logger.Fatalf("CHALLENGE_SIGNING_KEY_BASE64 invalid, expect at least %d bytes", minChallengeKeyLen)
	}

	pubB64 := requireEnv("RSA_PUBLIC_KEY_BASE64")
	pubPEM, _ := base64.StdEncoding.DecodeString(pubB64)
	if block, _ := pem.Decode(pubPEM); block == nil {
		utils.Logger.Fatal("Failed to decode PEM block for public key")
	}
	pubKey, err := jwt.ParseRSAPublicKeyFromPEM(pubPEM)
	if err != nil {
		utils.Logger.WithError(err).Fatal("Failed to parse RSA public key")
	}

	challengeTTL := durationEnv("CHALLENGE_TTL", DefaultChallengeTTL)
	retention := durationEnv("LEDGER_RETENTION", DefaultLedgerRetention)

	flags := loadFlags(os.Getenv("LD_SDK_KEY"))

	return &Config{
		OrganizationName:           OrganizationName,
		AppName:                    AppName,
		AppPort:                    appPort,
		AppUrl:                     appUrl,
		Env:                        env,
		DBUrl:                      dbURL,
		RedisURL:                   redisURL,
		ChallengeSigningKey:        challengeKey,
		ChallengeTTL:               challengeTTL,
		LedgerRetention:            retention,
		RSAPublicKey:               pubKey,
		LDFlag_EvaluateScanPolicy:  flags.evaluateScanPolicy,
		LDFlag_CORSHighSecurity:    flags.corsHighSecurity,
		LDFlag_SeedDbWithTestData:  flags.seedDbWithTestData,
		LDFlag_LedgerFastPathCheck: flags.ledgerFastPathCheck,
	}
}

type featureFlags struct {
	evaluateScanPolicy  bool
	corsHighSecurity    bool
	seedDbWithTestData  bool
	ledgerFastPathCheck bool
}

// loadFlags reads flags from LaunchDarkly when a key is configured and
// falls back to FLAG_* env vars otherwise.
func loadFlags(ldSDKKey string) featureFlags {
	if ldSDKKey == "" {
		utils.Logger.Info("LD_SDK_KEY not set, reading feature flags from env")
		return featureFlags{
			evaluateScanPolicy:  boolEnv("FLAG_EVALUATE_SCAN_POLICY", false),
			corsHighSecurity:    boolEnv("FLAG_CORS_HIGH_SECURITY", false),
			seedDbWithTestData:  boolEnv("FLAG_SEED_DB_WITH_TEST_DATA", false),
			ledgerFastPathCheck: boolEnv("FLAG_LEDGER_FAST_PATH_CHECK", false),
		}
	}

	ldClient, err := ld.MakeClient(ldSDKKey, LDConnectionTimeout)
	if err != nil {
		utils.Logger.WithError(err).Fatal("Failed to create LaunchDarkly client")
	}
	if !ldClient.Initialized() {
		ldClient.Close()
		utils.Logger.Fatal("LaunchDarkly client failed to initialize")
	}
	defer ldClient.Close()

	ctx := ldcontext.NewWithKind(ldcontext.Kind(LDServerContextKind), LDServerContextKey)

	boolFlag := func(key string) bool {
		val, err := ldClient.BoolVariation(key, ctx, false)
		if err != nil {
			utils.Logger.WithError(err).Fatalf("Error retrieving %s flag", key)
		}
		utils.Logger.Debugf("%s flag: %t", key, val)
		return val
	}

	return featureFlags{
		evaluateScanPolicy:  boolFlag("evaluate_scan_policy"),
		corsHighSecurity:    boolFlag("cors_high_security"),
		seedDbWithTestData:  boolFlag("seed_db_with_test_data"),
		ledgerFastPathCheck: boolFlag("ledger_fast_path_check"),
	}
}

func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		utils.Logger.Fatalf("%s env var is missing", key)
	}
	return val
}

func durationEnv(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		utils.Logger.Fatalf("%s env var invalid: %q", key, raw)
	}
	return d
}

func boolEnv(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		utils.Logger.Warnf("%s env var invalid: %q, defaulting to %t", key, raw, def)
		return def
	}
	return v
}
