package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.JWTIssuer != "claims-auth" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "claims-auth")
	}
	if cfg.JWTAudience != "claims-api" {
		t.Errorf("JWTAudience = %q, want %q", cfg.JWTAudience, "claims-api")
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if cfg.OTPMaxAttempts != 5 {
		t.Errorf("OTPMaxAttempts = %d, want 5", cfg.OTPMaxAttempts)
	}
	if cfg.OTPReturnToClient {
		t.Error("OTPReturnToClient must default to false")
	}
	if cfg.ClaimEventsKafkaTopic != "claims-events" {
		t.Errorf("ClaimEventsKafkaTopic = %q, want %q", cfg.ClaimEventsKafkaTopic, "claims-events")
	}
	if cfg.KafkaGroupID != "claims-events-worker" {
		t.Errorf("KafkaGroupID = %q, want %q", cfg.KafkaGroupID, "claims-events-worker")
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":9090")
	os.Setenv("JWT_ISSUER", "custom-issuer")
	os.Setenv("BCRYPT_COST", "14")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9090")
	}
	if cfg.JWTIssuer != "custom-issuer" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "custom-issuer")
	}
	if cfg.BcryptCost != 14 {
		t.Errorf("BcryptCost = %d, want 14", cfg.BcryptCost)
	}
}

func TestLoad_BcryptCostRange(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  int
		err   bool
	}{
		{"valid min", "4", 4, false},
		{"valid max", "31", 31, false},
		{"valid middle", "12", 12, false},
		{"too low", "3", 0, true},
		{"too high", "32", 0, true},
		{"zero falls back", "0", 12, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv("BCRYPT_COST", tt.value)

			cfg, err := Load()
			if tt.err {
				if err == nil {
					t.Fatal("Load must reject the cost")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.BcryptCost != tt.want {
				t.Errorf("BcryptCost = %d, want %d", cfg.BcryptCost, tt.want)
			}
		})
	}
}

func TestLoad_DevOTPRefusedInProduction(t *testing.T) {
	os.Clearenv()
	os.Setenv("OTP_RETURN_TO_CLIENT", "true")
	os.Setenv("APP_ENV", "production")

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load must refuse dev OTP mode in production")
	}
	if cfg != nil {
		t.Error("Load must return nil config on error")
	}
}

func TestLoad_DevOTPAllowedInDevelopment(t *testing.T) {
	os.Clearenv()
	os.Setenv("OTP_RETURN_TO_CLIENT", "true")
	os.Setenv("APP_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.OTPReturnToClient {
		t.Error("OTPReturnToClient must be true")
	}
}

func TestTTLHelpers(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value string
		get   func(*Config) time.Duration
		want  time.Duration
	}{
		{"access valid", "JWT_ACCESS_TTL", "30m", (*Config).AccessTTL, 30 * time.Minute},
		{"access invalid", "JWT_ACCESS_TTL", "invalid", (*Config).AccessTTL, 15 * time.Minute},
		{"access zero", "JWT_ACCESS_TTL", "0", (*Config).AccessTTL, 15 * time.Minute},
		{"access negative", "JWT_ACCESS_TTL", "-5m", (*Config).AccessTTL, 15 * time.Minute},
		{"refresh valid", "JWT_REFRESH_TTL", "336h", (*Config).RefreshTTL, 336 * time.Hour},
		{"refresh invalid", "JWT_REFRESH_TTL", "invalid", (*Config).RefreshTTL, 168 * time.Hour},
		{"refresh negative", "JWT_REFRESH_TTL", "-1h", (*Config).RefreshTTL, 168 * time.Hour},
		{"challenge valid", "OTP_TTL", "5m", (*Config).ChallengeTTL, 5 * time.Minute},
		{"challenge invalid", "OTP_TTL", "soon", (*Config).ChallengeTTL, 10 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv(tt.field, tt.value)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got := tt.get(cfg); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestListHelpers(t *testing.T) {
	os.Clearenv()
	os.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092 ,")
	os.Setenv("CORS_ALLOW_ORIGINS", "https://claims.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	brokers := cfg.KafkaBrokersList()
	if len(brokers) != 2 || brokers[0] != "kafka-1:9092" || brokers[1] != "kafka-2:9092" {
		t.Errorf("KafkaBrokersList = %v", brokers)
	}
	origins := cfg.CORSOrigins()
	if len(origins) != 1 || origins[0] != "https://claims.example.com" {
		t.Errorf("CORSOrigins = %v", origins)
	}
}

func TestListHelpers_Empty(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.KafkaBrokersList(); got != nil {
		t.Errorf("KafkaBrokersList on empty config = %v, want nil", got)
	}
	if got := cfg.CORSOrigins(); got != nil {
		t.Errorf("CORSOrigins on empty config = %v, want nil", got)
	}
}
