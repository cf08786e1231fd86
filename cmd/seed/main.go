// seed inserts development sample data for local testing.
// Idempotent: skips inserts if the admin user (admin@example.com) already exists.
package main

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	claimdomain "claims-portal/backend/internal/claim/domain"
	claimrepo "claims-portal/backend/internal/claim/repository"
	"claims-portal/backend/internal/config"
	"claims-portal/backend/internal/db"
	policydomain "claims-portal/backend/internal/policy/domain"
	policyrepo "claims-portal/backend/internal/policy/repository"
	"claims-portal/backend/internal/security"
	userdomain "claims-portal/backend/internal/user/domain"
	userrepo "claims-portal/backend/internal/user/repository"
)

// defaultRegoPolicy matches the default workflow policy in internal/policy/engine/opa_evaluator.go.
const defaultRegoPolicy = `package claims.workflow

default payment_otp_required = false

payment_otp_required if {
	input.config.payment_otp_required
}

payment_otp_required if {
	input.claim.amount >= 1000
}
`

const (
	adminEmail    = "admin@example.com"
	reviewerEmail = "reviewer@example.com"
	financeEmail  = "finance@example.com"
	devPassword   = "Claims-Dev-Pass1!"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	users := userrepo.NewPostgresRepository(conn)
	claims := claimrepo.NewPostgresRepository(conn)
	policies := policyrepo.NewPostgresRepository(conn)

	if existing, err := users.GetByEmail(ctx, adminEmail); err != nil {
		log.Fatalf("seed: check admin: %v", err)
	} else if existing != nil {
		log.Println("seed: admin user already exists; nothing to do")
		return
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	hash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("seed: hash password: %v", err)
	}

	now := time.Now().UTC()
	seedUsers := []*userdomain.User{
		{ID: uuid.New().String(), Email: adminEmail, Name: "Admin", Role: userdomain.RoleAdmin, PasswordHash: hash, CreatedAt: now},
		{ID: uuid.New().String(), Email: reviewerEmail, Name: "Reviewer", Role: userdomain.RoleReviewer, PasswordHash: hash, CreatedAt: now},
		{ID: uuid.New().String(), Email: financeEmail, Name: "Finance", Role: userdomain.RoleFinance, PasswordHash: hash, CreatedAt: now},
	}
	for _, u := range seedUsers {
		if err := users.Create(ctx, u); err != nil {
			log.Fatalf("seed: create user %s: %v", u.Email, err)
		}
	}

	sampleClaims := []*claimdomain.Claim{
		sampleClaim("Aye Chan", claimdomain.TypeMedical, "450.00", claimdomain.StatusPending, now),
		sampleClaim("Kyaw Min", claimdomain.TypeVehicle, "2500.00", claimdomain.StatusReviewing, now),
		sampleClaim("Su Su", claimdomain.TypeProperty, "1200.50", claimdomain.StatusApproved, now),
		sampleClaim("Thura", claimdomain.TypeOther, "90.00", claimdomain.StatusRejected, now),
	}
	for _, c := range sampleClaims {
		if err := claims.Create(ctx, c); err != nil {
			log.Fatalf("seed: create claim %s: %v", c.ID, err)
		}
	}

	policy := &policydomain.Policy{
		ID:        uuid.New().String(),
		Name:      "payment-otp-default",
		Rules:     defaultRegoPolicy,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := policies.Create(ctx, policy); err != nil {
		log.Fatalf("seed: create policy: %v", err)
	}

	log.Printf("seed: created %d users, %d claims, 1 policy (password %q)", len(seedUsers), len(sampleClaims), devPassword)
}

func sampleClaim(name string, t claimdomain.ClaimType, amount string, status claimdomain.Status, now time.Time) *claimdomain.Claim {
	amt, _ := decimal.NewFromString(amount)
	id := uuid.New().String()
	return &claimdomain.Claim{
		ID:               id,
		ClaimantName:     name,
		ClaimantID:       "NRC-" + id[:8],
		Email:            "claimant+" + id[:8] + "@example.com",
		Phone:            "+959700000000",
		ClaimType:        t,
		Amount:           amt,
		IncidentDate:     now.AddDate(0, 0, -14),
		IncidentLocation: "Yangon",
		Description:      "seeded sample claim",
		Status:           status,
		SubmittedAt:      now,
		UpdatedAt:        now,
		Documents: []claimdomain.Document{
			{ID: uuid.New().String(), ClaimID: id, FileName: "receipt.pdf", URL: "https://files.local/" + id + "/receipt.pdf", AddedAt: now},
		},
	}
}
