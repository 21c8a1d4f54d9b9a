// seed creates a handful of scheduled offboardings for a dev tenant and
// prints a JWT that can manage them.
// Run: go run ./cmd/seed
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/offboarding-scheduler/config"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/catalog"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/domain"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/infrastructure/storage"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/usecase"
	"github.com/golang-jwt/jwt/v5"
)

const (
	seedTenant = "seed-tenant"
	seedOwner  = "seed-admin"
)

type actionSpec struct {
	userID   string
	name     string
	email    string
	timezone string
	config   domain.ActionConfig
	manager  string
}

var actions = []actionSpec{
	// Templates, one each
	{"seed-u-001", "Ada Lovelace", "ada@seed.local", "America/New_York", domain.TemplateConfig(catalog.TemplateStandard), "grace@seed.local"},
	{"seed-u-002", "Alan Turing", "alan@seed.local", "Europe/London", domain.TemplateConfig(catalog.TemplateExecutive), "grace@seed.local"},
	{"seed-u-003", "Linus Pauling", "linus@seed.local", "Asia/Tokyo", domain.TemplateConfig(catalog.TemplateContractor), ""},
	{"seed-u-004", "Rosalind Franklin", "rosalind@seed.local", "Australia/Sydney", domain.TemplateConfig(catalog.TemplateSecurity), "grace@seed.local"},

	// Custom step sets
	{"seed-u-005", "Edsger Dijkstra", "edsger@seed.local", "Europe/Amsterdam",
		domain.CustomConfig(domain.CustomActions{DisableAccount: true, RevokeAccess: true}), ""},
	{"seed-u-006", "Barbara Liskov", "barbara@seed.local", "America/Los_Angeles",
		domain.CustomConfig(domain.CustomActions{BackupData: true, ConvertToSharedMailbox: true}), "grace@seed.local"},
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v (run: direnv allow)", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer store.Close()

	// Seeding only creates records, nothing is executed here.
	uc := usecase.NewScheduledActionUsecase(store.Repo, nil, logger)
	scope := domain.Scope{TenantID: seedTenant, OwnerID: seedOwner}

	// Two minutes out, expressed in each subject's own zone.
	at := time.Now().Add(2 * time.Minute).Truncate(time.Minute)

	var ids []string
	for _, spec := range actions {
		loc, err := time.LoadLocation(spec.timezone)
		if err != nil {
			log.Fatalf("zone %s: %v", spec.timezone, err)
		}
		local := at.In(loc)
		a, err := uc.Create(ctx, usecase.CreateScheduledActionInput{
			Scope:              scope,
			SubjectUserID:      spec.userID,
			SubjectDisplayName: spec.name,
			SubjectEmail:       spec.email,
			ScheduledDate:      local.Format(domain.DateLayout),
			ScheduledTime:      local.Format(domain.ClockLayout),
			Timezone:           spec.timezone,
			Config:             spec.config,
			NotifyManager:      spec.manager != "",
			NotifyUser:         true,
			ManagerEmail:       spec.manager,
			CustomMessage:      "Thank you for everything.",
		})
		if err != nil {
			log.Fatalf("create %s: %v", spec.name, err)
		}
		ids = append(ids, a.ID)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": seedOwner,
		"tid": seedTenant,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(24 * time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		log.Fatalf("sign jwt: %v", err)
	}

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  Tenant:        %s\n", seedTenant)
	fmt.Printf("  Owner:         %s\n", seedOwner)
	fmt.Printf("  Actions:       %d\n", len(ids))
	fmt.Printf("  Due at:        %s  (~2 minutes from now)\n", at.UTC().Format(time.RFC3339))
	fmt.Println()
	for _, id := range ids {
		fmt.Printf("    %s\n", id)
	}
	fmt.Println()
	fmt.Println("How to test:")
	fmt.Println()
	fmt.Printf("    export JWT=%s\n", signed)
	fmt.Println()
	fmt.Println("  List them:")
	fmt.Println()
	fmt.Println("    curl -s http://localhost:8080/scheduled -H \"Authorization: Bearer $JWT\"")
	fmt.Println()
	fmt.Println("  Run one now instead of waiting:")
	fmt.Println()
	fmt.Println("    curl -s -X POST http://localhost:8080/scheduled/ACTION_ID/execute -H \"Authorization: Bearer $JWT\"")
	fmt.Println()
	fmt.Println("  Or start ./cmd/scheduler and wait ~2 minutes; every record should end up completed")
	fmt.Println("  with ENV=local, since the local adapters only log what they would do.")
}
