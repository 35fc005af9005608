package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinic-scheduling/internal/db"
)

// Seeds a few tenants with non-overlapping future appointments so the
// simulator has practitioners and patients to collide over.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	tenants := []string{"clinic-north", "clinic-south", "clinic-demo"}
	for _, tenant := range tenants {
		if err := seedTenant(context.Background(), pool, tenant, 20, 200); err != nil {
			log.Fatalf("seed tenant %s: %v", tenant, err)
		}
	}

	log.Println("seed complete")
}

func seedTenant(ctx context.Context, pool *pgxpool.Pool, tenant string, practitioners, patients int) error {
	log.Printf("seeding tenant %s: %d practitioners, %d patients", tenant, practitioners, patients)

	practitionerIDs := make([]uuid.UUID, practitioners)
	for i := range practitionerIDs {
		practitionerIDs[i] = uuid.New()
	}
	patientIDs := make([]uuid.UUID, patients)
	for i := range patientIDs {
		patientIDs[i] = uuid.New()
	}

	types := []string{"in_person", "video_call", "phone_call"}
	reasons := []string{
		"Annual checkup",
		"Follow-up consultation",
		"Lab results review",
		"Vaccination",
		"Chronic condition review",
		"New patient intake",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Each practitioner gets a day of back-to-back 30 minute slots starting
	// tomorrow morning, so nothing seeded here violates the exclusion
	// constraint.
	dayStart := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
	total := 0

	for _, practitionerID := range practitionerIDs {
		slot := dayStart
		for i := 0; i < 16; i++ {
			patientID := patientIDs[gofakeit.Number(0, len(patientIDs)-1)]
			typ := types[gofakeit.Number(0, len(types)-1)]
			reason := reasons[gofakeit.Number(0, len(reasons)-1)]
			end := slot.Add(30 * time.Minute)

			_, err := tx.Exec(ctx, `
				INSERT INTO appointments
					(tenant_id, id, patient_id, practitioner_id, start_time, end_time,
					 type, status, reason, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, 'scheduled', $8, now(), now())
			`, tenant, uuid.New(), patientID, practitionerID, slot, end, typ, reason)
			if err != nil {
				return err
			}

			slot = end
			total++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Printf("tenant %s seeded: %d appointments", tenant, total)
	return nil
}
