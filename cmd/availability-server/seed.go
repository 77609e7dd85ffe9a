package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/healthfirst/availability/internal/domain/availability"
)

var (
	seedZones = []string{"America/New_York", "America/Chicago", "America/Los_Angeles", "Europe/London", "Asia/Kolkata"}
	seedTypes = []string{"consultation", "follow-up", "telehealth", "procedure"}
	seedSlots = []int{15, 30, 45, 60}
)

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create demo providers with availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			providers, _ := cmd.Flags().GetInt("providers")
			windows, _ := cmd.Flags().GetInt("windows")
			if providers <= 0 || windows <= 0 {
				return fmt.Errorf("--providers and --windows must be positive")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx := context.Background()
			store, err := openStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			locker, closeLocker, err := openLocker(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeLocker()

			svc := availability.NewService(store.windows, store.slots, store.tx, locker, engineOptions(cfg), logger)

			// Zero seeds from crypto/rand.
			gofakeit.Seed(0)
			start := civil.DateOf(time.Now()).AddDays(1)

			created, skipped := 0, 0
			for p := 0; p < providers; p++ {
				providerID := uuid.New()
				for _, req := range seedRequests(providerID, start, windows) {
					if _, err := svc.CreateAvailability(ctx, req); err != nil {
						if errors.Is(err, availability.ErrOverlappingAvailability) {
							skipped++
							continue
						}
						return fmt.Errorf("seed provider %s: %w", providerID, err)
					}
					created++
				}
				logger.Info().Str("provider_id", providerID.String()).Msg("provider seeded")
			}

			logger.Info().Int("windows", created).Int("skipped", skipped).Msg("seed complete")
			return nil
		},
	}
	cmd.Flags().Int("providers", 10, "Number of providers to create")
	cmd.Flags().Int("windows", 5, "Windows per provider")
	return cmd
}

// seedRequests returns n windows on consecutive days from start. The last one
// recurs weekly for a month, after all the one-off windows.
func seedRequests(providerID uuid.UUID, start civil.Date, n int) []availability.CreateWindowRequest {
	zone := seedZones[gofakeit.Number(0, len(seedZones)-1)]
	location := fmt.Sprintf("%s, %s", gofakeit.Company(), gofakeit.City())
	currency := "USD"

	reqs := make([]availability.CreateWindowRequest, 0, n)
	for i := 0; i < n; i++ {
		day := start.AddDays(i)
		hour := gofakeit.Number(7, 12)
		length := gofakeit.Number(2, 6)
		price := float64(gofakeit.Number(40, 250))
		apptType := seedTypes[gofakeit.Number(0, len(seedTypes)-1)]

		req := availability.CreateWindowRequest{
			ProviderID:          providerID,
			StartTime:           civil.DateTime{Date: day, Time: civil.Time{Hour: hour}},
			EndTime:             civil.DateTime{Date: day, Time: civil.Time{Hour: hour + length}},
			Timezone:            zone,
			SlotDurationMinutes: seedSlots[gofakeit.Number(0, len(seedSlots)-1)],
			Price:               &price,
			Currency:            &currency,
			Location:            &location,
			AppointmentType:     &apptType,
		}
		if i == n-1 {
			end := civil.DateTime{Date: day.AddDays(28)}
			req.RecurrenceType = availability.RecurrenceWeekly
			req.RecurrenceEndDate = &end
		}
		reqs = append(reqs, req)
	}
	return reqs
}
