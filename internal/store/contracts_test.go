package store

import (
	"errors"
	"sync"
	"testing"

	"credvault/internal/models"
)

func newTestContract(t *testing.T, start, end string) *models.Contract {
	t.Helper()
	startDate, err := models.ParseDate(start)
	if err != nil {
		t.Fatalf("parse start: %v", err)
	}
	endDate, err := models.ParseOptionalDate(end)
	if err != nil {
		t.Fatalf("parse end: %v", err)
	}
	return &models.Contract{
		InstructorID:    "in-ana",
		PersonID:        "p-ana",
		SubjectID:       "sub-calc",
		PeriodID:        "per-2025-1",
		HoursLoad:       40,
		HourlyRateCents: 2500,
		StartDate:       startDate,
		EndDate:         endDate,
	}
}

func TestCreateContractAndGet(t *testing.T) {
	st, ctx := seededStore(t)
	contract := newTestContract(t, "2025-01-01", "2025-06-30")
	if err := st.CreateContract(ctx, contract); err != nil {
		t.Fatalf("create: %v", err)
	}
	if contract.ID == 0 {
		t.Fatal("expected internal id to be assigned")
	}
	if contract.PublicID == "" {
		t.Fatal("expected public id to be assigned")
	}

	got, err := st.GetContract(ctx, contract.PublicID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected contract")
	}
	if models.FormatDate(got.StartDate) != "2025-01-01" || got.EndDate == nil || models.FormatDate(*got.EndDate) != "2025-06-30" {
		t.Fatalf("unexpected dates: %+v", got)
	}
	if got.HoursLoad != 40 || got.HourlyRateCents != 2500 {
		t.Fatalf("unexpected load/rate: %+v", got)
	}
}

func TestCreateContractOverlapRules(t *testing.T) {
	st, ctx := seededStore(t)
	if err := st.CreateContract(ctx, newTestContract(t, "2025-01-01", "2025-06-30")); err != nil {
		t.Fatalf("seed contract: %v", err)
	}

	tests := []struct {
		name    string
		start   string
		end     string
		overlap bool
	}{
		{name: "inside", start: "2025-02-01", end: "2025-03-01", overlap: true},
		{name: "straddles start", start: "2024-12-01", end: "2025-01-02", overlap: true},
		{name: "open ended before end", start: "2025-06-01", end: "", overlap: true},
		{name: "ends where existing starts", start: "2024-10-01", end: "2025-01-01", overlap: false},
		{name: "starts where existing ends", start: "2025-06-30", end: "2025-09-30", overlap: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			contract := newTestContract(t, tc.start, tc.end)
			err := st.CreateContract(ctx, contract)
			if tc.overlap {
				if !errors.Is(err, ErrContractOverlap) {
					t.Fatalf("expected overlap, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected success, got %v", err)
			}
			// Remove so later cases see only the seed.
			if _, err := st.DeleteContract(ctx, contract.PublicID); err != nil {
				t.Fatalf("cleanup: %v", err)
			}
		})
	}
}

func TestCreateContractOpenEndedBlocksFuture(t *testing.T) {
	st, ctx := seededStore(t)
	if err := st.CreateContract(ctx, newTestContract(t, "2025-01-01", "")); err != nil {
		t.Fatalf("seed open-ended: %v", err)
	}
	err := st.CreateContract(ctx, newTestContract(t, "2030-01-01", "2030-02-01"))
	if !errors.Is(err, ErrContractOverlap) {
		t.Fatalf("expected overlap with open-ended contract, got %v", err)
	}
	if err := st.CreateContract(ctx, newTestContract(t, "2024-01-01", "2025-01-01")); err != nil {
		t.Fatalf("expected earlier adjacent contract to succeed, got %v", err)
	}
}

func TestCreateContractRejectsEmptyInterval(t *testing.T) {
	st, ctx := seededStore(t)
	err := st.CreateContract(ctx, newTestContract(t, "2025-01-01", "2025-01-01"))
	if !errors.Is(err, models.ErrEmptyInterval) {
		t.Fatalf("expected empty interval error, got %v", err)
	}
}

func TestConcurrentOverlappingContracts(t *testing.T) {
	st, ctx := seededStore(t)

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		contract := newTestContract(t, "2025-03-01", "2025-08-01")
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- st.CreateContract(ctx, contract)
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrContractOverlap):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one contract to be created, got %d", succeeded)
	}

	contracts, err := st.ListContractsByInstructor(ctx, "in-ana")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(contracts) != 1 {
		t.Fatalf("expected 1 stored contract, got %d", len(contracts))
	}
}

func TestListAndDeleteContracts(t *testing.T) {
	st, ctx := seededStore(t)
	later := newTestContract(t, "2025-07-01", "2025-12-01")
	earlier := newTestContract(t, "2025-01-01", "2025-06-01")
	for _, c := range []*models.Contract{later, earlier} {
		if err := st.CreateContract(ctx, c); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	contracts, err := st.ListContractsByInstructor(ctx, "in-ana")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(contracts) != 2 || contracts[0].PublicID != earlier.PublicID {
		t.Fatalf("expected contracts ordered by start date, got %+v", contracts)
	}

	deleted, err := st.DeleteContract(ctx, earlier.PublicID)
	if err != nil || !deleted {
		t.Fatalf("delete: deleted=%v err=%v", deleted, err)
	}
	deleted, err = st.DeleteContract(ctx, earlier.PublicID)
	if err != nil || deleted {
		t.Fatalf("second delete: deleted=%v err=%v", deleted, err)
	}
}
