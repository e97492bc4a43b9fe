package domain

import (
	"errors"
	"testing"
	"time"
)

func TestParseStatusFromString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    Status
		wantErr bool
	}{
		{name: "valid uppercase", input: "DELIVERED", want: StatusDelivered},
		{name: "valid lowercase with spaces", input: " retrying ", want: StatusRetrying},
		{name: "permanently failed", input: "permanently_failed", want: StatusPermanentlyFailed},
		{name: "invalid", input: "unknown", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseStatusFromString(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("ParseStatusFromString() error = %v, want ErrValidation", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("ParseStatusFromString() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseStatusFromString() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestStatusIsTerminal(t *testing.T) {
	t.Parallel()

	terminal := []Status{StatusDelivered, StatusPermanentlyFailed}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}

	nonTerminal := []Status{StatusPending, StatusInProgress, StatusFailed, StatusRetrying}
	for _, s := range nonTerminal {
		if s.IsTerminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}

func TestParseCategoryFromString(t *testing.T) {
	t.Parallel()

	got, err := ParseCategoryFromString(" Motivation ")
	if err != nil {
		t.Fatalf("ParseCategoryFromString() unexpected error = %v", err)
	}
	if got != CategoryMotivation {
		t.Fatalf("ParseCategoryFromString() = %s, want %s", got, CategoryMotivation)
	}

	_, err = ParseCategoryFromString("weather")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("ParseCategoryFromString() error = %v, want ErrValidation", err)
	}
}

func TestDeliveryRecordValidate(t *testing.T) {
	t.Parallel()

	base := DeliveryRecord{
		UserID:      "u1",
		Category:    CategoryMotivation,
		Timezone:    "Asia/Bangkok",
		ScheduledAt: time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name    string
		mutate  func(*DeliveryRecord)
		wantErr bool
	}{
		{
			name:   "valid record",
			mutate: func(d *DeliveryRecord) {},
		},
		{
			name: "missing user",
			mutate: func(d *DeliveryRecord) {
				d.UserID = " "
			},
			wantErr: true,
		},
		{
			name: "invalid category",
			mutate: func(d *DeliveryRecord) {
				d.Category = Category("weather")
			},
			wantErr: true,
		},
		{
			name: "missing timezone",
			mutate: func(d *DeliveryRecord) {
				d.Timezone = ""
			},
			wantErr: true,
		},
		{
			name: "zero scheduled time",
			mutate: func(d *DeliveryRecord) {
				d.ScheduledAt = time.Time{}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			current := base
			tt.mutate(&current)

			err := current.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("Validate() error = %v, want ErrValidation", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestDeliveryIDDeterministic(t *testing.T) {
	t.Parallel()

	scheduled := time.Date(2025, 6, 1, 2, 0, 17, 0, time.UTC)
	a := DeliveryID("u1", CategoryMotivation, scheduled)
	b := DeliveryID("u1", CategoryMotivation, scheduled.Add(20*time.Second))
	if a != b {
		t.Fatalf("ids differ for the same minute: %s vs %s", a, b)
	}

	c := DeliveryID("u1", CategoryMotivation, scheduled.Add(time.Minute))
	if a == c {
		t.Fatalf("ids should differ across minutes: %s", a)
	}

	d := DeliveryID("u2", CategoryMotivation, scheduled)
	if a == d {
		t.Fatal("ids should differ across users")
	}
}

func TestFindAttempt(t *testing.T) {
	t.Parallel()

	record := DeliveryRecord{
		Attempts: []DeliveryAttempt{
			{ID: "a1", AttemptNumber: 1},
			{ID: "a2", AttemptNumber: 2},
		},
	}

	if got := record.FindAttempt("a2"); got == nil || got.AttemptNumber != 2 {
		t.Fatalf("FindAttempt(a2) = %v, want attempt 2", got)
	}
	if got := record.FindAttempt("missing"); got != nil {
		t.Fatalf("FindAttempt(missing) = %v, want nil", got)
	}
}
