package domain

import (
	"errors"
	"testing"
	"time"
)

func TestTallyEventValidate(t *testing.T) {
	at := time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		event   TallyEvent
		wantErr bool
	}{
		{
			name:  "valid increment",
			event: TallyEvent{ServantID: "s1", Kind: KindIncrement, Amount: 3, Timestamp: at},
		},
		{
			name:  "valid individual reset",
			event: TallyEvent{ServantID: "s1", Kind: KindResetIndividual, Timestamp: at},
		},
		{
			name:  "valid authority reset",
			event: TallyEvent{ServantID: "s1", Kind: KindResetAuthority, ResetBy: "boss@temple", Timestamp: at},
		},
		{
			name:    "missing servant id",
			event:   TallyEvent{Kind: KindIncrement, Amount: 3, Timestamp: at},
			wantErr: true,
		},
		{
			name:    "missing timestamp",
			event:   TallyEvent{ServantID: "s1", Kind: KindIncrement, Amount: 3},
			wantErr: true,
		},
		{
			name:    "increment with zero amount",
			event:   TallyEvent{ServantID: "s1", Kind: KindIncrement, Amount: 0, Timestamp: at},
			wantErr: true,
		},
		{
			name:    "increment with negative amount",
			event:   TallyEvent{ServantID: "s1", Kind: KindIncrement, Amount: -2, Timestamp: at},
			wantErr: true,
		},
		{
			name:    "authority reset without actor",
			event:   TallyEvent{ServantID: "s1", Kind: KindResetAuthority, Timestamp: at},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			event:   TallyEvent{ServantID: "s1", Kind: "decrement", Amount: 3, Timestamp: at},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedEvent) {
					t.Fatalf("Validate() = %v, want ErrMalformedEvent", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestTallyEventDay(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	evt := TallyEvent{
		ServantID: "s1",
		Kind:      KindIncrement,
		Amount:    1,
		// 02:00 IST on the 10th is still the 9th in UTC.
		Timestamp: time.Date(2025, time.March, 10, 2, 0, 0, 0, loc),
	}
	if got := evt.Day(); got != "2025-03-09" {
		t.Fatalf("Day() = %q, want 2025-03-09", got)
	}
}

func TestTallyEventIsReset(t *testing.T) {
	if (TallyEvent{Kind: KindIncrement}).IsReset() {
		t.Fatal("increment reported as reset")
	}
	if !(TallyEvent{Kind: KindResetIndividual}).IsReset() {
		t.Fatal("individual reset not reported as reset")
	}
	if !(TallyEvent{Kind: KindResetAuthority}).IsReset() {
		t.Fatal("authority reset not reported as reset")
	}
}
