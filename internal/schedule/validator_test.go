package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidate_Bounds(t *testing.T) {
	v := NewValidator(0, 0)
	now := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		offset time.Duration
		valid  bool
		reason Reason
	}{
		{"in the past", -time.Hour, false, ReasonTooSoon},
		{"now", 0, false, ReasonTooSoon},
		{"10 minutes", 10 * time.Minute, false, ReasonTooSoon},
		{"just under min lead", 15*time.Minute - time.Second, false, ReasonTooSoon},
		{"exactly min lead", 15 * time.Minute, true, ""},
		{"20 minutes", 20 * time.Minute, true, ""},
		{"5 days", 5 * 24 * time.Hour, true, ""},
		{"exactly max lead", 30 * 24 * time.Hour, true, ""},
		{"just over max lead", 30*24*time.Hour + time.Second, false, ReasonTooFar},
		{"31 days", 31 * 24 * time.Hour, false, ReasonTooFar},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Validate(now.Add(tt.offset), now)
			assert.Equal(t, tt.valid, got.Valid)
			assert.Equal(t, tt.reason, got.Reason)
		})
	}
}

func TestValidate_Messages(t *testing.T) {
	v := NewValidator(DefaultMinLead, DefaultMaxLead)
	now := time.Now()

	assert.Equal(t, "Scheduled pickup must be at least 15 minutes from now",
		v.Validate(now.Add(time.Minute), now).Message)
	assert.Equal(t, "Scheduled pickup cannot be more than 30 days in advance",
		v.Validate(now.Add(40*24*time.Hour), now).Message)
	assert.Empty(t, v.Validate(now.Add(time.Hour), now).Message)
}

func TestValidate_CustomPolicy(t *testing.T) {
	v := NewValidator(time.Hour, 24*time.Hour)
	now := time.Now()

	assert.False(t, v.Validate(now.Add(30*time.Minute), now).Valid)
	assert.True(t, v.Validate(now.Add(2*time.Hour), now).Valid)
	assert.Equal(t, "Scheduled pickup cannot be more than 1 day in advance",
		v.Validate(now.Add(25*time.Hour), now).Message)
	assert.Equal(t, "Scheduled pickup must be at least 60 minutes from now",
		v.Validate(now, now).Message)
}

func TestValidate_NowAdvancing(t *testing.T) {
	v := NewValidator(0, 0)
	pickup := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

	assert.True(t, v.Validate(pickup, pickup.Add(-20*time.Minute)).Valid)
	assert.False(t, v.Validate(pickup, pickup.Add(-14*time.Minute)).Valid)
}
