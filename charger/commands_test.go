package charger

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestController_Writes(t *testing.T) {
	c := newFakeClient()
	ctrl := NewController(c, zerolog.Nop())
	ctx := context.Background()

	steps := []struct {
		name string
		run  func() error
		want write
	}{
		{"start", func() error { return ctrl.StartCharging(ctx) }, write{RegCommand, 1}},
		{"stop", func() error { return ctrl.StopCharging(ctx) }, write{RegCommand, 2}},
		{"boost", func() error { return ctrl.Boost(ctx) }, write{RegBoost, 1}},
		{"timeout", func() error { return ctrl.SetTimeout(ctx, 60) }, write{RegTimeout, 60}},
		{"phase", func() error { return ctrl.SetPhase(ctx, PhaseThree) }, write{RegPhaseSetting, 2}},
		{"max current", func() error { return ctrl.SetMaxCurrent(ctx, 16) }, write{RegMaxCurrent, 16}},
		{"max current zero", func() error { return ctrl.SetMaxCurrent(ctx, 0) }, write{RegMaxCurrent, 0}},
	}
	for i, step := range steps {
		if err := step.run(); err != nil {
			t.Fatalf("%s failed: %v", step.name, err)
		}
		if got := c.writes[i]; got != step.want {
			t.Errorf("%s wrote %+v, want %+v", step.name, got, step.want)
		}
	}
}

func TestController_RejectsBeforeIO(t *testing.T) {
	c := newFakeClient()
	ctrl := NewController(c, zerolog.Nop())
	ctx := context.Background()

	tests := []struct {
		name string
		run  func() error
	}{
		{"timeout 5", func() error { return ctrl.SetTimeout(ctx, 5) }},
		{"timeout negative", func() error { return ctrl.SetTimeout(ctx, -1) }},
		{"timeout too large", func() error { return ctrl.SetTimeout(ctx, 70000) }},
		{"current 33", func() error { return ctrl.SetMaxCurrent(ctx, 33) }},
		{"current negative", func() error { return ctrl.SetMaxCurrent(ctx, -1) }},
		{"phase 3", func() error { return ctrl.SetPhase(ctx, Phase(3)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("expected invalid argument, got %v", err)
			}
		})
	}
	if len(c.writes) != 0 {
		t.Errorf("rejected values were written: %+v", c.writes)
	}
}

func TestController_WriteError(t *testing.T) {
	c := newFakeClient()
	cause := errors.New("connection refused")
	c.fail[RegCommand] = cause
	ctrl := NewController(c, zerolog.Nop())

	if err := ctrl.StartCharging(context.Background()); !errors.Is(err, cause) {
		t.Errorf("expected wrapped cause, got %v", err)
	}
}
