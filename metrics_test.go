package modbus

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// counterValue sums a gathered counter family, filtered by label values.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metric:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metric
				}
			}
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestMetrics_ResultLabel(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{nil, "ok"},
		{&ExceptionError{FunctionCode: FuncCodeReadHoldingRegisters, ExceptionCode: ExceptionIllegalDataAddress}, "exception"},
		{&ConnectError{Host: "127.0.0.1", Port: 502, Err: errConnRefused}, "connect_error"},
		{&TimeoutError{Op: "read header", Err: context.DeadlineExceeded}, "timeout"},
		{newFramingError("bad"), "framing_error"},
		{testError("other"), "error"},
	}
	for _, tt := range tests {
		if got := resultLabel(tt.err); got != tt.expected {
			t.Errorf("resultLabel(%v) = %q, want %q", tt.err, got, tt.expected)
		}
	}
}

func TestMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	m.observe(FuncCodeReadHoldingRegisters, time.Now(), nil)
	m.observe(FuncCodeReadHoldingRegisters, time.Now(), newFramingError("bad"))
	m.fallback()

	if v := counterValue(t, reg, "modbus_requests_total", map[string]string{"result": "ok"}); v != 1 {
		t.Errorf("ok requests = %v, want 1", v)
	}
	if v := counterValue(t, reg, "modbus_requests_total", nil); v != 2 {
		t.Errorf("total requests = %v, want 2", v)
	}
	if v := counterValue(t, reg, "modbus_input_register_fallbacks_total", nil); v != 1 {
		t.Errorf("fallbacks = %v, want 1", v)
	}

	if _, err := NewMetrics(reg); err == nil {
		t.Error("registering twice should fail")
	}
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	m.observe(FuncCodeWriteSingleRegister, time.Now(), nil)
	m.fallback()
}
