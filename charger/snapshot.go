package charger

import (
	"context"
	"time"

	"github.com/pkg/errors"

	modbus "github.com/hootrhino/solix-modbus"
)

// Snapshot is the result of one poll cycle.
type Snapshot struct {
	ChargingStatus uint16
	PowerW         uint32
	DurationS      uint32
	EnergyWh       uint32
	ReadAt         time.Time
}

// StatusName returns the charging status name, unknown_<n> for undocumented values.
func (s Snapshot) StatusName() string {
	return ChargingStatusMap.Name(uint32(s.ChargingStatus))
}

// Charging reports whether a session is actively drawing power.
func (s Snapshot) Charging() bool {
	return s.ChargingStatus == 2
}

// Readings returns the snapshot as decoded sensor readings.
func (s Snapshot) Readings() []Reading {
	return []Reading{
		chargingStatusSensor.Decode(uint32(s.ChargingStatus)),
		powerSensor.Decode(s.PowerW),
		durationSensor.Decode(s.DurationS),
		energySensor.Decode(s.EnergyWh),
	}
}

// ReadSnapshot reads the charging status, total power, session duration and
// session energy. The first failure aborts the cycle; no partial snapshot is
// returned.
func ReadSnapshot(ctx context.Context, client modbus.RegisterClient) (Snapshot, error) {
	status, err := client.ReadU16(ctx, RegChargingStatus)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "read charging status")
	}
	power, err := client.ReadU32(ctx, RegTotalActivePower)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "read total active power")
	}
	duration, err := client.ReadU32(ctx, RegSessionDuration)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "read session duration")
	}
	energy, err := client.ReadU32(ctx, RegSessionEnergy)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "read session energy")
	}
	return Snapshot{
		ChargingStatus: status,
		PowerW:         power,
		DurationS:      duration,
		EnergyWh:       energy,
		ReadAt:         time.Now(),
	}, nil
}

// ReadAll reads every sensor of the telemetry table in order.
func ReadAll(ctx context.Context, client modbus.RegisterClient) ([]Reading, error) {
	readings := make([]Reading, 0, len(Sensors))
	for _, s := range Sensors {
		r, err := s.Read(ctx, client)
		if err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, nil
}
