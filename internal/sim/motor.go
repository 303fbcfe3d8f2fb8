// Package sim holds naive physics stand-ins for the robot hardware so the
// behaviors can run end to end without a robot. Every model converges
// linearly toward its goal; none of them is a control-loop implementation.
package sim

import (
	"math"
	"sync"
	"time"
)

// Motor moves its value toward its target at a fixed rate in units per
// second.
type Motor struct {
	name  string
	rate  float64
	coast bool

	mu     sync.Mutex
	target float64
	value  float64
}

// NewPositionMotor creates a motor that holds its position on Stop, like a
// braked arm or spool.
func NewPositionMotor(name string, rate, initial float64) *Motor {
	return &Motor{name: name, rate: rate, value: initial, target: initial}
}

// NewVelocityMotor creates a motor that coasts to zero on Stop, like a
// flywheel or roller.
func NewVelocityMotor(name string, rate float64) *Motor {
	return &Motor{name: name, rate: rate, coast: true}
}

func (m *Motor) Name() string { return m.name }

func (m *Motor) SetTarget(target float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.target = target
}

func (m *Motor) Target() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.target
}

func (m *Motor) Value() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value
}

func (m *Motor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.coast {
		m.target = 0
	} else {
		m.target = m.value
	}
}

// Step advances the model by dt.
func (m *Motor) Step(dt time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = approach(m.value, m.target, m.rate*dt.Seconds())
}

func approach(value, target, maxDelta float64) float64 {
	diff := target - value
	if math.Abs(diff) <= maxDelta {
		return target
	}
	return value + math.Copysign(maxDelta, diff)
}
