package interpreter

import (
	"time"

	"github.com/NotCoffee418/p1_mini/pkg/obis"
)

// Sensor turns decoded values into named readings for its publishers.
// It satisfies telegram.Sensor.
type Sensor struct {
	Name string
	Code obis.Code
	Unit string

	publishers []Publisher
	now        func() time.Time
}

func NewSensor(name string, code obis.Code, unit string, publishers ...Publisher) *Sensor {
	return &Sensor{
		Name:       name,
		Code:       code,
		Unit:       unit,
		publishers: publishers,
		now:        time.Now,
	}
}

func (s *Sensor) AddPublisher(p Publisher) {
	s.publishers = append(s.publishers, p)
}

func (s *Sensor) Deliver(value float64) {
	reading := &Reading{
		Timestamp: s.now().UnixMilli(),
		Name:      s.Name,
		Obis:      s.Code.String(),
		Value:     value,
		Unit:      s.Unit,
	}
	for _, p := range s.publishers {
		p.Publish(reading)
	}
}
