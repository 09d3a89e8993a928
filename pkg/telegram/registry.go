package telegram

import (
	"github.com/NotCoffee418/p1_mini/pkg/obis"
	"go.uber.org/zap"
)

// Registry maps packed OBIS codes to the sensors receiving their values.
// Several sensors may share a code, they are all delivered to in
// registration order.
type Registry struct {
	sensors map[obis.Code][]Sensor
	logger  *zap.Logger
}

func newRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		sensors: make(map[obis.Code][]Sensor),
		logger:  logger,
	}
}

// Register parses code and binds s to it. An invalid code is logged and the
// sensor is dropped, obis.Invalid is returned.
func (r *Registry) Register(code string, s Sensor) obis.Code {
	c, err := obis.ParseStrict(code)
	if err != nil {
		r.logger.Error("Sensor not registered", zap.Error(err))
		return obis.Invalid
	}
	if len(r.sensors[c]) > 0 {
		r.logger.Warn("Multiple sensors registered for OBIS code", zap.Stringer("obis", c), zap.Int("count", len(r.sensors[c])+1))
	}
	r.sensors[c] = append(r.sensors[c], s)
	return c
}

func (r *Registry) Lookup(c obis.Code) []Sensor {
	return r.sensors[c]
}

// Len is the number of distinct codes with sensors.
func (r *Registry) Len() int {
	return len(r.sensors)
}

func (r *Registry) dispatch(c obis.Code, value float64) int {
	sensors := r.sensors[c]
	for _, s := range sensors {
		s.Deliver(value)
	}
	return len(sensors)
}
