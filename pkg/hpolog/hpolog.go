// Package hpolog wires the runner's event lifecycle into structured
// zerolog logging.
package hpolog

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the package-level logger used across the runner/scheduler.
func New(level zerolog.Level) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// Sink implements runner.EventSink over a zerolog.Logger: one structured
// line per event.
type Sink struct {
	log zerolog.Logger
}

// NewSink wraps logger as an EventSink.
func NewSink(logger zerolog.Logger) *Sink {
	return &Sink{log: logger}
}

func (s *Sink) Init(algorithmName string, settings map[string]interface{}) {
	s.log.Info().Str("algorithm", algorithmName).Interface("settings", settings).Msg("runner initializing")
}

func (s *Sink) InitOK(dimensions int) {
	s.log.Info().Int("dimensions", dimensions).Msg("runner ready")
}

func (s *Sink) RunStart() {
	s.log.Info().Msg("run started")
}

func (s *Sink) RunComplete(stopConditionMet bool) {
	s.log.Info().Bool("stop_condition_met", stopConditionMet).Msg("run complete")
}

func (s *Sink) Step(stepID int64, config interface{}) {
	s.log.Debug().Int64("step", stepID).Interface("config", config).Msg("step dispatched")
}

func (s *Sink) StepOK(stepID int64, retval interface{}, metrics map[string]interface{}) {
	s.log.Info().Int64("step", stepID).Interface("metrics", metrics).Msg("step ok")
}

func (s *Sink) StepFail(stepID int64, err error, metrics map[string]interface{}) {
	s.log.Warn().Int64("step", stepID).Err(err).Interface("metrics", metrics).Msg("step failed")
}

func (s *Sink) StepSkip(stepID int64, reason string, metrics map[string]interface{}) {
	s.log.Info().Int64("step", stepID).Str("reason", reason).Interface("metrics", metrics).Msg("step skipped")
}

func (s *Sink) StepFinal(stepID int64, rankList fmt.Stringer) {
	s.log.Info().Int64("step", stepID).Msg("\n" + rankList.String())
}

func (s *Sink) Try(stepID int64, tryID, maxTry int) {
	s.log.Debug().Int64("step", stepID).Int("try", tryID).Int("max_try", maxTry).Msg("attempt")
}

func (s *Sink) TryComplete(stepID int64, metrics map[string]interface{}) {
	s.log.Debug().Int64("step", stepID).Interface("metrics", metrics).Msg("attempt complete")
}

func (s *Sink) TryOK(stepID int64, retval interface{}) {
	s.log.Debug().Int64("step", stepID).Msg("attempt ok")
}

func (s *Sink) TryFail(stepID int64, err error) {
	s.log.Debug().Int64("step", stepID).Err(err).Msg("attempt failed")
}

func (s *Sink) TrySkip(stepID int64, reason string) {
	s.log.Debug().Int64("step", stepID).Str("reason", reason).Msg("attempt skipped")
}
