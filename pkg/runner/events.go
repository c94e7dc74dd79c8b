package runner

import "fmt"

// EventSink observes the search lifecycle, one method per lifecycle
// point. A Runner may carry any number of
// sinks; every sink receives every event, in per-task order (but not
// necessarily in task-ID order across tasks, since tasks run in
// parallel). pkg/hpolog.Sink satisfies this interface over a zerolog
// logger without importing this package, the same duck-typed boundary
// pkg/poolservice uses for its Hooks/Metrics ports.
type EventSink interface {
	Init(algorithmName string, settings map[string]interface{})
	InitOK(dimensions int)
	RunStart()
	Step(stepID int64, config interface{})
	StepOK(stepID int64, retval interface{}, metrics map[string]interface{})
	StepFail(stepID int64, err error, metrics map[string]interface{})
	StepSkip(stepID int64, reason string, metrics map[string]interface{})
	StepFinal(stepID int64, rankList fmt.Stringer)
	Try(stepID int64, tryID, maxTry int)
	TryComplete(stepID int64, metrics map[string]interface{})
	TryOK(stepID int64, retval interface{})
	TryFail(stepID int64, err error)
	TrySkip(stepID int64, reason string)
	RunComplete(stopConditionMet bool)
}

// multiSink fans every EventSink method out to each registered sink, in
// registration order.
type multiSink struct {
	sinks []EventSink
}

func (m multiSink) Init(name string, settings map[string]interface{}) {
	for _, s := range m.sinks {
		s.Init(name, settings)
	}
}
func (m multiSink) InitOK(dimensions int) {
	for _, s := range m.sinks {
		s.InitOK(dimensions)
	}
}
func (m multiSink) RunStart() {
	for _, s := range m.sinks {
		s.RunStart()
	}
}
func (m multiSink) Step(stepID int64, config interface{}) {
	for _, s := range m.sinks {
		s.Step(stepID, config)
	}
}
func (m multiSink) StepOK(stepID int64, retval interface{}, metrics map[string]interface{}) {
	for _, s := range m.sinks {
		s.StepOK(stepID, retval, metrics)
	}
}
func (m multiSink) StepFail(stepID int64, err error, metrics map[string]interface{}) {
	for _, s := range m.sinks {
		s.StepFail(stepID, err, metrics)
	}
}
func (m multiSink) StepSkip(stepID int64, reason string, metrics map[string]interface{}) {
	for _, s := range m.sinks {
		s.StepSkip(stepID, reason, metrics)
	}
}
func (m multiSink) StepFinal(stepID int64, rankList fmt.Stringer) {
	for _, s := range m.sinks {
		s.StepFinal(stepID, rankList)
	}
}
func (m multiSink) Try(stepID int64, tryID, maxTry int) {
	for _, s := range m.sinks {
		s.Try(stepID, tryID, maxTry)
	}
}
func (m multiSink) TryComplete(stepID int64, metrics map[string]interface{}) {
	for _, s := range m.sinks {
		s.TryComplete(stepID, metrics)
	}
}
func (m multiSink) TryOK(stepID int64, retval interface{}) {
	for _, s := range m.sinks {
		s.TryOK(stepID, retval)
	}
}
func (m multiSink) TryFail(stepID int64, err error) {
	for _, s := range m.sinks {
		s.TryFail(stepID, err)
	}
}
func (m multiSink) TrySkip(stepID int64, reason string) {
	for _, s := range m.sinks {
		s.TrySkip(stepID, reason)
	}
}
func (m multiSink) RunComplete(stopConditionMet bool) {
	for _, s := range m.sinks {
		s.RunComplete(stopConditionMet)
	}
}

// NullSink is an EventSink that discards every event, for callers that
// want a Runner with no logging overhead.
type NullSink struct{}

func (NullSink) Init(string, map[string]interface{})                    {}
func (NullSink) InitOK(int)                                             {}
func (NullSink) RunStart()                                              {}
func (NullSink) Step(int64, interface{})                                {}
func (NullSink) StepOK(int64, interface{}, map[string]interface{})      {}
func (NullSink) StepFail(int64, error, map[string]interface{})          {}
func (NullSink) StepSkip(int64, string, map[string]interface{})         {}
func (NullSink) StepFinal(int64, fmt.Stringer)                          {}
func (NullSink) Try(int64, int, int)                                    {}
func (NullSink) TryComplete(int64, map[string]interface{})              {}
func (NullSink) TryOK(int64, interface{})                                {}
func (NullSink) TryFail(int64, error)                                   {}
func (NullSink) TrySkip(int64, string)                                  {}
func (NullSink) RunComplete(bool)                                       {}
