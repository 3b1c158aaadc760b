package evo

// Feedback receives progress reports from a long-running operation such as
// a polled compute job. fraction is between 0 and 1.
type Feedback interface {
	Progress(fraction float64, message string)
}

// NoFeedback is a Feedback that discards every report. It is the default
// when a caller has no UI or logger to drive.
var NoFeedback Feedback = noFeedback{}

type noFeedback struct{}

func (noFeedback) Progress(float64, string) {}
