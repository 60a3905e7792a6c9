package screener

import (
	"errors"
	"fmt"
)

// Kind classifies a screener failure.
type Kind string

const (
	// UpstreamUnavailable is a non-success status or transport failure from the provider.
	UpstreamUnavailable Kind = "upstream unavailable"
	// MalformedResponse is a payload missing the expected JSON shape.
	MalformedResponse Kind = "malformed response"
	// UnknownMetricMapping is a metric id with no field name in its response.
	UnknownMetricMapping Kind = "unknown metric mapping"
	// UnknownAuxiliaryType is an unrecognized type discriminator. Recoverable.
	UnknownAuxiliaryType Kind = "unknown auxiliary type"
	// ResultBelowThreshold is a screen matching fewer tickers than configured.
	ResultBelowThreshold Kind = "result below threshold"
	// MissingRatings is a run whose records carry no value for a required rating.
	MissingRatings Kind = "missing ratings"
)

func (k Kind) Error() string {
	return string(k)
}

// Site names the request that failed.
type Site string

const (
	SiteScreener Site = "screener"
	SiteMetrics  Site = "metrics"
)

// Error is returned for every fatal condition of a run.
type Error struct {
	Kind   Kind
	Site   Site
	Status int
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s", e.Site, e.Kind)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, UnknownMetricMapping) match on kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// Recoverable reports whether the kind only skips the offending item.
func (k Kind) Recoverable() bool {
	return k == UnknownAuxiliaryType
}

// Process exit codes, one per failure site.
const (
	ExitOK                = 0
	ExitFailure           = 1
	ExitUnknownMetric     = 8
	ExitMetricsStatus     = 9
	ExitMalformedResponse = 10
	ExitScreenerStatus    = 11
	ExitBelowThreshold    = 12
	ExitMissingRatings    = 13
)

// ExitCode maps a run error to its process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var se *Error
	if !errors.As(err, &se) {
		return ExitFailure
	}
	switch se.Kind {
	case UnknownMetricMapping:
		return ExitUnknownMetric
	case MalformedResponse:
		return ExitMalformedResponse
	case ResultBelowThreshold:
		return ExitBelowThreshold
	case MissingRatings:
		return ExitMissingRatings
	case UpstreamUnavailable:
		if se.Status == 0 {
			return ExitFailure
		}
		if se.Site == SiteScreener {
			return ExitScreenerStatus
		}
		return ExitMetricsStatus
	}
	return ExitFailure
}
