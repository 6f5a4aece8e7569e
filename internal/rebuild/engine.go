package rebuild

import (
	"sort"
	"time"

	"chargewatch/internal/models"
)

// Policy holds the reconstruction parameters.
type Policy struct {
	// Ceiling bounds a session's credible length. A session left open at the
	// end of the event stream is closed artificially at start+Ceiling, and an
	// observed close beyond it is tagged SESSION_TIMEOUT, matching what the
	// live tracker records for the same history. Canonical value is 70
	// minutes.
	Ceiling time.Duration
}

// DefaultPolicy is the canonical reconstruction policy.
var DefaultPolicy = Policy{Ceiling: 70 * time.Minute}

// Result is the outcome of one reconstruction run.
type Result struct {
	Sessions []models.Session
	// OrphanedCloses counts non-Charging events observed with no open
	// session. Upstream noise, surfaced as a diagnostic, never an error.
	OrphanedCloses int
	// DuplicateOpens counts Charging events observed while a session was
	// already open. Collapsed into the existing session.
	DuplicateOpens int
	// Malformed counts events dropped for a missing connector ID or zero
	// timestamp. Processing of the remaining stream continues.
	Malformed int
}

// Reconstruct turns an event history into the maximal consistent session set.
// Events may arrive out of order or duplicated; they are sorted per connector
// before processing. The function is pure: the same input always yields the
// same output, with no dependence on the wall clock.
func Reconstruct(events []models.ConnectorEvent, policy Policy) Result {
	if policy.Ceiling <= 0 {
		policy.Ceiling = DefaultPolicy.Ceiling
	}

	byConnector := make(map[string][]models.ConnectorEvent)
	var order []string
	var result Result
	for _, e := range events {
		if e.ConnectorID == "" || e.Timestamp.IsZero() {
			result.Malformed++
			continue
		}
		if _, seen := byConnector[e.ConnectorID]; !seen {
			order = append(order, e.ConnectorID)
		}
		byConnector[e.ConnectorID] = append(byConnector[e.ConnectorID], e)
	}
	sort.Strings(order)

	for _, connectorID := range order {
		reconstructConnector(byConnector[connectorID], policy, &result)
	}
	return result
}

func reconstructConnector(events []models.ConnectorEvent, policy Policy, result *Result) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.Before(events[j].Timestamp)
		}
		// Equal-timestamp ties break on status so database read order can
		// never change the output.
		return events[i].Status < events[j].Status
	})

	var open *models.Session
	for _, e := range events {
		switch {
		case e.Status.IsCharging():
			if open != nil {
				// Repeated Charging observation, session continues.
				result.DuplicateOpens++
				continue
			}
			open = &models.Session{
				ChargerName:   e.ChargerName,
				ConnectorID:   e.ConnectorID,
				ConnectorType: e.ConnectorType,
				PowerKW:       e.PowerKW,
				StartTime:     e.Timestamp,
			}
		default:
			if open == nil {
				result.OrphanedCloses++
				continue
			}
			result.Sessions = append(result.Sessions, closeSession(*open, e.Timestamp, models.QualityOK, policy.Ceiling))
			open = nil
		}
	}

	if open != nil {
		// Stream ended mid-charge: close artificially at start + ceiling.
		end := open.StartTime.Add(policy.Ceiling)
		result.Sessions = append(result.Sessions, closeSession(*open, end, models.QualityTooLong, policy.Ceiling))
	}
}

// closeSession finalizes one session. An observed close past the ceiling is
// upgraded to SESSION_TIMEOUT, the same tag the live tracker assigns.
func closeSession(s models.Session, end time.Time, quality models.Quality, ceiling time.Duration) models.Session {
	duration := models.DurationBetween(s.StartTime, end)
	if duration < 0 {
		quality = models.QualityInvalid
	} else if quality == models.QualityOK && end.Sub(s.StartTime) > ceiling {
		quality = models.QualitySessionTimeout
	}
	s.EndTime = &end
	s.DurationMinutes = &duration
	s.Quality = quality
	return s
}
