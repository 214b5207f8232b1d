package health

import "time"

func newStatus(component, status, message string) Status {
	return Status{
		Component: component,
		Healthy:   status == StatusHealthy,
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHealthy creates a new healthy status
func NewHealthy(component, message string) Status {
	return newStatus(component, StatusHealthy, message)
}

// NewUnhealthy creates a new unhealthy status
func NewUnhealthy(component, message string) Status {
	return newStatus(component, StatusUnhealthy, message)
}

// NewDegraded creates a new degraded status
func NewDegraded(component, message string) Status {
	return newStatus(component, StatusDegraded, message)
}

// Aggregate folds sub-statuses into one: unhealthy if any is unhealthy, otherwise
// degraded if any is degraded, otherwise healthy.
func Aggregate(component string, subStatuses []Status) Status {
	if len(subStatuses) == 0 {
		return NewHealthy(component, "No components to aggregate")
	}

	var unhealthy, degraded int
	for _, sub := range subStatuses {
		switch {
		case sub.IsUnhealthy():
			unhealthy++
		case sub.IsDegraded():
			degraded++
		}
	}

	var status Status
	switch {
	case unhealthy > 0:
		status = NewUnhealthy(component, "One or more components are unhealthy")
	case degraded > 0:
		status = NewDegraded(component, "One or more components are degraded")
	default:
		status = NewHealthy(component, "All components are healthy")
	}

	status.SubStatuses = make([]Status, len(subStatuses))
	copy(status.SubStatuses, subStatuses)
	return status
}
