package model

// allowedTransitions defines the payment lifecycle. Completed, failed and
// cancelled are terminal for gateway purposes; completed may still move to
// refunded through a back-office action.
var allowedTransitions = map[string][]string{
	StatusPending:    {StatusProcessing, StatusFailed, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted:  {StatusRefunded},
	StatusFailed:     {},
	StatusCancelled:  {},
	StatusRefunded:   {},
}

// terminalStatuses are the states in which a payment no longer accepts
// gateway outcomes. A callback for a payment in one of these states is a
// duplicate and must be acknowledged without effect.
var terminalStatuses = map[string]bool{
	StatusCompleted: true,
	StatusFailed:    true,
	StatusCancelled: true,
	StatusRefunded:  true,
}

// CanTransition reports whether moving a payment from one status to another
// is allowed by the lifecycle.
func CanTransition(from, to string) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether a status accepts no further gateway
// outcomes.
func IsTerminalStatus(status string) bool {
	return terminalStatuses[status]
}
