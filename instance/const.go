package instance

// Define the valid states of an instance
// Requested -> Launching -> Running -> Paired -> Terminated
// Terminated is absorbing: no further transitions.
// Requested exists only between the registry reservation and the provider
// launch response; a failed launch removes the reservation.
const (
	StateRequested  string = "Requested"
	StateLaunching         = "Launching"
	StateRunning           = "Running"
	StatePaired            = "Paired"
	StateTerminated        = "Terminated"
)
