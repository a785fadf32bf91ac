// Package status defines the wire status codes returned by the harness
// using a structured type. Status holds the two-character code and a
// human-readable description.
package status

// Predefined status instances.
var (
	Err00 = Status{"00", "No error"}
	Err01 = Status{"01", "Invalid number of arguments"}
	Err02 = Status{"02", "Invalid numeric argument"}
	Err03 = Status{"03", "Bad pointer"}
	Err04 = Status{"04", "Size must be positive"}
	Err06 = Status{"06", "Fault simulation layer already installed"}
	Err07 = Status{"07", "Fault simulation layer not installed"}
	Err08 = Status{"08", "Scenario execution failed"}
	Err09 = Status{"09", "Unknown scenario"}
	Err10 = Status{"10", "No hex data provided"}
	Err15 = Status{
		"15",
		"Invalid input data (invalid format, invalid characters, or not enough data provided)",
	}
	Err41 = Status{"41", "Internal error"}
	Err68 = Status{"68", "Unknown command"}
)

// Status represents a harness status with its code and description.
type Status struct {
	Code        string // two-character status code
	Description string // human-readable description
}

// Error implements the Go error interface: "<Code>: <Description>".
func (s Status) Error() string {
	return s.Code + ": " + s.Description
}

// CodeOnly returns only the status code (e.g., "68"), for embedding in wire
// responses.
func (s Status) CodeOnly() string {
	return s.Code
}
