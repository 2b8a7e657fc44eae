package reconcile

import (
	"strconv"
	"strings"
)

// InputState is the local view of a slot's uploaded file
type InputState int

const (
	InputNotUploaded InputState = iota
	InputUploaded
	InputUnavailable
	InputUnknown
)

var inputNames = [...]string{
	InputNotUploaded: "not uploaded",
	InputUploaded:    "uploaded",
	InputUnavailable: "not available",
	InputUnknown:     "unknown",
}

func (s InputState) String() string {
	if s >= 0 && int(s) < len(inputNames) {
		return inputNames[s]
	}
	return "input(" + strconv.Itoa(int(s)) + ")"
}

func (s InputState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// OutputState is the local view of a slot's converted file
type OutputState int

const (
	OutputNotStarted OutputState = iota
	OutputRunning
	OutputConverted
	OutputFailed
	OutputUnknown
)

var outputNames = [...]string{
	OutputNotStarted: "not started",
	OutputRunning:    "running",
	OutputConverted:  "converted",
	OutputFailed:     "failed",
	OutputUnknown:    "unknown",
}

func (s OutputState) String() string {
	if s >= 0 && int(s) < len(outputNames) {
		return outputNames[s]
	}
	return "output(" + strconv.Itoa(int(s)) + ")"
}

func (s OutputState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Actions is the set of user actions a slot currently allows
type Actions uint8

const (
	Upload Actions = 1 << iota
	DownloadInput
	DownloadOutput

	None Actions = 0
)

var actionNames = []struct {
	a    Actions
	name string
}{
	{Upload, "upload"},
	{DownloadInput, "download-input"},
	{DownloadOutput, "download-output"},
}

// Has is true if every action in want is allowed
func (a Actions) Has(want Actions) bool {
	return want != 0 && a&want == want
}

func (a Actions) Without(drop Actions) Actions {
	return a &^ drop
}

// List returns the names of the allowed actions in a fixed order
func (a Actions) List() []string {
	names := []string{}
	for _, n := range actionNames {
		if a&n.a != 0 {
			names = append(names, n.name)
		}
	}
	return names
}

func (a Actions) String() string {
	return "{" + strings.Join(a.List(), ", ") + "}"
}

func (a Actions) MarshalJSON() ([]byte, error) {
	names := a.List()
	for i := range names {
		names[i] = strconv.Quote(names[i])
	}
	return []byte("[" + strings.Join(names, ",") + "]"), nil
}
