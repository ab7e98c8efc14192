package domain

import (
	"fmt"
	"strings"
)

// Stage names one runnable unit of work selected by a trigger command.
type Stage string

const (
	StageFetch     Stage = "get-data"
	StageLoad      Stage = "load-data"
	StageReconcile Stage = "reconcile"
	StageProvision Stage = "provision"
)

// Stages lists every stage in the order a fresh deployment runs them.
var Stages = []Stage{StageProvision, StageFetch, StageLoad, StageReconcile}

// Command returns the trigger payload that selects s, e.g. "run-get-data".
func (s Stage) Command() string {
	return "run-" + string(s)
}

// ParseStage accepts either a bare stage name or its "run-" command form.
func ParseStage(cmd string) (Stage, error) {
	name := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(cmd)), "run-")
	for _, s := range Stages {
		if string(s) == name {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStage, cmd)
}
