package payroll

var runTransitions = map[string][]string{
	RunStatusDraft:      {RunStatusProcessing, RunStatusCancelled},
	RunStatusProcessing: {RunStatusCompleted, RunStatusFailed},
	RunStatusFailed:     {RunStatusDraft},
	RunStatusCancelled:  {RunStatusDraft},
}

var recordTransitions = map[string]string{
	RecordStatusCalculated: RecordStatusApproved,
	RecordStatusApproved:   RecordStatusPaid,
}

func CanTransitionRun(from, to string) bool {
	for _, next := range runTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func transitionRun(run *PayrollRun, to string) error {
	if !CanTransitionRun(run.Status, to) {
		return transitionError("payroll run", run.ID, run.Status, to)
	}
	run.Status = to
	return nil
}

// transitionRecord moves a record forward. Finalize may pay a CALCULATED
// record directly, so CALCULATED -> PAID is allowed there through payDirect.
func transitionRecord(rec *PayrollRecord, to string, payDirect bool) error {
	if recordTransitions[rec.Status] == to || (payDirect && rec.Status == RecordStatusCalculated && to == RecordStatusPaid) {
		rec.Status = to
		return nil
	}
	return transitionError("payroll record", rec.ID, rec.Status, to)
}

func ensureMutable(rec PayrollRecord, action string) error {
	if rec.Status == RecordStatusPaid {
		return &StateConflictError{Entity: "payroll record", ID: rec.ID, State: rec.Status, Action: action, Err: ErrRecordPaid}
	}
	return nil
}

// runAccepts reports whether records of run may be written or changed.
func runAccepts(run PayrollRun, action string) error {
	switch run.Status {
	case RunStatusDraft, RunStatusProcessing, RunStatusCompleted:
		return nil
	}
	return &StateConflictError{Entity: "payroll run", ID: run.ID, State: run.Status, Action: action, Err: ErrInvalidTransition}
}

func runAcceptsCalculation(run PayrollRun) error {
	return runAccepts(run, "calculate payroll")
}
