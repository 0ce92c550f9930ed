// Package memstore is an in-memory payroll.StoreAPI. WithinTx holds a single
// lock for the whole unit of work and restores a snapshot when fn fails.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"paycore/internal/domain/payroll"
	"paycore/internal/platform/outbox"
)

type txKey struct{}

var (
	_ payroll.StoreAPI          = (*Store)(nil)
	_ payroll.AttendanceSource  = (*Store)(nil)
	_ payroll.EmployeeDirectory = (*Store)(nil)
	_ payroll.EventSink         = (*Store)(nil)
	_ payroll.BankDetailsWriter = (*Store)(nil)
)

type state struct {
	assignments map[string]payroll.EmployeeSalaryAssignment
	revisions   map[string]payroll.SalaryRevision
	runs        map[string]payroll.PayrollRun
	records     map[string]payroll.PayrollRecord
	payments    []payroll.Payment
	events      []outbox.Event
	attendance  map[string]payroll.Attendance
	employees   map[string]payroll.Employee
}

func (s state) clone() state {
	out := state{
		assignments: make(map[string]payroll.EmployeeSalaryAssignment, len(s.assignments)),
		revisions:   make(map[string]payroll.SalaryRevision, len(s.revisions)),
		runs:        make(map[string]payroll.PayrollRun, len(s.runs)),
		records:     make(map[string]payroll.PayrollRecord, len(s.records)),
		payments:    append([]payroll.Payment(nil), s.payments...),
		events:      append([]outbox.Event(nil), s.events...),
		attendance:  make(map[string]payroll.Attendance, len(s.attendance)),
		employees:   make(map[string]payroll.Employee, len(s.employees)),
	}
	for k, v := range s.assignments {
		out.assignments[k] = v
	}
	for k, v := range s.revisions {
		out.revisions[k] = v
	}
	for k, v := range s.runs {
		out.runs[k] = v
	}
	for k, v := range s.records {
		out.records[k] = v
	}
	for k, v := range s.attendance {
		out.attendance[k] = v
	}
	for k, v := range s.employees {
		out.employees[k] = v
	}
	return out
}

// Store keeps reference data (components, structures) outside the
// transactional state under its own lock.
type Store struct {
	mu       sync.Mutex
	st       state
	failures map[string]error

	refMu       sync.RWMutex
	refFailures map[string]error
	components  map[string]payroll.PayComponent
	structures  map[string]payroll.SalaryStructure
}

func New() *Store {
	return &Store{
		st:          state{}.clone(),
		failures:    map[string]error{},
		refFailures: map[string]error{},
		components:  map[string]payroll.PayComponent{},
		structures:  map[string]payroll.SalaryStructure{},
	}
}

// FailOn makes the named method return err until cleared with a nil err.
func (s *Store) FailOn(method string, err error) {
	s.refMu.Lock()
	setFailure(s.refFailures, method, err)
	s.refMu.Unlock()

	s.mu.Lock()
	setFailure(s.failures, method, err)
	s.mu.Unlock()
}

func setFailure(failures map[string]error, method string, err error) {
	if err == nil {
		delete(failures, method)
		return
	}
	failures[method] = err
}

// enter locks the store unless ctx is already inside WithinTx.
func (s *Store) enter(ctx context.Context, method string) (func(), error) {
	unlock := func() {}
	if ctx.Value(txKey{}) == nil {
		s.mu.Lock()
		unlock = s.mu.Unlock
	}
	if err := s.failures[method]; err != nil {
		unlock()
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		unlock()
		return nil, err
	}
	return unlock, nil
}

// refFailure reads injected failures for reference data without the main
// lock, which a running transaction may hold.
func (s *Store) refFailure(method string) error {
	s.refMu.RLock()
	defer s.refMu.RUnlock()
	return s.refFailures[method]
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// Seeding and inspection helpers.

func (s *Store) PutComponents(components ...payroll.PayComponent) {
	s.refMu.Lock()
	defer s.refMu.Unlock()
	for _, c := range components {
		s.components[c.ID] = c
	}
}

func (s *Store) PutStructure(structure payroll.SalaryStructure) {
	s.refMu.Lock()
	defer s.refMu.Unlock()
	s.structures[structure.ID] = structure
}

func (s *Store) PutEmployee(emp payroll.Employee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.employees[emp.ID] = emp
}

func (s *Store) SetAttendance(employeeID string, attendance payroll.Attendance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.attendance[employeeID] = attendance
}

func (s *Store) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outbox.Event(nil), s.st.events...)
}

func (s *Store) Payments() []payroll.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]payroll.Payment(nil), s.st.payments...)
}

// Components and structures.

func (s *Store) ListComponents(ctx context.Context) ([]payroll.PayComponent, error) {
	if err := s.refFailure("ListComponents"); err != nil {
		return nil, err
	}
	s.refMu.RLock()
	defer s.refMu.RUnlock()
	out := make([]payroll.PayComponent, 0, len(s.components))
	for _, c := range s.components {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetStructure(ctx context.Context, id string) (payroll.SalaryStructure, error) {
	if err := s.refFailure("GetStructure"); err != nil {
		return payroll.SalaryStructure{}, err
	}
	s.refMu.RLock()
	defer s.refMu.RUnlock()
	structure, ok := s.structures[id]
	if !ok {
		return payroll.SalaryStructure{}, payroll.ErrStructureNotFound
	}
	structure.Components = append([]payroll.StructureComponent(nil), structure.Components...)
	for i := range structure.Components {
		structure.Components[i].Component = payroll.PayComponent{}
	}
	return structure, nil
}

// Assignments.

func (s *Store) ListAssignments(ctx context.Context, employeeID string) ([]payroll.EmployeeSalaryAssignment, error) {
	unlock, err := s.enter(ctx, "ListAssignments")
	if err != nil {
		return nil, err
	}
	defer unlock()
	var out []payroll.EmployeeSalaryAssignment
	for _, a := range s.st.assignments {
		if a.EmployeeID == employeeID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EffectiveFrom.Before(out[j].EffectiveFrom) })
	return out, nil
}

func (s *Store) LockOpenAssignment(ctx context.Context, employeeID string) (payroll.EmployeeSalaryAssignment, error) {
	unlock, err := s.enter(ctx, "LockOpenAssignment")
	if err != nil {
		return payroll.EmployeeSalaryAssignment{}, err
	}
	defer unlock()
	for _, a := range s.st.assignments {
		if a.EmployeeID == employeeID && a.IsActive && a.IsOpen() {
			return a, nil
		}
	}
	return payroll.EmployeeSalaryAssignment{}, payroll.ErrAssignmentNotFound
}

func (s *Store) InsertAssignment(ctx context.Context, assignment payroll.EmployeeSalaryAssignment) error {
	unlock, err := s.enter(ctx, "InsertAssignment")
	if err != nil {
		return err
	}
	defer unlock()
	if _, exists := s.st.assignments[assignment.ID]; exists {
		return errors.New("memstore: duplicate assignment id " + assignment.ID)
	}
	if assignment.IsActive && assignment.IsOpen() {
		for _, a := range s.st.assignments {
			if a.EmployeeID == assignment.EmployeeID && a.IsActive && a.IsOpen() {
				return errors.New("memstore: employee already has an open assignment")
			}
		}
	}
	s.st.assignments[assignment.ID] = assignment
	return nil
}

func (s *Store) CloseAssignment(ctx context.Context, assignment payroll.EmployeeSalaryAssignment) error {
	unlock, err := s.enter(ctx, "CloseAssignment")
	if err != nil {
		return err
	}
	defer unlock()
	current, ok := s.st.assignments[assignment.ID]
	if !ok {
		return payroll.ErrAssignmentNotFound
	}
	current.EffectiveTo = assignment.EffectiveTo
	current.IsActive = assignment.IsActive
	current.SupersededBy = assignment.SupersededBy
	s.st.assignments[assignment.ID] = current
	return nil
}

// Revisions.

func (s *Store) InsertRevision(ctx context.Context, revision payroll.SalaryRevision) error {
	unlock, err := s.enter(ctx, "InsertRevision")
	if err != nil {
		return err
	}
	defer unlock()
	s.st.revisions[revision.ID] = revision
	return nil
}

func (s *Store) GetRevision(ctx context.Context, id string) (payroll.SalaryRevision, error) {
	unlock, err := s.enter(ctx, "GetRevision")
	if err != nil {
		return payroll.SalaryRevision{}, err
	}
	defer unlock()
	rev, ok := s.st.revisions[id]
	if !ok {
		return payroll.SalaryRevision{}, payroll.ErrRevisionNotFound
	}
	return rev, nil
}

func (s *Store) LockRevision(ctx context.Context, id string) (payroll.SalaryRevision, error) {
	return s.GetRevision(ctx, id)
}

func (s *Store) UpdateRevision(ctx context.Context, revision payroll.SalaryRevision) error {
	unlock, err := s.enter(ctx, "UpdateRevision")
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := s.st.revisions[revision.ID]; !ok {
		return payroll.ErrRevisionNotFound
	}
	s.st.revisions[revision.ID] = revision
	return nil
}

func (s *Store) ListRevisions(ctx context.Context, filter payroll.RevisionFilter) ([]payroll.SalaryRevision, int, error) {
	unlock, err := s.enter(ctx, "ListRevisions")
	if err != nil {
		return nil, 0, err
	}
	defer unlock()
	var out []payroll.SalaryRevision
	for _, r := range s.st.revisions {
		if filter.EmployeeID != "" && r.EmployeeID != filter.EmployeeID {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	total := len(out)
	return page(out, filter.Limit, filter.Offset), total, nil
}

// Runs.

func (s *Store) InsertRun(ctx context.Context, run payroll.PayrollRun) (bool, error) {
	unlock, err := s.enter(ctx, "InsertRun")
	if err != nil {
		return false, err
	}
	defer unlock()
	if _, exists := s.st.runs[run.ID]; exists {
		return false, nil
	}
	s.st.runs[run.ID] = run
	return true, nil
}

func (s *Store) GetRun(ctx context.Context, id string) (payroll.PayrollRun, error) {
	unlock, err := s.enter(ctx, "GetRun")
	if err != nil {
		return payroll.PayrollRun{}, err
	}
	defer unlock()
	run, ok := s.st.runs[id]
	if !ok {
		return payroll.PayrollRun{}, payroll.ErrRunNotFound
	}
	return run, nil
}

func (s *Store) LockRun(ctx context.Context, id string) (payroll.PayrollRun, error) {
	return s.GetRun(ctx, id)
}

func (s *Store) UpdateRun(ctx context.Context, run payroll.PayrollRun) error {
	unlock, err := s.enter(ctx, "UpdateRun")
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := s.st.runs[run.ID]; !ok {
		return payroll.ErrRunNotFound
	}
	s.st.runs[run.ID] = run
	return nil
}

func (s *Store) DeleteRun(ctx context.Context, id string) error {
	unlock, err := s.enter(ctx, "DeleteRun")
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := s.st.runs[id]; !ok {
		return payroll.ErrRunNotFound
	}
	delete(s.st.runs, id)
	for recID, rec := range s.st.records {
		if rec.PayrollRunID == id {
			delete(s.st.records, recID)
		}
	}
	return nil
}

func (s *Store) ListRuns(ctx context.Context, limit, offset int) ([]payroll.PayrollRun, int, error) {
	unlock, err := s.enter(ctx, "ListRuns")
	if err != nil {
		return nil, 0, err
	}
	defer unlock()
	out := make([]payroll.PayrollRun, 0, len(s.st.runs))
	for _, r := range s.st.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	return page(out, limit, offset), len(out), nil
}

// Records.

func copyRecord(rec payroll.PayrollRecord) payroll.PayrollRecord {
	rec.Earnings = append([]payroll.LineItem{}, rec.Earnings...)
	rec.Deductions = append([]payroll.LineItem{}, rec.Deductions...)
	rec.Adjustments = append([]payroll.AdjustmentLine{}, rec.Adjustments...)
	return rec
}

func (s *Store) GetRecord(ctx context.Context, id string) (payroll.PayrollRecord, error) {
	unlock, err := s.enter(ctx, "GetRecord")
	if err != nil {
		return payroll.PayrollRecord{}, err
	}
	defer unlock()
	rec, ok := s.st.records[id]
	if !ok {
		return payroll.PayrollRecord{}, payroll.ErrRecordNotFound
	}
	return copyRecord(rec), nil
}

func (s *Store) LockRecord(ctx context.Context, id string) (payroll.PayrollRecord, error) {
	return s.GetRecord(ctx, id)
}

func (s *Store) FindRecord(ctx context.Context, runID, employeeID string) (payroll.PayrollRecord, bool, error) {
	unlock, err := s.enter(ctx, "FindRecord")
	if err != nil {
		return payroll.PayrollRecord{}, false, err
	}
	defer unlock()
	for _, rec := range s.st.records {
		if rec.PayrollRunID == runID && rec.EmployeeID == employeeID {
			return copyRecord(rec), true, nil
		}
	}
	return payroll.PayrollRecord{}, false, nil
}

func (s *Store) UpsertRecord(ctx context.Context, record payroll.PayrollRecord) error {
	unlock, err := s.enter(ctx, "UpsertRecord")
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := s.st.runs[record.PayrollRunID]; !ok {
		return payroll.ErrRunNotFound
	}
	for id, rec := range s.st.records {
		if id != record.ID && rec.PayrollRunID == record.PayrollRunID && rec.EmployeeID == record.EmployeeID {
			return errors.New("memstore: duplicate record for run and employee")
		}
	}
	s.st.records[record.ID] = copyRecord(record)
	return nil
}

func (s *Store) DeleteRecord(ctx context.Context, id string) error {
	unlock, err := s.enter(ctx, "DeleteRecord")
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := s.st.records[id]; !ok {
		return payroll.ErrRecordNotFound
	}
	delete(s.st.records, id)
	return nil
}

func (s *Store) ListRecords(ctx context.Context, runID string) ([]payroll.PayrollRecord, error) {
	unlock, err := s.enter(ctx, "ListRecords")
	if err != nil {
		return nil, err
	}
	defer unlock()
	out := []payroll.PayrollRecord{}
	for _, rec := range s.st.records {
		if rec.PayrollRunID == runID {
			out = append(out, copyRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmployeeID < out[j].EmployeeID })
	return out, nil
}

func (s *Store) InsertPayment(ctx context.Context, payment payroll.Payment) error {
	unlock, err := s.enter(ctx, "InsertPayment")
	if err != nil {
		return err
	}
	defer unlock()
	for _, p := range s.st.payments {
		if p.RecordID == payment.RecordID {
			return errors.New("memstore: record already has a payment")
		}
	}
	s.st.payments = append(s.st.payments, payment)
	return nil
}

// Collaborators.

// PayableDays implements payroll.AttendanceSource. No summary means full attendance.
func (s *Store) PayableDays(ctx context.Context, employeeID string, start, end time.Time, totalDays int) (payroll.Attendance, error) {
	unlock, err := s.enter(ctx, "PayableDays")
	if err != nil {
		return payroll.Attendance{}, err
	}
	defer unlock()
	att, ok := s.st.attendance[employeeID]
	if !ok {
		return payroll.Attendance{PayableDays: totalDays}, nil
	}
	if att.PayableDays > totalDays {
		att.PayableDays = totalDays
	}
	return att, nil
}

// Lookup implements payroll.EmployeeDirectory.
func (s *Store) Lookup(ctx context.Context, employeeID string) (payroll.Employee, error) {
	unlock, err := s.enter(ctx, "Lookup")
	if err != nil {
		return payroll.Employee{}, err
	}
	defer unlock()
	emp, ok := s.st.employees[employeeID]
	if !ok {
		return payroll.Employee{}, payroll.ErrEmployeeNotFound
	}
	return emp, nil
}

// SaveBankDetails implements payroll.BankDetailsWriter.
func (s *Store) SaveBankDetails(ctx context.Context, employeeID string, bank payroll.BankDetails) error {
	unlock, err := s.enter(ctx, "SaveBankDetails")
	if err != nil {
		return err
	}
	defer unlock()
	emp, ok := s.st.employees[employeeID]
	if !ok {
		return payroll.ErrEmployeeNotFound
	}
	emp.Bank = &bank
	s.st.employees[employeeID] = emp
	return nil
}

// Append implements payroll.EventSink; events roll back with the transaction.
func (s *Store) Append(ctx context.Context, event outbox.Event) error {
	unlock, err := s.enter(ctx, "Append")
	if err != nil {
		return err
	}
	defer unlock()
	s.st.events = append(s.st.events, event)
	return nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
