package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/madrasah-api/internal/models"
	appErrors "github.com/noah-isme/madrasah-api/pkg/errors"
)

const (
	tenantA = models.TenantID("tenant-a")
	tenantB = models.TenantID("tenant-b")
)

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

// newTxProviderMock opens sqlmock behind a driver wrapper that snapshots store
// on Begin and restores it on Rollback, so the memory repositories follow the
// outcome of the mocked transaction.
func newTxProviderMock(t *testing.T, store *memoryStore) (txProvider, sqlmock.Sqlmock) {
	dsn := fmt.Sprintf("memory-store-%p", store)
	mockDB, mock, err := sqlmock.NewWithDSN(dsn, sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	db := sql.OpenDB(rollbackConnector{dsn: dsn, driver: mockDB.Driver(), store: store})
	t.Cleanup(func() {
		db.Close()
		mockDB.Close()
	})
	return &txProviderMock{db: sqlx.NewDb(db, "sqlmock"), mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

type rollbackConnector struct {
	dsn    string
	driver driver.Driver
	store  *memoryStore
}

func (c rollbackConnector) Connect(context.Context) (driver.Conn, error) {
	conn, err := c.driver.Open(c.dsn)
	if err != nil {
		return nil, err
	}
	return &rollbackConn{Conn: conn, store: c.store}, nil
}

func (c rollbackConnector) Driver() driver.Driver { return c.driver }

type rollbackConn struct {
	driver.Conn
	store *memoryStore
}

func (c *rollbackConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	var (
		tx  driver.Tx
		err error
	)
	if beginner, ok := c.Conn.(driver.ConnBeginTx); ok {
		tx, err = beginner.BeginTx(ctx, opts)
	} else {
		tx, err = c.Conn.Begin()
	}
	if err != nil {
		return nil, err
	}
	return &rollbackTx{Tx: tx, store: c.store, snapshot: c.store.snapshot()}, nil
}

type rollbackTx struct {
	driver.Tx
	store    *memoryStore
	snapshot memorySnapshot
}

func (t *rollbackTx) Rollback() error {
	t.store.restore(t.snapshot)
	return t.Tx.Rollback()
}

func studentKey(tenant models.TenantID, id string) string {
	return tenant.String() + "/" + id
}

// memoryStore is an in-memory stand-in for the postgres repositories.
// Transactions opened through newTxProviderMock roll it back.
type memoryStore struct {
	mu         sync.Mutex
	seq        int
	version    int64
	students   map[string]models.Student
	attendance map[string]models.AttendanceRecord
	progress   map[string]models.ProgressRecord
	fees       map[string]models.FeeRecord
	payments   map[string]models.FeePayment

	failMetrics error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		students:   map[string]models.Student{},
		attendance: map[string]models.AttendanceRecord{},
		progress:   map[string]models.ProgressRecord{},
		fees:       map[string]models.FeeRecord{},
		payments:   map[string]models.FeePayment{},
	}
}

type memorySnapshot struct {
	students   map[string]models.Student
	attendance map[string]models.AttendanceRecord
	progress   map[string]models.ProgressRecord
	fees       map[string]models.FeeRecord
	payments   map[string]models.FeePayment
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *memoryStore) snapshot() memorySnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memorySnapshot{
		students:   copyMap(m.students),
		attendance: copyMap(m.attendance),
		progress:   copyMap(m.progress),
		fees:       copyMap(m.fees),
		payments:   copyMap(m.payments),
	}
}

// restore reverts every table. Id and version sequences keep advancing, as in postgres.
func (m *memoryStore) restore(s memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students = s.students
	m.attendance = s.attendance
	m.progress = s.progress
	m.fees = s.fees
	m.payments = s.payments
}

func (m *memoryStore) nextVersion() int64 {
	m.version++
	return m.version
}

func (m *memoryStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memoryStore) addStudent(tenant models.TenantID, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[studentKey(tenant, id)] = models.Student{
		TenantID:       tenant,
		StudentID:      id,
		FirstName:      "Student " + id,
		Status:         models.StudentStatusActive,
		EnrollmentDate: models.Day(time.Now()),
		Version:        m.nextVersion(),
	}
}

type memoryStudents struct{ *memoryStore }

func (r memoryStudents) List(ctx context.Context, tenant models.TenantID, filter models.StudentFilter) ([]models.Student, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Student
	for _, s := range r.students {
		if s.TenantID == tenant {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, len(out), nil
}

func (r memoryStudents) FindByID(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, studentID string) (*models.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.students[studentKey(tenant, studentID)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (r memoryStudents) Lock(ctx context.Context, tx sqlx.ExtContext, tenant models.TenantID, studentID string) (*models.Student, error) {
	return r.FindByID(ctx, tx, tenant, studentID)
}

func (r memoryStudents) Exists(ctx context.Context, tenant models.TenantID, studentID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.students[studentKey(tenant, studentID)]
	return ok, nil
}

func (r memoryStudents) Create(ctx context.Context, student *models.Student) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	student.CreatedAt = time.Now().UTC()
	student.UpdatedAt = student.CreatedAt
	student.Version = r.nextVersion()
	r.students[studentKey(student.TenantID, student.StudentID)] = *student
	return nil
}

func (r memoryStudents) Update(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	student.Version = r.nextVersion()
	r.students[studentKey(student.TenantID, student.StudentID)] = *student
	return nil
}

func (r memoryStudents) UpdateMetrics(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, studentID string, metrics models.DerivedMetrics, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failMetrics != nil {
		return r.failMetrics
	}
	key := studentKey(tenant, studentID)
	s, ok := r.students[key]
	if !ok {
		return errors.New("student not found")
	}
	s.DerivedMetrics = metrics
	s.MetricsUpdatedAt = &at
	s.Version = r.nextVersion()
	r.students[key] = s
	return nil
}

func (r memoryStudents) Delete(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, studentID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := studentKey(tenant, studentID)
	if _, ok := r.students[key]; !ok {
		return false, nil
	}
	delete(r.students, key)
	return true, nil
}

func (r memoryStudents) ListIDs(ctx context.Context, tenant models.TenantID) ([]string, error) {
	students, _, err := r.List(ctx, tenant, models.StudentFilter{})
	ids := make([]string, 0, len(students))
	for _, s := range students {
		ids = append(ids, s.StudentID)
	}
	return ids, err
}

func (r memoryStudents) Summary(ctx context.Context, tenant models.TenantID) (*models.StudentSummary, error) {
	students, _, _ := r.List(ctx, tenant, models.StudentFilter{})
	summary := &models.StudentSummary{Total: len(students)}
	for _, s := range students {
		switch s.Status {
		case models.StudentStatusActive:
			summary.Active++
		case models.StudentStatusInactive:
			summary.Inactive++
		case models.StudentStatusGraduated:
			summary.Graduated++
		}
		summary.TotalOutstandingFees += s.OutstandingFees
	}
	return summary, nil
}

type memoryAttendance struct{ *memoryStore }

func (r memoryAttendance) Upsert(ctx context.Context, exec sqlx.ExtContext, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record.Date = models.Day(record.Date)
	for id, existing := range r.attendance {
		if existing.TenantID == record.TenantID && existing.StudentID == record.StudentID && existing.Date.Equal(record.Date) {
			existing.Status = record.Status
			existing.Notes = record.Notes
			r.attendance[id] = existing
			return &existing, nil
		}
	}
	record.ID = r.nextID("att")
	r.attendance[record.ID] = *record
	stored := *record
	return &stored, nil
}

func (r memoryAttendance) FindByID(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, id string) (*models.AttendanceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.attendance[id]
	if !ok || rec.TenantID != tenant {
		return nil, sql.ErrNoRows
	}
	return &rec, nil
}

func (r memoryAttendance) Update(ctx context.Context, exec sqlx.ExtContext, record *models.AttendanceRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attendance[record.ID] = *record
	return nil
}

func (r memoryAttendance) Delete(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attendance, id)
	return nil
}

func (r memoryAttendance) DeleteByStudent(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, studentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, rec := range r.attendance {
		if rec.TenantID == tenant && rec.StudentID == studentID {
			delete(r.attendance, id)
		}
	}
	return nil
}

func (r memoryAttendance) ListByStudent(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, studentID string, filter models.AttendanceFilter) ([]models.AttendanceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.AttendanceRecord
	for _, rec := range r.attendance {
		if rec.TenantID != tenant || rec.StudentID != studentID {
			continue
		}
		if filter.From != nil && rec.Date.Before(models.Day(*filter.From)) {
			continue
		}
		if filter.To != nil && rec.Date.After(models.Day(*filter.To)) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

type memoryProgress struct{ *memoryStore }

func (r memoryProgress) Insert(ctx context.Context, exec sqlx.ExtContext, record *models.ProgressRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record.ID = r.nextID("prog")
	record.AssessmentDate = models.Day(record.AssessmentDate)
	record.CreatedAt = time.Now().UTC()
	r.progress[record.ID] = *record
	return nil
}

func (r memoryProgress) FindByID(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, id string) (*models.ProgressRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.progress[id]
	if !ok || rec.TenantID != tenant {
		return nil, sql.ErrNoRows
	}
	return &rec, nil
}

func (r memoryProgress) Delete(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.progress, id)
	return nil
}

func (r memoryProgress) DeleteByStudent(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, studentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, rec := range r.progress {
		if rec.TenantID == tenant && rec.StudentID == studentID {
			delete(r.progress, id)
		}
	}
	return nil
}

func (r memoryProgress) ListByStudent(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, studentID string) ([]models.ProgressRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ProgressRecord
	for _, rec := range r.progress {
		if rec.TenantID == tenant && rec.StudentID == studentID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return newerProgress(out[i], out[j]) })
	return out, nil
}

type memoryFees struct{ *memoryStore }

func (r memoryFees) Create(ctx context.Context, exec sqlx.ExtContext, fee *models.FeeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	fee.ID = r.nextID("fee")
	fee.DueDate = models.Day(fee.DueDate)
	r.fees[fee.ID] = *fee
	return nil
}

func (r memoryFees) FindByID(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, id string) (*models.FeeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fee, ok := r.fees[id]
	if !ok || fee.TenantID != tenant {
		return nil, sql.ErrNoRows
	}
	return &fee, nil
}

func (r memoryFees) Update(ctx context.Context, exec sqlx.ExtContext, fee *models.FeeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fees[fee.ID] = *fee
	return nil
}

func (r memoryFees) Delete(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for pid, p := range r.payments {
		if p.FeeID == id {
			delete(r.payments, pid)
		}
	}
	delete(r.fees, id)
	return nil
}

func (r memoryFees) DeleteByStudent(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, studentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, fee := range r.fees {
		if fee.TenantID != tenant || fee.StudentID != studentID {
			continue
		}
		for pid, p := range r.payments {
			if p.FeeID == id {
				delete(r.payments, pid)
			}
		}
		delete(r.fees, id)
	}
	return nil
}

func (r memoryFees) ListByStudent(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, studentID string) ([]models.FeeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.FeeRecord
	for _, fee := range r.fees {
		if fee.TenantID == tenant && fee.StudentID == studentID {
			out = append(out, fee)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (r memoryFees) InsertPayment(ctx context.Context, exec sqlx.ExtContext, payment *models.FeePayment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	payment.ID = r.nextID("pay")
	r.payments[payment.ID] = *payment
	return nil
}

func (r memoryFees) ListPayments(ctx context.Context, tenant models.TenantID, feeID string) ([]models.FeePayment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.FeePayment
	for _, p := range r.payments {
		if p.TenantID == tenant && p.FeeID == feeID {
			out = append(out, p)
		}
	}
	return out, nil
}

// memoryCache implements CacheRepository over a map. SetIfNewer compares the
// "version" field of the stored JSON, as the redis script does. failWrites
// makes every versioned write fail.
type memoryCache struct {
	mu         sync.Mutex
	entries    map[string][]byte
	failWrites error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}}
}

func (c *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = raw
	return nil
}

func (c *memoryCache) SetIfNewer(ctx context.Context, key string, value interface{}, version int64, ttl time.Duration) (bool, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrites != nil {
		return false, c.failWrites
	}
	if current, ok := c.entries[key]; ok {
		var stored struct {
			Version *int64 `json:"version"`
		}
		if json.Unmarshal(current, &stored) == nil && stored.Version != nil && *stored.Version >= version {
			return false, nil
		}
	}
	c.entries[key] = raw
	return true, nil
}

func (c *memoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *memoryCache) failVersionedWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failWrites = err
}

func (c *memoryCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// fixture wires every event service over one memoryStore.
type fixture struct {
	store      *memoryStore
	cacheRepo  *memoryCache
	cache      *StudentCache
	mock       sqlmock.Sqlmock
	aggregator *Aggregator
	students   *StudentService
	attendance *AttendanceService
	progress   *ProgressService
	fees       *FeeService
	recompute  *RecomputeService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemoryStore()
	tx, mock := newTxProviderMock(t, store)
	cacheRepo := newMemoryCache()
	cache := NewStudentCache(NewCacheService(cacheRepo, nil, time.Minute, nil, true), StudentCacheConfig{})

	students := memoryStudents{store}
	attendance := memoryAttendance{store}
	progress := memoryProgress{store}
	fees := memoryFees{store}
	aggregator := NewAggregator(students, attendance, progress, fees, nil, nil)

	return &fixture{
		store:      store,
		cacheRepo:  cacheRepo,
		cache:      cache,
		mock:       mock,
		aggregator: aggregator,
		students:   NewStudentService(students, []StudentEventPurger{fees, progress, attendance}, tx, cache, nil, nil),
		attendance: NewAttendanceService(attendance, students, tx, aggregator, cache, nil, nil),
		progress:   NewProgressService(progress, students, tx, aggregator, cache, nil, nil),
		fees:       NewFeeService(fees, students, tx, aggregator, cache, nil, nil),
		recompute:  NewRecomputeService(students, tx, aggregator, cache, nil, nil),
	}
}

// expectCommits registers n successful transactions.
func (f *fixture) expectCommits(n int) {
	for i := 0; i < n; i++ {
		f.mock.ExpectBegin()
		f.mock.ExpectCommit()
	}
}

func (f *fixture) expectRollback() {
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}
