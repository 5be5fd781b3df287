package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/madrasah-api/internal/dto"
	"github.com/noah-isme/madrasah-api/internal/models"
	appErrors "github.com/noah-isme/madrasah-api/pkg/errors"
)

type fakeAttendanceSrv struct {
	lastFilter models.AttendanceFilter
	lastMark   dto.MarkAttendanceRequest
	lastRecord string
	err        error
}

func (f *fakeAttendanceSrv) Mark(_ context.Context, _ models.TenantID, studentID string, req dto.MarkAttendanceRequest) (*models.AttendanceRecord, *models.Student, error) {
	f.lastMark = req
	if f.err != nil {
		return nil, nil, f.err
	}
	return &models.AttendanceRecord{ID: "att-1", StudentID: studentID, Status: req.Status}, sampleStudent(), nil
}

func (f *fakeAttendanceSrv) Update(_ context.Context, _ models.TenantID, recordID string, _ dto.UpdateAttendanceRequest) (*models.AttendanceRecord, *models.Student, error) {
	f.lastRecord = recordID
	return &models.AttendanceRecord{ID: recordID}, sampleStudent(), f.err
}

func (f *fakeAttendanceSrv) Delete(_ context.Context, _ models.TenantID, recordID string) (*models.Student, error) {
	f.lastRecord = recordID
	return sampleStudent(), f.err
}

func (f *fakeAttendanceSrv) ListByStudent(_ context.Context, _ models.TenantID, _ string, filter models.AttendanceFilter) ([]models.AttendanceRecord, error) {
	f.lastFilter = filter
	return []models.AttendanceRecord{{ID: "att-1"}}, f.err
}

type fakeProgressSrv struct {
	lastAppend dto.AppendProgressRequest
}

func (f *fakeProgressSrv) Append(_ context.Context, _ models.TenantID, studentID string, req dto.AppendProgressRequest) (*models.ProgressRecord, *models.Student, error) {
	f.lastAppend = req
	return &models.ProgressRecord{ID: "p-1", StudentID: studentID, Category: req.Category, ProgressPercentage: *req.ProgressPercentage}, sampleStudent(), nil
}

func (f *fakeProgressSrv) ListByStudent(context.Context, models.TenantID, string) ([]models.ProgressRecord, error) {
	return []models.ProgressRecord{{ID: "p-1"}, {ID: "p-2"}}, nil
}

func (f *fakeProgressSrv) Current(context.Context, models.TenantID, string) ([]models.ProgressRecord, error) {
	return []models.ProgressRecord{{ID: "p-2", Category: "Hifz"}}, nil
}

func (f *fakeProgressSrv) Delete(context.Context, models.TenantID, string) (*models.Student, error) {
	return sampleStudent(), nil
}

type fakeFeeSrv struct {
	err       error
	lastFeeID string
}

func (f *fakeFeeSrv) Create(_ context.Context, _ models.TenantID, studentID string, req dto.CreateFeeRequest) (*models.FeeRecord, *models.Student, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return &models.FeeRecord{ID: "fee-1", StudentID: studentID, Amount: req.Amount, Status: models.FeeStatusPending}, sampleStudent(), nil
}

func (f *fakeFeeSrv) Update(_ context.Context, _ models.TenantID, feeID string, _ dto.UpdateFeeRequest) (*models.FeeRecord, *models.Student, error) {
	f.lastFeeID = feeID
	if f.err != nil {
		return nil, nil, f.err
	}
	return &models.FeeRecord{ID: feeID}, sampleStudent(), nil
}

func (f *fakeFeeSrv) RecordPayment(_ context.Context, _ models.TenantID, feeID string, req dto.RecordPaymentRequest) (*models.FeePayment, *models.FeeRecord, *models.Student, error) {
	f.lastFeeID = feeID
	if f.err != nil {
		return nil, nil, nil, f.err
	}
	return &models.FeePayment{ID: "pay-1", FeeID: feeID, Amount: req.Amount}, &models.FeeRecord{ID: feeID, Status: models.FeeStatusPaid}, sampleStudent(), nil
}

func (f *fakeFeeSrv) Delete(_ context.Context, _ models.TenantID, feeID string) (*models.Student, error) {
	f.lastFeeID = feeID
	return sampleStudent(), f.err
}

func (f *fakeFeeSrv) ListByStudent(context.Context, models.TenantID, string) ([]models.FeeRecord, error) {
	return []models.FeeRecord{{ID: "fee-1", Status: models.FeeStatusOverdue}}, f.err
}

func (f *fakeFeeSrv) ListPayments(_ context.Context, _ models.TenantID, feeID string) ([]models.FeePayment, error) {
	f.lastFeeID = feeID
	return []models.FeePayment{{ID: "pay-1", FeeID: feeID}}, f.err
}

func TestAttendanceHandlerMarkReturnsRecordAndStudent(t *testing.T) {
	srv := &fakeAttendanceSrv{}
	h := NewAttendanceHandler(srv)

	c, rec := newContext(http.MethodPost, "/students/S-001/attendance", map[string]interface{}{
		"date":   "2024-02-01",
		"status": "Present",
	}, true)
	c.Params = gin.Params{{Key: "id", Value: "S-001"}}
	h.Mark(c)

	require.Equal(t, http.StatusOK, rec.Code)
	envelope := decode(t, rec)
	record := envelope.Data["record"].(map[string]interface{})
	student := envelope.Data["student"].(map[string]interface{})
	assert.Equal(t, "att-1", record["id"])
	assert.Equal(t, float64(90), student["attendance_rate"])
	require.NotNil(t, srv.lastMark.Date)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), srv.lastMark.Date.Time)
}

func TestAttendanceHandlerListRejectsBadDate(t *testing.T) {
	srv := &fakeAttendanceSrv{}
	h := NewAttendanceHandler(srv)

	c, rec := newContext(http.MethodGet, "/students/S-001/attendance?from=01-02-2024", nil, true)
	c.Params = gin.Params{{Key: "id", Value: "S-001"}}
	h.List(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, srv.lastFilter.From)
}

func TestAttendanceHandlerListPassesRange(t *testing.T) {
	srv := &fakeAttendanceSrv{}
	h := NewAttendanceHandler(srv)

	c, rec := newContext(http.MethodGet, "/students/S-001/attendance?from=2024-02-01&to=2024-02-29", nil, true)
	c.Params = gin.Params{{Key: "id", Value: "S-001"}}
	h.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, srv.lastFilter.From)
	require.NotNil(t, srv.lastFilter.To)
	assert.Equal(t, 29, srv.lastFilter.To.Day())
}

func TestAttendanceHandlerDeleteUsesRecordParam(t *testing.T) {
	srv := &fakeAttendanceSrv{}
	h := NewAttendanceHandler(srv)

	c, rec := newContext(http.MethodDelete, "/attendance/att-9", nil, true)
	c.Params = gin.Params{{Key: "recordId", Value: "att-9"}}
	h.Delete(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "att-9", srv.lastRecord)
	assert.Nil(t, decode(t, rec).Data["record"])
}

func TestProgressHandlerAppend(t *testing.T) {
	srv := &fakeProgressSrv{}
	h := NewProgressHandler(srv)

	c, rec := newContext(http.MethodPost, "/students/S-001/progress", map[string]interface{}{
		"category":            "Hifz",
		"progress_percentage": 80,
	}, true)
	c.Params = gin.Params{{Key: "id", Value: "S-001"}}
	h.Append(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	record := decode(t, rec).Data["record"].(map[string]interface{})
	assert.Equal(t, "Hifz", record["category"])
	assert.Equal(t, float64(80), record["progress_percentage"])
}

func TestProgressHandlerCurrent(t *testing.T) {
	h := NewProgressHandler(&fakeProgressSrv{})

	c, rec := newContext(http.MethodGet, "/students/S-001/progress/current", nil, true)
	c.Params = gin.Params{{Key: "id", Value: "S-001"}}
	h.Current(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope listEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 1)
	assert.Equal(t, "Hifz", envelope.Data[0]["category"])
}

func TestFeeHandlerRecordPayment(t *testing.T) {
	srv := &fakeFeeSrv{}
	h := NewFeeHandler(srv)

	c, rec := newContext(http.MethodPost, "/fees/fee-1/payments", map[string]interface{}{
		"amount": 110,
		"method": "Cash",
	}, true)
	c.Params = gin.Params{{Key: "feeId", Value: "fee-1"}}
	h.RecordPayment(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	envelope := decode(t, rec)
	assert.Equal(t, "pay-1", envelope.Data["record"].(map[string]interface{})["id"])
	assert.Equal(t, "Paid", envelope.Data["fee"].(map[string]interface{})["status"])
	assert.NotNil(t, envelope.Data["student"])
	assert.Equal(t, "fee-1", srv.lastFeeID)
}

func TestFeeHandlerOverpayment(t *testing.T) {
	h := NewFeeHandler(&fakeFeeSrv{err: appErrors.ErrOverpayment})

	c, rec := newContext(http.MethodPost, "/fees/fee-1/payments", map[string]interface{}{
		"amount": 1000,
		"method": "Cash",
	}, true)
	c.Params = gin.Params{{Key: "feeId", Value: "fee-1"}}
	h.RecordPayment(c)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "OVERPAYMENT_REJECTED", decode(t, rec).Error.Code)
}

func TestFeeHandlerCreateRequiresTenant(t *testing.T) {
	h := NewFeeHandler(&fakeFeeSrv{})

	c, rec := newContext(http.MethodPost, "/students/S-001/fees", map[string]interface{}{"amount": 100}, false)
	c.Params = gin.Params{{Key: "id", Value: "S-001"}}
	h.Create(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestFeeHandlerListShowsDerivedStatus(t *testing.T) {
	h := NewFeeHandler(&fakeFeeSrv{})

	c, rec := newContext(http.MethodGet, "/students/S-001/fees", nil, true)
	c.Params = gin.Params{{Key: "id", Value: "S-001"}}
	h.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope listEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "Overdue", envelope.Data[0]["status"])
}
