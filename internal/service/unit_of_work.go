package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/madrasah-api/internal/models"
	appErrors "github.com/noah-isme/madrasah-api/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type studentLocker interface {
	Lock(ctx context.Context, tx sqlx.ExtContext, tenant models.TenantID, studentID string) (*models.Student, error)
}

type recomputer interface {
	Recompute(ctx context.Context, exec sqlx.ExtContext, tenant models.TenantID, studentID string) (*models.Student, error)
}

// unitOfWork runs an event mutation and the recompute it triggers in one
// transaction. The student row is locked first, so writers to the same student
// are serialised and a recompute never sees a partial view.
type unitOfWork struct {
	tx         txProvider
	students   studentLocker
	aggregator recomputer
}

func newUnitOfWork(tx txProvider, students studentLocker, aggregator recomputer) *unitOfWork {
	return &unitOfWork{tx: tx, students: students, aggregator: aggregator}
}

// Do locks the student, applies fn, recomputes and commits. When fn or the
// recompute fails nothing is persisted.
func (u *unitOfWork) Do(ctx context.Context, tenant models.TenantID, studentID string, fn func(tx *sqlx.Tx) error) (student *models.Student, err error) {
	if u == nil || u.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := u.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := u.students.Lock(ctx, tx, tenant, studentID); err != nil {
		return nil, studentLookupError(err)
	}
	if err := fn(tx); err != nil {
		return nil, err
	}
	student, err = u.aggregator.Recompute(ctx, tx, tenant, studentID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit transaction")
	}
	return student, nil
}

func studentLookupError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
}

func internalError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func validationError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}
