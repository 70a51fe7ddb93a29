package service

import (
	"context"

	"github.com/google/uuid"

	"schoolpay-backend/internal/domains/fee/model"
	"schoolpay-backend/internal/domains/fee/repository"
	studentrepo "schoolpay-backend/internal/domains/student/repository"
)

type FeeService interface {
	// ListStudentFees returns the fee ledger of the student owned by userID.
	ListStudentFees(ctx context.Context, userID uuid.UUID) ([]*model.Fee, error)

	// ListFeesByStudentID returns the ledger of an arbitrary student, for
	// admin callers.
	ListFeesByStudentID(ctx context.Context, studentID uuid.UUID) ([]*model.Fee, error)

	// GetFee returns one fee entry. When ownerUserID is non-nil the fee must
	// belong to that user's student record, otherwise ErrFeeNotFound.
	GetFee(ctx context.Context, feeID uuid.UUID, ownerUserID *uuid.UUID) (*model.Fee, error)
}

type feeService struct {
	feeRepo     repository.FeeRepository
	studentRepo studentrepo.StudentRepository
}

func NewFeeService(feeRepo repository.FeeRepository, studentRepo studentrepo.StudentRepository) FeeService {
	return &feeService{
		feeRepo:     feeRepo,
		studentRepo: studentRepo,
	}
}

func (s *feeService) ListStudentFees(ctx context.Context, userID uuid.UUID) ([]*model.Fee, error) {
	student, err := s.studentRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.feeRepo.ListByStudent(ctx, student.ID)
}

func (s *feeService) ListFeesByStudentID(ctx context.Context, studentID uuid.UUID) ([]*model.Fee, error) {
	if _, err := s.studentRepo.GetByID(ctx, studentID); err != nil {
		return nil, err
	}
	return s.feeRepo.ListByStudent(ctx, studentID)
}

func (s *feeService) GetFee(ctx context.Context, feeID uuid.UUID, ownerUserID *uuid.UUID) (*model.Fee, error) {
	fee, err := s.feeRepo.GetByID(ctx, feeID)
	if err != nil {
		return nil, err
	}

	if ownerUserID != nil {
		student, err := s.studentRepo.GetByUserID(ctx, *ownerUserID)
		if err != nil {
			return nil, model.ErrFeeNotFound
		}
		if fee.StudentID != student.ID {
			// Do not reveal other students' ledger entries.
			return nil, model.ErrFeeNotFound
		}
	}
	return fee, nil
}
