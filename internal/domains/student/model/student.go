package model

import (
	"time"

	"github.com/google/uuid"
)

// Student is the identity record the payment subsystem needs: who owes the
// fee, the admission number used as the merchant account reference, and the
// default phone number for push prompts. Enrollment management lives in a
// separate service.
type Student struct {
	ID              uuid.UUID `json:"id" db:"id"`
	UserID          uuid.UUID `json:"user_id" db:"user_id"`
	AdmissionNumber string    `json:"admission_number" db:"admission_number"`
	FirstName       string    `json:"first_name" db:"first_name"`
	LastName        string    `json:"last_name" db:"last_name"`
	PhoneNumber     string    `json:"phone_number" db:"phone_number"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

func (s *Student) FullName() string {
	return s.FirstName + " " + s.LastName
}
