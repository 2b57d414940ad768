package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/offertoryapp/offertory/internal/platform/id"
)

// DonationKind describes the payment form of a ledger entry.
type DonationKind int

const (
	// DonationKindUnspecified represents an invalid donation kind value.
	DonationKindUnspecified DonationKind = iota
	// DonationKindCash indicates currency counted by hand.
	DonationKindCash
	// DonationKindCheck indicates a written check.
	DonationKindCheck
	// DonationKindOther indicates any other payment form.
	DonationKindOther
)

// String returns the persisted representation of the kind.
func (k DonationKind) String() string {
	switch k {
	case DonationKindCash:
		return "cash"
	case DonationKindCheck:
		return "check"
	case DonationKindOther:
		return "other"
	default:
		return "unspecified"
	}
}

// ParseDonationKind converts a persisted kind value to a DonationKind.
func ParseDonationKind(value string) (DonationKind, error) {
	switch value {
	case "cash":
		return DonationKindCash, nil
	case "check":
		return DonationKindCheck, nil
	case "other":
		return DonationKindOther, nil
	default:
		return DonationKindUnspecified, fmt.Errorf("unknown donation kind %q", value)
	}
}

// Donation represents one ledger entry belonging to exactly one batch.
type Donation struct {
	ID          string
	BatchID     string
	Kind        DonationKind
	AmountCents int64
	DonorName   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateDonationInput describes one donation entry to record.
type CreateDonationInput struct {
	BatchID     string
	Kind        DonationKind
	AmountCents int64
	DonorName   string
}

// CreateDonation creates a new donation entry with a generated ID.
func CreateDonation(input CreateDonationInput, now func() time.Time, idGenerator func() (string, error)) (Donation, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreateDonationInput(input)
	if err != nil {
		return Donation{}, err
	}

	donationID, err := idGenerator()
	if err != nil {
		return Donation{}, fmt.Errorf("generate donation id: %w", err)
	}

	createdAt := now().UTC()
	return Donation{
		ID:          donationID,
		BatchID:     normalized.BatchID,
		Kind:        normalized.Kind,
		AmountCents: normalized.AmountCents,
		DonorName:   normalized.DonorName,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}, nil
}

// NormalizeCreateDonationInput trims and validates donation input.
func NormalizeCreateDonationInput(input CreateDonationInput) (CreateDonationInput, error) {
	input.BatchID = strings.TrimSpace(input.BatchID)
	if input.BatchID == "" {
		return CreateDonationInput{}, ErrBatchIDRequired
	}
	if input.Kind == DonationKindUnspecified {
		return CreateDonationInput{}, ErrInvalidDonationKind
	}
	if input.AmountCents <= 0 {
		return CreateDonationInput{}, ErrInvalidDonationAmount
	}
	input.DonorName = strings.TrimSpace(input.DonorName)
	// Donor name is optional, so empty string is allowed
	return input, nil
}
