package domain

// ClaimType discriminates which evidence validator and settlement formula apply
// to a claim. It always matches the policy's type.
type ClaimType string

const (
	ClaimTypeHealth ClaimType = "health"
	ClaimTypeTravel ClaimType = "travel"
)

// Valid reports whether the claim type is a known discriminant.
func (t ClaimType) Valid() bool {
	return t == ClaimTypeHealth || t == ClaimTypeTravel
}

// TreatmentCategory classifies a health claim for sub-limit selection.
type TreatmentCategory string

const (
	TreatmentOperation  TreatmentCategory = "operation"
	TreatmentMedicine   TreatmentCategory = "medicine"
	TreatmentRoomRent   TreatmentCategory = "room_rent"
	TreatmentICU        TreatmentCategory = "icu"
	TreatmentDiagnostic TreatmentCategory = "diagnostic"
	TreatmentAmbulance  TreatmentCategory = "ambulance"
)

// TravelKind classifies a travel claim.
type TravelKind string

const (
	TravelDelay        TravelKind = "delay"
	TravelCancellation TravelKind = "cancellation"
)
