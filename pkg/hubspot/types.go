package hubspot

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrValidation marks input rejected before any network call is made.
var ErrValidation = errors.New("validation failed")

type Config struct {
	AccessToken string        `split_words:"true" required:"true"`
	BaseURL     string        `split_words:"true" default:"https://api.hubapi.com"`
	Timeout     time.Duration `split_words:"true" default:"30s"`
}

// Deal pipeline stages of the default HubSpot sales pipeline.
const (
	StageAppointmentScheduled  = "appointmentscheduled"
	StageQualifiedToBuy        = "qualifiedtobuy"
	StagePresentationScheduled = "presentationscheduled"
	StageDecisionMakerBoughtIn = "decisionmakerboughtin"
	StageContractSent          = "contractsent"
	StageClosedWon             = "closedwon"
	StageClosedLost            = "closedlost"

	// StageInitial is the stage a deal lands in when none (or an
	// unrecognized one) was requested.
	StageInitial = StageAppointmentScheduled
)

var knownStages = map[string]struct{}{
	StageAppointmentScheduled:  {},
	StageQualifiedToBuy:        {},
	StagePresentationScheduled: {},
	StageDecisionMakerBoughtIn: {},
	StageContractSent:          {},
	StageClosedWon:             {},
	StageClosedLost:            {},
}

// NormalizeStage maps any requested stage onto the fixed enumeration,
// falling back to the pipeline's initial stage.
func NormalizeStage(stage string) string {
	s := strings.ToLower(strings.TrimSpace(stage))
	if _, ok := knownStages[s]; ok {
		return s
	}
	return StageInitial
}

// NormalizeEmail is the identity key normalization for contacts.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type ContactInput struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

func (in ContactInput) validate() error {
	email := NormalizeEmail(in.Email)
	if email == "" {
		return fmt.Errorf("%w: contact email is required", ErrValidation)
	}
	if !strings.Contains(email, "@") {
		return fmt.Errorf("%w: %q is not an email address", ErrValidation, email)
	}
	return nil
}

// properties maps the optional fields onto HubSpot property names,
// skipping anything unset so updates stay partial.
func (in ContactInput) properties() map[string]string {
	props := map[string]string{"email": NormalizeEmail(in.Email)}
	if in.FirstName != "" {
		props["firstname"] = in.FirstName
	}
	if in.LastName != "" {
		props["lastname"] = in.LastName
	}
	if in.Phone != "" {
		props["phone"] = in.Phone
	}
	return props
}

// Contact is a provider-side contact record. Existing reports whether an
// upsert reused a record instead of creating one.
type Contact struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties,omitempty"`
	Existing   bool              `json:"existing,omitempty"`
}

type UpdateContactInput struct {
	ContactID string `json:"contact_id,omitempty"`
	ContactInput
}

type DealInput struct {
	Name                   string   `json:"name,omitempty"`
	Amount                 *float64 `json:"amount,omitempty"`
	Stage                  string   `json:"stage,omitempty"`
	Pipeline               string   `json:"pipeline,omitempty"`
	AssociatedContactEmail string   `json:"associated_contact_email,omitempty"`
}

func (in DealInput) validate() error {
	if in.Amount != nil && *in.Amount < 0 {
		return fmt.Errorf("%w: deal amount must be non-negative, got %g", ErrValidation, *in.Amount)
	}
	if email := strings.TrimSpace(in.AssociatedContactEmail); email != "" && !strings.Contains(email, "@") {
		return fmt.Errorf("%w: %q is not an email address", ErrValidation, email)
	}
	return nil
}

type Deal struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties,omitempty"`
}

// DealResult reports deal creation and contact association independently.
// A deal counts as created even when the association step failed.
type DealResult struct {
	Deal                Deal   `json:"deal"`
	AssociatedContactID string `json:"associated_contact_id,omitempty"`
	AssociationError    string `json:"association_error,omitempty"`
}
