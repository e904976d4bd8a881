// Package clinic holds the clinic's profile, its subscription plan and how
// much of the plan is in use.
package clinic

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Tier string

const (
	TierBasic Tier = "basic"
	TierPro   Tier = "pro"
	TierElite Tier = "elite"
)

type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionTrial    SubscriptionStatus = "trial"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

var (
	ErrUnknownTier    = errors.New("clinic: unknown plan tier")
	ErrUnknownStatus  = errors.New("clinic: unknown subscription status")
	ErrInvalidRenewal = errors.New("clinic: renews_on must be YYYY-MM-DD")
)

// Plan is one subscription tier. A zero limit means unlimited.
type Plan struct {
	Tier                Tier            `json:"tier"`
	Name                string          `json:"name"`
	MonthlyPriceUSD     decimal.Decimal `json:"monthly_price_usd"`
	MaxClients          int             `json:"max_clients"`
	MaxInvoicesPerMonth int             `json:"max_invoices_per_month"`
	PortalEnabled       bool            `json:"portal_enabled"`
	CampaignsEnabled    bool            `json:"campaigns_enabled"`
}

var plans = []Plan{
	{Tier: TierBasic, Name: "Básico", MonthlyPriceUSD: decimal.NewFromInt(19), MaxClients: 100, MaxInvoicesPerMonth: 50},
	{Tier: TierPro, Name: "Profesional", MonthlyPriceUSD: decimal.NewFromInt(39), MaxClients: 500, MaxInvoicesPerMonth: 300, PortalEnabled: true, CampaignsEnabled: true},
	{Tier: TierElite, Name: "Élite", MonthlyPriceUSD: decimal.NewFromInt(79), PortalEnabled: true, CampaignsEnabled: true},
}

// Plans returns the plan catalog, cheapest first.
func Plans() []Plan {
	return append([]Plan{}, plans...)
}

// PlanFor returns the plan for tier.
func PlanFor(tier Tier) (Plan, error) {
	for _, p := range plans {
		if p.Tier == tier {
			return p, nil
		}
	}
	return Plan{}, ErrUnknownTier
}

// Profile describes the clinic and its doctor.
type Profile struct {
	DoctorName string             `json:"doctor_name"`
	ClinicName string             `json:"clinic_name"`
	Email      string             `json:"email,omitempty"`
	Phone      string             `json:"phone,omitempty"`
	Address    string             `json:"address,omitempty"`
	LicenseID  string             `json:"license_id,omitempty"`
	Tier       Tier               `json:"tier"`
	Status     SubscriptionStatus `json:"status"`
	RenewsOn   string             `json:"renews_on,omitempty"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// Defaults seed the profile before it is first edited.
type Defaults struct {
	DoctorName string
	ClinicName string
	Tier       string
}

func DefaultProfile(d Defaults) *Profile {
	tier := Tier(strings.ToLower(strings.TrimSpace(d.Tier)))
	if _, err := PlanFor(tier); err != nil {
		tier = TierBasic
	}
	name := d.ClinicName
	if name == "" {
		name = "VetHome"
	}
	return &Profile{
		DoctorName: d.DoctorName,
		ClinicName: name,
		Tier:       tier,
		Status:     SubscriptionActive,
	}
}

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionActive, SubscriptionTrial, SubscriptionPastDue, SubscriptionCanceled:
		return true
	}
	return false
}
