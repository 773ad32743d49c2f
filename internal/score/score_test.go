package score

import (
	"testing"

	"github.com/tuckborough/haven/internal/model"
)

func TestComputeBaseline(t *testing.T) {
	p := &model.VulnerabilityProfile{HouseholdSize: 1, TransportationAccess: true}

	if got := Compute(p, 1); got != 0.4 {
		t.Errorf("Compute() = %v, want 0.4", got)
	}
}

func TestComputePerPersonCap(t *testing.T) {
	p := &model.VulnerabilityProfile{HouseholdSize: 20, TransportationAccess: true}

	if got := Compute(p, 1); got != 3.2 {
		t.Errorf("Compute() = %v, want capped 3.2", got)
	}
}

func TestComputeAllFactors(t *testing.T) {
	p := &model.VulnerabilityProfile{
		HouseholdSize:        10,
		MedicationDependency: true,
		InsulinDependency:    true,
		PoweredMedicalDevice: true,
		MobilityLimitation:   true,
		TransportationAccess: false,
		FinancialStrain:      true,
	}

	// 3.2 + 1.8 + 2.2 + 2.5 + 1.5 + 1.2 + 1.4
	if got := Compute(p, 1); got != 13.8 {
		t.Errorf("Compute() = %v, want 13.8", got)
	}
}

func TestComputeUsesRosterWhenLarger(t *testing.T) {
	p := &model.VulnerabilityProfile{HouseholdSize: 1, TransportationAccess: true}

	if got := Compute(p, 3); got != 1.2 {
		t.Errorf("Compute() = %v, want 1.2 from roster of 3", got)
	}
	// Self-reported size wins when it is larger.
	p.HouseholdSize = 5
	if got := Compute(p, 3); got != 2.0 {
		t.Errorf("Compute() = %v, want 2.0 from size 5", got)
	}
}

func TestComputeRounding(t *testing.T) {
	p := &model.VulnerabilityProfile{HouseholdSize: 3, TransportationAccess: true}

	// 3 * 0.4 accumulates float error without rounding.
	if got := Compute(p, 1); got != 1.2 {
		t.Errorf("Compute() = %v, want 1.2", got)
	}
}
