// Package score computes household readiness scores from vulnerability
// profiles. A higher score means the household needs more attention when an
// event hits.
package score

import (
	"math"

	"github.com/tuckborough/haven/internal/model"
)

// Factor weights. The per-person contribution is capped so very large
// households do not drown out the medical factors.
const (
	perPersonWeight       = 0.4
	perPersonCap          = 3.2
	medicationWeight      = 1.8
	insulinWeight         = 2.2
	poweredDeviceWeight   = 2.5
	mobilityWeight        = 1.5
	noTransportWeight     = 1.2
	financialStrainWeight = 1.4
)

// Compute scores a profile. memberCount is the registered roster size; the
// self-reported household size also counts people without accounts, so the
// larger of the two is used. Results are rounded to one decimal place.
func Compute(p *model.VulnerabilityProfile, memberCount int) float64 {
	size := p.HouseholdSize
	if memberCount > size {
		size = memberCount
	}

	s := float64(size) * perPersonWeight
	if s > perPersonCap {
		s = perPersonCap
	}
	if p.MedicationDependency {
		s += medicationWeight
	}
	if p.InsulinDependency {
		s += insulinWeight
	}
	if p.PoweredMedicalDevice {
		s += poweredDeviceWeight
	}
	if p.MobilityLimitation {
		s += mobilityWeight
	}
	if !p.TransportationAccess {
		s += noTransportWeight
	}
	if p.FinancialStrain {
		s += financialStrainWeight
	}
	return math.Round(s*10) / 10
}
