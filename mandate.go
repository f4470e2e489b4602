package processor

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// mandateNamespace scopes mandate references so the same subscription id always
// maps to the same reference.
var mandateNamespace = uuid.MustParse("6f1c2a8e-4b7d-5c3e-9a1f-2d8b7e6c4a10")

// MandatePolicy lists the card-issuing countries whose regulators require an
// explicit mandate and strong authentication for future-use charges. The list is
// configuration because it follows regulation.
type MandatePolicy struct {
	countries map[string]struct{}
}

func NewMandatePolicy(countries []string) MandatePolicy {
	p := MandatePolicy{countries: make(map[string]struct{}, len(countries))}
	for _, c := range countries {
		if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
			p.countries[c] = struct{}{}
		}
	}
	return p
}

// RequiresMandate reports whether cards issued in country need forced
// authentication and a mandate when set up for future charges.
func (p MandatePolicy) RequiresMandate(country string) bool {
	_, ok := p.countries[strings.ToUpper(strings.TrimSpace(country))]
	return ok
}

// MandateReference derives a stable mandate reference from a per-subscription
// identifier, so retried or duplicate setups reuse the same mandate.
func MandateReference(subscriptionID string) string {
	return uuid.NewSHA1(mandateNamespace, []byte(subscriptionID)).String()
}

// checkMandateSubscription rejects a mandate setup with no subscription id, as
// every such setup would otherwise share the reference derived from "".
func checkMandateSubscription(subscriptionID, country string) error {
	if strings.TrimSpace(subscriptionID) == "" {
		return fmt.Errorf("%w: cards issued in %s need a mandate subscription id", ErrInvalidRequest, strings.ToUpper(country))
	}
	return nil
}
