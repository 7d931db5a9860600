package redis

import "fmt"

const ns = "tripavail:v1"

func KeyUnitAvailability(unitID int64) string {
	return fmt.Sprintf("%s:unit:%d:availability", ns, unitID)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func KeyIdemHold(unitID int64, holderID, idemKey string) string {
	return fmt.Sprintf("%s:idem:holds:%d:%s:%s", ns, unitID, holderID, idemKey)
}

func ChannelHoldTransitions() string {
	return ns + ":holds:transitions"
}
