package gate

import (
	"jarvis-moderation/internal/utils"
)

// DomainListChecker is a LinkChecker backed by static allow/block domain
// lists from configuration.
type DomainListChecker struct {
	allow map[string]struct{}
	block map[string]struct{}
}

func NewDomainListChecker(allowed, blocked []string) *DomainListChecker {
	return &DomainListChecker{
		allow: toSet(allowed),
		block: toSet(blocked),
	}
}

func (c *DomainListChecker) Suspicious(raw string) bool {
	_, host, err := utils.NormalizeURL(raw)
	if err != nil {
		return false
	}
	allowed, blocked := utils.DomainMatch(host, c.allow, c.block)
	if allowed {
		return false
	}
	return blocked
}

func toSet(domains []string) map[string]struct{} {
	set := make(map[string]struct{}, len(domains))
	for _, domain := range domains {
		set[domain] = struct{}{}
	}
	return set
}
