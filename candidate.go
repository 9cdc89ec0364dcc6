package iceagent

import (
	"fmt"
	"strconv"
	"strings"
)

// CandidateType identifies how a Candidate's transport address was learned,
// per RFC 8445 §4.1.1.
type CandidateType byte

// CandidateType enum.
const (
	CandidateTypeHost CandidateType = iota + 1
	CandidateTypeServerReflexive
	CandidateTypePeerReflexive
	CandidateTypeRelayed
)

// String makes CandidateType printable and matches the "typ" token used on
// the wire (RFC 8839 candidate-line grammar).
func (t CandidateType) String() string {
	switch t {
	case CandidateTypeHost:
		return "host"
	case CandidateTypeServerReflexive:
		return "srflx"
	case CandidateTypePeerReflexive:
		return "prflx"
	case CandidateTypeRelayed:
		return "relay"
	default:
		return "unknown"
	}
}

// typePreference returns the RFC 8445 §5.1.2.1 recommended type preference.
// The peer-reflexive preference (110) must strictly exceed server-reflexive
// (100), per spec invariant 2.
func (t CandidateType) typePreference() uint32 {
	switch t {
	case CandidateTypeHost:
		return 126
	case CandidateTypePeerReflexive:
		return 110
	case CandidateTypeServerReflexive:
		return 100
	case CandidateTypeRelayed:
		return 0
	default:
		return 0
	}
}

func parseCandidateType(s string) (CandidateType, error) {
	switch s {
	case "host":
		return CandidateTypeHost, nil
	case "srflx":
		return CandidateTypeServerReflexive, nil
	case "prflx":
		return CandidateTypePeerReflexive, nil
	case "relay":
		return CandidateTypeRelayed, nil
	default:
		return 0, fmt.Errorf("%w: unknown typ %q", ErrMalformedCandidate, s)
	}
}

// GatheringState describes a Candidate's progress toward obtaining a usable
// transport address.
type GatheringState int

const (
	GatheringInProgress GatheringState = iota
	GatheringSuccess
	GatheringFailed
)

// Candidate is a transport address a party might use to send and receive
// media, per spec §3. It is owned by exactly one Stream (local or remote
// candidate list); base is nil for remote candidates, including remote
// peer-reflexive ones synthesized from inbound checks. Local peer-reflexive
// candidates carry the base of the pair they were discovered on.
type Candidate struct {
	Type          CandidateType
	Transport     string // always "udp" on the wire; see DESIGN.md Open Question #3
	Foundation    string
	ComponentID   int // always 1; see spec §9 Non-goals
	Priority      uint32
	Address       string
	Port          int
	RelatedAddr   string
	RelatedPort   int
	Gathering     GatheringState
	base          *Base
	server        *ServerConfig
	extensions    []kv
}

type kv struct {
	key, value string
}

// Extensions returns the candidate's extension key/value pairs in insertion
// order, per spec §4.2 (Format preserves insertion order).
func (c *Candidate) Extensions() []struct{ Key, Value string } {
	out := make([]struct{ Key, Value string }, len(c.extensions))
	for i, p := range c.extensions {
		out[i] = struct{ Key, Value string }{p.key, p.value}
	}
	return out
}

// AddExtension appends an extension key/value pair, preserving insertion
// order on Format.
func (c *Candidate) AddExtension(key, value string) {
	c.extensions = append(c.extensions, kv{key, value})
}

// Base returns the Base this local candidate belongs to, or nil for a remote
// candidate.
func (c *Candidate) Base() *Base { return c.base }

// ParseCandidate accepts an ICE candidate-line of the form:
//
//	foundation SP component SP transport SP priority SP address SP port
//	SP "typ" SP type [SP "raddr" SP addr SP "rport" SP port] [SP key SP value]*
//
// per RFC 8839 grammar, spec §4.2. The optional leading "candidate:" prefix
// (as carried in a=candidate SDP lines) is stripped if present. Rejects any
// deviation: case-sensitive tokens, numbers out of their declared width,
// and malformed addresses.
func ParseCandidate(s string) (*Candidate, error) {
	s = strings.TrimPrefix(s, "candidate:")
	fields := strings.Fields(s)
	if len(fields) < 8 {
		return nil, fmt.Errorf("%w: too few fields", ErrMalformedCandidate)
	}

	foundation := fields[0]
	if len(foundation) == 0 || len(foundation) > 32 {
		return nil, fmt.Errorf("%w: foundation length", ErrMalformedCandidate)
	}

	component, err := strconv.Atoi(fields[1])
	if err != nil || component < 1 || component > 256 {
		return nil, fmt.Errorf("%w: component %q", ErrMalformedCandidate, fields[1])
	}

	transport := fields[2]
	if transport != "udp" && transport != "tcp" {
		return nil, fmt.Errorf("%w: transport %q", ErrMalformedCandidate, transport)
	}

	priority, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: priority %q", ErrMalformedCandidate, fields[3])
	}

	address := fields[4]

	port, err := strconv.Atoi(fields[5])
	if err != nil || port < 0 || port > 65535 {
		return nil, fmt.Errorf("%w: port %q", ErrMalformedCandidate, fields[5])
	}

	if fields[6] != "typ" {
		return nil, fmt.Errorf("%w: expected \"typ\", got %q", ErrMalformedCandidate, fields[6])
	}
	typ, err := parseCandidateType(fields[7])
	if err != nil {
		return nil, err
	}

	c := &Candidate{
		Type:        typ,
		Transport:   transport,
		Foundation:  foundation,
		ComponentID: component,
		Priority:    uint32(priority),
		Address:     address,
		Port:        port,
		Gathering:   GatheringSuccess,
	}

	rest := fields[8:]
	for len(rest) >= 2 {
		switch rest[0] {
		case "raddr":
			c.RelatedAddr = rest[1]
			rest = rest[2:]
			if len(rest) >= 2 && rest[0] == "rport" {
				rport, err := strconv.Atoi(rest[1])
				if err != nil || rport < 0 || rport > 65535 {
					return nil, fmt.Errorf("%w: rport %q", ErrMalformedCandidate, rest[1])
				}
				c.RelatedPort = rport
				rest = rest[2:]
			}
		default:
			c.AddExtension(rest[0], rest[1])
			rest = rest[2:]
		}
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: trailing token %q", ErrMalformedCandidate, rest[0])
	}

	return c, nil
}

// FormatCandidate emits the canonical candidate-line form (without the
// "candidate:" SDP prefix); extension keys are preserved in insertion order.
func FormatCandidate(c *Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d udp %d %s %d typ %s",
		c.Foundation, c.ComponentID, c.Priority, c.Address, c.Port, c.Type)
	if c.RelatedAddr != "" {
		fmt.Fprintf(&b, " raddr %s rport %d", c.RelatedAddr, c.RelatedPort)
	}
	for _, p := range c.extensions {
		fmt.Fprintf(&b, " %s %s", p.key, p.value)
	}
	return b.String()
}

// localPreference implements spec §4.2's LOCAL_PREF rule: 65535 when there
// is a single local interface, else 50000 for IPv6 bases / 40000 for IPv4
// bases, decremented by the candidate's position among same-family,
// same-type siblings (siblings passed in gathering order, this candidate
// excluded).
func localPreference(isIPv6 bool, nInterfaces int, siblingSlot int) uint32 {
	if nInterfaces <= 1 {
		return 65535
	}
	base := uint32(40000)
	if isIPv6 {
		base = 50000
	}
	pref := base - uint32(siblingSlot)
	return pref
}

// ComputePriority implements RFC 8445 §5.1.2.1's priority formula, spec
// §4.2: priority = 2^24·TYPE_PREF + 2^8·LOCAL_PREF + (256 − component_id).
// siblingSlot is this candidate's zero-based position among previously
// gathered same-family, same-type candidates on this Stream.
func ComputePriority(c *Candidate, nInterfaces int, isIPv6 bool, siblingSlot int) uint32 {
	typePref := c.Type.typePreference()
	localPref := localPreference(isIPv6, nInterfaces, siblingSlot)
	return uint32(1<<24)*typePref + uint32(1<<8)*localPref + uint32(256-c.ComponentID)
}

// candidateFoundationKey identifies candidates sharing a foundation: equal
// {type, base address, protocol, STUN/TURN server identity}, per spec §4.2.
func candidateFoundationKey(c *Candidate) (ctype CandidateType, baseAddr, proto, server string) {
	ctype = c.Type
	proto = c.Transport
	if c.base != nil {
		baseAddr = c.base.LocalAddr
	} else {
		baseAddr = c.Address
	}
	if c.server != nil {
		server = c.server.URL
	}
	return
}

// ComputeFoundation assigns c.Foundation by scanning siblings for a
// matching {type, base address, protocol, server} tuple; if none is found a
// fresh 32-char ICE-string foundation is generated.
func ComputeFoundation(c *Candidate, siblings []*Candidate) {
	wantType, wantBase, wantProto, wantServer := candidateFoundationKey(c)
	for _, s := range siblings {
		if s == c {
			continue
		}
		sType, sBase, sProto, sServer := candidateFoundationKey(s)
		if sType == wantType && sBase == wantBase && sProto == wantProto && sServer == wantServer {
			c.Foundation = s.Foundation
			return
		}
	}
	c.Foundation = newICEString(32)
}
