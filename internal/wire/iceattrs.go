package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/pion/stun/v3"
)

// Custom ICE STUN attributes (RFC 8445 §7.1.1), not part of pion/stun/v3's
// core attribute set.
const (
	AttrPriority      stun.AttrType = 0x0024
	AttrUseCandidate  stun.AttrType = 0x0025
	AttrICEControlled stun.AttrType = 0x8029
	AttrICEControlling stun.AttrType = 0x802A
)

// PriorityAttr carries the PRIORITY attribute: the priority the sender
// would assign the candidate pair if it became peer-reflexive.
type PriorityAttr uint32

func (p PriorityAttr) AddTo(m *stun.Message) error {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, uint32(p))
	m.Add(AttrPriority, v)
	return nil
}

func (p *PriorityAttr) GetFrom(m *stun.Message) error {
	v, err := m.Get(AttrPriority)
	if err != nil {
		return err
	}
	if len(v) != 4 {
		return fmt.Errorf("wire: malformed PRIORITY attribute length %d", len(v))
	}
	*p = PriorityAttr(binary.BigEndian.Uint32(v))
	return nil
}

// UseCandidateAttr is the zero-length USE-CANDIDATE flag attribute.
type UseCandidateAttr struct{}

func (UseCandidateAttr) AddTo(m *stun.Message) error {
	m.Add(AttrUseCandidate, nil)
	return nil
}

func hasUseCandidate(m *stun.Message) bool {
	_, err := m.Get(AttrUseCandidate)
	return err == nil
}

// ICEControllingAttr carries the ICE-CONTROLLING attribute with the
// sender's tiebreaker value.
type ICEControllingAttr uint64

func (t ICEControllingAttr) AddTo(m *stun.Message) error {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, uint64(t))
	m.Add(AttrICEControlling, v)
	return nil
}

func (t *ICEControllingAttr) GetFrom(m *stun.Message) error {
	v, err := m.Get(AttrICEControlling)
	if err != nil {
		return err
	}
	if len(v) != 8 {
		return fmt.Errorf("wire: malformed ICE-CONTROLLING attribute length %d", len(v))
	}
	*t = ICEControllingAttr(binary.BigEndian.Uint64(v))
	return nil
}

// ICEControlledAttr carries the ICE-CONTROLLED attribute with the sender's
// tiebreaker value.
type ICEControlledAttr uint64

func (t ICEControlledAttr) AddTo(m *stun.Message) error {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, uint64(t))
	m.Add(AttrICEControlled, v)
	return nil
}

func (t *ICEControlledAttr) GetFrom(m *stun.Message) error {
	v, err := m.Get(AttrICEControlled)
	if err != nil {
		return err
	}
	if len(v) != 8 {
		return fmt.Errorf("wire: malformed ICE-CONTROLLED attribute length %d", len(v))
	}
	*t = ICEControlledAttr(binary.BigEndian.Uint64(v))
	return nil
}

// RoleAttrs is the decoded role-related attribute set of an inbound binding
// request.
type RoleAttrs struct {
	Controlling    bool
	Controlled     bool
	Tiebreaker     uint64
	UseCandidate   bool
	PeerPriority   uint32
	HasPriority    bool
}

// ParseRoleAttrs extracts PRIORITY, USE-CANDIDATE, ICE-CONTROLLING and
// ICE-CONTROLLED from an inbound message. Missing PRIORITY is reported via
// HasPriority=false so the caller can reply 400 per spec §7.
func ParseRoleAttrs(m *stun.Message) RoleAttrs {
	var out RoleAttrs

	var pri PriorityAttr
	if pri.GetFrom(m) == nil {
		out.PeerPriority = uint32(pri)
		out.HasPriority = true
	}

	out.UseCandidate = hasUseCandidate(m)

	var controlling ICEControllingAttr
	if controlling.GetFrom(m) == nil {
		out.Controlling = true
		out.Tiebreaker = uint64(controlling)
	}

	var controlled ICEControlledAttr
	if controlled.GetFrom(m) == nil {
		out.Controlled = true
		out.Tiebreaker = uint64(controlled)
	}

	return out
}
