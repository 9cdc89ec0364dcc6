package iceagent

import (
	"time"

	"github.com/pion/stun/v3"
)

// txnOwner is the tagged union spec §3/§9 calls for: a transaction table
// entry resolves to either a Candidate (STUN Binding or TURN Allocate
// gathering request in flight) or a Pair (connectivity check in flight).
type txnOwner struct {
	candidate *Candidate
	pair      *Pair
}

type txnEntry struct {
	owner     txnOwner
	createdAt time.Time
}

// txnTable is the Agent's transaction table: 12-byte transaction id ->
// owner, weak in the sense that an owner may already be destroyed by the
// time a response resolves it (spec §3 ownership summary). Accessed only
// from the event-loop goroutine, per §5, so it carries no lock.
type txnTable struct {
	entries  map[[stun.TransactionIDSize]byte]txnEntry
	lifetime time.Duration
}

func newTxnTable(lifetime time.Duration) *txnTable {
	return &txnTable{
		entries:  make(map[[stun.TransactionIDSize]byte]txnEntry),
		lifetime: lifetime,
	}
}

// insertPair registers an outstanding connectivity check, generating a
// fresh 12-byte transaction id.
func (t *txnTable) insertPair(p *Pair) ([stun.TransactionIDSize]byte, error) {
	id, err := stun.NewTransactionID()
	if err != nil {
		return id, err
	}
	t.entries[id] = txnEntry{owner: txnOwner{pair: p}, createdAt: time.Now()}
	return id, nil
}

// insertCandidate registers an outstanding STUN/TURN gathering request.
func (t *txnTable) insertCandidate(c *Candidate) ([stun.TransactionIDSize]byte, error) {
	id, err := stun.NewTransactionID()
	if err != nil {
		return id, err
	}
	t.entries[id] = txnEntry{owner: txnOwner{candidate: c}, createdAt: time.Now()}
	return id, nil
}

// resolve looks up and removes the entry for id, per spec §4.7: "looked up
// on each inbound STUN response by the response's transaction id; the
// lookup removes the entry."
func (t *txnTable) resolve(id [stun.TransactionIDSize]byte) (txnOwner, bool) {
	e, ok := t.entries[id]
	if !ok {
		return txnOwner{}, false
	}
	delete(t.entries, id)
	return e.owner, true
}

// gc evicts entries older than the configured transaction lifetime.
func (t *txnTable) gc(now time.Time) {
	for id, e := range t.entries {
		if now.Sub(e.createdAt) > t.lifetime {
			delete(t.entries, id)
		}
	}
}

// removeOwnedByPair drops every entry owned by p, called when the pair's
// session is destroyed.
func (t *txnTable) removeOwnedByPair(p *Pair) {
	for id, e := range t.entries {
		if e.owner.pair == p {
			delete(t.entries, id)
		}
	}
}

// removeOwnedByCandidate drops every entry owned by c.
func (t *txnTable) removeOwnedByCandidate(c *Candidate) {
	for id, e := range t.entries {
		if e.owner.candidate == c {
			delete(t.entries, id)
		}
	}
}
