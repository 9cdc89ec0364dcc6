// Package iceagent implements an Interactive Connectivity Establishment
// (ICE) agent coupled with a DTLS-SRTP handshake driver. It negotiates a
// peer-to-peer media path between two endpoints across NATs, establishes a
// DTLS-SRTP security context over the selected path, and carries
// SRTP-protected media frames through it.
//
// The agent runs the standard RFC 8445 connectivity-check state machine
// (candidate gathering, pair prioritization, trigger-check queues, role
// conflict resolution, nomination) and, once a pair is selected, drives a
// DTLS handshake over it and exports SRTP keying material per RFC 5764.
//
// Media codec work, TURN channel-data fast path, multi-component streams,
// and TCP/TLS ICE transports are out of scope; see SPEC_FULL.md.
package iceagent
