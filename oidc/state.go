// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

// State is a stage of a Flow.  Authenticate moves through:
//
//	Idle -> DiscoveringConfig -> BuildingAuthUrl -> AwaitingInteractiveSession
//	     -> ExtractingCode -> ExchangingToken -> Complete
//
// and may end in Errored from any stage.  Logout moves through
// AwaitingInteractiveSession only.
type State int

const (
	Idle State = iota
	DiscoveringConfig
	BuildingAuthUrl
	AwaitingInteractiveSession
	ExtractingCode
	ExchangingToken
	Complete
	Errored
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case DiscoveringConfig:
		return "discovering-config"
	case BuildingAuthUrl:
		return "building-auth-url"
	case AwaitingInteractiveSession:
		return "awaiting-interactive-session"
	case ExtractingCode:
		return "extracting-code"
	case ExchangingToken:
		return "exchanging-token"
	case Complete:
		return "complete"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the state ends a flow.
func (s State) IsTerminal() bool {
	return s == Complete || s == Errored
}
