// Package panel is the conversational assistant side panel.
//
// A Panel owns one session context: the active session id and title, the
// in-memory message log of that session, the in-flight flag, the session
// picker history and the realtime subscription that keeps the picker fresh.
// Its lifetime is bounded by Open and Close. The persistent store remains
// the source of truth; everything held here is a projection that is rebuilt
// on every session switch.
package panel
