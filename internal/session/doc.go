// Package session owns the lifecycle of the single protocol session and the
// auto-send loop gated by it.
//
// Manager is an actor: protocol events, reconnect timers and logout requests
// are queued on one channel and handled one at a time by Run. Every protocol
// client instance carries a generation number; events from a superseded
// instance are dropped, so a late close from an old client can never trigger a
// second reinitialization.
//
// Scheduler is the periodic self-send task. Its enabled flag and timer handle
// form one critical section, shared by the settings update path and the
// real-time toggle path.
package session
