// Package ws is the window transport: windows connect over WebSocket at
// /ws/:window and the host pushes JSON messages to them by window name.
//
// One peer is kept per window name; a new connection for the same name
// replaces the old one once it is admitted. A new peer only receives sends
// after the window-connected listener calls Admit, so admission and replay
// happen in one step of the listener's loop. Sends are fire-and-forget: a
// message for a window with no admitted peer is dropped.
//
// Host to window:
//
//	{"type":"system","message":"connected","connector":"conn_..."}
//	{"type":"session-started","text":"Game was launched: Fortnite 21216"}
//	{"type":"close"}
//
// Window to host:
//
//	{"type":"ping"}     answered with {"type":"pong"}
//	{"type":"closing"}  acknowledges a close; the socket is dropped
package ws
