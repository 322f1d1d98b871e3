// Package api provides the HTTP side of a Pushi client.
//
// Endpoints:
//   - Channel authorization: GET <auth endpoint>?socket_id=<id>&channel=<name>
//   - Login: POST <web base>/login
//   - Web push registration: POST <web base>/web_pushes
//   - Web push removal: DELETE <web base>/web_pushes/<endpoint>
//
// The web base defaults to the websocket base URL with its scheme switched
// to http(s).
package api
