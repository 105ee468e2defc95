// Package relay implements the broadcast core of the gorelay server.
//
// Every accepted connection runs as a Session. A session registers its
// Outbox in the shared Registry, forwards queued messages to its peer on one
// goroutine, and fans inbound messages out to every other registered outbox
// on another. The Registry lock is only held to copy or mutate the map,
// never across a network write.
package relay
