// Package chat ingests Twitch chat for one channel.
//
// A Client owns a single go-twitch-irc connection. Connect tears down any
// previous connection (and its subscribers), joins the channel and returns
// once the server confirms the JOIN. Transport callbacks only parse PRIVMSG
// tags into ChatMessage values and queue them; a per-connection goroutine
// fans each message out, in arrival order, to every Subscription. Every
// subscriber gets its own copy, and a panicking callback is logged and
// skipped without affecting the others.
//
// Messages sent by the client's own login are dropped before parsing.
// Reconnects below the JOIN are handled by go-twitch-irc itself and are only
// logged here.
//
// Buffering is up to the consumer: Window keeps the newest N messages and its
// Add method can be passed directly to Subscribe.
package chat
