// Package redis is a channel.Transport over Redis pub/sub.
//
// Each topic maps to the channel <prefix>:<table> or
// <prefix>:<table>:<filter>. Messages carry the same JSON body as the
// pgnotify transport: {"table", "type", "keys", "record"}. Publisher writes
// them, fanning a change out to the table channel and to the filtered channel
// of every key filter passed with it.
//
// go-redis reconnects a dropped pub/sub connection and subscribes again on
// its own. Messages published in between are lost, so every subscription
// confirmation after the first is delivered to consumers as a RESYNC event.
package redis
