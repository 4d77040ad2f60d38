// Package invalidator routes change notifications to query cache entries and
// resets cached state when the signed-in identity changes.
//
// Track attaches one channel consumer per table backing a key. A change event
// for a table invalidates every tracked key it affects and refreshes those with
// active subscribers. Resync and error events are handled the same way, so a
// reconnect always reloads everything routed through the subscription.
//
// HandleSession is meant to be registered as a session listener. Signing out
// or switching to a different subject clears the whole cache and detaches
// every channel subscription before the new identity is accepted; a token
// refresh for the same subject changes nothing. Accepts tells a fetch gate
// whether that transition has completed for a given session.
package invalidator
