// Package session tracks the current authentication session reported by an
// external identity provider.
//
// A Store performs one initial GetSession call on Start and afterwards relays
// provider push notifications. Listeners registered with OnChange receive
// every replacement in provider order, and nil when the session becomes absent:
//
//	store, err := session.NewStore(provider, session.WithLogger(log))
//	if err != nil {
//		return err
//	}
//	unsubscribe := store.OnChange(func(s *session.Session) {
//		if s == nil {
//			// signed out
//		}
//	})
//	defer unsubscribe()
//
//	if err := store.Start(ctx); err != nil {
//		return err
//	}
//	defer store.Close()
//
// Listener delivery is serialized and happens outside the store's lock, so a
// listener may call Current or register further listeners.
//
// If the initial fetch fails the store reports no session and keeps the error
// available through Err. Pushes still arrive normally afterwards.
package session
