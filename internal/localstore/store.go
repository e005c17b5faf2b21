// Package localstore is a device-local key/value store whose views are kept
// consistent through change notifications rather than shared memory.
//
// Several views may be open on one underlying store. A Set through one view
// notifies the subscribers of every other view for that key; the writing view
// is not notified of its own writes.
package localstore

import "context"

// Change is delivered to subscribers when another view writes a key.
type Change struct {
	Key   string
	Value []byte
}

type Subscription interface {
	Unsubscribe()
}

type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Subscribe(key string, fn func(Change)) Subscription
}
