package proxy

import (
	"reflect"
	"sync"
)

// active holds the connections that have a live Handle or a Create in
// progress, across every Proxier in the process. Only one reverse channel may
// listen per connection, or each notification would dispatch once per Handle.
var active = struct {
	sync.Mutex
	conns map[any]struct{}
}{conns: make(map[any]struct{})}

// activeKey is the connection itself. A connection whose value cannot be a
// map key is tracked per Proxier instead.
func (p *Proxier) activeKey() any {
	if reflect.ValueOf(p.conn).Comparable() {
		return p.conn
	}
	return p
}
