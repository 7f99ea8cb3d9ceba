package dbconn

import "context"

// FakeConn is a connection that only knows its dialect.
type FakeConn struct {
	id      ID
	product string
}

func MakeFakeConn(id ID, product string) FakeConn {
	return FakeConn{id: id, product: product}
}

func (f FakeConn) ID() ID {
	return f.id
}

func (f FakeConn) Close(ctx context.Context) error {
	return nil
}

func (f FakeConn) ConnStr() string {
	return "fake://"
}

func (f FakeConn) Dialect() string {
	return f.product
}
