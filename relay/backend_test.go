package relay

import (
	"context"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestNewBindingRejectsNilBackend(t *testing.T) {
	c := qt.New(t)
	_, err := NewBinding(nil)
	c.Assert(err, qt.ErrorMatches, ".*non-nil Backend.*")
}

func TestNewOverrideBindingRejectsNilResponder(t *testing.T) {
	c := qt.New(t)
	_, err := NewOverrideBinding(nil)
	c.Assert(err, qt.ErrorMatches, ".*non-nil Responder.*")
}

func TestBindingIsConnectedAndEmpty(t *testing.T) {
	c := qt.New(t)

	var zero Binding
	c.Assert(zero.empty(), qt.IsTrue)
	c.Assert(zero.IsConnected(), qt.IsFalse)

	b, err := NewBinding(&fakeBackend{})
	c.Assert(err, qt.IsNil)
	c.Assert(b.empty(), qt.IsFalse)
	c.Assert(b.IsConnected(), qt.IsTrue)

	ov, err := NewOverrideBinding(rootResponder)
	c.Assert(err, qt.IsNil)
	c.Assert(ov.empty(), qt.IsFalse)
	c.Assert(ov.IsConnected(), qt.IsFalse)
}

// compile-time check that fakeBackend (defined in upgrade_test.go) satisfies
// Backend.
var _ Backend = (*fakeBackend)(nil)

func TestFakeBackendCloseIsNilByDefault(t *testing.T) {
	c := qt.New(t)
	b := &fakeBackend{}
	c.Assert(b.Close(context.Background()), qt.IsNil)
}
